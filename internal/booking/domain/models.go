package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/financial"
	"gorm.io/datatypes"
)

// Transaction is one booking in the ledger. DateOnly is derived from
// OccurredAt and is never taken from callers.
type Transaction struct {
	ID            snowflake.ID            `gorm:"primaryKey" json:"id"`
	MessageID     *string                 `gorm:"type:varchar(255);uniqueIndex" json:"message_id,omitempty"`
	ChatID        string                  `gorm:"type:varchar(255)" json:"chat_id,omitempty"`
	GroupID       string                  `gorm:"type:varchar(255)" json:"group_id,omitempty"`
	Location      string                  `gorm:"type:varchar(255);not null;index" json:"location"`
	Unit          string                  `gorm:"type:varchar(64);not null" json:"unit"`
	CheckoutTime  string                  `gorm:"type:varchar(64)" json:"checkout_time,omitempty"`
	Duration      string                  `gorm:"type:varchar(64)" json:"duration,omitempty"`
	PaymentMethod financial.PaymentMethod `gorm:"type:varchar(16);not null" json:"payment_method"`
	AgentName     string                  `gorm:"type:varchar(128);not null;index:idx_transactions_date_agent,priority:2" json:"agent_name"`
	MarketingName string                  `gorm:"type:varchar(128)" json:"marketing_name,omitempty"`
	Notes         string                  `gorm:"type:text" json:"notes,omitempty"`
	Amount        decimal.Decimal         `gorm:"type:numeric(14,2);not null" json:"amount"`
	Commission    decimal.Decimal         `gorm:"type:numeric(14,2);not null" json:"commission"`
	NetAmount     decimal.Decimal         `gorm:"type:numeric(14,2);not null" json:"net_amount"`
	SkipFinancial bool                    `gorm:"not null" json:"skip_financial"`
	OccurredAt    time.Time               `gorm:"not null;index" json:"occurred_at"`
	DateOnly      string                  `gorm:"type:varchar(10);not null;index:idx_transactions_date_agent,priority:1" json:"date_only"`
	Metadata      datatypes.JSONMap       `json:"metadata,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

func (t Transaction) MessageIDValue() string {
	if t.MessageID == nil {
		return ""
	}
	return *t.MessageID
}
