package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/financial"
)

// Agent is a customer-service agent and their default commission policy.
type Agent struct {
	ID              snowflake.ID         `gorm:"primaryKey" json:"id"`
	Name            string               `gorm:"type:varchar(128);not null" json:"name"`
	NameKey         string               `gorm:"type:varchar(128);not null;uniqueIndex" json:"-"`
	CommissionType  financial.PolicyType `gorm:"type:varchar(16);not null" json:"commission_type"`
	CommissionValue decimal.Decimal      `gorm:"type:numeric(14,4);not null" json:"commission_value"`
	Active          bool                 `gorm:"not null" json:"active"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func (Agent) TableName() string { return "agents" }

func (a Agent) Policy() financial.Policy {
	return financial.Policy{Type: a.CommissionType, Value: a.CommissionValue}
}

// Location is a property rooms are booked at, keyed by slug.
type Location struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Code      string       `gorm:"type:varchar(128);not null;uniqueIndex" json:"code"`
	Name      string       `gorm:"type:varchar(255);not null" json:"name"`
	Active    bool         `gorm:"not null" json:"active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Location) TableName() string { return "locations" }
