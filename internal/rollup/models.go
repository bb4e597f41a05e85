package rollup

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySummary holds the totals of one business day. Only this package
// writes it.
type DailySummary struct {
	BusinessDate    string          `gorm:"primaryKey;type:varchar(10)" json:"date"`
	TotalBookings   int64           `gorm:"not null" json:"total_bookings"`
	TotalCash       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_cash"`
	TotalTransfer   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_transfer"`
	TotalGross      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_gross"`
	TotalCommission decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_commission"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (DailySummary) TableName() string { return "daily_summaries" }

// AgentDailySummary holds the totals of one agent on one business day.
type AgentDailySummary struct {
	BusinessDate    string          `gorm:"primaryKey;type:varchar(10)" json:"date"`
	AgentName       string          `gorm:"primaryKey;type:varchar(128)" json:"agent_name"`
	TotalBookings   int64           `gorm:"not null" json:"total_bookings"`
	TotalCash       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_cash"`
	TotalTransfer   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_transfer"`
	TotalGross      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_gross"`
	TotalCommission decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_commission"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (AgentDailySummary) TableName() string { return "agent_daily_summaries" }

// Totals is the additive payload shared by both summary tables.
type Totals struct {
	Bookings   int64           `json:"bookings"`
	Cash       decimal.Decimal `json:"cash"`
	Transfer   decimal.Decimal `json:"transfer"`
	Gross      decimal.Decimal `json:"gross"`
	Commission decimal.Decimal `json:"commission"`
}

func (t Totals) Add(o Totals) Totals {
	return Totals{
		Bookings:   t.Bookings + o.Bookings,
		Cash:       t.Cash.Add(o.Cash),
		Transfer:   t.Transfer.Add(o.Transfer),
		Gross:      t.Gross.Add(o.Gross),
		Commission: t.Commission.Add(o.Commission),
	}
}

func (t Totals) Neg() Totals {
	return Totals{
		Bookings:   -t.Bookings,
		Cash:       t.Cash.Neg(),
		Transfer:   t.Transfer.Neg(),
		Gross:      t.Gross.Neg(),
		Commission: t.Commission.Neg(),
	}
}

func (t Totals) IsZero() bool {
	return t.Bookings == 0 && t.Cash.IsZero() && t.Transfer.IsZero() &&
		t.Gross.IsZero() && t.Commission.IsZero()
}

func (t Totals) HasNegative() bool {
	return t.Bookings < 0 || t.Cash.IsNegative() || t.Transfer.IsNegative() ||
		t.Gross.IsNegative() || t.Commission.IsNegative()
}

func (t Totals) Equal(o Totals) bool {
	return t.Bookings == o.Bookings && t.Cash.Equal(o.Cash) && t.Transfer.Equal(o.Transfer) &&
		t.Gross.Equal(o.Gross) && t.Commission.Equal(o.Commission)
}

func (s DailySummary) Totals() Totals {
	return Totals{
		Bookings:   s.TotalBookings,
		Cash:       s.TotalCash,
		Transfer:   s.TotalTransfer,
		Gross:      s.TotalGross,
		Commission: s.TotalCommission,
	}
}

func (s AgentDailySummary) Totals() Totals {
	return Totals{
		Bookings:   s.TotalBookings,
		Cash:       s.TotalCash,
		Transfer:   s.TotalTransfer,
		Gross:      s.TotalGross,
		Commission: s.TotalCommission,
	}
}
