package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/financial"
)

// Filter narrows a report. The zero value selects everything.
type Filter struct {
	AgentName     string
	Location      string
	PaymentMethod financial.PaymentMethod
}

func (f Filter) Empty() bool {
	return f.AgentName == "" && f.Location == "" && f.PaymentMethod == ""
}

func (f Filter) AgentOnly() bool {
	return f.AgentName != "" && f.Location == "" && f.PaymentMethod == ""
}

type Query struct {
	Range  businessday.Range
	Filter Filter
}

// Source names the table a report was computed from.
type Source string

const (
	SourceDailySummary Source = "daily_summaries"
	SourceAgentSummary Source = "agent_daily_summaries"
	SourceLedger       Source = "ledger"
)

type Totals struct {
	Bookings   int64           `json:"bookings"`
	Cash       decimal.Decimal `json:"cash"`
	Transfer   decimal.Decimal `json:"transfer"`
	Gross      decimal.Decimal `json:"gross"`
	Commission decimal.Decimal `json:"commission"`
	Net        decimal.Decimal `json:"net"`
}

type PeriodSummaryResponse struct {
	From        businessday.Date `json:"from"`
	To          businessday.Date `json:"to"`
	Days        int              `json:"days"`
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	Source      Source           `json:"source"`
	Totals      Totals           `json:"totals"`
	HasData     bool             `json:"has_data"`
}

type Dimension string

const (
	ByAgent    Dimension = "agent"
	ByLocation Dimension = "location"
)

type Metric string

const (
	MetricRevenue    Metric = "revenue"
	MetricCommission Metric = "commission"
	MetricBookings   Metric = "bookings"
)

type PerformanceRequest struct {
	Query
	By     Dimension
	Metric Metric
	// Limit falls back to the configured ranking limit when not positive.
	Limit int
}

type PerformanceRow struct {
	Rank         int             `json:"rank"`
	Name         string          `json:"name"`
	Bookings     int64           `json:"bookings"`
	Revenue      decimal.Decimal `json:"revenue"`
	Commission   decimal.Decimal `json:"commission"`
	Net          decimal.Decimal `json:"net"`
	AverageValue decimal.Decimal `json:"average_value"`
}

type PerformanceResponse struct {
	From   businessday.Date `json:"from"`
	To     businessday.Date `json:"to"`
	By     Dimension        `json:"by"`
	Metric Metric           `json:"metric"`
	Source Source           `json:"source"`
	Rows   []PerformanceRow `json:"rows"`
}

type GrowthRequest struct {
	Current Query
	// Previous defaults to the same-length range right before Current.
	Previous *businessday.Range
}

type GrowthMetric struct {
	Current      decimal.Decimal `json:"current"`
	Previous     decimal.Decimal `json:"previous"`
	Percent      decimal.Decimal `json:"percent"`
	PreviousZero bool            `json:"previous_zero"`
}

type GrowthResponse struct {
	Current    businessday.Range `json:"current"`
	Previous   businessday.Range `json:"previous"`
	Bookings   GrowthMetric      `json:"bookings"`
	Cash       GrowthMetric      `json:"cash"`
	Transfer   GrowthMetric      `json:"transfer"`
	Gross      GrowthMetric      `json:"gross"`
	Commission GrowthMetric      `json:"commission"`
	Net        GrowthMetric      `json:"net"`
}

type PaymentShare struct {
	Method   financial.PaymentMethod `json:"method"`
	Bookings int64                   `json:"bookings"`
	Gross    decimal.Decimal         `json:"gross"`
	Percent  decimal.Decimal         `json:"percent"`
}

type PaymentBreakdownResponse struct {
	From    businessday.Date `json:"from"`
	To      businessday.Date `json:"to"`
	Gross   decimal.Decimal  `json:"gross"`
	Methods []PaymentShare   `json:"methods"`
}

type Granularity string

const (
	GranularityDaily  Granularity = "daily"
	GranularityHourly Granularity = "hourly"
)

type TrendRequest struct {
	Query
	Granularity Granularity
}

type TrendPoint struct {
	Bucket   string          `json:"bucket"`
	Start    time.Time       `json:"start"`
	Bookings int64           `json:"bookings"`
	Gross    decimal.Decimal `json:"gross"`
}

type TrendResponse struct {
	From        businessday.Date `json:"from"`
	To          businessday.Date `json:"to"`
	Granularity Granularity      `json:"granularity"`
	Source      Source           `json:"source"`
	Points      []TrendPoint     `json:"points"`
}

type OverviewResponse struct {
	Transactions int64             `json:"transactions"`
	Skipped      int64             `json:"skipped"`
	Revenue      decimal.Decimal   `json:"revenue"`
	Commission   decimal.Decimal   `json:"commission"`
	Net          decimal.Decimal   `json:"net"`
	Agents       int64             `json:"agents"`
	ActiveDays   int64             `json:"active_days"`
	FirstDate    *businessday.Date `json:"first_date,omitempty"`
	LastDate     *businessday.Date `json:"last_date,omitempty"`
}

type RecentTransaction struct {
	ID            snowflake.ID            `json:"id"`
	OccurredAt    time.Time               `json:"occurred_at"`
	BusinessDate  businessday.Date        `json:"business_date"`
	Location      string                  `json:"location"`
	Unit          string                  `json:"unit"`
	AgentName     string                  `json:"agent_name"`
	PaymentMethod financial.PaymentMethod `json:"payment_method"`
	Amount        decimal.Decimal         `json:"amount"`
	Commission    decimal.Decimal         `json:"commission"`
	SkipFinancial bool                    `json:"skip_financial"`
}

// CommissionCell is what one agent earned at one location.
type CommissionCell struct {
	AgentName  string          `json:"agent_name"`
	Location   string          `json:"location"`
	Bookings   int64           `json:"bookings"`
	Gross      decimal.Decimal `json:"gross"`
	Commission decimal.Decimal `json:"commission"`
}

type AgentCommission struct {
	AgentName  string          `json:"agent_name"`
	Bookings   int64           `json:"bookings"`
	Commission decimal.Decimal `json:"commission"`
}

// CommissionMatrixResponse is the agent by location commission recap used
// for payouts. Cells are ordered by agent, then location.
type CommissionMatrixResponse struct {
	From       businessday.Date  `json:"from"`
	To         businessday.Date  `json:"to"`
	Locations  []string          `json:"locations"`
	Cells      []CommissionCell  `json:"cells"`
	Agents     []AgentCommission `json:"agents"`
	Bookings   int64             `json:"bookings"`
	Commission decimal.Decimal   `json:"commission"`
}

// Service answers read-only questions about the ledger and its summaries.
type Service interface {
	PeriodSummary(ctx context.Context, q Query) (PeriodSummaryResponse, error)
	Performance(ctx context.Context, req PerformanceRequest) (PerformanceResponse, error)
	Growth(ctx context.Context, req GrowthRequest) (GrowthResponse, error)
	PaymentBreakdown(ctx context.Context, q Query) (PaymentBreakdownResponse, error)
	CommissionMatrix(ctx context.Context, q Query) (CommissionMatrixResponse, error)
	Trend(ctx context.Context, req TrendRequest) (TrendResponse, error)
	Overview(ctx context.Context) (OverviewResponse, error)
	Recent(ctx context.Context, limit int) ([]RecentTransaction, error)
}

var (
	ErrInvalidDimension    = errors.New("invalid_dimension")
	ErrInvalidMetric       = errors.New("invalid_metric")
	ErrInvalidGranularity  = errors.New("invalid_granularity")
	ErrTooManyBuckets      = errors.New("too_many_trend_buckets")
	ErrOverlappingRanges   = errors.New("overlapping_ranges")
	ErrInvalidPreset       = errors.New("invalid_preset")
	ErrCustomRangeRequired = errors.New("custom_range_required")
)

func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidDimension,
		ErrInvalidMetric,
		ErrInvalidGranularity,
		ErrTooManyBuckets,
		ErrOverlappingRanges,
		ErrInvalidPreset,
		ErrCustomRangeRequired,
		businessday.ErrInvalidDate,
		businessday.ErrInvalidRange,
		financial.ErrInvalidPaymentMethod,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
