// Package rollup keeps the daily and per-agent summary tables consistent
// with the transaction ledger. It is the only writer of those tables.
package rollup

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/financial"
	"github.com/smallbiznis/staybook/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Entry is the part of a ledger row that summaries depend on.
type Entry struct {
	Date          businessday.Date
	Agent         string
	PaymentMethod financial.PaymentMethod
	Amount        decimal.Decimal
	Commission    decimal.Decimal
	SkipFinancial bool
}

func (e *Entry) contributes() bool {
	return e != nil && !e.SkipFinancial
}

func (e *Entry) totals() Totals {
	cash, transfer := financial.Split(e.PaymentMethod, e.Amount)
	return Totals{
		Bookings:   1,
		Cash:       cash,
		Transfer:   transfer,
		Gross:      e.Amount,
		Commission: e.Commission,
	}
}

// Change describes one ledger mutation. Before is the committed row state
// prior to the mutation, After the state it leaves behind.
type Change struct {
	Kind   ChangeKind
	Before *Entry
	After  *Entry
}

func (c Change) validate() error {
	switch c.Kind {
	case ChangeInsert:
		if c.Before != nil || c.After == nil {
			return ErrInvalidChange
		}
	case ChangeUpdate:
		if c.Before == nil || c.After == nil {
			return ErrInvalidChange
		}
	case ChangeDelete:
		if c.Before == nil || c.After != nil {
			return ErrInvalidChange
		}
	default:
		return ErrInvalidChange
	}
	return nil
}

// summaryKey addresses either a daily row or an agent row.
type summaryKey struct {
	Date  businessday.Date
	Agent string
	daily bool
}

type delta struct {
	key    summaryKey
	prior  bool
	totals Totals
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock      `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Maintainer struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewMaintainer(p Params) *Maintainer {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Maintainer{
		db:      p.DB,
		log:     p.Log.Named("rollup.maintainer"),
		clock:   clk,
		metrics: p.Metrics,
	}
}

// Apply folds a ledger change into both summary tables using tx, the
// transaction that performed the ledger write. Any error must roll tx back.
func (m *Maintainer) Apply(ctx context.Context, tx *gorm.DB, change Change) error {
	if err := change.validate(); err != nil {
		return err
	}

	deltas := computeDeltas(change)
	if len(deltas) == 0 {
		return nil
	}

	now := m.clock.Now()
	for _, d := range deltas {
		if err := m.applyDelta(ctx, tx, d, now); err != nil {
			m.reportIntegrity(ctx, err)
			return err
		}
	}
	if err := m.assertNonNegative(ctx, tx, deltas); err != nil {
		m.reportIntegrity(ctx, err)
		return err
	}

	m.metrics.RecordRollupApply(ctx, string(change.Kind))
	return nil
}

func computeDeltas(change Change) []delta {
	acc := map[summaryKey]*delta{}
	add := func(e *Entry, t Totals, prior bool) {
		for _, key := range []summaryKey{
			{Date: e.Date, daily: true},
			{Date: e.Date, Agent: e.Agent},
		} {
			d, ok := acc[key]
			if !ok {
				d = &delta{key: key}
				acc[key] = d
			}
			d.totals = d.totals.Add(t)
			d.prior = d.prior || prior
		}
	}

	if change.Before.contributes() {
		add(change.Before, change.Before.totals().Neg(), true)
	}
	if change.After.contributes() {
		add(change.After, change.After.totals(), false)
	}

	out := make([]delta, 0, len(acc))
	for _, d := range acc {
		if d.totals.IsZero() {
			continue
		}
		out = append(out, *d)
	}
	// Fixed lock order across concurrent writers.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].key, out[j].key
		if a.daily != b.daily {
			return a.daily
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Agent < b.Agent
	})
	return out
}

func (m *Maintainer) applyDelta(ctx context.Context, tx *gorm.DB, d delta, now time.Time) error {
	table := AgentDailySummary{}.TableName()
	if d.key.daily {
		table = DailySummary{}.TableName()
	}

	if d.prior {
		q := tx.WithContext(ctx).Table(table).Where("business_date = ?", string(d.key.Date))
		if !d.key.daily {
			q = q.Where("agent_name = ?", d.key.Agent)
		}
		res := q.Updates(map[string]any{
			"total_bookings":   gorm.Expr("total_bookings + ?", d.totals.Bookings),
			"total_cash":       gorm.Expr("total_cash + ?", d.totals.Cash),
			"total_transfer":   gorm.Expr("total_transfer + ?", d.totals.Transfer),
			"total_gross":      gorm.Expr("total_gross + ?", d.totals.Gross),
			"total_commission": gorm.Expr("total_commission + ?", d.totals.Commission),
			"updated_at":       now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &IntegrityError{Date: d.key.Date, Agent: d.key.Agent, Reason: ReasonSummaryMissing}
		}
		return nil
	}

	assignments := clause.Assignments(map[string]any{
		"total_bookings":   gorm.Expr(table+".total_bookings + ?", d.totals.Bookings),
		"total_cash":       gorm.Expr(table+".total_cash + ?", d.totals.Cash),
		"total_transfer":   gorm.Expr(table+".total_transfer + ?", d.totals.Transfer),
		"total_gross":      gorm.Expr(table+".total_gross + ?", d.totals.Gross),
		"total_commission": gorm.Expr(table+".total_commission + ?", d.totals.Commission),
		"updated_at":       now,
	})

	if d.key.daily {
		row := DailySummary{
			BusinessDate:    string(d.key.Date),
			TotalBookings:   d.totals.Bookings,
			TotalCash:       d.totals.Cash,
			TotalTransfer:   d.totals.Transfer,
			TotalGross:      d.totals.Gross,
			TotalCommission: d.totals.Commission,
			UpdatedAt:       now,
		}
		return tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "business_date"}},
			DoUpdates: assignments,
		}).Create(&row).Error
	}

	row := AgentDailySummary{
		BusinessDate:    string(d.key.Date),
		AgentName:       d.key.Agent,
		TotalBookings:   d.totals.Bookings,
		TotalCash:       d.totals.Cash,
		TotalTransfer:   d.totals.Transfer,
		TotalGross:      d.totals.Gross,
		TotalCommission: d.totals.Commission,
		UpdatedAt:       now,
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_date"}, {Name: "agent_name"}},
		DoUpdates: assignments,
	}).Create(&row).Error
}

func (m *Maintainer) assertNonNegative(ctx context.Context, tx *gorm.DB, deltas []delta) error {
	for _, d := range deltas {
		var totals Totals
		if d.key.daily {
			var row DailySummary
			if err := tx.WithContext(ctx).
				Where("business_date = ?", string(d.key.Date)).
				Take(&row).Error; err != nil {
				return err
			}
			totals = row.Totals()
		} else {
			var row AgentDailySummary
			if err := tx.WithContext(ctx).
				Where("business_date = ? AND agent_name = ?", string(d.key.Date), d.key.Agent).
				Take(&row).Error; err != nil {
				return err
			}
			totals = row.Totals()
		}
		if totals.HasNegative() {
			return &IntegrityError{Date: d.key.Date, Agent: d.key.Agent, Reason: ReasonNegativeTotal}
		}
	}
	return nil
}

func (m *Maintainer) reportIntegrity(ctx context.Context, err error) {
	ie, ok := err.(*IntegrityError)
	if !ok {
		return
	}
	m.metrics.RecordIntegrityError(ctx, ie.Reason)
	m.log.Error("summary integrity violation",
		zap.String("date", string(ie.Date)),
		zap.String("agent", ie.Agent),
		zap.String("reason", ie.Reason),
	)
}
