package rollup

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/financial"
	"github.com/smallbiznis/staybook/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const ledgerTable = "transactions"

// TotalsDiff pairs stored summary totals with the ledger-derived truth.
type TotalsDiff struct {
	Agent  string `json:"agent,omitempty"`
	Stored Totals `json:"stored"`
	Ledger Totals `json:"ledger"`
}

// Drift lists the summary rows of a day that disagree with the ledger.
type Drift struct {
	Date   businessday.Date `json:"date"`
	Daily  *TotalsDiff      `json:"daily,omitempty"`
	Agents []TotalsDiff     `json:"agents,omitempty"`
}

func (d Drift) Clean() bool {
	return d.Daily == nil && len(d.Agents) == 0
}

type agentAggregate struct {
	AgentName       string
	TotalBookings   int64
	TotalCash       decimal.Decimal
	TotalTransfer   decimal.Decimal
	TotalGross      decimal.Decimal
	TotalCommission decimal.Decimal
}

func (a agentAggregate) totals() Totals {
	return Totals{
		Bookings:   a.TotalBookings,
		Cash:       a.TotalCash,
		Transfer:   a.TotalTransfer,
		Gross:      a.TotalGross,
		Commission: a.TotalCommission,
	}
}

// aggregateLedger groups every ledger row of date by agent. Agents whose rows
// are all skipped still appear, with zero totals.
func aggregateLedger(ctx context.Context, conn *gorm.DB, date businessday.Date) ([]agentAggregate, error) {
	var rows []agentAggregate
	err := conn.WithContext(ctx).Raw(`
		SELECT agent_name,
			COALESCE(SUM(CASE WHEN skip_financial = ? THEN 1 ELSE 0 END), 0) AS total_bookings,
			COALESCE(SUM(CASE WHEN skip_financial = ? AND payment_method = ? THEN amount ELSE 0 END), 0) AS total_cash,
			COALESCE(SUM(CASE WHEN skip_financial = ? AND payment_method = ? THEN amount ELSE 0 END), 0) AS total_transfer,
			COALESCE(SUM(CASE WHEN skip_financial = ? THEN amount ELSE 0 END), 0) AS total_gross,
			COALESCE(SUM(CASE WHEN skip_financial = ? THEN commission ELSE 0 END), 0) AS total_commission
		FROM `+ledgerTable+`
		WHERE date_only = ?
		GROUP BY agent_name
		ORDER BY agent_name`,
		false,
		false, string(financial.PaymentCash),
		false, string(financial.PaymentTransfer),
		false,
		false,
		string(date),
	).Scan(&rows).Error
	return rows, err
}

func loadStored(ctx context.Context, conn *gorm.DB, date businessday.Date) (*DailySummary, map[string]AgentDailySummary, error) {
	var daily []DailySummary
	if err := conn.WithContext(ctx).
		Where("business_date = ?", string(date)).
		Limit(1).
		Find(&daily).Error; err != nil {
		return nil, nil, err
	}
	var agents []AgentDailySummary
	if err := conn.WithContext(ctx).
		Where("business_date = ?", string(date)).
		Find(&agents).Error; err != nil {
		return nil, nil, err
	}

	byAgent := make(map[string]AgentDailySummary, len(agents))
	for _, a := range agents {
		byAgent[a.AgentName] = a
	}
	if len(daily) == 0 {
		return nil, byAgent, nil
	}
	return &daily[0], byAgent, nil
}

func diff(date businessday.Date, storedDaily *DailySummary, storedAgents map[string]AgentDailySummary, ledger []agentAggregate) Drift {
	drift := Drift{Date: date}

	var expectedDaily Totals
	seen := make(map[string]struct{}, len(ledger))
	for _, agg := range ledger {
		expected := agg.totals()
		expectedDaily = expectedDaily.Add(expected)
		seen[agg.AgentName] = struct{}{}

		var stored Totals
		if row, ok := storedAgents[agg.AgentName]; ok {
			stored = row.Totals()
		}
		if !stored.Equal(expected) {
			drift.Agents = append(drift.Agents, TotalsDiff{Agent: agg.AgentName, Stored: stored, Ledger: expected})
		}
	}
	for name, row := range storedAgents {
		if _, ok := seen[name]; ok {
			continue
		}
		if stored := row.Totals(); !stored.IsZero() {
			drift.Agents = append(drift.Agents, TotalsDiff{Agent: name, Stored: stored})
		}
	}

	var stored Totals
	if storedDaily != nil {
		stored = storedDaily.Totals()
	}
	if !stored.Equal(expectedDaily) {
		drift.Daily = &TotalsDiff{Stored: stored, Ledger: expectedDaily}
	}
	return drift
}

// Verify compares a day's summaries with the ledger without writing.
func (m *Maintainer) Verify(ctx context.Context, date businessday.Date) (Drift, error) {
	ledger, err := aggregateLedger(ctx, m.db, date)
	if err != nil {
		return Drift{}, err
	}
	storedDaily, storedAgents, err := loadStored(ctx, m.db, date)
	if err != nil {
		return Drift{}, err
	}
	return diff(date, storedDaily, storedAgents, ledger), nil
}

// Reconcile rebuilds a day's summaries from the ledger and returns the drift
// it corrected. The daily row is locked first, so incremental writers for
// the same day queue behind the rebuild.
func (m *Maintainer) Reconcile(ctx context.Context, date businessday.Date) (Drift, error) {
	var drift Drift
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := m.clock.Now()

		anchor := DailySummary{BusinessDate: string(date), UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&anchor).Error; err != nil {
			return err
		}
		locked := tx
		if db.SupportsRowLocks(tx) {
			locked = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var current DailySummary
		if err := locked.Where("business_date = ?", string(date)).Take(&current).Error; err != nil {
			return err
		}

		ledger, err := aggregateLedger(ctx, tx, date)
		if err != nil {
			return err
		}
		_, storedAgents, err := loadStored(ctx, tx, date)
		if err != nil {
			return err
		}
		drift = diff(date, &current, storedAgents, ledger)

		if err := tx.Where("business_date = ?", string(date)).Delete(&AgentDailySummary{}).Error; err != nil {
			return err
		}
		if len(ledger) == 0 {
			return tx.Where("business_date = ?", string(date)).Delete(&DailySummary{}).Error
		}

		var total Totals
		agents := make([]AgentDailySummary, 0, len(ledger))
		for _, agg := range ledger {
			t := agg.totals()
			total = total.Add(t)
			agents = append(agents, AgentDailySummary{
				BusinessDate:    string(date),
				AgentName:       agg.AgentName,
				TotalBookings:   t.Bookings,
				TotalCash:       t.Cash,
				TotalTransfer:   t.Transfer,
				TotalGross:      t.Gross,
				TotalCommission: t.Commission,
				UpdatedAt:       now,
			})
		}
		if err := tx.Create(&agents).Error; err != nil {
			return err
		}
		return tx.Model(&DailySummary{}).
			Where("business_date = ?", string(date)).
			Updates(map[string]any{
				"total_bookings":   total.Bookings,
				"total_cash":       total.Cash,
				"total_transfer":   total.Transfer,
				"total_gross":      total.Gross,
				"total_commission": total.Commission,
				"updated_at":       now,
			}).Error
	})
	if err != nil {
		return Drift{}, fmt.Errorf("reconcile %s: %w", date, err)
	}

	m.metrics.RecordReconcile(ctx, !drift.Clean())
	if !drift.Clean() {
		m.log.Warn("summary drift corrected",
			zap.String("date", string(date)),
			zap.Bool("daily", drift.Daily != nil),
			zap.Int("agents", len(drift.Agents)),
		)
	}
	return drift, nil
}

// ReconcileRange reconciles each day of rng in its own transaction and
// returns the days that had drift.
func (m *Maintainer) ReconcileRange(ctx context.Context, rng businessday.Range) ([]Drift, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	var drifted []Drift
	for _, date := range rng.Days() {
		drift, err := m.Reconcile(ctx, date)
		if err != nil {
			return drifted, err
		}
		if !drift.Clean() {
			drifted = append(drifted, drift)
		}
	}
	return drifted, nil
}
