package rollup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/financial"
	"github.com/smallbiznis/staybook/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ledgerRow mirrors the columns of the transactions table that
// reconciliation reads.
type ledgerRow struct {
	ID            int64 `gorm:"primaryKey"`
	DateOnly      string
	AgentName     string
	PaymentMethod string
	Amount        decimal.Decimal `gorm:"type:numeric(14,2)"`
	Commission    decimal.Decimal `gorm:"type:numeric(14,2)"`
	SkipFinancial bool
}

func (ledgerRow) TableName() string { return "transactions" }

func setupMaintainer(t *testing.T) (*Maintainer, *gorm.DB) {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&DailySummary{}, &AgentDailySummary{}, &ledgerRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	m := NewMaintainer(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)),
	})
	return m, conn
}

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func entry(date businessday.Date, agent string, method financial.PaymentMethod, amount, commission int64) *Entry {
	return &Entry{
		Date:          date,
		Agent:         agent,
		PaymentMethod: method,
		Amount:        money(amount),
		Commission:    money(commission),
	}
}

func apply(t *testing.T, m *Maintainer, conn *gorm.DB, change Change) error {
	t.Helper()
	return conn.Transaction(func(tx *gorm.DB) error {
		return m.Apply(context.Background(), tx, change)
	})
}

func mustApply(t *testing.T, m *Maintainer, conn *gorm.DB, change Change) {
	t.Helper()
	if err := apply(t, m, conn, change); err != nil {
		t.Fatalf("apply %s: %v", change.Kind, err)
	}
}

func dailyTotals(t *testing.T, conn *gorm.DB, date businessday.Date) Totals {
	t.Helper()
	var rows []DailySummary
	if err := conn.Where("business_date = ?", string(date)).Find(&rows).Error; err != nil {
		t.Fatalf("load daily: %v", err)
	}
	if len(rows) == 0 {
		return Totals{}
	}
	return rows[0].Totals()
}

func agentTotals(t *testing.T, conn *gorm.DB, date businessday.Date, agent string) Totals {
	t.Helper()
	var rows []AgentDailySummary
	if err := conn.Where("business_date = ? AND agent_name = ?", string(date), agent).Find(&rows).Error; err != nil {
		t.Fatalf("load agent: %v", err)
	}
	if len(rows) == 0 {
		return Totals{}
	}
	return rows[0].Totals()
}

func assertTotals(t *testing.T, label string, got Totals, bookings, cash, transfer, commission int64) {
	t.Helper()
	want := Totals{
		Bookings:   bookings,
		Cash:       money(cash),
		Transfer:   money(transfer),
		Gross:      money(cash + transfer),
		Commission: money(commission),
	}
	if !got.Equal(want) {
		t.Fatalf("%s: expected %+v, got %+v", label, want, got)
	}
}

func TestApplyInsertAndDeleteReturnToZero(t *testing.T) {
	m, conn := setupMaintainer(t)
	row := entry("2024-03-10", "Amel", financial.PaymentTransfer, 250000, 50000)

	mustApply(t, m, conn, Change{Kind: ChangeInsert, After: row})
	assertTotals(t, "daily after insert", dailyTotals(t, conn, "2024-03-10"), 1, 0, 250000, 50000)
	assertTotals(t, "agent after insert", agentTotals(t, conn, "2024-03-10", "Amel"), 1, 0, 250000, 50000)

	mustApply(t, m, conn, Change{Kind: ChangeDelete, Before: row})
	assertTotals(t, "daily after delete", dailyTotals(t, conn, "2024-03-10"), 0, 0, 0, 0)
	assertTotals(t, "agent after delete", agentTotals(t, conn, "2024-03-10", "Amel"), 0, 0, 0, 0)
}

func TestApplyAccumulatesWithinBucket(t *testing.T) {
	m, conn := setupMaintainer(t)

	mustApply(t, m, conn, Change{Kind: ChangeInsert, After: entry("2024-03-10", "Amel", financial.PaymentCash, 200000, 20000)})
	mustApply(t, m, conn, Change{Kind: ChangeInsert, After: entry("2024-03-10", "Amel", financial.PaymentTransfer, 300000, 30000)})
	mustApply(t, m, conn, Change{Kind: ChangeInsert, After: entry("2024-03-10", "Budi", financial.PaymentCash, 100000, 0)})

	assertTotals(t, "daily", dailyTotals(t, conn, "2024-03-10"), 3, 300000, 300000, 50000)
	assertTotals(t, "amel", agentTotals(t, conn, "2024-03-10", "Amel"), 2, 200000, 300000, 50000)
	assertTotals(t, "budi", agentTotals(t, conn, "2024-03-10", "Budi"), 1, 100000, 0, 0)
}

func TestApplyUpdateMovesContribution(t *testing.T) {
	m, conn := setupMaintainer(t)
	before := entry("2024-03-09", "Amel", financial.PaymentCash, 200000, 20000)
	mustApply(t, m, conn, Change{Kind: ChangeInsert, After: before})

	after := entry("2024-03-10", "Budi", financial.PaymentTransfer, 220000, 22000)
	mustApply(t, m, conn, Change{Kind: ChangeUpdate, Before: before, After: after})

	assertTotals(t, "old daily", dailyTotals(t, conn, "2024-03-09"), 0, 0, 0, 0)
	assertTotals(t, "old agent", agentTotals(t, conn, "2024-03-09", "Amel"), 0, 0, 0, 0)
	assertTotals(t, "new daily", dailyTotals(t, conn, "2024-03-10"), 1, 0, 220000, 22000)
	assertTotals(t, "new agent", agentTotals(t, conn, "2024-03-10", "Budi"), 1, 0, 220000, 22000)
}

func TestApplySkipToggleIsSigned(t *testing.T) {
	m, conn := setupMaintainer(t)
	base := entry("2024-03-10", "Amel", financial.PaymentCash, 300000, 30000)
	mustApply(t, m, conn, Change{Kind: ChangeInsert, After: base})

	skipped := *base
	skipped.SkipFinancial = true
	mustApply(t, m, conn, Change{Kind: ChangeUpdate, Before: base, After: &skipped})
	assertTotals(t, "after skip", dailyTotals(t, conn, "2024-03-10"), 0, 0, 0, 0)

	mustApply(t, m, conn, Change{Kind: ChangeUpdate, Before: &skipped, After: base})
	assertTotals(t, "after unskip", dailyTotals(t, conn, "2024-03-10"), 1, 300000, 0, 30000)
}

func TestApplySkippedInsertTouchesNothing(t *testing.T) {
	m, conn := setupMaintainer(t)
	row := entry("2024-03-10", "Amel", financial.PaymentCash, 300000, 30000)
	row.SkipFinancial = true

	mustApply(t, m, conn, Change{Kind: ChangeInsert, After: row})

	var count int64
	conn.Model(&DailySummary{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no summary rows, got %d", count)
	}
}

func TestApplyDeleteWithoutSummaryIsIntegrityError(t *testing.T) {
	m, conn := setupMaintainer(t)

	err := apply(t, m, conn, Change{Kind: ChangeDelete, Before: entry("2024-03-10", "Amel", financial.PaymentCash, 100, 0)})

	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if ie.Reason != ReasonSummaryMissing {
		t.Fatalf("expected reason %q, got %q", ReasonSummaryMissing, ie.Reason)
	}
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected error to wrap ErrIntegrity")
	}
}

func TestApplyNegativeTotalRollsBack(t *testing.T) {
	m, conn := setupMaintainer(t)
	mustApply(t, m, conn, Change{Kind: ChangeInsert, After: entry("2024-03-10", "Amel", financial.PaymentCash, 100000, 10000)})

	err := apply(t, m, conn, Change{Kind: ChangeDelete, Before: entry("2024-03-10", "Amel", financial.PaymentCash, 500000, 10000)})

	var ie *IntegrityError
	if !errors.As(err, &ie) || ie.Reason != ReasonNegativeTotal {
		t.Fatalf("expected negative total integrity error, got %v", err)
	}
	assertTotals(t, "daily untouched", dailyTotals(t, conn, "2024-03-10"), 1, 100000, 0, 10000)
}

func TestApplyRejectsMalformedChange(t *testing.T) {
	m, conn := setupMaintainer(t)
	row := entry("2024-03-10", "Amel", financial.PaymentCash, 1, 0)

	for _, change := range []Change{
		{Kind: ChangeInsert, Before: row, After: row},
		{Kind: ChangeUpdate, After: row},
		{Kind: ChangeDelete, After: row},
		{Kind: "upsert", After: row},
	} {
		if err := apply(t, m, conn, change); !errors.Is(err, ErrInvalidChange) {
			t.Fatalf("expected invalid change for %+v, got %v", change.Kind, err)
		}
	}
}

func TestReconcileHealsDrift(t *testing.T) {
	m, conn := setupMaintainer(t)
	ctx := context.Background()

	ledger := []ledgerRow{
		{ID: 1, DateOnly: "2024-03-10", AgentName: "Amel", PaymentMethod: "Cash", Amount: money(200000), Commission: money(20000)},
		{ID: 2, DateOnly: "2024-03-10", AgentName: "Amel", PaymentMethod: "Transfer", Amount: money(300000), Commission: money(30000)},
		{ID: 3, DateOnly: "2024-03-10", AgentName: "Budi", PaymentMethod: "Cash", Amount: money(150000), Commission: money(0), SkipFinancial: true},
	}
	if err := conn.Create(&ledger).Error; err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	if err := conn.Create(&DailySummary{BusinessDate: "2024-03-10", TotalBookings: 9, TotalGross: money(1), TotalCash: money(1)}).Error; err != nil {
		t.Fatalf("seed drifted summary: %v", err)
	}

	drift, err := m.Verify(ctx, "2024-03-10")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if drift.Clean() || drift.Daily == nil {
		t.Fatalf("expected daily drift, got %+v", drift)
	}

	fixed, err := m.Reconcile(ctx, "2024-03-10")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if fixed.Clean() {
		t.Fatalf("expected reconcile to report drift")
	}

	assertTotals(t, "daily", dailyTotals(t, conn, "2024-03-10"), 2, 200000, 300000, 50000)
	assertTotals(t, "amel", agentTotals(t, conn, "2024-03-10", "Amel"), 2, 200000, 300000, 50000)
	assertTotals(t, "budi", agentTotals(t, conn, "2024-03-10", "Budi"), 0, 0, 0, 0)

	drift, err = m.Verify(ctx, "2024-03-10")
	if err != nil {
		t.Fatalf("verify after reconcile: %v", err)
	}
	if !drift.Clean() {
		t.Fatalf("expected clean after reconcile, got %+v", drift)
	}

	// Incremental updates keep working on reconciled rows.
	mustApply(t, m, conn, Change{Kind: ChangeDelete, Before: entry("2024-03-10", "Amel", financial.PaymentCash, 200000, 20000)})
	assertTotals(t, "daily after delete", dailyTotals(t, conn, "2024-03-10"), 1, 0, 300000, 30000)
}

func TestReconcileRangeDropsEmptyDays(t *testing.T) {
	m, conn := setupMaintainer(t)
	ctx := context.Background()

	mustApply(t, m, conn, Change{Kind: ChangeInsert, After: entry("2024-03-09", "Amel", financial.PaymentCash, 100, 0)})

	drifted, err := m.ReconcileRange(ctx, businessday.Range{From: "2024-03-08", To: "2024-03-10"})
	if err != nil {
		t.Fatalf("reconcile range: %v", err)
	}
	if len(drifted) != 1 || drifted[0].Date != "2024-03-09" {
		t.Fatalf("expected only 2024-03-09 to drift, got %+v", drifted)
	}

	var count int64
	conn.Model(&DailySummary{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected summaries without ledger rows to be removed, got %d", count)
	}
}
