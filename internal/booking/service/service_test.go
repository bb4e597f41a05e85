package service

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/booking/repository"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/dedup"
	directorydomain "github.com/smallbiznis/staybook/internal/directory/domain"
	directoryrepo "github.com/smallbiznis/staybook/internal/directory/repository"
	directoryservice "github.com/smallbiznis/staybook/internal/directory/service"
	"github.com/smallbiznis/staybook/internal/financial"
	"github.com/smallbiznis/staybook/internal/rollup"
	"github.com/smallbiznis/staybook/internal/settings"
	"github.com/smallbiznis/staybook/pkg/db"
	"github.com/smallbiznis/staybook/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var wib = time.FixedZone("WIB", 7*60*60)

type fixture struct {
	svc      domain.Service
	conn     *gorm.DB
	rollup   *rollup.Maintainer
	settings *settings.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&domain.Transaction{},
		&dedup.ProcessedMessage{},
		&rollup.DailySummary{},
		&rollup.AgentDailySummary{},
		&directorydomain.Agent{},
		&directorydomain.Location{},
		&settings.Setting{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC))
	resolver, err := businessday.NewResolver(businessday.Config{BoundaryHour: 12, Location: wib})
	require.NoError(t, err)

	dir := directoryservice.New(directoryservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Repo:  directoryrepo.Provide(),
	})
	_, err = dir.UpsertAgent(ctx, directorydomain.UpsertAgentRequest{Name: "Amel", CommissionType: "rate", CommissionValue: "0.2"})
	require.NoError(t, err)
	_, err = dir.UpsertAgent(ctx, directorydomain.UpsertAgentRequest{Name: "Budi", CommissionType: "fixed", CommissionValue: "25000"})
	require.NoError(t, err)
	_, err = dir.UpsertLocation(ctx, directorydomain.UpsertLocationRequest{Name: "Green Bay"})
	require.NoError(t, err)

	st := settings.NewService(settings.Params{DB: conn, Log: log})
	maintainer := rollup.NewMaintainer(rollup.Params{DB: conn, Log: log, Clock: clk})

	svc := New(Params{
		DB:        conn,
		Log:       log,
		GenID:     node,
		Repo:      repository.Provide(),
		Resolver:  resolver,
		Guard:     dedup.NewGuard(dedup.Params{DB: conn, Log: log, Clock: clk}),
		Rollup:    maintainer,
		Directory: dir,
		Clock:     clk,
		Settings:  st,
	})
	return &fixture{svc: svc, conn: conn, rollup: maintainer, settings: st}
}

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func moneyPtr(v int64) *decimal.Decimal {
	d := money(v)
	return &d
}

func strPtr(v string) *string { return &v }

func boolPtr(v bool) *bool { return &v }

func booking(messageID, agent string, amount int64, at time.Time) domain.IngestRequest {
	return domain.IngestRequest{
		MessageID:     messageID,
		ChatID:        "-100200",
		Location:      "Green Bay",
		Unit:          "A-1203",
		CheckoutTime:  "12:00",
		Duration:      "1 night",
		PaymentMethod: "cash",
		AgentName:     agent,
		Amount:        moneyPtr(amount),
		OccurredAt:    at,
	}
}

func (f *fixture) daily(t *testing.T, date string) rollup.Totals {
	t.Helper()
	var rows []rollup.DailySummary
	require.NoError(t, f.conn.Where("business_date = ?", date).Find(&rows).Error)
	if len(rows) == 0 {
		return rollup.Totals{}
	}
	return rows[0].Totals()
}

func (f *fixture) agent(t *testing.T, date, agent string) rollup.Totals {
	t.Helper()
	var rows []rollup.AgentDailySummary
	require.NoError(t, f.conn.Where("business_date = ? AND agent_name = ?", date, agent).Find(&rows).Error)
	if len(rows) == 0 {
		return rollup.Totals{}
	}
	return rows[0].Totals()
}

func (f *fixture) ledgerCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&domain.Transaction{}).Count(&count).Error)
	return count
}

func (f *fixture) assertClean(t *testing.T, dates ...businessday.Date) {
	t.Helper()
	for _, date := range dates {
		drift, err := f.rollup.Verify(context.Background(), date)
		require.NoError(t, err)
		require.Truef(t, drift.Clean(), "summaries drifted from ledger on %s: %+v", date, drift)
	}
}

func TestIngestThenDeleteRoundTripsSummaries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := booking("msg-1", "amel", 200000, time.Date(2024, 3, 10, 13, 0, 0, 0, wib))
	req.Commission = moneyPtr(40000)

	res, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.IngestCreated, res.Status)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, "2024-03-10", res.Transaction.DateOnly)
	assert.Equal(t, "Amel", res.Transaction.AgentName)
	assert.Equal(t, financial.PaymentCash, res.Transaction.PaymentMethod)
	assert.True(t, money(160000).Equal(res.Transaction.NetAmount))

	want := rollup.Totals{Bookings: 1, Cash: money(200000), Transfer: decimal.Zero, Gross: money(200000), Commission: money(40000)}
	assert.True(t, f.daily(t, "2024-03-10").Equal(want), "daily: %+v", f.daily(t, "2024-03-10"))
	assert.True(t, f.agent(t, "2024-03-10", "Amel").Equal(want), "agent: %+v", f.agent(t, "2024-03-10", "Amel"))

	require.NoError(t, f.svc.Delete(ctx, res.TransactionID, domain.DeleteOptions{}))
	assert.True(t, f.daily(t, "2024-03-10").IsZero())
	assert.True(t, f.agent(t, "2024-03-10", "Amel").IsZero())
	assert.False(t, f.daily(t, "2024-03-10").HasNegative())

	_, err = f.svc.Get(ctx, res.TransactionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestDuplicateMessageIsNoop(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := booking("msg-dup", "Amel", 150000, time.Date(2024, 3, 10, 15, 0, 0, 0, wib))

	first, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.IngestCreated, first.Status)

	req.Amount = moneyPtr(999000)
	second, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestDuplicate, second.Status)
	assert.Equal(t, first.TransactionID, second.TransactionID)

	assert.Equal(t, int64(1), f.ledgerCount(t))
	assert.Equal(t, int64(1), f.daily(t, "2024-03-10").Bookings)
	assert.True(t, money(150000).Equal(f.daily(t, "2024-03-10").Gross))
}

func TestIngestConcurrentSameMessageCreatesOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := booking("msg-race", "Budi", 300000, time.Date(2024, 3, 10, 18, 0, 0, 0, wib))

	const callers = 8
	results := make([]domain.IngestResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Ingest(ctx, req)
		}(i)
	}
	wg.Wait()

	created, duplicates := 0, 0
	var createdID snowflake.ID
	for i := range results {
		require.NoError(t, errs[i])
		switch results[i].Status {
		case domain.IngestCreated:
			created++
			createdID = results[i].TransactionID
		case domain.IngestDuplicate:
			duplicates++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, callers-1, duplicates)
	for i := range results {
		assert.Equal(t, createdID, results[i].TransactionID)
	}
	assert.Equal(t, int64(1), f.ledgerCount(t))
	assert.Equal(t, int64(1), f.daily(t, "2024-03-10").Bookings)
	assert.Equal(t, int64(1), f.agent(t, "2024-03-10", "Budi").Bookings)
}

func TestIngestRejectsInvalidInput(t *testing.T) {
	at := time.Date(2024, 3, 10, 15, 0, 0, 0, wib)
	cases := []struct {
		name   string
		mutate func(*domain.IngestRequest)
		want   error
	}{
		{"unknown agent", func(r *domain.IngestRequest) { r.AgentName = "Nobody" }, directorydomain.ErrUnknownAgent},
		{"blank agent", func(r *domain.IngestRequest) { r.AgentName = " " }, directorydomain.ErrInvalidAgentName},
		{"commission above amount", func(r *domain.IngestRequest) { r.Commission = moneyPtr(200001) }, financial.ErrInvalidCommission},
		{"negative commission", func(r *domain.IngestRequest) { r.Commission = moneyPtr(-1) }, financial.ErrInvalidCommission},
		{"negative amount", func(r *domain.IngestRequest) { r.Amount = moneyPtr(-5000) }, financial.ErrInvalidAmount},
		{"missing amount", func(r *domain.IngestRequest) { r.Amount = nil }, domain.ErrMissingAmount},
		{"fixed policy above amount", func(r *domain.IngestRequest) { r.AgentName = "Budi"; r.Amount = moneyPtr(20000) }, financial.ErrInvalidCommission},
		{"payment method", func(r *domain.IngestRequest) { r.PaymentMethod = "crypto" }, financial.ErrInvalidPaymentMethod},
		{"missing unit", func(r *domain.IngestRequest) { r.Unit = "  " }, domain.ErrInvalidUnit},
		{"missing location", func(r *domain.IngestRequest) { r.Location = "" }, domain.ErrInvalidLocation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			req := booking("msg-invalid", "Amel", 200000, at)
			tc.mutate(&req)

			res, err := f.svc.Ingest(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, domain.IngestValidationError, res.Status)
			assert.ErrorIs(t, res.Err, tc.want)
			assert.Equal(t, int64(0), f.ledgerCount(t))
			assert.True(t, f.daily(t, "2024-03-10").IsZero())

			// A rejected message leaves no marker behind.
			req = booking("msg-invalid", "Amel", 200000, at)
			res, err = f.svc.Ingest(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, domain.IngestCreated, res.Status)
		})
	}
}

func TestIngestResolvesCommissionFromAgentPolicy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 10, 15, 0, 0, 0, wib)

	rate, err := f.svc.Ingest(ctx, booking("msg-rate", "Amel", 150000, at))
	require.NoError(t, err)
	assert.True(t, money(30000).Equal(rate.Transaction.Commission))

	fixed, err := f.svc.Ingest(ctx, booking("msg-fixed", "Budi", 100000, at))
	require.NoError(t, err)
	assert.True(t, money(25000).Equal(fixed.Transaction.Commission))

	// A fixed commission above the amount is rejected, not lowered.
	small, err := f.svc.Ingest(ctx, booking("msg-small", "Budi", 20000, at))
	require.NoError(t, err)
	assert.Equal(t, domain.IngestValidationError, small.Status)
	assert.ErrorIs(t, small.Err, financial.ErrInvalidCommission)
	assert.Nil(t, small.Transaction)
	assert.Equal(t, int64(2), f.ledgerCount(t))
	assert.Equal(t, int64(2), f.daily(t, "2024-03-10").Bookings)
}

func TestUpdateAmountBelowFixedCommissionIsRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res, err := f.svc.Ingest(ctx, booking("msg-budi", "Budi", 100000, time.Date(2024, 3, 10, 15, 0, 0, 0, wib)))
	require.NoError(t, err)
	require.Equal(t, domain.IngestCreated, res.Status)

	_, err = f.svc.Update(ctx, res.TransactionID, domain.UpdateRequest{Amount: moneyPtr(20000)})
	assert.ErrorIs(t, err, financial.ErrInvalidCommission)
	assert.True(t, domain.IsValidationError(err))

	got, err := f.svc.Get(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.True(t, money(100000).Equal(got.Amount))
	assert.True(t, money(25000).Equal(got.Commission))
	assert.True(t, money(100000).Equal(f.daily(t, "2024-03-10").Gross))
	f.assertClean(t, "2024-03-10")
}

func TestIngestBucketsAroundBoundaryHour(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	before, err := f.svc.Ingest(ctx, booking("msg-a", "Amel", 100000, time.Date(2024, 3, 10, 11, 59, 0, 0, wib)))
	require.NoError(t, err)
	after, err := f.svc.Ingest(ctx, booking("msg-b", "Amel", 100000, time.Date(2024, 3, 10, 12, 0, 0, 0, wib)))
	require.NoError(t, err)

	assert.Equal(t, "2024-03-09", before.Transaction.DateOnly)
	assert.Equal(t, "2024-03-10", after.Transaction.DateOnly)
	assert.Equal(t, int64(1), f.daily(t, "2024-03-09").Bookings)
	assert.Equal(t, int64(1), f.daily(t, "2024-03-10").Bookings)
}

func TestIngestDefaultsOccurredAtToClock(t *testing.T) {
	f := setup(t)
	req := booking("", "Amel", 100000, time.Time{})

	res, err := f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", res.Transaction.DateOnly)
	assert.Nil(t, res.Transaction.MessageID)
}

func TestSkipFinancialToggleAdjustsSummaries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := booking("msg-skip", "Amel", 250000, time.Date(2024, 3, 10, 20, 0, 0, 0, wib))
	req.PaymentMethod = "TF"
	req.SkipFinancial = true

	res, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.IngestCreated, res.Status)
	assert.Equal(t, financial.PaymentTransfer, res.Transaction.PaymentMethod)
	assert.True(t, f.daily(t, "2024-03-10").IsZero())

	stored, err := f.svc.GetByMessageID(ctx, "msg-skip")
	require.NoError(t, err)
	assert.True(t, stored.SkipFinancial)

	_, err = f.svc.Update(ctx, res.TransactionID, domain.UpdateRequest{SkipFinancial: boolPtr(false)})
	require.NoError(t, err)
	daily := f.daily(t, "2024-03-10")
	assert.Equal(t, int64(1), daily.Bookings)
	assert.True(t, money(250000).Equal(daily.Transfer))

	_, err = f.svc.UpdateByMessageID(ctx, "msg-skip", domain.UpdateRequest{SkipFinancial: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, f.daily(t, "2024-03-10").IsZero())
	f.assertClean(t, "2024-03-10")
}

func TestUpdateMovesBetweenDaysAndAgents(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, booking("msg-move", "Amel", 200000, time.Date(2024, 3, 10, 14, 0, 0, 0, wib)))
	require.NoError(t, err)

	moved := time.Date(2024, 3, 9, 9, 0, 0, 0, wib)
	updated, err := f.svc.Update(ctx, res.TransactionID, domain.UpdateRequest{
		AgentName:  strPtr("budi"),
		OccurredAt: &moved,
		Amount:     moneyPtr(300000),
	})
	require.NoError(t, err)
	assert.Equal(t, "Budi", updated.AgentName)
	assert.Equal(t, "2024-03-08", updated.DateOnly)
	assert.True(t, money(25000).Equal(updated.Commission))

	assert.True(t, f.daily(t, "2024-03-10").IsZero())
	assert.True(t, f.agent(t, "2024-03-10", "Amel").IsZero())
	assert.Equal(t, int64(1), f.agent(t, "2024-03-08", "Budi").Bookings)
	assert.True(t, money(300000).Equal(f.daily(t, "2024-03-08").Gross))
	f.assertClean(t, "2024-03-08", "2024-03-10")
}

func TestUpdateValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	res, err := f.svc.Ingest(ctx, booking("msg-upd", "Amel", 200000, time.Date(2024, 3, 10, 14, 0, 0, 0, wib)))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, res.TransactionID, domain.UpdateRequest{})
	assert.ErrorIs(t, err, domain.ErrEmptyUpdate)

	_, err = f.svc.Update(ctx, res.TransactionID, domain.UpdateRequest{Commission: moneyPtr(250000)})
	assert.ErrorIs(t, err, financial.ErrInvalidCommission)
	assert.True(t, domain.IsValidationError(err))

	_, err = f.svc.Update(ctx, snowflake.ID(42), domain.UpdateRequest{Notes: strPtr("late checkout")})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.True(t, money(200000).Equal(f.daily(t, "2024-03-10").Gross))
}

func TestUnknownLocationPolicy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 10, 14, 0, 0, 0, wib)

	req := booking("msg-loc-1", "Amel", 100000, at)
	req.Location = "Sunset   Tower"
	res, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.IngestCreated, res.Status)
	assert.Equal(t, "Sunset Tower", res.Transaction.Location)

	known := booking("msg-loc-2", "Amel", 100000, at)
	known.Location = "green bay"
	res, err = f.svc.Ingest(ctx, known)
	require.NoError(t, err)
	assert.Equal(t, "Green Bay", res.Transaction.Location)

	_, err = f.settings.Set(ctx, settings.KeyRequireKnownLocation, settings.Bool(true))
	require.NoError(t, err)

	req.MessageID = "msg-loc-3"
	res, err = f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestValidationError, res.Status)
	assert.ErrorIs(t, res.Err, directorydomain.ErrUnknownLocation)
}

func TestDeleteByMessageIDReleasesMarkerOnRequest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := booking("msg-release", "Amel", 100000, time.Date(2024, 3, 10, 14, 0, 0, 0, wib))

	_, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteByMessageID(ctx, "msg-release", domain.DeleteOptions{}))

	res, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestDuplicate, res.Status, "marker outlives the ledger row by default")

	require.NoError(t, f.conn.Where("message_id = ?", "msg-release").Delete(&dedup.ProcessedMessage{}).Error)
	res, err = f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.IngestCreated, res.Status)

	require.NoError(t, f.svc.DeleteByMessageID(ctx, "msg-release", domain.DeleteOptions{ReleaseMessage: true}))
	res, err = f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestCreated, res.Status)
	assert.Equal(t, int64(1), f.daily(t, "2024-03-10").Bookings)

	err = f.svc.DeleteByMessageID(ctx, "msg-missing", domain.DeleteOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListPagesNewestFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 10, 13, 0, 0, 0, wib)
	for i := 0; i < 5; i++ {
		_, err := f.svc.Ingest(ctx, booking("msg-list-"+string(rune('a'+i)), "Amel", int64(100000+i*1000), base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := f.svc.Ingest(ctx, booking("msg-list-other", "Budi", 50000, base))
	require.NoError(t, err)

	var seen []*domain.Transaction
	token := ""
	for pages := 0; pages < 10; pages++ {
		resp, err := f.svc.List(ctx, domain.ListRequest{
			Filter: domain.ListFilter{AgentName: "Amel"},
			Page:   pagination.Pagination{PageToken: token, PageSize: 2},
		})
		require.NoError(t, err)
		seen = append(seen, resp.Transactions...)
		if !resp.HasMore {
			break
		}
		token = resp.NextPageToken
	}

	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i-1].OccurredAt.After(seen[i].OccurredAt))
	}

	_, err = f.svc.List(ctx, domain.ListRequest{Page: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}

func TestRandomMutationsKeepSummariesEqualToLedger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(20240310))

	agents := []string{"Amel", "Budi"}
	methods := []string{"cash", "transfer"}
	start := time.Date(2024, 3, 8, 12, 0, 0, 0, wib)
	dates := []businessday.Date{"2024-03-08", "2024-03-09", "2024-03-10", "2024-03-11"}
	randomTime := func() time.Time {
		return start.Add(time.Duration(rng.Intn(72)) * time.Hour).Add(time.Duration(rng.Intn(60)) * time.Minute)
	}

	var live []snowflake.ID
	for step := 0; step < 120; step++ {
		switch op := rng.Intn(10); {
		case op < 5 || len(live) == 0:
			// Amounts stay above Budi's fixed commission so every
			// generated booking is valid.
			amount := int64(rng.Intn(48)+3) * 10000
			req := booking("", agents[rng.Intn(len(agents))], amount, randomTime())
			req.PaymentMethod = methods[rng.Intn(len(methods))]
			req.SkipFinancial = rng.Intn(4) == 0
			if amount > 0 && rng.Intn(2) == 0 {
				req.Commission = moneyPtr(amount / 10)
			}
			if rng.Intn(3) == 0 {
				req.MessageID = "msg-" + string(rune('a'+rng.Intn(20)))
			}
			res, err := f.svc.Ingest(ctx, req)
			require.NoError(t, err)
			if res.Status == domain.IngestCreated {
				live = append(live, res.TransactionID)
			}
		case op < 8:
			id := live[rng.Intn(len(live))]
			req := domain.UpdateRequest{SkipFinancial: boolPtr(rng.Intn(2) == 0)}
			if rng.Intn(2) == 0 {
				req.Amount = moneyPtr(int64(rng.Intn(48)+3) * 10000)
			}
			if rng.Intn(2) == 0 {
				req.AgentName = strPtr(agents[rng.Intn(len(agents))])
			}
			if rng.Intn(2) == 0 {
				at := randomTime()
				req.OccurredAt = &at
			}
			if rng.Intn(2) == 0 {
				req.PaymentMethod = strPtr(methods[rng.Intn(len(methods))])
			}
			_, err := f.svc.Update(ctx, id, req)
			require.NoError(t, err)
		default:
			idx := rng.Intn(len(live))
			require.NoError(t, f.svc.Delete(ctx, live[idx], domain.DeleteOptions{ReleaseMessage: rng.Intn(2) == 0}))
			live = append(live[:idx], live[idx+1:]...)
		}
		f.assertClean(t, dates...)
	}

	for _, date := range dates {
		assert.False(t, f.daily(t, string(date)).HasNegative())
	}
}
