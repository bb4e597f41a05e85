package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	directorydomain "github.com/smallbiznis/staybook/internal/directory/domain"
	"github.com/smallbiznis/staybook/internal/observability"
	reportdomain "github.com/smallbiznis/staybook/internal/report/domain"
	"github.com/smallbiznis/staybook/internal/rollup"
	"github.com/smallbiznis/staybook/internal/settings"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var wib = time.FixedZone("WIB", 7*3600)

type mockBooking struct {
	mock.Mock
}

func (m *mockBooking) Ingest(ctx context.Context, req bookingdomain.IngestRequest) (bookingdomain.IngestResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(bookingdomain.IngestResult), args.Error(1)
}

func (m *mockBooking) Get(ctx context.Context, id snowflake.ID) (bookingdomain.Transaction, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(bookingdomain.Transaction), args.Error(1)
}

func (m *mockBooking) GetByMessageID(ctx context.Context, messageID string) (bookingdomain.Transaction, error) {
	args := m.Called(ctx, messageID)
	return args.Get(0).(bookingdomain.Transaction), args.Error(1)
}

func (m *mockBooking) List(ctx context.Context, req bookingdomain.ListRequest) (bookingdomain.ListResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(bookingdomain.ListResponse), args.Error(1)
}

func (m *mockBooking) Update(ctx context.Context, id snowflake.ID, req bookingdomain.UpdateRequest) (bookingdomain.Transaction, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(bookingdomain.Transaction), args.Error(1)
}

func (m *mockBooking) UpdateByMessageID(ctx context.Context, messageID string, req bookingdomain.UpdateRequest) (bookingdomain.Transaction, error) {
	args := m.Called(ctx, messageID, req)
	return args.Get(0).(bookingdomain.Transaction), args.Error(1)
}

func (m *mockBooking) Delete(ctx context.Context, id snowflake.ID, opts bookingdomain.DeleteOptions) error {
	return m.Called(ctx, id, opts).Error(0)
}

func (m *mockBooking) DeleteByMessageID(ctx context.Context, messageID string, opts bookingdomain.DeleteOptions) error {
	return m.Called(ctx, messageID, opts).Error(0)
}

type mockReports struct {
	mock.Mock
}

func (m *mockReports) PeriodSummary(ctx context.Context, q reportdomain.Query) (reportdomain.PeriodSummaryResponse, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(reportdomain.PeriodSummaryResponse), args.Error(1)
}

func (m *mockReports) Performance(ctx context.Context, req reportdomain.PerformanceRequest) (reportdomain.PerformanceResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(reportdomain.PerformanceResponse), args.Error(1)
}

func (m *mockReports) Growth(ctx context.Context, req reportdomain.GrowthRequest) (reportdomain.GrowthResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(reportdomain.GrowthResponse), args.Error(1)
}

func (m *mockReports) PaymentBreakdown(ctx context.Context, q reportdomain.Query) (reportdomain.PaymentBreakdownResponse, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(reportdomain.PaymentBreakdownResponse), args.Error(1)
}

func (m *mockReports) CommissionMatrix(ctx context.Context, q reportdomain.Query) (reportdomain.CommissionMatrixResponse, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(reportdomain.CommissionMatrixResponse), args.Error(1)
}

func (m *mockReports) Trend(ctx context.Context, req reportdomain.TrendRequest) (reportdomain.TrendResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(reportdomain.TrendResponse), args.Error(1)
}

func (m *mockReports) Overview(ctx context.Context) (reportdomain.OverviewResponse, error) {
	args := m.Called(ctx)
	return args.Get(0).(reportdomain.OverviewResponse), args.Error(1)
}

func (m *mockReports) Recent(ctx context.Context, limit int) ([]reportdomain.RecentTransaction, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]reportdomain.RecentTransaction), args.Error(1)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ResolveAgent(ctx context.Context, name string) (directorydomain.Agent, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(directorydomain.Agent), args.Error(1)
}

func (m *mockDirectory) ListAgents(ctx context.Context, activeOnly bool) ([]directorydomain.Agent, error) {
	args := m.Called(ctx, activeOnly)
	return args.Get(0).([]directorydomain.Agent), args.Error(1)
}

func (m *mockDirectory) UpsertAgent(ctx context.Context, req directorydomain.UpsertAgentRequest) (directorydomain.Agent, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(directorydomain.Agent), args.Error(1)
}

func (m *mockDirectory) LookupLocation(ctx context.Context, name string) (directorydomain.Location, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(directorydomain.Location), args.Error(1)
}

func (m *mockDirectory) ListLocations(ctx context.Context, activeOnly bool) ([]directorydomain.Location, error) {
	args := m.Called(ctx, activeOnly)
	return args.Get(0).([]directorydomain.Location), args.Error(1)
}

func (m *mockDirectory) UpsertLocation(ctx context.Context, req directorydomain.UpsertLocationRequest) (directorydomain.Location, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(directorydomain.Location), args.Error(1)
}

type testServer struct {
	srv       *Server
	booking   *mockBooking
	reports   *mockReports
	directory *mockDirectory
	clock     *clock.FakeClock
}

type serverOptions struct {
	db *gorm.DB
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()

	resolver, err := businessday.NewResolver(businessday.Config{BoundaryHour: 12, Location: wib})
	require.NoError(t, err)

	ts := &testServer{
		booking:   &mockBooking{},
		reports:   &mockReports{},
		directory: &mockDirectory{},
		clock:     clock.NewFakeClock(time.Date(2024, 3, 10, 11, 0, 0, 0, wib)),
	}
	params := ServerParams{
		Gin:        NewEngine(observability.Config{}, nil),
		Cfg:        config.Config{},
		Log:        zap.NewNop(),
		Resolver:   resolver,
		BookingSvc: ts.booking,
		ReportSvc:  ts.reports,
		Directory:  ts.directory,
		Clock:      ts.clock,
	}
	if opts.db != nil {
		params.Settings = settings.NewService(settings.Params{DB: opts.db, Log: zap.NewNop()})
		params.Rollup = rollup.NewMaintainer(rollup.Params{DB: opts.db, Log: zap.NewNop()})
	}
	ts.srv = NewServer(params)

	t.Cleanup(func() {
		ts.booking.AssertExpectations(t)
		ts.reports.AssertExpectations(t)
		ts.directory.AssertExpectations(t)
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(rec, req)
	return rec
}

type apiError struct {
	Error errorPayload `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var out apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Error
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Data
}
