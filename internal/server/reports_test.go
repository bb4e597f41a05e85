package server

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/financial"
	reportdomain "github.com/smallbiznis/staybook/internal/report/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSummaryDefaultsToCurrentBusinessDay(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	// 11:00 WIB on the 10th still belongs to the 9th.
	ts.reports.On("PeriodSummary", mock.Anything, reportdomain.Query{
		Range: businessday.Range{From: "2024-03-09", To: "2024-03-09"},
	}).Return(reportdomain.PeriodSummaryResponse{From: "2024-03-09", To: "2024-03-09", Days: 1}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/api/reports/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := decodeData[reportdomain.PeriodSummaryResponse](t, rec)
	assert.Equal(t, businessday.Date("2024-03-09"), data.From)
}

func TestWeeklyPresetAnchorsOnToday(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ts.reports.On("PeriodSummary", mock.Anything, reportdomain.Query{
		Range: businessday.Range{From: "2024-03-04", To: "2024-03-10"},
	}).Return(reportdomain.PeriodSummaryResponse{From: "2024-03-04", To: "2024-03-10", Days: 7}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/api/reports/summary?preset=weekly", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMonthlyPresetAnchorsOnDate(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ts.reports.On("PaymentBreakdown", mock.Anything, reportdomain.Query{
		Range: businessday.Range{From: "2024-02-01", To: "2024-02-29"},
	}).Return(reportdomain.PaymentBreakdownResponse{}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/api/reports/payment-methods?preset=monthly&date=2024-02-14", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestExplicitRangeWinsOverPreset(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ts.reports.On("Performance", mock.Anything, reportdomain.PerformanceRequest{
		Query: reportdomain.Query{
			Range: businessday.Range{From: "2024-03-01", To: "2024-03-07"},
			Filter: reportdomain.Filter{
				Location:      "Green Bay",
				PaymentMethod: financial.PaymentTransfer,
			},
		},
		By:     reportdomain.ByAgent,
		Metric: reportdomain.MetricCommission,
		Limit:  3,
	}).Return(reportdomain.PerformanceResponse{}, nil).Once()

	rec := ts.do(t, http.MethodGet,
		"/api/reports/performance?preset=monthly&from=2024-03-01&to=2024-03-07&location=Green%20Bay&payment_method=trf&by=Agent&metric=COMMISSION&limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCommissionMatrixPassesFilters(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ts.reports.On("CommissionMatrix", mock.Anything, reportdomain.Query{
		Range:  businessday.Range{From: "2024-03-01", To: "2024-03-31"},
		Filter: reportdomain.Filter{AgentName: "Amel"},
	}).Return(reportdomain.CommissionMatrixResponse{
		From:      "2024-03-01",
		To:        "2024-03-31",
		Locations: []string{"Green Bay"},
		Cells: []reportdomain.CommissionCell{
			{AgentName: "Amel", Location: "Green Bay", Bookings: 2, Gross: decimal.NewFromInt(300000), Commission: decimal.NewFromInt(50000)},
		},
		Bookings:   2,
		Commission: decimal.NewFromInt(50000),
	}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/api/reports/commission-matrix?preset=monthly&date=2024-03-10&agent=Amel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := decodeData[reportdomain.CommissionMatrixResponse](t, rec)
	require.Len(t, data.Cells, 1)
	assert.Equal(t, "Green Bay", data.Cells[0].Location)
	assert.True(t, decimal.NewFromInt(50000).Equal(data.Commission))
}

func TestGrowthPassesPreviousRange(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ts.reports.On("Growth", mock.Anything, reportdomain.GrowthRequest{
		Current:  reportdomain.Query{Range: businessday.Range{From: "2024-03-08", To: "2024-03-08"}},
		Previous: &businessday.Range{From: "2024-03-01", To: "2024-03-01"},
	}).Return(reportdomain.GrowthResponse{}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/api/reports/growth?from=2024-03-08&previous_from=2024-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTrendDomainErrorsAreValidationErrors(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ts.reports.On("Trend", mock.Anything, mock.MatchedBy(func(req reportdomain.TrendRequest) bool {
		return req.Granularity == reportdomain.GranularityHourly
	})).Return(reportdomain.TrendResponse{}, reportdomain.ErrTooManyBuckets).Once()

	rec := ts.do(t, http.MethodGet, "/api/reports/trend?granularity=hourly&from=2024-01-01&to=2024-03-01", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "too_many_trend_buckets", payload.Errors[0].Code)
}

func TestReportRejectsBadQuery(t *testing.T) {
	cases := []struct {
		name string
		path string
		code string
	}{
		{name: "preset", path: "/api/reports/summary?preset=yearly", code: "invalid_preset"},
		{name: "custom without bounds", path: "/api/reports/summary?preset=custom", code: "custom_range_required"},
		{name: "anchor date", path: "/api/reports/summary?preset=weekly&date=10-03-2024", code: "invalid_date"},
		{name: "payment method", path: "/api/reports/summary?payment_method=card", code: "invalid_payment_method"},
		{name: "limit", path: "/api/reports/recent?limit=-1", code: "invalid_limit"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, serverOptions{})

			rec := ts.do(t, http.MethodGet, tc.path, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			payload := decodeError(t, rec)
			require.Len(t, payload.Errors, 1)
			assert.Equal(t, tc.code, payload.Errors[0].Code)
		})
	}
}

func TestOverviewAndRecent(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	first := businessday.Date("2024-01-02")
	ts.reports.On("Overview", mock.Anything).Return(reportdomain.OverviewResponse{
		Transactions: 12,
		Revenue:      decimal.NewFromInt(2400000),
		FirstDate:    &first,
	}, nil).Once()
	ts.reports.On("Recent", mock.Anything, 5).Return([]reportdomain.RecentTransaction{
		{AgentName: "Amel", BusinessDate: "2024-03-09", Amount: decimal.NewFromInt(200000)},
	}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/api/reports/overview", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	overview := decodeData[reportdomain.OverviewResponse](t, rec)
	assert.Equal(t, int64(12), overview.Transactions)
	assert.True(t, overview.Revenue.Equal(decimal.NewFromInt(2400000)))

	rec = ts.do(t, http.MethodGet, "/api/reports/recent?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	recent := decodeData[[]reportdomain.RecentTransaction](t, rec)
	require.Len(t, recent, 1)
	assert.Equal(t, "Amel", recent[0].AgentName)
}

func TestReportDatabaseFailureIsInternal(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ts.reports.On("Overview", mock.Anything).Return(reportdomain.OverviewResponse{}, errors.New("relation does not exist")).Once()

	rec := ts.do(t, http.MethodGet, "/api/reports/overview", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeError(t, rec).Type)
}

func TestBusinessDayEndpoint(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(t, http.MethodGet, "/api/business-day?at=2024-03-10T11:59:00%2B07:00", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData[businessDayResponse](t, rec)
	assert.Equal(t, businessday.Date("2024-03-09"), data.Date)
	assert.Equal(t, 12, data.BoundaryHour)
	assert.True(t, data.Window.Start.Equal(time.Date(2024, 3, 9, 12, 0, 0, 0, wib)))
	assert.True(t, data.Window.End.Equal(time.Date(2024, 3, 10, 12, 0, 0, 0, wib)))

	rec = ts.do(t, http.MethodGet, "/api/business-day?at=2024-03-10T12:00:00%2B07:00", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, businessday.Date("2024-03-10"), decodeData[businessDayResponse](t, rec).Date)

	// Without ?at the fake clock decides.
	rec = ts.do(t, http.MethodGet, "/api/business-day", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, businessday.Date("2024-03-09"), decodeData[businessDayResponse](t, rec).Date)

	rec = ts.do(t, http.MethodGet, "/api/business-day?at=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
