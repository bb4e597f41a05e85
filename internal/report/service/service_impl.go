package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/financial"
	"github.com/smallbiznis/staybook/internal/report/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ledgerTable       = "transactions"
	dailyTable        = "daily_summaries"
	agentTable        = "agent_daily_summaries"
	maxRecentLimit    = 100
	percentScale      = 2
	averageValueScale = 2
)

const summaryAggregate = `COALESCE(SUM(total_bookings), 0) AS bookings,
	COALESCE(SUM(total_cash), 0) AS cash,
	COALESCE(SUM(total_transfer), 0) AS transfer,
	COALESCE(SUM(total_gross), 0) AS gross,
	COALESCE(SUM(total_commission), 0) AS commission`

const ledgerAggregate = `COUNT(*) AS bookings,
	COALESCE(SUM(CASE WHEN payment_method = ? THEN amount ELSE 0 END), 0) AS cash,
	COALESCE(SUM(CASE WHEN payment_method = ? THEN amount ELSE 0 END), 0) AS transfer,
	COALESCE(SUM(amount), 0) AS gross,
	COALESCE(SUM(commission), 0) AS commission`

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Resolver  *businessday.Resolver
	Reporting *config.ReportingConfigHolder `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	resolver  *businessday.Resolver
	reporting *config.ReportingConfigHolder
}

func New(p Params) domain.Service {
	reporting := p.Reporting
	if reporting == nil {
		reporting = config.NewStaticReportingConfigHolder(config.DefaultReportingConfig())
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("report.service"),
		resolver:  p.Resolver,
		reporting: reporting,
	}
}

type aggregateRow struct {
	Name       string
	Bookings   int64
	Cash       decimal.Decimal
	Transfer   decimal.Decimal
	Gross      decimal.Decimal
	Commission decimal.Decimal
}

// roundMoney snaps a scanned sum to the storage scale. SQLite sums numeric
// columns as REAL, so cents come back with float noise.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(financial.Scale)
}

func (r aggregateRow) rounded() aggregateRow {
	r.Cash = roundMoney(r.Cash)
	r.Transfer = roundMoney(r.Transfer)
	r.Gross = roundMoney(r.Gross)
	r.Commission = roundMoney(r.Commission)
	return r
}

func (r aggregateRow) totals() domain.Totals {
	r = r.rounded()
	return domain.Totals{
		Bookings:   r.Bookings,
		Cash:       r.Cash,
		Transfer:   r.Transfer,
		Gross:      r.Gross,
		Commission: r.Commission,
		Net:        r.Gross.Sub(r.Commission),
	}
}

func validateQuery(q domain.Query) error {
	if err := q.Range.Validate(); err != nil {
		return err
	}
	if q.Filter.PaymentMethod != "" && !q.Filter.PaymentMethod.Valid() {
		return financial.ErrInvalidPaymentMethod
	}
	return nil
}

// sourceFor picks the cheapest table that can answer q.
func sourceFor(f domain.Filter) domain.Source {
	switch {
	case f.Empty():
		return domain.SourceDailySummary
	case f.AgentOnly():
		return domain.SourceAgentSummary
	default:
		return domain.SourceLedger
	}
}

func (s *Service) summaryScope(ctx context.Context, q domain.Query, source domain.Source) *gorm.DB {
	table := dailyTable
	if source == domain.SourceAgentSummary {
		table = agentTable
	}
	stmt := s.db.WithContext(ctx).
		Table(table).
		Where("business_date BETWEEN ? AND ?", q.Range.From.String(), q.Range.To.String())
	if source == domain.SourceAgentSummary {
		stmt = stmt.Where("LOWER(agent_name) = LOWER(?)", strings.TrimSpace(q.Filter.AgentName))
	}
	return stmt
}

func (s *Service) ledgerScope(ctx context.Context, q domain.Query) *gorm.DB {
	stmt := s.db.WithContext(ctx).
		Table(ledgerTable).
		Where("skip_financial = ?", false).
		Where("date_only BETWEEN ? AND ?", q.Range.From.String(), q.Range.To.String())
	if name := strings.TrimSpace(q.Filter.AgentName); name != "" {
		stmt = stmt.Where("LOWER(agent_name) = LOWER(?)", name)
	}
	if location := strings.TrimSpace(q.Filter.Location); location != "" {
		stmt = stmt.Where("LOWER(location) = LOWER(?)", location)
	}
	if q.Filter.PaymentMethod != "" {
		stmt = stmt.Where("payment_method = ?", string(q.Filter.PaymentMethod))
	}
	return stmt
}

func (s *Service) aggregate(ctx context.Context, q domain.Query) (domain.Totals, domain.Source, error) {
	source := sourceFor(q.Filter)
	var row aggregateRow
	var err error
	if source == domain.SourceLedger {
		err = s.ledgerScope(ctx, q).
			Select(ledgerAggregate, string(financial.PaymentCash), string(financial.PaymentTransfer)).
			Scan(&row).Error
	} else {
		err = s.summaryScope(ctx, q, source).
			Select(summaryAggregate).
			Scan(&row).Error
	}
	if err != nil {
		return domain.Totals{}, source, err
	}
	return row.totals(), source, nil
}

func (s *Service) PeriodSummary(ctx context.Context, q domain.Query) (domain.PeriodSummaryResponse, error) {
	if err := validateQuery(q); err != nil {
		return domain.PeriodSummaryResponse{}, err
	}
	totals, source, err := s.aggregate(ctx, q)
	if err != nil {
		return domain.PeriodSummaryResponse{}, err
	}

	window := s.resolver.RangeWindow(q.Range)
	return domain.PeriodSummaryResponse{
		From:        q.Range.From,
		To:          q.Range.To,
		Days:        q.Range.Len(),
		WindowStart: window.Start,
		WindowEnd:   window.End,
		Source:      source,
		Totals:      totals,
		HasData:     totals.Bookings > 0,
	}, nil
}

func (s *Service) Performance(ctx context.Context, req domain.PerformanceRequest) (domain.PerformanceResponse, error) {
	if err := validateQuery(req.Query); err != nil {
		return domain.PerformanceResponse{}, err
	}
	by := req.By
	if by == "" {
		by = domain.ByAgent
	}
	if by != domain.ByAgent && by != domain.ByLocation {
		return domain.PerformanceResponse{}, domain.ErrInvalidDimension
	}
	metric := req.Metric
	if metric == "" {
		metric = domain.MetricRevenue
	}
	if metric != domain.MetricRevenue && metric != domain.MetricCommission && metric != domain.MetricBookings {
		return domain.PerformanceResponse{}, domain.ErrInvalidMetric
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.reporting.Get().RankingLimit
	}

	var rows []aggregateRow
	var source domain.Source
	var err error
	if by == domain.ByAgent && req.Filter.Location == "" && req.Filter.PaymentMethod == "" {
		source = domain.SourceAgentSummary
		stmt := s.db.WithContext(ctx).
			Table(agentTable).
			Where("business_date BETWEEN ? AND ?", req.Range.From.String(), req.Range.To.String())
		if name := strings.TrimSpace(req.Filter.AgentName); name != "" {
			stmt = stmt.Where("LOWER(agent_name) = LOWER(?)", name)
		}
		err = stmt.
			Select("agent_name AS name, " + summaryAggregate).
			Group("agent_name").
			Scan(&rows).Error
	} else {
		source = domain.SourceLedger
		column := "agent_name"
		if by == domain.ByLocation {
			column = "location"
		}
		err = s.ledgerScope(ctx, req.Query).
			Select(column+" AS name, "+ledgerAggregate, string(financial.PaymentCash), string(financial.PaymentTransfer)).
			Group(column).
			Scan(&rows).Error
	}
	if err != nil {
		return domain.PerformanceResponse{}, err
	}

	ranked := make([]domain.PerformanceRow, 0, len(rows))
	for _, row := range rows {
		row = row.rounded()
		if row.Bookings == 0 && row.Gross.IsZero() {
			continue
		}
		average := decimal.Zero
		if row.Bookings > 0 {
			average = row.Gross.DivRound(decimal.NewFromInt(row.Bookings), averageValueScale)
		}
		ranked = append(ranked, domain.PerformanceRow{
			Name:         row.Name,
			Bookings:     row.Bookings,
			Revenue:      row.Gross,
			Commission:   row.Commission,
			Net:          row.Gross.Sub(row.Commission),
			AverageValue: average,
		})
	}
	rankRows(ranked, metric)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	return domain.PerformanceResponse{
		From:   req.Range.From,
		To:     req.Range.To,
		By:     by,
		Metric: metric,
		Source: source,
		Rows:   ranked,
	}, nil
}

func metricValue(row domain.PerformanceRow, metric domain.Metric) decimal.Decimal {
	switch metric {
	case domain.MetricCommission:
		return row.Commission
	case domain.MetricBookings:
		return decimal.NewFromInt(row.Bookings)
	default:
		return row.Revenue
	}
}

// rankRows sorts by metric descending, then name ascending.
func rankRows(rows []domain.PerformanceRow, metric domain.Metric) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := metricValue(rows[i], metric).Cmp(metricValue(rows[j], metric)); c != 0 {
			return c > 0
		}
		return rows[i].Name < rows[j].Name
	})
}

func (s *Service) Growth(ctx context.Context, req domain.GrowthRequest) (domain.GrowthResponse, error) {
	if err := validateQuery(req.Current); err != nil {
		return domain.GrowthResponse{}, err
	}
	previous := req.Current.Range.Previous()
	if req.Previous != nil {
		previous = *req.Previous
		if err := previous.Validate(); err != nil {
			return domain.GrowthResponse{}, err
		}
	}
	if previous.Overlaps(req.Current.Range) {
		return domain.GrowthResponse{}, domain.ErrOverlappingRanges
	}

	current, _, err := s.aggregate(ctx, req.Current)
	if err != nil {
		return domain.GrowthResponse{}, err
	}
	prior, _, err := s.aggregate(ctx, domain.Query{Range: previous, Filter: req.Current.Filter})
	if err != nil {
		return domain.GrowthResponse{}, err
	}

	return domain.GrowthResponse{
		Current:    req.Current.Range,
		Previous:   previous,
		Bookings:   growth(decimal.NewFromInt(current.Bookings), decimal.NewFromInt(prior.Bookings)),
		Cash:       growth(current.Cash, prior.Cash),
		Transfer:   growth(current.Transfer, prior.Transfer),
		Gross:      growth(current.Gross, prior.Gross),
		Commission: growth(current.Commission, prior.Commission),
		Net:        growth(current.Net, prior.Net),
	}, nil
}

// growth is (current - previous) / previous in percent. A zero previous
// value yields 0 with PreviousZero set.
func growth(current, previous decimal.Decimal) domain.GrowthMetric {
	m := domain.GrowthMetric{Current: current, Previous: previous, Percent: decimal.Zero}
	if previous.IsZero() {
		m.PreviousZero = true
		return m
	}
	m.Percent = current.Sub(previous).Mul(hundred).DivRound(previous, percentScale)
	return m
}

func (s *Service) PaymentBreakdown(ctx context.Context, q domain.Query) (domain.PaymentBreakdownResponse, error) {
	if err := validateQuery(q); err != nil {
		return domain.PaymentBreakdownResponse{}, err
	}

	var rows []struct {
		PaymentMethod string
		Bookings      int64
		Gross         decimal.Decimal
	}
	err := s.ledgerScope(ctx, q).
		Select("payment_method, COUNT(*) AS bookings, COALESCE(SUM(amount), 0) AS gross").
		Group("payment_method").
		Scan(&rows).Error
	if err != nil {
		return domain.PaymentBreakdownResponse{}, err
	}

	shares := []domain.PaymentShare{
		{Method: financial.PaymentCash, Gross: decimal.Zero},
		{Method: financial.PaymentTransfer, Gross: decimal.Zero},
	}
	for _, row := range rows {
		for i := range shares {
			if string(shares[i].Method) == row.PaymentMethod {
				shares[i].Bookings += row.Bookings
				shares[i].Gross = shares[i].Gross.Add(roundMoney(row.Gross))
			}
		}
	}
	total := apportion(shares)

	return domain.PaymentBreakdownResponse{
		From:    q.Range.From,
		To:      q.Range.To,
		Gross:   total,
		Methods: shares,
	}, nil
}

// apportion fills in percentages that sum to exactly 100 when there is any
// gross. The last non-zero share absorbs the rounding remainder.
func apportion(shares []domain.PaymentShare) decimal.Decimal {
	total := decimal.Zero
	for _, share := range shares {
		total = total.Add(share.Gross)
	}
	for i := range shares {
		shares[i].Percent = decimal.Zero
	}
	if !total.IsPositive() {
		return total
	}

	last := -1
	for i := range shares {
		if !shares[i].Gross.IsZero() {
			last = i
		}
	}
	allocated := decimal.Zero
	for i := range shares {
		if shares[i].Gross.IsZero() {
			continue
		}
		if i == last {
			shares[i].Percent = hundred.Sub(allocated)
			continue
		}
		shares[i].Percent = shares[i].Gross.Mul(hundred).DivRound(total, percentScale)
		allocated = allocated.Add(shares[i].Percent)
	}
	return total
}

// CommissionMatrix groups the ledger by agent and location. It always reads
// the ledger: the summaries carry no location.
func (s *Service) CommissionMatrix(ctx context.Context, q domain.Query) (domain.CommissionMatrixResponse, error) {
	if err := validateQuery(q); err != nil {
		return domain.CommissionMatrixResponse{}, err
	}

	var rows []struct {
		AgentName  string
		Location   string
		Bookings   int64
		Gross      decimal.Decimal
		Commission decimal.Decimal
	}
	err := s.ledgerScope(ctx, q).
		Select(`agent_name, location, COUNT(*) AS bookings,
			COALESCE(SUM(amount), 0) AS gross,
			COALESCE(SUM(commission), 0) AS commission`).
		Group("agent_name, location").
		Scan(&rows).Error
	if err != nil {
		return domain.CommissionMatrixResponse{}, err
	}

	resp := domain.CommissionMatrixResponse{
		From:       q.Range.From,
		To:         q.Range.To,
		Locations:  []string{},
		Cells:      make([]domain.CommissionCell, 0, len(rows)),
		Agents:     []domain.AgentCommission{},
		Commission: decimal.Zero,
	}
	locations := map[string]struct{}{}
	agents := map[string]int{}
	for _, row := range rows {
		cell := domain.CommissionCell{
			AgentName:  row.AgentName,
			Location:   row.Location,
			Bookings:   row.Bookings,
			Gross:      roundMoney(row.Gross),
			Commission: roundMoney(row.Commission),
		}
		resp.Cells = append(resp.Cells, cell)
		resp.Bookings += cell.Bookings
		resp.Commission = resp.Commission.Add(cell.Commission)

		if _, ok := locations[cell.Location]; !ok {
			locations[cell.Location] = struct{}{}
			resp.Locations = append(resp.Locations, cell.Location)
		}
		i, ok := agents[cell.AgentName]
		if !ok {
			i = len(resp.Agents)
			agents[cell.AgentName] = i
			resp.Agents = append(resp.Agents, domain.AgentCommission{AgentName: cell.AgentName, Commission: decimal.Zero})
		}
		resp.Agents[i].Bookings += cell.Bookings
		resp.Agents[i].Commission = resp.Agents[i].Commission.Add(cell.Commission)
	}

	sort.Strings(resp.Locations)
	sort.Slice(resp.Cells, func(i, j int) bool {
		if resp.Cells[i].AgentName != resp.Cells[j].AgentName {
			return resp.Cells[i].AgentName < resp.Cells[j].AgentName
		}
		return resp.Cells[i].Location < resp.Cells[j].Location
	})
	sort.Slice(resp.Agents, func(i, j int) bool {
		return resp.Agents[i].AgentName < resp.Agents[j].AgentName
	})
	return resp, nil
}

func (s *Service) Trend(ctx context.Context, req domain.TrendRequest) (domain.TrendResponse, error) {
	if err := validateQuery(req.Query); err != nil {
		return domain.TrendResponse{}, err
	}
	granularity := req.Granularity
	if granularity == "" {
		granularity = domain.GranularityDaily
	}

	switch granularity {
	case domain.GranularityDaily:
		return s.dailyTrend(ctx, req.Query)
	case domain.GranularityHourly:
		return s.hourlyTrend(ctx, req.Query)
	default:
		return domain.TrendResponse{}, domain.ErrInvalidGranularity
	}
}

func (s *Service) dailyTrend(ctx context.Context, q domain.Query) (domain.TrendResponse, error) {
	days := q.Range.Days()
	if len(days) > s.reporting.Get().MaxTrendBuckets {
		return domain.TrendResponse{}, domain.ErrTooManyBuckets
	}

	var rows []struct {
		Bucket   string
		Bookings int64
		Gross    decimal.Decimal
	}
	source := sourceFor(q.Filter)
	var err error
	if source == domain.SourceLedger {
		err = s.ledgerScope(ctx, q).
			Select("date_only AS bucket, COUNT(*) AS bookings, COALESCE(SUM(amount), 0) AS gross").
			Group("date_only").
			Scan(&rows).Error
	} else {
		err = s.summaryScope(ctx, q, source).
			Select("business_date AS bucket, COALESCE(SUM(total_bookings), 0) AS bookings, COALESCE(SUM(total_gross), 0) AS gross").
			Group("business_date").
			Scan(&rows).Error
	}
	if err != nil {
		return domain.TrendResponse{}, err
	}

	points := make([]domain.TrendPoint, len(days))
	index := make(map[string]int, len(days))
	for i, day := range days {
		index[day.String()] = i
		points[i] = domain.TrendPoint{
			Bucket: day.String(),
			Start:  s.resolver.Window(day).Start,
			Gross:  decimal.Zero,
		}
	}
	for _, row := range rows {
		if i, ok := index[row.Bucket]; ok {
			points[i].Bookings += row.Bookings
			points[i].Gross = points[i].Gross.Add(roundMoney(row.Gross))
		}
	}

	return domain.TrendResponse{
		From:        q.Range.From,
		To:          q.Range.To,
		Granularity: domain.GranularityDaily,
		Source:      source,
		Points:      points,
	}, nil
}

// hourlyTrend buckets ledger rows by hour of the business-day window. The
// bucketing runs in Go so it does not depend on dialect date functions.
func (s *Service) hourlyTrend(ctx context.Context, q domain.Query) (domain.TrendResponse, error) {
	window := s.resolver.RangeWindow(q.Range)
	buckets := int(window.End.Sub(window.Start) / time.Hour)
	if buckets > s.reporting.Get().MaxTrendBuckets {
		return domain.TrendResponse{}, domain.ErrTooManyBuckets
	}

	var rows []struct {
		OccurredAt time.Time
		Amount     decimal.Decimal
	}
	if err := s.ledgerScope(ctx, q).
		Select("occurred_at, amount").
		Scan(&rows).Error; err != nil {
		return domain.TrendResponse{}, err
	}

	loc := s.resolver.Location()
	points := make([]domain.TrendPoint, buckets)
	for i := range points {
		start := window.Start.Add(time.Duration(i) * time.Hour).In(loc)
		points[i] = domain.TrendPoint{
			Bucket: start.Format("2006-01-02T15:00"),
			Start:  start,
			Gross:  decimal.Zero,
		}
	}
	for _, row := range rows {
		if !window.Contains(row.OccurredAt) {
			continue
		}
		i := int(row.OccurredAt.Sub(window.Start) / time.Hour)
		if i < 0 || i >= buckets {
			continue
		}
		points[i].Bookings++
		points[i].Gross = points[i].Gross.Add(roundMoney(row.Amount))
	}

	return domain.TrendResponse{
		From:        q.Range.From,
		To:          q.Range.To,
		Granularity: domain.GranularityHourly,
		Source:      domain.SourceLedger,
		Points:      points,
	}, nil
}

func (s *Service) Overview(ctx context.Context) (domain.OverviewResponse, error) {
	var row struct {
		Transactions int64
		Revenue      decimal.Decimal
		Commission   decimal.Decimal
		Agents       int64
		ActiveDays   int64
		FirstDate    *string
		LastDate     *string
	}
	err := s.db.WithContext(ctx).
		Table(ledgerTable).
		Where("skip_financial = ?", false).
		Select(`COUNT(*) AS transactions,
			COALESCE(SUM(amount), 0) AS revenue,
			COALESCE(SUM(commission), 0) AS commission,
			COUNT(DISTINCT agent_name) AS agents,
			COUNT(DISTINCT date_only) AS active_days,
			MIN(date_only) AS first_date,
			MAX(date_only) AS last_date`).
		Scan(&row).Error
	if err != nil {
		return domain.OverviewResponse{}, err
	}

	var skipped int64
	if err := s.db.WithContext(ctx).
		Table(ledgerTable).
		Where("skip_financial = ?", true).
		Count(&skipped).Error; err != nil {
		return domain.OverviewResponse{}, err
	}

	revenue, commission := roundMoney(row.Revenue), roundMoney(row.Commission)
	resp := domain.OverviewResponse{
		Transactions: row.Transactions,
		Skipped:      skipped,
		Revenue:      revenue,
		Commission:   commission,
		Net:          revenue.Sub(commission),
		Agents:       row.Agents,
		ActiveDays:   row.ActiveDays,
	}
	if row.FirstDate != nil && *row.FirstDate != "" {
		first := businessday.Date(*row.FirstDate)
		resp.FirstDate = &first
	}
	if row.LastDate != nil && *row.LastDate != "" {
		last := businessday.Date(*row.LastDate)
		resp.LastDate = &last
	}
	return resp, nil
}

func (s *Service) Recent(ctx context.Context, limit int) ([]domain.RecentTransaction, error) {
	if limit <= 0 {
		limit = s.reporting.Get().RecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	var rows []struct {
		domain.RecentTransaction
		DateOnly string
	}
	err := s.db.WithContext(ctx).
		Table(ledgerTable).
		Select("id, occurred_at, date_only, location, unit, agent_name, payment_method, amount, commission, skip_financial").
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.RecentTransaction, 0, len(rows))
	for _, row := range rows {
		item := row.RecentTransaction
		item.BusinessDate = businessday.Date(row.DateOnly)
		item.OccurredAt = item.OccurredAt.UTC()
		item.Amount = roundMoney(item.Amount)
		item.Commission = roundMoney(item.Commission)
		out = append(out, item)
	}
	return out, nil
}
