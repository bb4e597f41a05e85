package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/staybook/internal/businessday"
	reportdomain "github.com/smallbiznis/staybook/internal/report/domain"
)

type reportQuery struct {
	Preset        string `form:"preset"`
	Date          string `form:"date"`
	From          string `form:"from"`
	To            string `form:"to"`
	Agent         string `form:"agent"`
	Location      string `form:"location"`
	PaymentMethod string `form:"payment_method"`
}

// reportQuery resolves the period of a report request. Explicit from/to
// bounds win over a preset, and a preset is anchored on date or on the
// current business day.
func (s *Server) reportQuery(c *gin.Context) (reportdomain.Query, error) {
	var query reportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return reportdomain.Query{}, invalidRequestError()
	}

	method, err := parseOptionalPaymentMethod(query.PaymentMethod)
	if err != nil {
		return reportdomain.Query{}, err
	}
	filter := reportdomain.Filter{
		AgentName:     strings.TrimSpace(query.Agent),
		Location:      strings.TrimSpace(query.Location),
		PaymentMethod: method,
	}

	rng, err := parseOptionalRange(query.From, query.To)
	if err != nil {
		return reportdomain.Query{}, err
	}
	if rng != nil {
		return reportdomain.Query{Range: *rng, Filter: filter}, nil
	}

	kind, err := reportdomain.ParsePresetKind(query.Preset)
	if err != nil {
		return reportdomain.Query{}, err
	}
	anchor := s.resolver.Today(s.clock.Now())
	if strings.TrimSpace(query.Date) != "" {
		anchor, err = businessday.ParseDate(query.Date)
		if err != nil {
			return reportdomain.Query{}, err
		}
	}
	preset, err := reportdomain.PresetRange(kind, anchor)
	if err != nil {
		return reportdomain.Query{}, err
	}
	return reportdomain.Query{Range: preset, Filter: filter}, nil
}

func (s *Server) GetPeriodSummary(c *gin.Context) {
	q, err := s.reportQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reportSvc.PeriodSummary(c.Request.Context(), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPerformance(c *gin.Context) {
	q, err := s.reportQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseLimit(c.Query("limit"), 0)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reportSvc.Performance(c.Request.Context(), reportdomain.PerformanceRequest{
		Query:  q,
		By:     reportdomain.Dimension(strings.ToLower(strings.TrimSpace(c.Query("by")))),
		Metric: reportdomain.Metric(strings.ToLower(strings.TrimSpace(c.Query("metric")))),
		Limit:  limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetGrowth(c *gin.Context) {
	q, err := s.reportQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	previous, err := parseOptionalRange(c.Query("previous_from"), c.Query("previous_to"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reportSvc.Growth(c.Request.Context(), reportdomain.GrowthRequest{
		Current:  q,
		Previous: previous,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentBreakdown(c *gin.Context) {
	q, err := s.reportQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reportSvc.PaymentBreakdown(c.Request.Context(), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCommissionMatrix(c *gin.Context) {
	q, err := s.reportQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reportSvc.CommissionMatrix(c.Request.Context(), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTrend(c *gin.Context) {
	q, err := s.reportQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reportSvc.Trend(c.Request.Context(), reportdomain.TrendRequest{
		Query:       q,
		Granularity: reportdomain.Granularity(strings.ToLower(strings.TrimSpace(c.Query("granularity")))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOverview(c *gin.Context) {
	resp, err := s.reportSvc.Overview(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRecent(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), 0)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reportSvc.Recent(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type businessDayResponse struct {
	Date         businessday.Date   `json:"date"`
	Window       businessday.Window `json:"window"`
	BoundaryHour int                `json:"boundary_hour"`
	Timezone     string             `json:"timezone"`
}

// GetBusinessDay resolves ?at= (RFC3339, default now) to its business day.
func (s *Server) GetBusinessDay(c *gin.Context) {
	at, err := parseOptionalTime(c.Query("at"))
	if err != nil {
		AbortWithError(c, newValidationError("at", "invalid_at", "at must be an RFC3339 timestamp"))
		return
	}
	ts := s.clock.Now()
	if at != nil {
		ts = *at
	}

	date := s.resolver.Resolve(ts)
	c.JSON(http.StatusOK, gin.H{"data": businessDayResponse{
		Date:         date,
		Window:       s.resolver.Window(date),
		BoundaryHour: s.resolver.BoundaryHour(),
		Timezone:     s.resolver.Location().String(),
	}})
}
