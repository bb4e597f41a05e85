package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/observability/logger"
	"github.com/smallbiznis/staybook/internal/rollup"
	"go.uber.org/zap"
)

// maxReconcileDays bounds one admin reconcile call; each day runs in its
// own transaction.
const maxReconcileDays = 92

type reconcileRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to"`
}

type reconcileResponse struct {
	From    businessday.Date `json:"from"`
	To      businessday.Date `json:"to"`
	Days    int              `json:"days"`
	Drifted []rollup.Drift   `json:"drifted"`
}

// ReconcileRollup rebuilds the summaries of a date range from the ledger.
func (s *Server) ReconcileRollup(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	rng, err := parseOptionalRange(req.From, req.To)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if rng == nil {
		AbortWithError(c, newValidationError("from", "required", "from is required"))
		return
	}
	if rng.Len() > maxReconcileDays {
		AbortWithError(c, newValidationError("to", "range_too_long", "reconcile at most 92 days per call"))
		return
	}

	ctx := c.Request.Context()
	drifted, err := s.rollup.ReconcileRange(ctx, *rng)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if drifted == nil {
		drifted = []rollup.Drift{}
	}
	logger.FromContext(ctx).Info("manual reconcile finished",
		zap.String("from", rng.From.String()),
		zap.String("to", rng.To.String()),
		zap.Int("drifted_days", len(drifted)),
	)

	c.JSON(http.StatusOK, gin.H{"data": reconcileResponse{
		From:    rng.From,
		To:      rng.To,
		Days:    rng.Len(),
		Drifted: drifted,
	}})
}

// VerifyRollup compares one day's summaries with the ledger without
// writing anything.
func (s *Server) VerifyRollup(c *gin.Context) {
	date, err := businessday.ParseDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	drift, err := s.rollup.Verify(c.Request.Context(), date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"date":  date,
		"clean": drift.Clean(),
		"drift": drift,
	}})
}
