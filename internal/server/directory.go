package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	directorydomain "github.com/smallbiznis/staybook/internal/directory/domain"
)

type upsertAgentRequest struct {
	Name            string          `json:"name" binding:"required"`
	CommissionType  string          `json:"commission_type" binding:"required,oneof=rate fixed"`
	CommissionValue decimal.Decimal `json:"commission_value"`
	Active          *bool           `json:"active"`
}

type upsertLocationRequest struct {
	Name   string `json:"name" binding:"required"`
	Active *bool  `json:"active"`
}

func activeOnly(c *gin.Context) (bool, error) {
	active, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		return false, newValidationError("active", "invalid_active", "invalid active")
	}
	return active != nil && *active, nil
}

func (s *Server) ListAgents(c *gin.Context) {
	onlyActive, err := activeOnly(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.directory.ListAgents(c.Request.Context(), onlyActive)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpsertAgent(c *gin.Context) {
	var req upsertAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.directory.UpsertAgent(c.Request.Context(), directorydomain.UpsertAgentRequest{
		Name:            req.Name,
		CommissionType:  req.CommissionType,
		CommissionValue: req.CommissionValue.String(),
		Active:          req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListLocations(c *gin.Context) {
	onlyActive, err := activeOnly(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.directory.ListLocations(c.Request.Context(), onlyActive)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpsertLocation(c *gin.Context) {
	var req upsertLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.directory.UpsertLocation(c.Request.Context(), directorydomain.UpsertLocationRequest{
		Name:   req.Name,
		Active: req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
