package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/staybook/internal/settings"
)

type putSettingRequest struct {
	Type  string          `json:"type" binding:"required"`
	Value json.RawMessage `json:"value" binding:"required"`
}

func (s *Server) ListSettings(c *gin.Context) {
	resp, err := s.settings.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSetting(c *gin.Context) {
	resp, err := s.settings.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// PutSetting stores a typed value; the JSON type of value must agree with
// type.
func (s *Server) PutSetting(c *gin.Context) {
	var req putSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	kind, err := settings.ParseKind(req.Type)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	value, err := settings.FromJSON(kind, req.Value)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.settings.Set(c.Request.Context(), c.Param("key"), value)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
