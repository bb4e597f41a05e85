package server

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	directorydomain "github.com/smallbiznis/staybook/internal/directory/domain"
	"github.com/smallbiznis/staybook/internal/financial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestListAgentsActiveFilter(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ts.directory.On("ListAgents", mock.Anything, true).Return([]directorydomain.Agent{
		{Name: "Amel", CommissionType: financial.PolicyRate, CommissionValue: decimal.RequireFromString("0.1"), Active: true},
	}, nil).Once()
	ts.directory.On("ListAgents", mock.Anything, false).Return([]directorydomain.Agent{}, nil).Once()

	rec := ts.do(t, http.MethodGet, "/api/agents?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	agents := decodeData[[]directorydomain.Agent](t, rec)
	require.Len(t, agents, 1)
	assert.Equal(t, "Amel", agents[0].Name)

	rec = ts.do(t, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/agents?active=sometimes", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertAgent(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	inactive := false
	ts.directory.On("UpsertAgent", mock.Anything, directorydomain.UpsertAgentRequest{
		Name:            "Amel",
		CommissionType:  "fixed",
		CommissionValue: "25000",
		Active:          &inactive,
	}).Return(directorydomain.Agent{Name: "Amel", CommissionType: financial.PolicyFixed, CommissionValue: decimal.NewFromInt(25000)}, nil).Once()

	rec := ts.do(t, http.MethodPost, "/api/agents", map[string]any{
		"name":             "Amel",
		"commission_type":  "fixed",
		"commission_value": 25000,
		"active":           false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	agent := decodeData[directorydomain.Agent](t, rec)
	assert.Equal(t, financial.PolicyFixed, agent.CommissionType)
}

func TestUpsertAgentValidation(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(t, http.MethodPost, "/api/agents", map[string]any{
		"name":            "Amel",
		"commission_type": "percent",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "commission_type", payload.Errors[0].Field)

	ts.directory.On("UpsertAgent", mock.Anything, mock.Anything).
		Return(directorydomain.Agent{}, directorydomain.ErrInvalidCommissionValue).Once()

	rec = ts.do(t, http.MethodPost, "/api/agents", map[string]any{
		"name":             "Amel",
		"commission_type":  "rate",
		"commission_value": -1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload = decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_commission_value", payload.Errors[0].Code)
}

func TestLocations(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	ts.directory.On("UpsertLocation", mock.Anything, directorydomain.UpsertLocationRequest{Name: "Green Bay"}).
		Return(directorydomain.Location{Code: "green bay", Name: "Green Bay", Active: true}, nil).Once()
	ts.directory.On("ListLocations", mock.Anything, false).
		Return([]directorydomain.Location{{Code: "green bay", Name: "Green Bay", Active: true}}, nil).Once()

	rec := ts.do(t, http.MethodPost, "/api/locations", map[string]any{"name": "Green Bay"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/locations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	locations := decodeData[[]directorydomain.Location](t, rec)
	require.Len(t, locations, 1)
	assert.Equal(t, "green bay", locations[0].Code)

	rec = ts.do(t, http.MethodPost, "/api/locations", map[string]any{"active": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
