package domain

import (
	"context"
	"errors"
)

type UpsertAgentRequest struct {
	Name            string
	CommissionType  string
	CommissionValue string
	Active          *bool
}

type UpsertLocationRequest struct {
	Name   string
	Active *bool
}

type Service interface {
	// ResolveAgent returns an active agent, or ErrUnknownAgent/ErrInactiveAgent.
	ResolveAgent(ctx context.Context, name string) (Agent, error)
	ListAgents(ctx context.Context, activeOnly bool) ([]Agent, error)
	UpsertAgent(ctx context.Context, req UpsertAgentRequest) (Agent, error)

	// LookupLocation matches free text against registered locations by slug.
	LookupLocation(ctx context.Context, name string) (Location, error)
	ListLocations(ctx context.Context, activeOnly bool) ([]Location, error)
	UpsertLocation(ctx context.Context, req UpsertLocationRequest) (Location, error)
}

var (
	ErrInvalidAgentName       = errors.New("invalid_agent_name")
	ErrInvalidCommissionType  = errors.New("invalid_commission_type")
	ErrInvalidCommissionValue = errors.New("invalid_commission_value")
	ErrUnknownAgent           = errors.New("unknown_agent")
	ErrInactiveAgent          = errors.New("inactive_agent")
	ErrInvalidLocationName    = errors.New("invalid_location_name")
	ErrUnknownLocation        = errors.New("unknown_location")
	ErrInactiveLocation       = errors.New("inactive_location")
)

// IsValidationError reports whether err is caused by caller input.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidAgentName,
		ErrInvalidCommissionType,
		ErrInvalidCommissionValue,
		ErrUnknownAgent,
		ErrInactiveAgent,
		ErrInvalidLocationName,
		ErrUnknownLocation,
		ErrInactiveLocation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
