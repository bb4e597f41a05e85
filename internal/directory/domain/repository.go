package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindAgentByKey(ctx context.Context, db *gorm.DB, nameKey string) (*Agent, error)
	ListAgents(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Agent, error)
	UpsertAgent(ctx context.Context, db *gorm.DB, agent *Agent) error

	FindLocationByCode(ctx context.Context, db *gorm.DB, code string) (*Location, error)
	ListLocations(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Location, error)
	UpsertLocation(ctx context.Context, db *gorm.DB, location *Location) error
}
