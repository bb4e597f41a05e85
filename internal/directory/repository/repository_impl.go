package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/staybook/internal/directory/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindAgentByKey(ctx context.Context, db *gorm.DB, nameKey string) (*domain.Agent, error) {
	var agent domain.Agent
	err := db.WithContext(ctx).Where("name_key = ?", nameKey).Take(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *repo) ListAgents(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Agent, error) {
	var agents []domain.Agent
	stmt := db.WithContext(ctx).Model(&domain.Agent{})
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}
	if err := stmt.Order("name ASC").Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

func (r *repo) UpsertAgent(ctx context.Context, db *gorm.DB, agent *domain.Agent) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "commission_type", "commission_value", "active", "updated_at"}),
	}).Create(agent).Error
}

func (r *repo) FindLocationByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Location, error) {
	var location domain.Location
	err := db.WithContext(ctx).Where("code = ?", code).Take(&location).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &location, nil
}

func (r *repo) ListLocations(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Location, error) {
	var locations []domain.Location
	stmt := db.WithContext(ctx).Model(&domain.Location{})
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}
	if err := stmt.Order("name ASC").Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}

func (r *repo) UpsertLocation(ctx context.Context, db *gorm.DB, location *domain.Location) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "active", "updated_at"}),
	}).Create(location).Error
}
