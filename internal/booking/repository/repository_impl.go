package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, t *domain.Transaction) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO transactions (id, message_id, chat_id, group_id, location, unit, checkout_time, duration,
		 payment_method, agent_name, marketing_name, notes, amount, commission, net_amount, skip_financial,
		 occurred_at, date_only, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.MessageID,
		t.ChatID,
		t.GroupID,
		t.Location,
		t.Unit,
		t.CheckoutTime,
		t.Duration,
		t.PaymentMethod,
		t.AgentName,
		t.MarketingName,
		t.Notes,
		t.Amount,
		t.Commission,
		t.NetAmount,
		t.SkipFinancial,
		t.OccurredAt,
		t.DateOnly,
		t.Metadata,
		t.CreatedAt,
		t.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Transaction, error) {
	stmt := conn.WithContext(ctx).Where("id = ?", id)
	if forUpdate && db.SupportsRowLocks(conn) {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var t domain.Transaction
	err := stmt.Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) FindByMessageID(ctx context.Context, conn *gorm.DB, messageID string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := conn.WithContext(ctx).Where("message_id = ?", messageID).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) Save(ctx context.Context, conn *gorm.DB, t *domain.Transaction) error {
	res := conn.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ?", t.ID).
		Updates(map[string]any{
			"location":       t.Location,
			"unit":           t.Unit,
			"checkout_time":  t.CheckoutTime,
			"duration":       t.Duration,
			"payment_method": t.PaymentMethod,
			"agent_name":     t.AgentName,
			"marketing_name": t.MarketingName,
			"notes":          t.Notes,
			"amount":         t.Amount,
			"commission":     t.Commission,
			"net_amount":     t.NetAmount,
			"skip_financial": t.SkipFinancial,
			"occurred_at":    t.OccurredAt,
			"date_only":      t.DateOnly,
			"updated_at":     t.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, conn *gorm.DB, id snowflake.ID) error {
	res := conn.WithContext(ctx).Where("id = ?", id).Delete(&domain.Transaction{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter, after *domain.ListCursor, limit int) ([]*domain.Transaction, error) {
	var items []*domain.Transaction
	stmt := conn.WithContext(ctx).Model(&domain.Transaction{})
	if filter.Range != nil {
		stmt = stmt.Where("date_only BETWEEN ? AND ?", filter.Range.From.String(), filter.Range.To.String())
	}
	if filter.AgentName != "" {
		stmt = stmt.Where("agent_name = ?", filter.AgentName)
	}
	if filter.Location != "" {
		stmt = stmt.Where("location = ?", filter.Location)
	}
	if filter.PaymentMethod != "" {
		stmt = stmt.Where("payment_method = ?", filter.PaymentMethod)
	}
	if after != nil {
		stmt = stmt.Where("(occurred_at < ?) OR (occurred_at = ? AND id < ?)", after.OccurredAt, after.OccurredAt, after.ID)
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Order("occurred_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
