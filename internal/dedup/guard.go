// Package dedup guarantees that a source message produces at most one
// ledger entry.
package dedup

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/staybook/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const StatusProcessed = "processed"

type ProcessedMessage struct {
	MessageID     string        `gorm:"primaryKey;type:varchar(255)"`
	ChatID        string        `gorm:"type:varchar(255)"`
	Status        string        `gorm:"type:varchar(32);not null"`
	TransactionID *snowflake.ID `gorm:"index"`
	ProcessedAt   time.Time     `gorm:"not null;index"`
}

func (ProcessedMessage) TableName() string { return "processed_messages" }

type Admission int

const (
	Admitted Admission = iota + 1
	AlreadyProcessed
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case AlreadyProcessed:
		return "already_processed"
	default:
		return "unknown"
	}
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock `optional:"true"`
}

type Guard struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewGuard(p Params) *Guard {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Guard{db: p.DB, log: p.Log.Named("dedup.guard"), clock: clk}
}

// Admit claims messageID inside tx. Exactly one concurrent caller gets
// Admitted; the claim becomes visible to others when tx commits. Blank ids
// are always admitted and leave no marker.
func (g *Guard) Admit(ctx context.Context, tx *gorm.DB, messageID, chatID string) (Admission, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return Admitted, nil
	}

	marker := ProcessedMessage{
		MessageID:   messageID,
		ChatID:      strings.TrimSpace(chatID),
		Status:      StatusProcessed,
		ProcessedAt: g.clock.Now(),
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(&marker)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		g.log.Debug("message already processed", zap.String("message_id", messageID))
		return AlreadyProcessed, nil
	}
	return Admitted, nil
}

// Link records which ledger row a message produced.
func (g *Guard) Link(ctx context.Context, tx *gorm.DB, messageID string, transactionID snowflake.ID) error {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&ProcessedMessage{}).
		Where("message_id = ?", messageID).
		Update("transaction_id", transactionID).Error
}

// Release drops the marker so a corrected re-send can be ingested again.
func (g *Guard) Release(ctx context.Context, tx *gorm.DB, messageID string) error {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil
	}
	return tx.WithContext(ctx).
		Where("message_id = ?", messageID).
		Delete(&ProcessedMessage{}).Error
}

// Lookup returns the marker for messageID, or nil when none exists.
func (g *Guard) Lookup(ctx context.Context, db *gorm.DB, messageID string) (*ProcessedMessage, error) {
	if db == nil {
		db = g.db
	}
	var marker ProcessedMessage
	err := db.WithContext(ctx).
		Where("message_id = ?", strings.TrimSpace(messageID)).
		Take(&marker).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &marker, nil
}

// Cleanup deletes markers processed before cutoff and returns how many went.
func (g *Guard) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	res := g.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&ProcessedMessage{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		g.log.Info("processed message markers pruned",
			zap.Int64("count", res.RowsAffected),
			zap.Time("cutoff", cutoff),
		)
	}
	return res.RowsAffected, nil
}

var Module = fx.Module("dedup",
	fx.Provide(NewGuard),
)
