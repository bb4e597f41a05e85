package settings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KeyRetentionEnabled      = "retention.enabled"
	KeyRetentionDays         = "retention.processed_messages_days"
	KeyRequireKnownLocation  = "ingest.require_known_location"
	KeyReconcileLookbackDays = "rollup.reconcile_lookback_days"
)

type Setting struct {
	Key       string    `gorm:"column:key_name;primaryKey;type:varchar(128)"`
	Value     string    `gorm:"type:text;not null"`
	ValueType string    `gorm:"type:varchar(16);not null"`
	UpdatedAt time.Time
}

func (Setting) TableName() string { return "settings" }

type Entry struct {
	Key       string    `json:"key"`
	Value     Value     `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{db: p.DB, log: p.Log.Named("settings.service")}
}

func normalizeKey(key string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || len(key) > 128 {
		return "", ErrInvalidKey
	}
	return key, nil
}

func (s *Service) Get(ctx context.Context, key string) (Entry, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return Entry{}, err
	}
	var row Setting
	err = s.db.WithContext(ctx).Where("key_name = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return decodeRow(row)
}

func decodeRow(row Setting) (Entry, error) {
	kind, err := ParseKind(row.ValueType)
	if err != nil {
		return Entry{}, err
	}
	value, err := Parse(kind, row.Value)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: row.Key, Value: value, UpdatedAt: row.UpdatedAt}, nil
}

func (s *Service) List(ctx context.Context) ([]Entry, error) {
	var rows []Setting
	if err := s.db.WithContext(ctx).Order("key_name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := decodeRow(row)
		if err != nil {
			s.log.Warn("skipping undecodable setting", zap.String("key", row.Key), zap.Error(err))
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Service) Set(ctx context.Context, key string, value Value) (Entry, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return Entry{}, err
	}
	if _, err := ParseKind(string(value.Kind())); err != nil {
		return Entry{}, err
	}

	row := Setting{
		Key:       key,
		Value:     value.Encode(),
		ValueType: string(value.Kind()),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "value_type", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return Entry{}, err
	}
	s.log.Info("setting updated", zap.String("key", key), zap.String("type", row.ValueType))
	return Entry{Key: key, Value: value, UpdatedAt: row.UpdatedAt}, nil
}

// BoolOr returns the boolean stored at key, or def when it is absent or of
// another kind.
func (s *Service) BoolOr(ctx context.Context, key string, def bool) bool {
	entry, err := s.Get(ctx, key)
	if err != nil {
		s.logFallback(key, err)
		return def
	}
	b, err := entry.Value.AsBool()
	if err != nil {
		s.logFallback(key, err)
		return def
	}
	return b
}

// IntOr returns the number stored at key truncated to an integer, or def.
func (s *Service) IntOr(ctx context.Context, key string, def int64) int64 {
	entry, err := s.Get(ctx, key)
	if err != nil {
		s.logFallback(key, err)
		return def
	}
	n, err := entry.Value.AsNumber()
	if err != nil {
		s.logFallback(key, err)
		return def
	}
	return n.Truncate(0).IntPart()
}

// NumberOr returns the number stored at key, or def.
func (s *Service) NumberOr(ctx context.Context, key string, def decimal.Decimal) decimal.Decimal {
	entry, err := s.Get(ctx, key)
	if err != nil {
		s.logFallback(key, err)
		return def
	}
	n, err := entry.Value.AsNumber()
	if err != nil {
		s.logFallback(key, err)
		return def
	}
	return n
}

func (s *Service) logFallback(key string, err error) {
	if errors.Is(err, ErrNotFound) {
		return
	}
	s.log.Warn("setting fallback to default", zap.String("key", key), zap.Error(err))
}

var Module = fx.Module("settings.service",
	fx.Provide(NewService),
)
