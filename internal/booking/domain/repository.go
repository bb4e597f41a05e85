package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, transaction *Transaction) error
	// FindByID returns nil when the row does not exist. forUpdate takes a
	// row lock on dialects that support it.
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*Transaction, error)
	FindByMessageID(ctx context.Context, db *gorm.DB, messageID string) (*Transaction, error)
	Save(ctx context.Context, db *gorm.DB, transaction *Transaction) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, after *ListCursor, limit int) ([]*Transaction, error)
}
