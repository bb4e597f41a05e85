package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/financial"
	"github.com/smallbiznis/staybook/pkg/db/pagination"
)

type IngestRequest struct {
	MessageID     string
	ChatID        string
	GroupID       string
	Location      string
	Unit          string
	CheckoutTime  string
	Duration      string
	PaymentMethod string
	AgentName     string
	MarketingName string
	Notes         string
	// Amount is required; nil is rejected with ErrMissingAmount rather than
	// booked as zero.
	Amount *decimal.Decimal
	// Commission falls back to the agent's policy when nil.
	Commission    *decimal.Decimal
	SkipFinancial bool
	// OccurredAt defaults to the current time when zero.
	OccurredAt time.Time
	Metadata   map[string]any
}

type IngestStatus string

const (
	IngestCreated         IngestStatus = "created"
	IngestDuplicate       IngestStatus = "duplicate"
	IngestValidationError IngestStatus = "validation_error"
)

// IngestResult is the outcome of one ingestion. Duplicates and validation
// failures are results, not errors.
type IngestResult struct {
	Status        IngestStatus
	TransactionID snowflake.ID
	Transaction   *Transaction
	Err           error
}

// UpdateRequest carries the fields to change; nil fields are kept.
type UpdateRequest struct {
	Location      *string
	Unit          *string
	CheckoutTime  *string
	Duration      *string
	PaymentMethod *string
	AgentName     *string
	MarketingName *string
	Notes         *string
	Amount        *decimal.Decimal
	Commission    *decimal.Decimal
	SkipFinancial *bool
	OccurredAt    *time.Time
}

func (r UpdateRequest) Empty() bool {
	return r.Location == nil && r.Unit == nil && r.CheckoutTime == nil && r.Duration == nil &&
		r.PaymentMethod == nil && r.AgentName == nil && r.MarketingName == nil && r.Notes == nil &&
		r.Amount == nil && r.Commission == nil && r.SkipFinancial == nil && r.OccurredAt == nil
}

type DeleteOptions struct {
	// ReleaseMessage drops the dedup marker so the source message can be
	// ingested again.
	ReleaseMessage bool
}

type ListFilter struct {
	Range         *businessday.Range
	AgentName     string
	Location      string
	PaymentMethod financial.PaymentMethod
}

// ListCursor is the keyset position of the last row on a page.
type ListCursor struct {
	OccurredAt time.Time
	ID         snowflake.ID
}

type ListRequest struct {
	Filter ListFilter
	Page   pagination.Pagination
}

type ListResponse struct {
	pagination.PageInfo
	Transactions []*Transaction `json:"transactions"`
}

type Service interface {
	Ingest(ctx context.Context, req IngestRequest) (IngestResult, error)
	Get(ctx context.Context, id snowflake.ID) (Transaction, error)
	GetByMessageID(ctx context.Context, messageID string) (Transaction, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (Transaction, error)
	UpdateByMessageID(ctx context.Context, messageID string, req UpdateRequest) (Transaction, error)
	Delete(ctx context.Context, id snowflake.ID, opts DeleteOptions) error
	DeleteByMessageID(ctx context.Context, messageID string, opts DeleteOptions) error
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidMessageID = errors.New("invalid_message_id")
	ErrInvalidLocation  = errors.New("invalid_location")
	ErrInvalidUnit      = errors.New("invalid_unit")
	ErrMissingAmount    = errors.New("missing_amount")
	ErrInvalidAgent     = errors.New("invalid_agent")
	ErrInvalidMetadata  = errors.New("invalid_metadata")
	ErrEmptyUpdate      = errors.New("empty_update")
	ErrNotFound         = errors.New("not_found")
	ErrConflict         = errors.New("transaction_modified_concurrently")
	ErrStorage          = errors.New("storage_unavailable")
)

// StorageError wraps a failure of the underlying database. It is transient
// from the caller's point of view and safe to retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }
