package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/dedup"
	directorydomain "github.com/smallbiznis/staybook/internal/directory/domain"
	"github.com/smallbiznis/staybook/internal/financial"
	"github.com/smallbiznis/staybook/internal/observability/metrics"
	"github.com/smallbiznis/staybook/internal/rollup"
	"github.com/smallbiznis/staybook/internal/settings"
	"github.com/smallbiznis/staybook/pkg/db"
	"github.com/smallbiznis/staybook/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxMessageIDLength = 255

// errLedgerDuplicate rolls back an ingestion that lost the race on the
// ledger's own message_id index.
var errLedgerDuplicate = errors.New("ledger message_id already present")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Resolver  *businessday.Resolver
	Guard     *dedup.Guard
	Rollup    *rollup.Maintainer
	Directory directorydomain.Service
	Clock     clock.Clock       `optional:"true"`
	Settings  *settings.Service `optional:"true"`
	Metrics   *metrics.Metrics  `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	resolver  *businessday.Resolver
	guard     *dedup.Guard
	rollup    *rollup.Maintainer
	directory directorydomain.Service
	clock     clock.Clock
	settings  *settings.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("booking.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		resolver:  p.Resolver,
		guard:     p.Guard,
		rollup:    p.Rollup,
		directory: p.Directory,
		clock:     clk,
		settings:  p.Settings,
		metrics:   p.Metrics,
	}
}

func (s *Service) Ingest(ctx context.Context, req domain.IngestRequest) (domain.IngestResult, error) {
	draft, err := s.prepareIngest(ctx, req)
	if err != nil {
		if domain.IsValidationError(err) {
			s.metrics.RecordIngest(ctx, string(domain.IngestValidationError))
			s.log.Info("booking rejected",
				zap.String("message_id", req.MessageID),
				zap.String("agent", req.AgentName),
				zap.Error(err),
			)
			return domain.IngestResult{Status: domain.IngestValidationError, Err: err}, nil
		}
		return domain.IngestResult{}, s.wrapError("ingest.prepare", err)
	}

	messageID := draft.MessageIDValue()
	var result domain.IngestResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		admission, err := s.guard.Admit(ctx, tx, messageID, draft.ChatID)
		if err != nil {
			return err
		}
		if admission == dedup.AlreadyProcessed {
			id, err := s.existingTransactionID(ctx, tx, messageID)
			if err != nil {
				return err
			}
			result = domain.IngestResult{Status: domain.IngestDuplicate, TransactionID: id}
			return nil
		}

		if err := s.repo.Insert(ctx, tx, draft); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errLedgerDuplicate
			}
			return err
		}
		if err := s.guard.Link(ctx, tx, messageID, draft.ID); err != nil {
			return err
		}
		if err := s.rollup.Apply(ctx, tx, rollup.Change{
			Kind:  rollup.ChangeInsert,
			After: entryOf(draft),
		}); err != nil {
			return err
		}
		result = domain.IngestResult{
			Status:        domain.IngestCreated,
			TransactionID: draft.ID,
			Transaction:   draft,
		}
		return nil
	})
	if errors.Is(err, errLedgerDuplicate) {
		id, lookupErr := s.existingTransactionID(ctx, s.db, messageID)
		if lookupErr != nil {
			return domain.IngestResult{}, s.wrapError("ingest.lookup", lookupErr)
		}
		result = domain.IngestResult{Status: domain.IngestDuplicate, TransactionID: id}
		err = nil
	}
	if err != nil {
		return domain.IngestResult{}, s.wrapError("ingest", err)
	}

	s.metrics.RecordIngest(ctx, string(result.Status))
	if result.Status == domain.IngestCreated {
		s.log.Info("booking ingested",
			zap.String("transaction_id", draft.ID.String()),
			zap.String("message_id", messageID),
			zap.String("business_date", draft.DateOnly),
			zap.String("agent", draft.AgentName),
			zap.Bool("skip_financial", draft.SkipFinancial),
		)
	} else {
		s.log.Info("duplicate booking ignored",
			zap.String("message_id", messageID),
			zap.String("transaction_id", result.TransactionID.String()),
		)
	}
	return result, nil
}

func (s *Service) existingTransactionID(ctx context.Context, conn *gorm.DB, messageID string) (snowflake.ID, error) {
	marker, err := s.guard.Lookup(ctx, conn, messageID)
	if err != nil {
		return 0, err
	}
	if marker != nil && marker.TransactionID != nil {
		return *marker.TransactionID, nil
	}
	existing, err := s.repo.FindByMessageID(ctx, conn, messageID)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, nil
	}
	return existing.ID, nil
}

func (s *Service) prepareIngest(ctx context.Context, req domain.IngestRequest) (*domain.Transaction, error) {
	messageID := strings.TrimSpace(req.MessageID)
	if len(messageID) > maxMessageIDLength {
		return nil, domain.ErrInvalidMessageID
	}

	location, err := s.resolveLocation(ctx, req.Location)
	if err != nil {
		return nil, err
	}
	unit := collapse(req.Unit)
	if unit == "" {
		return nil, domain.ErrInvalidUnit
	}
	method, err := financial.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	agent, err := s.directory.ResolveAgent(ctx, req.AgentName)
	if err != nil {
		return nil, err
	}

	if req.Amount == nil {
		return nil, domain.ErrMissingAmount
	}
	amount := *req.Amount
	commission, err := commissionFor(agent.Policy(), amount, req.Commission)
	if err != nil {
		return nil, err
	}
	fin, err := financial.Compute(amount, commission, req.SkipFinancial)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	occurredAt = occurredAt.UTC()

	t := &domain.Transaction{
		ID:            s.genID.Generate(),
		ChatID:        strings.TrimSpace(req.ChatID),
		GroupID:       strings.TrimSpace(req.GroupID),
		Location:      location,
		Unit:          unit,
		CheckoutTime:  strings.TrimSpace(req.CheckoutTime),
		Duration:      strings.TrimSpace(req.Duration),
		PaymentMethod: method,
		AgentName:     agent.Name,
		MarketingName: collapse(req.MarketingName),
		Notes:         strings.TrimSpace(req.Notes),
		Amount:        fin.Amount,
		Commission:    fin.Commission,
		NetAmount:     fin.NetAmount,
		SkipFinancial: fin.SkipFinancial,
		OccurredAt:    occurredAt,
		DateOnly:      s.resolver.Resolve(occurredAt).String(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if messageID != "" {
		t.MessageID = &messageID
	}
	if len(req.Metadata) > 0 {
		t.Metadata = datatypes.JSONMap(req.Metadata)
	}
	return t, nil
}

// commissionFor returns the explicit commission when given, otherwise the
// policy's. The result is not bounded here: a fixed policy above the amount
// must fail financial.Compute with ErrInvalidCommission.
func commissionFor(policy financial.Policy, amount decimal.Decimal, explicit *decimal.Decimal) (decimal.Decimal, error) {
	if explicit != nil {
		return *explicit, nil
	}
	return financial.ResolveCommission(policy, amount)
}

// resolveLocation canonicalizes a location through the directory. Unknown
// locations pass through unless ingest.require_known_location is set.
func (s *Service) resolveLocation(ctx context.Context, raw string) (string, error) {
	name := collapse(raw)
	if name == "" {
		return "", domain.ErrInvalidLocation
	}

	location, err := s.directory.LookupLocation(ctx, name)
	switch {
	case err == nil:
		return location.Name, nil
	case errors.Is(err, directorydomain.ErrInvalidLocationName):
		return "", domain.ErrInvalidLocation
	case errors.Is(err, directorydomain.ErrUnknownLocation), errors.Is(err, directorydomain.ErrInactiveLocation):
		if s.requireKnownLocation(ctx) {
			return "", err
		}
		s.log.Warn("booking for unregistered location", zap.String("location", name), zap.Error(err))
		return name, nil
	default:
		return "", err
	}
}

func (s *Service) requireKnownLocation(ctx context.Context) bool {
	if s.settings == nil {
		return false
	}
	return s.settings.BoolOr(ctx, settings.KeyRequireKnownLocation, false)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Transaction, error) {
	if id == 0 {
		return domain.Transaction{}, domain.ErrInvalidID
	}
	t, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return domain.Transaction{}, s.wrapError("get", err)
	}
	if t == nil {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return *t, nil
}

func (s *Service) GetByMessageID(ctx context.Context, messageID string) (domain.Transaction, error) {
	t, err := s.findByMessageID(ctx, messageID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *t, nil
}

func (s *Service) findByMessageID(ctx context.Context, messageID string) (*domain.Transaction, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" || len(messageID) > maxMessageIDLength {
		return nil, domain.ErrInvalidMessageID
	}
	t, err := s.repo.FindByMessageID(ctx, s.db, messageID)
	if err != nil {
		return nil, s.wrapError("get_by_message_id", err)
	}
	if t == nil {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.Filter.Range != nil {
		if err := req.Filter.Range.Validate(); err != nil {
			return domain.ListResponse{}, err
		}
	}
	if req.Filter.PaymentMethod != "" && !req.Filter.PaymentMethod.Valid() {
		return domain.ListResponse{}, financial.ErrInvalidPaymentMethod
	}
	after, err := decodeListCursor(req.Page.PageToken)
	if err != nil {
		return domain.ListResponse{}, err
	}

	limit := req.Page.Limit()
	items, err := s.repo.List(ctx, s.db, req.Filter, after, limit+1)
	if err != nil {
		return domain.ListResponse{}, s.wrapError("list", err)
	}

	page, info := pagination.BuildCursorPageInfo(items, limit, func(t *domain.Transaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:         t.ID.String(),
			OccurredAt: t.OccurredAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if page == nil {
		page = []*domain.Transaction{}
	}
	return domain.ListResponse{PageInfo: *info, Transactions: page}, nil
}

func decodeListCursor(token string) (*domain.ListCursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	occurredAt, err := time.Parse(time.RFC3339Nano, cursor.OccurredAt)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	return &domain.ListCursor{OccurredAt: occurredAt.UTC(), ID: id}, nil
}

// Update edits a ledger row and moves its contribution between summaries in
// the same transaction. The row is read once to resolve directory lookups
// and again under lock; a change in between is reported as ErrConflict.
func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (domain.Transaction, error) {
	if id == 0 {
		return domain.Transaction{}, domain.ErrInvalidID
	}
	if req.Empty() {
		return domain.Transaction{}, domain.ErrEmptyUpdate
	}

	current, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return domain.Transaction{}, s.wrapError("update.load", err)
	}
	if current == nil {
		return domain.Transaction{}, domain.ErrNotFound
	}

	next, err := s.planUpdate(ctx, *current, req)
	if err != nil {
		return domain.Transaction{}, s.wrapError("update.plan", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrNotFound
		}
		if !locked.UpdatedAt.Equal(current.UpdatedAt) {
			return domain.ErrConflict
		}

		next.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Save(ctx, tx, &next); err != nil {
			return err
		}
		return s.rollup.Apply(ctx, tx, rollup.Change{
			Kind:   rollup.ChangeUpdate,
			Before: entryOf(locked),
			After:  entryOf(&next),
		})
	})
	if err != nil {
		return domain.Transaction{}, s.wrapError("update", err)
	}

	s.log.Info("booking updated",
		zap.String("transaction_id", id.String()),
		zap.String("business_date", next.DateOnly),
		zap.String("previous_business_date", current.DateOnly),
	)
	return next, nil
}

func (s *Service) UpdateByMessageID(ctx context.Context, messageID string, req domain.UpdateRequest) (domain.Transaction, error) {
	t, err := s.findByMessageID(ctx, messageID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return s.Update(ctx, t.ID, req)
}

func (s *Service) planUpdate(ctx context.Context, current domain.Transaction, req domain.UpdateRequest) (domain.Transaction, error) {
	next := current

	if req.Location != nil {
		location, err := s.resolveLocation(ctx, *req.Location)
		if err != nil {
			return domain.Transaction{}, err
		}
		next.Location = location
	}
	if req.Unit != nil {
		unit := collapse(*req.Unit)
		if unit == "" {
			return domain.Transaction{}, domain.ErrInvalidUnit
		}
		next.Unit = unit
	}
	if req.CheckoutTime != nil {
		next.CheckoutTime = strings.TrimSpace(*req.CheckoutTime)
	}
	if req.Duration != nil {
		next.Duration = strings.TrimSpace(*req.Duration)
	}
	if req.MarketingName != nil {
		next.MarketingName = collapse(*req.MarketingName)
	}
	if req.Notes != nil {
		next.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.PaymentMethod != nil {
		method, err := financial.ParsePaymentMethod(*req.PaymentMethod)
		if err != nil {
			return domain.Transaction{}, err
		}
		next.PaymentMethod = method
	}

	var agent *directorydomain.Agent
	if req.AgentName != nil {
		resolved, err := s.directory.ResolveAgent(ctx, *req.AgentName)
		if err != nil {
			return domain.Transaction{}, err
		}
		agent = &resolved
		next.AgentName = resolved.Name
	}

	amount := current.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}
	commission := current.Commission
	switch {
	case req.Commission != nil:
		commission = *req.Commission
	case req.Amount != nil || next.AgentName != current.AgentName:
		if agent == nil {
			resolved, err := s.directory.ResolveAgent(ctx, next.AgentName)
			if err == nil {
				agent = &resolved
			} else if !directorydomain.IsValidationError(err) {
				return domain.Transaction{}, err
			}
		}
		if agent != nil {
			derived, err := commissionFor(agent.Policy(), amount, nil)
			if err != nil {
				return domain.Transaction{}, err
			}
			commission = derived
		}
	}
	skip := current.SkipFinancial
	if req.SkipFinancial != nil {
		skip = *req.SkipFinancial
	}
	fin, err := financial.Compute(amount, commission, skip)
	if err != nil {
		return domain.Transaction{}, err
	}
	next.Amount = fin.Amount
	next.Commission = fin.Commission
	next.NetAmount = fin.NetAmount
	next.SkipFinancial = fin.SkipFinancial

	if req.OccurredAt != nil {
		if req.OccurredAt.IsZero() {
			return domain.Transaction{}, businessday.ErrInvalidDate
		}
		next.OccurredAt = req.OccurredAt.UTC()
		next.DateOnly = s.resolver.Resolve(next.OccurredAt).String()
	}
	return next, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID, opts domain.DeleteOptions) error {
	if id == 0 {
		return domain.ErrInvalidID
	}

	var deleted *domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrNotFound
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return err
		}
		if opts.ReleaseMessage && locked.MessageID != nil {
			if err := s.guard.Release(ctx, tx, *locked.MessageID); err != nil {
				return err
			}
		}
		if err := s.rollup.Apply(ctx, tx, rollup.Change{
			Kind:   rollup.ChangeDelete,
			Before: entryOf(locked),
		}); err != nil {
			return err
		}
		deleted = locked
		return nil
	})
	if err != nil {
		return s.wrapError("delete", err)
	}

	s.log.Info("booking deleted",
		zap.String("transaction_id", id.String()),
		zap.String("message_id", deleted.MessageIDValue()),
		zap.String("business_date", deleted.DateOnly),
		zap.Bool("message_released", opts.ReleaseMessage && deleted.MessageID != nil),
	)
	return nil
}

func (s *Service) DeleteByMessageID(ctx context.Context, messageID string, opts domain.DeleteOptions) error {
	t, err := s.findByMessageID(ctx, messageID)
	if err != nil {
		return err
	}
	return s.Delete(ctx, t.ID, opts)
}

// wrapError passes domain and integrity errors through and marks everything
// else as a storage failure.
func (s *Service) wrapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsValidationError(err),
		domain.IsStorageError(err),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, rollup.ErrIntegrity):
		return err
	}
	s.log.Error("booking storage failure", zap.String("op", op), zap.Error(err))
	return &domain.StorageError{Op: op, Err: err}
}

func entryOf(t *domain.Transaction) *rollup.Entry {
	return &rollup.Entry{
		Date:          businessday.Date(t.DateOnly),
		Agent:         t.AgentName,
		PaymentMethod: t.PaymentMethod,
		Amount:        t.Amount,
		Commission:    t.Commission,
		SkipFinancial: t.SkipFinancial,
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
