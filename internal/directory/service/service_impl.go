package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/staybook/internal/cache"
	"github.com/smallbiznis/staybook/internal/directory/domain"
	"github.com/smallbiznis/staybook/internal/financial"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Cache cache.DirectoryCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	cache cache.DirectoryCache
}

func New(p Params) domain.Service {
	c := p.Cache
	if c == nil {
		c = cache.NewDirectoryCache()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("directory.service"),
		genID: p.GenID,
		repo:  p.Repo,
		cache: c,
	}
}

func agentKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (s *Service) ResolveAgent(ctx context.Context, name string) (domain.Agent, error) {
	key := agentKey(name)
	if key == "" {
		return domain.Agent{}, domain.ErrInvalidAgentName
	}

	agent, ok := s.cache.GetAgent(key)
	if !ok {
		found, err := s.repo.FindAgentByKey(ctx, s.db, key)
		if err != nil {
			return domain.Agent{}, err
		}
		if found == nil {
			return domain.Agent{}, domain.ErrUnknownAgent
		}
		agent = *found
		s.cache.SetAgent(agent)
	}

	if !agent.Active {
		return domain.Agent{}, domain.ErrInactiveAgent
	}
	return agent, nil
}

func (s *Service) ListAgents(ctx context.Context, activeOnly bool) ([]domain.Agent, error) {
	return s.repo.ListAgents(ctx, s.db, activeOnly)
}

func (s *Service) UpsertAgent(ctx context.Context, req domain.UpsertAgentRequest) (domain.Agent, error) {
	name := strings.Join(strings.Fields(req.Name), " ")
	if name == "" {
		return domain.Agent{}, domain.ErrInvalidAgentName
	}

	policyType := financial.PolicyType(strings.ToLower(strings.TrimSpace(req.CommissionType)))
	value, err := decimal.NewFromString(strings.TrimSpace(req.CommissionValue))
	if err != nil {
		return domain.Agent{}, domain.ErrInvalidCommissionValue
	}
	policy := financial.Policy{Type: policyType, Value: value}
	if err := policy.Validate(); err != nil {
		if policyType != financial.PolicyRate && policyType != financial.PolicyFixed {
			return domain.Agent{}, domain.ErrInvalidCommissionType
		}
		return domain.Agent{}, domain.ErrInvalidCommissionValue
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	agent := domain.Agent{
		ID:              s.genID.Generate(),
		Name:            name,
		NameKey:         agentKey(name),
		CommissionType:  policyType,
		CommissionValue: value,
		Active:          active,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.UpsertAgent(ctx, s.db, &agent); err != nil {
		return domain.Agent{}, err
	}
	s.cache.InvalidateAgent(agent.NameKey)

	stored, err := s.repo.FindAgentByKey(ctx, s.db, agent.NameKey)
	if err != nil {
		return domain.Agent{}, err
	}
	if stored == nil {
		return domain.Agent{}, domain.ErrUnknownAgent
	}
	s.log.Info("agent upserted",
		zap.String("agent", stored.Name),
		zap.String("commission_type", string(stored.CommissionType)),
		zap.Bool("active", stored.Active),
	)
	return *stored, nil
}

func (s *Service) LookupLocation(ctx context.Context, name string) (domain.Location, error) {
	code := slug.Make(name)
	if code == "" {
		return domain.Location{}, domain.ErrInvalidLocationName
	}

	location, ok := s.cache.GetLocation(code)
	if !ok {
		found, err := s.repo.FindLocationByCode(ctx, s.db, code)
		if err != nil {
			return domain.Location{}, err
		}
		if found == nil {
			return domain.Location{}, domain.ErrUnknownLocation
		}
		location = *found
		s.cache.SetLocation(location)
	}

	if !location.Active {
		return domain.Location{}, domain.ErrInactiveLocation
	}
	return location, nil
}

func (s *Service) ListLocations(ctx context.Context, activeOnly bool) ([]domain.Location, error) {
	return s.repo.ListLocations(ctx, s.db, activeOnly)
}

func (s *Service) UpsertLocation(ctx context.Context, req domain.UpsertLocationRequest) (domain.Location, error) {
	name := strings.Join(strings.Fields(req.Name), " ")
	code := slug.Make(name)
	if name == "" || code == "" {
		return domain.Location{}, domain.ErrInvalidLocationName
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	location := domain.Location{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertLocation(ctx, s.db, &location); err != nil {
		return domain.Location{}, err
	}
	s.cache.InvalidateLocation(code)

	stored, err := s.repo.FindLocationByCode(ctx, s.db, code)
	if err != nil {
		return domain.Location{}, err
	}
	if stored == nil {
		return domain.Location{}, domain.ErrUnknownLocation
	}
	return *stored, nil
}
