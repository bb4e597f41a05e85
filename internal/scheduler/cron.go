package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CloseDaySpec returns the cron expression for the close-day job. An empty
// override fires five minutes after the business-day boundary.
func (s *Scheduler) CloseDaySpec() string {
	if s.cfg.CloseDayCron != "" {
		return s.cfg.CloseDayCron
	}
	return fmt.Sprintf("5 %d * * *", s.resolver.BoundaryHour())
}

// NewCloseDayCron registers CloseDay in the business timezone. The caller
// owns Start and Stop.
func (s *Scheduler) NewCloseDayCron(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(s.resolver.Location()))
	spec := s.CloseDaySpec()
	if _, err := c.AddFunc(spec, func() {
		if err := s.CloseDay(ctx); err != nil {
			s.log.Warn("close day failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("register close day cron %q: %w", spec, err)
	}
	return c, nil
}
