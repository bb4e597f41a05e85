package businessday

import (
	"fmt"
	"time"

	"github.com/smallbiznis/staybook/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("businessday",
	fx.Provide(ProvideResolver),
)

func ProvideResolver(cfg config.Config) (*Resolver, error) {
	loc, err := time.LoadLocation(cfg.BusinessDay.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load business timezone %q: %w", cfg.BusinessDay.Timezone, err)
	}
	return NewResolver(Config{
		BoundaryHour: cfg.BusinessDay.BoundaryHour,
		Location:     loc,
	})
}
