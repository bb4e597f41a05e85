package scheduler

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(provideLocker),
	fx.Provide(New),
	fx.Invoke(Start),
)

type lockerOut struct {
	fx.Out

	Locker Locker
}

// provideLocker returns a nil Locker unless leader locking is enabled, in
// which case every replica competes for each job through Redis.
func provideLocker(lc fx.Lifecycle, cfg Config, log *zap.Logger) lockerOut {
	if !cfg.LeaderLockEnabled {
		return lockerOut{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.LeaderLockAddr,
		Password: cfg.LeaderLockPassword,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("scheduler lock redis unreachable", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return lockerOut{Locker: NewRedisLocker(client)}
}

// Start launches the periodic loop and the close-day cron.
func Start(lc fx.Lifecycle, cfg Config, sched *Scheduler) error {
	if !cfg.Enabled {
		sched.log.Info("scheduler disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	closeDay, err := sched.NewCloseDayCron(ctx)
	if err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sched.RunForever(ctx)
			closeDay.Start()
			sched.log.Info("scheduler started",
				zap.Duration("interval", cfg.RunInterval),
				zap.String("close_day_cron", sched.CloseDaySpec()),
			)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-closeDay.Stop().Done():
			case <-stopCtx.Done():
			}
			return nil
		},
	})
	return nil
}
