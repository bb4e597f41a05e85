package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so ingestion defaults and jobs are testable.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
