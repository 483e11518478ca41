package interaction

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/uidriver"
	"go.uber.org/zap"
)

// Overlay waits for the page's busy indicator to go away.
type Overlay struct {
	driver    uidriver.Driver
	indicator uidriver.Selector
	timeout   time.Duration
	preDelay  time.Duration
	settle    time.Duration
	logger    *zap.Logger
}

func NewOverlay(d uidriver.Driver, cfg *config.Config, logger *zap.Logger) *Overlay {
	return &Overlay{
		driver:    d,
		indicator: uidriver.Parse(cfg.Selectors.BusyIndicator),
		timeout:   cfg.BusyWaitTimeout(),
		preDelay:  cfg.Engine.Timings.IdlePreDelay,
		settle:    cfg.Engine.Timings.IdleSettle,
		logger:    logger.Named("overlay"),
	}
}

// AwaitIdle waits with the configured ceiling. See AwaitIdleFor.
func (o *Overlay) AwaitIdle(ctx context.Context) {
	o.AwaitIdleFor(ctx, o.timeout)
}

// AwaitIdleFor gives the indicator a moment to appear, waits until it is
// absent or hidden, then lets the page settle. It never fails: a timeout only
// means the indicator is an imperfect signal, and callers verify their own
// results afterwards.
func (o *Overlay) AwaitIdleFor(ctx context.Context, timeout time.Duration) {
	if Pause(ctx, o.preDelay) != nil {
		return
	}

	start := time.Now()
	err := o.driver.WaitUntilInvisible(ctx, o.indicator, timeout)
	switch {
	case err == nil:
	case errors.Is(err, uidriver.ErrTimeout):
		o.logger.Warn("Busy indicator still visible, continuing.",
			zap.Duration("waited", time.Since(start)), zap.String("indicator", o.indicator.String()))
	case ctx.Err() != nil:
		return
	default:
		o.logger.Debug("Busy indicator check failed.", zap.Error(err))
	}

	_ = Pause(ctx, o.settle)
}
