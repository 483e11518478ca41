package interaction

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/uidriver"
	"go.uber.org/zap"
)

// Target names an element and knows how to find it again from scratch.
type Target struct {
	Name    string
	Resolve func(ctx context.Context) (uidriver.Handle, error)
}

// Select targets the first element matching sel.
func Select(d uidriver.Driver, sel uidriver.Selector) Target {
	return Target{
		Name: sel.String(),
		Resolve: func(ctx context.Context) (uidriver.Handle, error) {
			return d.Find(ctx, sel)
		},
	}
}

// Nth targets the index-th (zero based) element matching sel.
func Nth(d uidriver.Driver, sel uidriver.Selector, index int) Target {
	return Target{
		Name: fmt.Sprintf("%s[%d]", sel, index),
		Resolve: func(ctx context.Context) (uidriver.Handle, error) {
			all, err := d.FindAll(ctx, sel)
			if err != nil {
				return nil, err
			}
			if index < 0 || index >= len(all) {
				return nil, fmt.Errorf("%s has %d match(es), want index %d: %w", sel, len(all), index, uidriver.ErrNotFound)
			}
			return all[index], nil
		},
	}
}

// Within targets the first descendant of parent matching sel.
func Within(d uidriver.Driver, parent Target, sel uidriver.Selector) Target {
	return Target{
		Name: parent.Name + " " + sel.String(),
		Resolve: func(ctx context.Context) (uidriver.Handle, error) {
			p, err := parent.Resolve(ctx)
			if err != nil {
				return nil, err
			}
			found, err := d.FindWithin(ctx, p, sel)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("%s within %s: %w", sel, parent.Name, uidriver.ErrNotFound)
			}
			return found[0], nil
		},
	}
}

// Action is one interaction with a resolved element. Forced, when set, is the
// fallback that bypasses the browser's interactability checks.
type Action struct {
	Name   string
	Run    func(ctx context.Context, d uidriver.Driver, h uidriver.Handle) error
	Forced func(ctx context.Context, d uidriver.Driver, h uidriver.Handle) error
}

// Click is a pointer click with a direct-invocation fallback.
func Click() Action {
	return Action{
		Name:   "click",
		Run:    func(ctx context.Context, d uidriver.Driver, h uidriver.Handle) error { return d.Click(ctx, h) },
		Forced: func(ctx context.Context, d uidriver.Driver, h uidriver.Handle) error { return d.ForceClick(ctx, h) },
	}
}

// ForceClick always invokes the element's click handler directly. The remote
// UI's command buttons are frequently covered by transparent layers.
func ForceClick() Action {
	return Action{
		Name: "force_click",
		Run:  func(ctx context.Context, d uidriver.Driver, h uidriver.Handle) error { return d.ForceClick(ctx, h) },
	}
}

// Fill clears the input and types text into it.
func Fill(text string) Action {
	return Action{
		Name: "fill",
		Run: func(ctx context.Context, d uidriver.Driver, h uidriver.Handle) error {
			if err := d.Clear(ctx, h); err != nil {
				return err
			}
			return d.TypeText(ctx, h, text)
		},
	}
}

// Result describes how a successful Perform got there.
type Result struct {
	Attempts int
	Forced   bool
}

// Executor runs single actions against a flaky, re-rendering page. It never
// waits for the busy overlay on its own; callers compose that explicitly.
type Executor struct {
	driver   uidriver.Driver
	attempts int
	timings  config.TimingsConfig
	logger   *zap.Logger
}

// NewExecutor creates an executor using the engine settings in cfg.
func NewExecutor(d uidriver.Driver, cfg *config.Config, logger *zap.Logger) *Executor {
	return &Executor{
		driver:   d,
		attempts: cfg.Engine.ActionAttempts,
		timings:  cfg.Engine.Timings,
		logger:   logger.Named("executor"),
	}
}

// Perform resolves the target, scrolls it into view, lets the page settle and
// runs the action. Stale or not-yet-rendered targets are retried after a
// backoff; any other failure gets one forced fallback. When the attempts are
// used up it returns an *ActionFailedError.
func (e *Executor) Perform(ctx context.Context, target Target, action Action) (Result, error) {
	var res Result
	forcedUsed := false

	act := func(ctx context.Context, h uidriver.Handle) error {
		if err := e.driver.ScrollIntoView(ctx, h); err != nil {
			if IsTransient(err) {
				return err
			}
			e.logger.Debug("Scroll into view failed, acting anyway.", zap.String("target", target.Name), zap.Error(err))
		}
		if err := Pause(ctx, e.timings.ScrollSettle); err != nil {
			return err
		}

		err := action.Run(ctx, e.driver, h)
		if err == nil || IsTransient(err) || ctx.Err() != nil {
			return err
		}
		if action.Forced == nil || forcedUsed {
			return err
		}

		forcedUsed = true
		e.logger.Debug("Action failed, using forced fallback.",
			zap.String("target", target.Name), zap.String("action", action.Name), zap.Error(err))
		if ferr := action.Forced(ctx, e.driver, h); ferr != nil {
			return fmt.Errorf("forced %s after %v: %w", action.Name, err, ferr)
		}
		res.Forced = true
		return nil
	}

	policy := RetryPolicy{Attempts: e.attempts, Backoff: e.timings.StaleBackoff, IsTransient: IsTransient}
	n, err := Retry(ctx, policy, target.Resolve, act)
	res.Attempts = n
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, &ActionFailedError{Target: target.Name, Action: action.Name, Attempts: n, Err: err}
	}
	if n > 1 {
		e.logger.Debug("Action succeeded after retries.",
			zap.String("target", target.Name), zap.String("action", action.Name), zap.Int("attempts", n))
	}
	return res, nil
}
