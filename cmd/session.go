package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autotiss/internal/browser"
	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/console"
	"github.com/xkilldash9x/autotiss/internal/input"
	"github.com/xkilldash9x/autotiss/internal/observability"
	"github.com/xkilldash9x/autotiss/internal/orchestrator"
	"github.com/xkilldash9x/autotiss/internal/reconcile"
)

const shutdownTimeout = 10 * time.Second

var menuModes = map[console.Mode]orchestrator.Mode{
	console.ModeLinkLogins:       orchestrator.ModeLinkLogins,
	console.ModeRegisterServices: orchestrator.ModeRegisterServices,
	console.ModeLinkPerContainer: orchestrator.ModeLinkPerContainer,
}

// runSession launches the browser, logs in and operates until the operator
// leaves or ctx ends.
func runSession(ctx context.Context, a *app, mode orchestrator.Mode) error {
	cfg := a.cfg
	logger := observability.GetLogger()
	defer observability.Sync()

	con := console.New(a.in, a.out)
	defer con.Close()

	mgr := browser.NewManager(ctx, cfg.Browser, logger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mgr.Shutdown(sctx); err != nil {
			logger.Warn("Browser shutdown incomplete.", zap.Error(err))
		}
	}()

	sess, err := mgr.NewSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(context.Background())

	deps, err := reconcile.NewDeps(sess, cfg, logger)
	if err != nil {
		return err
	}
	if err := orchestrator.Login(ctx, deps, cfg, con.WaitForLogin, logger); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	return operate(ctx, cfg, logger, con, orchestrator.NewEngines(deps, cfg, logger), mode)
}

// operate runs the mode loop with the input watcher beside it.
func operate(ctx context.Context, cfg *config.Config, logger *zap.Logger, con *console.Console, engines orchestrator.Engines, mode orchestrator.Mode) error {
	source := input.NewSource(cfg.Input, logger)

	var watcher *input.Watcher
	var changes orchestrator.ChangeCounter
	if cfg.Input.Watch {
		watcher = input.NewWatcher(source.Path(), input.DefaultDebounce, logger)
		changes = watcher
	}

	orch, err := orchestrator.New(cfg, logger, engines, con, source, changes)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	if watcher != nil {
		g.Go(func() error {
			if err := watcher.Run(watchCtx); err != nil {
				logger.Warn("Input list is not watched; it is still re-read at every cycle.", zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		defer stopWatch()
		return modeLoop(gctx, con, orch, mode)
	})
	return g.Wait()
}

type menu interface {
	Menu(ctx context.Context) (console.Mode, error)
	Notice(format string, args ...any)
}

type modeRunner interface {
	Run(ctx context.Context, mode orchestrator.Mode) error
}

// modeLoop runs mode once when given, otherwise offers the menu until the
// operator exits. A mode that stops on error returns to the menu.
func modeLoop(ctx context.Context, m menu, runner modeRunner, mode orchestrator.Mode) error {
	if mode != "" {
		return runner.Run(ctx, mode)
	}
	for {
		choice, err := m.Menu(ctx)
		if err != nil {
			return err
		}
		selected, ok := menuModes[choice]
		if !ok {
			return nil
		}
		if err := runner.Run(ctx, selected); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.Notice("%s stopped: %v", selected, err)
		}
	}
}
