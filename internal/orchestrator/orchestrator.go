// Package orchestrator runs an operating mode cycle after cycle: it re-reads
// the input list, runs the cycle with the pause watcher beside it, reports,
// and asks the operator whether to go again.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/console"
	"github.com/xkilldash9x/autotiss/internal/cycle"
	"github.com/xkilldash9x/autotiss/internal/input"
	"github.com/xkilldash9x/autotiss/internal/reconcile"
	"github.com/xkilldash9x/autotiss/internal/reporting"
	"github.com/xkilldash9x/autotiss/internal/shell"
)

// Mode names an operating mode. The value doubles as the report's mode field.
type Mode string

const (
	ModeLinkLogins       Mode = "link-logins"
	ModeRegisterServices Mode = "register-services"
	ModeLinkPerContainer Mode = "link-per-container"
)

// Prompter is the operator surface a mode loop needs.
type Prompter interface {
	ConfirmNextCycle(ctx context.Context, inputChanged bool) (bool, error)
	WatchPause(ctx context.Context, gate console.Pauser)
	ShowSummary(sum cycle.Summary)
	ShowContainers(report shell.Report)
	Notice(format string, args ...any)
}

// ListSource yields the current input list.
type ListSource interface {
	Load() (input.Lists, error)
}

// ChangeCounter reports how many times the input list changed.
type ChangeCounter interface {
	Generation() uint64
}

// ShellRunner visits containers.
type ShellRunner interface {
	Run(ctx context.Context, containers []string, inner shell.InnerFunc) (shell.Report, error)
}

// Engines are the per-mode processors. NewEngines wires them to a driver.
type Engines struct {
	Link     func(desired []string) cycle.Processor
	Services cycle.Processor
	Rows     func(ctx context.Context) (int, error)
	Shell    ShellRunner
	// ShellErr explains why Shell is nil.
	ShellErr error
}

// NewEngines builds the reconcilers over the shared interaction components.
func NewEngines(deps reconcile.Deps, cfg *config.Config, logger *zap.Logger) Engines {
	assoc := reconcile.NewAssociationReconciler(deps, cfg, logger)
	e := Engines{
		Link:     assoc.Bind,
		Services: reconcile.NewServiceRegistrar(deps, cfg, logger),
		Rows:     deps.Rows.Total,
	}
	if sh, err := shell.New(deps, cfg, logger); err != nil {
		e.ShellErr = err
	} else {
		e.Shell = sh
	}
	return e
}

// Orchestrator runs modes.
type Orchestrator struct {
	cfg      *config.Config
	logger   *zap.Logger
	engines  Engines
	prompter Prompter
	source   ListSource
	changes  ChangeCounter
	gate     *cycle.Gate
}

// New creates an Orchestrator. changes may be nil when the input is not watched.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	engines Engines,
	prompter Prompter,
	source ListSource,
	changes ChangeCounter,
) (*Orchestrator, error) {
	if cfg == nil ||
		logger == nil ||
		prompter == nil ||
		source == nil ||
		engines.Link == nil ||
		engines.Services == nil ||
		engines.Rows == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
		engines:  engines,
		prompter: prompter,
		source:   source,
		changes:  changes,
		gate:     cycle.NewGate(),
	}, nil
}

func (o *Orchestrator) generation() uint64 {
	if o.changes == nil {
		return 0
	}
	return o.changes.Generation()
}

// Run loops over cycles of mode until the operator stops, ctx ends, or the
// container search fails. The input list is re-read before every cycle.
func (o *Orchestrator) Run(ctx context.Context, mode Mode) error {
	if mode == ModeLinkPerContainer && o.engines.Shell == nil {
		return fmt.Errorf("per-container mode is not configured: %w", o.engines.ShellErr)
	}
	log := o.logger.With(zap.String("mode", string(mode)))
	log.Info("Mode started.")

	for n := 1; ; n++ {
		gen := o.generation()
		lists, err := o.source.Load()
		if err != nil {
			o.prompter.Notice("Input list unusable (%v); running with empty lists.", err)
		}

		if err := o.runOnce(ctx, mode, n, lists); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("Mode stopped.", zap.Error(err))
			return err
		}

		again, err := o.prompter.ConfirmNextCycle(ctx, o.generation() != gen)
		if err != nil {
			return err
		}
		if !again {
			log.Info("Mode finished.", zap.Int("cycles", n))
			return nil
		}
	}
}

func (o *Orchestrator) runOnce(ctx context.Context, mode Mode, n int, lists input.Lists) error {
	label := fmt.Sprintf("%s #%d", mode, n)
	switch mode {
	case ModeLinkLogins:
		_, err := o.linkCycle(ctx, mode, label, "", lists.Associations)
		return err

	case ModeRegisterServices:
		_, err := o.runCycle(ctx, mode, label, "", o.engines.Services, cycle.Named(lists.Providers))
		return err

	case ModeLinkPerContainer:
		if len(lists.Containers) == 0 {
			o.logger.Warn("No containers in the input list.")
			o.prompter.Notice("No containers to visit; add them to the input list.")
			return nil
		}
		report, err := o.engines.Shell.Run(ctx, lists.Containers, func(ctx context.Context, container string) (cycle.Summary, error) {
			return o.linkCycle(ctx, mode, label+" "+container, container, lists.Associations)
		})
		o.prompter.ShowContainers(report)
		return err

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// linkCycle runs the association reconciler over the rows currently listed.
func (o *Orchestrator) linkCycle(ctx context.Context, mode Mode, label, container string, desired []string) (cycle.Summary, error) {
	var entities []cycle.Entity
	switch {
	case len(desired) == 0:
		o.prompter.Notice("No logins to link; add them to the input list.")
	default:
		total, err := o.engines.Rows(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return cycle.Summary{}, ctx.Err()
			}
			o.logger.Warn("Could not count listing rows.", zap.Error(err))
		}
		entities = cycle.Rows(total)
	}
	return o.runCycle(ctx, mode, label, container, o.engines.Link(desired), entities)
}

// runCycle runs one controller pass with the pause watcher beside it, then
// shows and stores the summary. A cycle interrupted by ctx is still reported.
func (o *Orchestrator) runCycle(ctx context.Context, mode Mode, label, container string, p cycle.Processor, entities []cycle.Entity) (cycle.Summary, error) {
	ctrl := cycle.NewController(p, o.gate, o.cfg, o.logger)

	var sum cycle.Summary
	g, gctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	g.Go(func() error {
		o.prompter.WatchPause(watchCtx, o.gate)
		return nil
	})
	g.Go(func() error {
		defer stopWatch()
		var err error
		sum, err = ctrl.Run(gctx, label, entities)
		return err
	})
	err := g.Wait()

	o.prompter.ShowSummary(sum)
	o.writeReport(sum, mode, container)
	if err != nil && ctx.Err() == nil {
		return sum, err
	}
	return sum, ctx.Err()
}

func (o *Orchestrator) writeReport(sum cycle.Summary, mode Mode, container string) {
	if o.cfg.Report.Dir == "" {
		return
	}
	path, err := reporting.WriteToDir(o.cfg.Report.Dir, reporting.FromSummary(sum, string(mode), container))
	if err != nil {
		o.logger.Warn("Could not write cycle report.", zap.Error(err))
		return
	}
	o.logger.Info("Cycle report written.", zap.String("path", path))
}
