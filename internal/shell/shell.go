// Package shell wraps the cycle controller for two-level listings: it enters
// each named container, runs the inner cycle and always tries to come back to
// the search screen.
package shell

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/cycle"
	"github.com/xkilldash9x/autotiss/internal/interaction"
	"github.com/xkilldash9x/autotiss/internal/reconcile"
	"github.com/xkilldash9x/autotiss/internal/uidriver"
	"go.uber.org/zap"
)

// ErrEntryFailed means the container was selected but its listing never
// showed an edit affordance.
var ErrEntryFailed = errors.New("container listing did not appear")

// InnerFunc runs the inner cycle once the container's listing is visible.
type InnerFunc func(ctx context.Context, container string) (cycle.Summary, error)

// ContainerResult is the outcome of one container.
type ContainerResult struct {
	Container string
	Entered   bool
	Err       error
	Summary   cycle.Summary
}

// Report collects every container visited, in order.
type Report struct {
	Results []ContainerResult
}

// Skipped lists the containers that could not be entered.
func (r Report) Skipped() []ContainerResult {
	var out []ContainerResult
	for _, c := range r.Results {
		if !c.Entered {
			out = append(out, c)
		}
	}
	return out
}

// Shell navigates between containers.
type Shell struct {
	driver  uidriver.Driver
	exec    *interaction.Executor
	overlay *interaction.Overlay

	affordance   uidriver.Selector
	searchInput  uidriver.Selector
	searchButton uidriver.Selector
	result       uidriver.Selector
	back         uidriver.Selector
	searchURL    string

	timings config.TimingsConfig
	logger  *zap.Logger
}

// New builds a shell. The container search selectors are required.
func New(deps reconcile.Deps, cfg *config.Config, logger *zap.Logger) (*Shell, error) {
	s := cfg.Selectors
	if s.ContainerSearchInput == "" || s.ContainerSearchButton == "" || s.ContainerResult == "" {
		return nil, fmt.Errorf("selectors.container_search_input, container_search_button and container_result must be set: %w",
			interaction.ErrConfiguration)
	}
	sh := &Shell{
		driver:       deps.Driver,
		exec:         deps.Exec,
		overlay:      deps.Overlay,
		affordance:   uidriver.Parse(s.EditAffordance),
		searchInput:  uidriver.Parse(s.ContainerSearchInput),
		searchButton: uidriver.Parse(s.ContainerSearchButton),
		result:       uidriver.Parse(s.ContainerResult),
		searchURL:    s.ContainerSearchURL,
		timings:      cfg.Engine.Timings,
		logger:       logger.Named("shell"),
	}
	if s.ContainerBack != "" {
		sh.back = uidriver.Parse(s.ContainerBack)
	}
	return sh, nil
}

// Run visits containers in order. A container that cannot be entered is
// logged and skipped. A failed search aborts the loop and is returned, as is
// a canceled context; everything else is contained per container.
func (s *Shell) Run(ctx context.Context, containers []string, inner InnerFunc) (Report, error) {
	var report Report

	for i, name := range containers {
		log := s.logger.With(zap.String("container", name), zap.Int("position", i+1), zap.Int("of", len(containers)))
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := s.search(ctx, name); err != nil {
			log.Error("Container search failed, stopping.", zap.Error(err))
			return report, fmt.Errorf("searching container %q: %w", name, err)
		}

		if err := s.enter(ctx, name); err != nil {
			log.Warn("Could not enter container, skipping.",
				zap.Stringer("classification", interaction.Classify(err)), zap.Error(err))
			report.Results = append(report.Results, ContainerResult{Container: name, Err: err})
			s.goBack(ctx, log)
			continue
		}

		log.Info("Entered container.")
		sum, err := inner(ctx, name)
		report.Results = append(report.Results, ContainerResult{Container: name, Entered: true, Err: err, Summary: sum})
		s.goBack(ctx, log)
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err != nil {
			log.Warn("Inner cycle ended with an error.", zap.Error(err))
		}
	}
	return report, nil
}

func (s *Shell) search(ctx context.Context, name string) error {
	if s.searchURL != "" {
		if err := s.driver.Navigate(ctx, s.searchURL); err != nil {
			return fmt.Errorf("opening search page: %w", err)
		}
		s.overlay.AwaitIdle(ctx)
	}
	if _, err := s.exec.Perform(ctx, interaction.Select(s.driver, s.searchInput), interaction.Fill(name)); err != nil {
		return err
	}
	if _, err := s.exec.Perform(ctx, interaction.Select(s.driver, s.searchButton), interaction.Click()); err != nil {
		return err
	}
	s.overlay.AwaitIdle(ctx)
	return nil
}

func (s *Shell) enter(ctx context.Context, name string) error {
	if _, err := s.exec.Perform(ctx, interaction.Select(s.driver, s.result.With(name)), interaction.Click()); err != nil {
		return err
	}
	s.overlay.AwaitIdle(ctx)

	if _, err := interaction.WaitVisible(ctx, s.driver, s.affordance, s.timings.EntryTimeout, s.timings.PollInterval); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrEntryFailed, err)
	}
	return nil
}

// goBack returns to the search screen. It never fails; the next search
// navigates explicitly when a search URL is configured.
func (s *Shell) goBack(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	switch {
	case !s.back.IsZero():
		if _, err := s.exec.Perform(ctx, interaction.Select(s.driver, s.back), interaction.ForceClick()); err != nil {
			log.Debug("Back navigation failed.", zap.Error(err))
		}
	case s.searchURL != "":
		if err := s.driver.Navigate(ctx, s.searchURL); err != nil {
			log.Debug("Back navigation failed.", zap.Error(err))
		}
	default:
		return
	}
	s.overlay.AwaitIdle(ctx)
}
