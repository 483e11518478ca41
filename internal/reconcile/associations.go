// Package reconcile turns one entity's current UI state into its desired state.
// Both reconcilers only ever add: associations or permissions a person set by
// hand are never removed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/cycle"
	"github.com/xkilldash9x/autotiss/internal/interaction"
	"github.com/xkilldash9x/autotiss/internal/uidriver"
	"go.uber.org/zap"
)

// pickerSelectors is the parsed form of the association picker locators.
type pickerSelectors struct {
	container    uidriver.Selector
	trigger      uidriver.Selector
	label        uidriver.Selector
	filter       uidriver.Selector
	headerToggle uidriver.Selector
	item         uidriver.Selector
	itemToggle   uidriver.Selector
	close        uidriver.Selector
	save         uidriver.Selector
	cancel       uidriver.Selector
}

// AssociationReconciler makes sure every desired login is associated with a
// listing entity, saving only when something had to be added.
type AssociationReconciler struct {
	driver  uidriver.Driver
	exec    *interaction.Executor
	overlay *interaction.Overlay
	prober  *interaction.Prober
	rows    *interaction.RowLocator

	sel         pickerSelectors
	activeClass string
	exact       bool
	timings     config.TimingsConfig
	logger      *zap.Logger
}

// Deps groups the interaction components shared by the reconcilers.
type Deps struct {
	Driver  uidriver.Driver
	Exec    *interaction.Executor
	Overlay *interaction.Overlay
	Prober  *interaction.Prober
	Rows    *interaction.RowLocator
}

// NewDeps wires the interaction components for one driver.
func NewDeps(d uidriver.Driver, cfg *config.Config, logger *zap.Logger) (Deps, error) {
	policy, err := interaction.PolicyByName(cfg.Engine.SelfRowPolicy)
	if err != nil {
		return Deps{}, err
	}
	return Deps{
		Driver:  d,
		Exec:    interaction.NewExecutor(d, cfg, logger),
		Overlay: interaction.NewOverlay(d, cfg, logger),
		Prober:  interaction.NewProber(d, cfg, logger),
		Rows:    interaction.NewRowLocator(d, cfg, policy),
	}, nil
}

func NewAssociationReconciler(deps Deps, cfg *config.Config, logger *zap.Logger) *AssociationReconciler {
	s := cfg.Selectors
	return &AssociationReconciler{
		driver:  deps.Driver,
		exec:    deps.Exec,
		overlay: deps.Overlay,
		prober:  deps.Prober,
		rows:    deps.Rows,
		sel: pickerSelectors{
			container:    uidriver.Parse(s.Picker),
			trigger:      uidriver.Parse(s.PickerTrigger),
			label:        uidriver.Parse(s.PickerLabel),
			filter:       uidriver.Parse(s.PickerFilter),
			headerToggle: uidriver.Parse(s.PickerHeaderToggle),
			item:         uidriver.Parse(s.PickerItem),
			itemToggle:   uidriver.Parse(s.PickerItemToggle),
			close:        uidriver.Parse(s.PickerClose),
			save:         uidriver.Parse(s.SaveButton),
			cancel:       uidriver.Parse(s.CancelButton),
		},
		activeClass: s.ActiveClass,
		exact:       cfg.Engine.AssociationMatch == config.MatchExact,
		timings:     cfg.Engine.Timings,
		logger:      logger.Named("associations"),
	}
}

// Bind returns a processor that reconciles every entity against desired.
// The list is captured as given; callers re-read it at each cycle start.
func (r *AssociationReconciler) Bind(desired []string) cycle.Processor {
	keys := append([]string(nil), desired...)
	return cycle.ProcessorFunc(func(ctx context.Context, e cycle.Entity) cycle.Outcome {
		return r.Reconcile(ctx, e, keys)
	})
}

// Reconcile runs the per-entity state machine: probe, open the detail, open
// the picker, evaluate each key, then save or cancel.
func (r *AssociationReconciler) Reconcile(ctx context.Context, e cycle.Entity, desired []string) cycle.Outcome {
	log := r.logger.With(zap.Stringer("entity", e))

	if len(desired) == 0 {
		return cycle.Fail(e, fmt.Errorf("no desired associations: %w", interaction.ErrConfiguration))
	}

	row, err := r.rows.Row(ctx, e.Index)
	if err != nil {
		return cycle.Fail(e, fmt.Errorf("locating row: %w", err))
	}
	if status, evidence := r.prober.Probe(ctx, row); status == interaction.StatusInactive {
		log.Info("Entity is inactive, skipping.", zap.String("evidence", string(evidence)))
		return cycle.Outcome{Entity: e, Kind: cycle.SkippedInactive}
	}

	if _, err := r.exec.Perform(ctx, r.rows.EditTarget(e.Index), interaction.Click()); err != nil {
		r.recover(ctx, log)
		return cycle.Fail(e, fmt.Errorf("opening detail: %w", err))
	}
	r.overlay.AwaitIdle(ctx)

	state, err := r.editAssociations(ctx, log, desired)
	if err != nil {
		r.recover(ctx, log)
		return cycle.Outcome{Entity: e, Kind: cycle.Failed, Err: err, Observed: state.observed, Warnings: state.warnings}
	}

	kind := cycle.Unchanged
	if len(state.changed) > 0 {
		kind = cycle.Applied
	}
	return cycle.Outcome{
		Entity:   e,
		Kind:     kind,
		Changed:  state.changed,
		Observed: state.observed,
		Warnings: state.warnings,
	}
}

type evaluation struct {
	observed map[string]bool
	changed  []string
	warnings []string
}

func (ev *evaluation) warn(format string, args ...any) {
	ev.warnings = append(ev.warnings, fmt.Sprintf(format, args...))
}

// editAssociations runs everything between the detail dialog opening and the
// dialog closing again.
func (r *AssociationReconciler) editAssociations(ctx context.Context, log *zap.Logger, desired []string) (evaluation, error) {
	ev := evaluation{observed: make(map[string]bool, len(desired))}

	if err := r.openPicker(ctx, log); err != nil {
		return ev, err
	}
	for _, key := range desired {
		if err := r.evaluateKey(ctx, log, key, &ev); err != nil {
			return ev, fmt.Errorf("evaluating %q: %w", key, err)
		}
	}

	if _, err := r.exec.Perform(ctx, interaction.Select(r.driver, r.sel.close), interaction.Click()); err != nil {
		return ev, fmt.Errorf("closing picker: %w", err)
	}
	if err := interaction.Pause(ctx, r.timings.ToggleSettle); err != nil {
		return ev, err
	}

	commit, name := r.sel.cancel, "cancel"
	if len(ev.changed) > 0 {
		commit, name = r.sel.save, "save"
	}
	log.Debug("Committing dialog.", zap.String("button", name), zap.Strings("changed", ev.changed))
	if _, err := r.exec.Perform(ctx, interaction.Select(r.driver, commit), interaction.ForceClick()); err != nil {
		return ev, fmt.Errorf("%s: %w", name, err)
	}
	r.overlay.AwaitIdle(ctx)

	if r.dialogOpen(ctx) {
		return ev, fmt.Errorf("detail dialog still open after %s: %w", name, interaction.ErrModalStuck)
	}
	return ev, nil
}

// openPicker tries each opening strategy in turn and accepts the first one
// that exposes the filter input.
func (r *AssociationReconciler) openPicker(ctx context.Context, log *zap.Logger) error {
	if _, err := interaction.WaitVisible(ctx, r.driver, r.sel.container, r.timings.PickerTimeout, r.timings.PollInterval); err != nil {
		return fmt.Errorf("association picker not rendered: %w", err)
	}

	container := interaction.Select(r.driver, r.sel.container)
	strategies := []struct {
		name   string
		target interaction.Target
		action interaction.Action
	}{
		{"trigger", interaction.Within(r.driver, container, r.sel.trigger), interaction.Click()},
		{"label", interaction.Within(r.driver, container, r.sel.label), interaction.Click()},
		{"container", container, interaction.ForceClick()},
	}

	lastErr := errors.New("no strategy attempted")
	for _, s := range strategies {
		if _, err := r.exec.Perform(ctx, s.target, s.action); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug("Picker opening strategy failed.", zap.String("strategy", s.name), zap.Error(err))
			lastErr = err
			continue
		}
		if err := interaction.Pause(ctx, r.timings.PickerOpenSettle); err != nil {
			return err
		}
		if r.visible(ctx, r.sel.filter) {
			log.Debug("Picker opened.", zap.String("strategy", s.name))
			return nil
		}
		lastErr = fmt.Errorf("%s clicked but filter input not shown: %w", s.name, uidriver.ErrNotFound)
	}
	return fmt.Errorf("association picker did not open: %w", lastErr)
}

// evaluateKey filters the picker to key and selects it when it is not
// selected yet. It never deselects.
func (r *AssociationReconciler) evaluateKey(ctx context.Context, log *zap.Logger, key string, ev *evaluation) error {
	if _, err := r.exec.Perform(ctx, interaction.Select(r.driver, r.sel.filter), interaction.Fill(key)); err != nil {
		return err
	}
	if err := interaction.Pause(ctx, r.timings.FilterSettle); err != nil {
		return err
	}

	items, err := interaction.VisibleMatches(ctx, r.driver, r.sel.item)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		ev.observed[key] = false
		ev.warn("no picker option matches %q", key)
		log.Warn("No picker option matches key.", zap.String("key", key))
		return nil
	}

	toggle := interaction.Select(r.driver, r.sel.headerToggle)
	if r.exact {
		item, ok := r.matchItem(ctx, key)
		if !ok {
			ev.observed[key] = false
			ev.warn("no picker option is exactly %q", key)
			log.Warn("No exact picker option for key.", zap.String("key", key))
			return nil
		}
		toggle = interaction.Within(r.driver, item, r.sel.itemToggle)
	}

	h, err := toggle.Resolve(ctx)
	if err != nil {
		return err
	}
	selected, err := interaction.HasClass(ctx, r.driver, h, r.activeClass)
	if err != nil {
		return err
	}
	if selected {
		ev.observed[key] = true
		return nil
	}

	if _, err := r.exec.Perform(ctx, toggle, interaction.Click()); err != nil {
		return err
	}
	if err := interaction.Pause(ctx, r.timings.ToggleSettle); err != nil {
		return err
	}
	ev.observed[key] = true
	ev.changed = append(ev.changed, key)
	log.Info("Association selected.", zap.String("key", key))

	if h, err := toggle.Resolve(ctx); err == nil {
		if ok, _ := interaction.HasClass(ctx, r.driver, h, r.activeClass); !ok {
			ev.warn("%q did not show as selected after toggling", key)
		}
	}
	return nil
}

// matchItem targets the visible option whose text equals key. An option that
// merely contains key is never a match: it would grant a different login.
func (r *AssociationReconciler) matchItem(ctx context.Context, key string) (interaction.Target, bool) {
	target := interaction.Target{
		Name: fmt.Sprintf("%s[text=%q]", r.sel.item, key),
		Resolve: func(ctx context.Context) (uidriver.Handle, error) {
			items, err := interaction.VisibleMatches(ctx, r.driver, r.sel.item)
			if err != nil {
				return nil, err
			}
			return pickByText(ctx, r.driver, items, key, false)
		},
	}
	_, err := target.Resolve(ctx)
	return target, err == nil
}

// pickByText returns the handle whose text equals want (case-insensitive,
// trimmed). With contains set it falls back to the first handle containing want.
func pickByText(ctx context.Context, d uidriver.Driver, handles []uidriver.Handle, want string, contains bool) (uidriver.Handle, error) {
	want = strings.ToLower(strings.TrimSpace(want))
	var partial uidriver.Handle
	for _, h := range handles {
		text, err := d.Text(ctx, h)
		if err != nil {
			continue
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == want {
			return h, nil
		}
		if contains && partial == nil && strings.Contains(text, want) {
			partial = h
		}
	}
	if partial != nil {
		return partial, nil
	}
	return nil, fmt.Errorf("no option with text %q: %w", want, uidriver.ErrNotFound)
}

func (r *AssociationReconciler) visible(ctx context.Context, sel uidriver.Selector) bool {
	h, err := r.driver.Find(ctx, sel)
	if err != nil {
		return false
	}
	ok, err := r.driver.IsVisible(ctx, h)
	return err == nil && ok
}

func (r *AssociationReconciler) dialogOpen(ctx context.Context) bool {
	return r.visible(ctx, r.sel.container)
}

// recover dismisses whatever is left open so the next entity starts from the
// listing. The picker panel and the detail dialog each take one Escape.
func (r *AssociationReconciler) recover(ctx context.Context, log *zap.Logger) {
	dismiss(ctx, r.driver, r.overlay, r.timings.RecoverySettle, log, r.dialogOpen)
}

// dismiss sends Escape and waits for the page, repeating once while stillOpen
// reports a leftover dialog. A nil stillOpen sends a single Escape.
func dismiss(ctx context.Context, d uidriver.Driver, overlay *interaction.Overlay, settle time.Duration, log *zap.Logger, stillOpen func(context.Context) bool) {
	for i := 0; i < 2; i++ {
		if ctx.Err() != nil {
			return
		}
		if err := d.SendEscape(ctx); err != nil {
			log.Debug("Escape failed during recovery.", zap.Error(err))
		}
		_ = interaction.Pause(ctx, settle)
		overlay.AwaitIdle(ctx)
		if stillOpen == nil || !stillOpen(ctx) {
			return
		}
	}
	log.Warn("Dialog still open after recovery.", zap.Error(interaction.ErrModalStuck))
}
