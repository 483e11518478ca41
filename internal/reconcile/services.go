package reconcile

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/cycle"
	"github.com/xkilldash9x/autotiss/internal/interaction"
	"github.com/xkilldash9x/autotiss/internal/uidriver"
	"go.uber.org/zap"
)

// allTransactionsLabel names the header checkbox in outcomes and warnings.
const allTransactionsLabel = "all transactions"

// ServiceRegistrar creates one service-permission record per provider name.
// Every run creates a record, so its outcomes are Applied or Failed.
type ServiceRegistrar struct {
	driver  uidriver.Driver
	exec    *interaction.Executor
	overlay *interaction.Overlay

	create          uidriver.Selector
	providerTrigger uidriver.Selector
	providerFilter  uidriver.Selector
	providerItem    uidriver.Selector
	table           uidriver.Selector
	toggles         []uidriver.Selector
	allTransactions uidriver.Selector
	save            uidriver.Selector
	activeClass     string

	permissions []string
	timings     config.TimingsConfig
	logger      *zap.Logger
}

func NewServiceRegistrar(deps Deps, cfg *config.Config, logger *zap.Logger) *ServiceRegistrar {
	s := cfg.Selectors
	toggles := make([]uidriver.Selector, 0, len(s.PermissionToggles))
	for _, t := range s.PermissionToggles {
		toggles = append(toggles, uidriver.Parse(t))
	}
	return &ServiceRegistrar{
		driver:          deps.Driver,
		exec:            deps.Exec,
		overlay:         deps.Overlay,
		create:          uidriver.Parse(s.CreateServiceButton),
		providerTrigger: uidriver.Parse(s.ProviderTrigger),
		providerFilter:  uidriver.Parse(s.ProviderFilter),
		providerItem:    uidriver.Parse(s.ProviderItem),
		table:           uidriver.Parse(s.TransactionsTable),
		toggles:         toggles,
		allTransactions: uidriver.Parse(s.AllTransactions),
		save:            uidriver.Parse(s.ServiceSaveButton),
		activeClass:     s.ActiveClass,
		permissions:     append([]string(nil), cfg.Services.Permissions...),
		timings:         cfg.Engine.Timings,
		logger:          logger.Named("services"),
	}
}

// Process registers the service for e.Name.
func (s *ServiceRegistrar) Process(ctx context.Context, e cycle.Entity) cycle.Outcome {
	log := s.logger.With(zap.Stringer("entity", e))
	out := cycle.Outcome{Entity: e, Observed: make(map[string]bool, len(s.permissions)+1)}

	if e.Name == "" {
		return cycle.Fail(e, fmt.Errorf("provider name is empty: %w", interaction.ErrConfiguration))
	}

	if _, err := s.exec.Perform(ctx, interaction.Select(s.driver, s.create), interaction.ForceClick()); err != nil {
		return cycle.Fail(e, fmt.Errorf("create service button: %w", err))
	}
	s.overlay.AwaitIdle(ctx)

	if err := s.selectProvider(ctx, e.Name); err != nil {
		s.recover(ctx, log)
		return cycle.Fail(e, err)
	}

	// The provider's data is loaded once the transactions table renders.
	if _, err := interaction.WaitVisible(ctx, s.driver, s.table, s.timings.TableTimeout, s.timings.PollInterval); err != nil {
		if ctx.Err() != nil {
			return cycle.Fail(e, ctx.Err())
		}
		out.Warnings = append(out.Warnings, "transactions table did not appear")
		log.Warn("Transactions table did not appear, marking permissions anyway.")
	} else if err := interaction.Pause(ctx, s.timings.ToggleSettle); err != nil {
		return cycle.Fail(e, err)
	}

	for _, label := range s.permissions {
		changed, ok := s.ensurePermission(ctx, log, label)
		out.Observed[label] = ok
		if changed {
			out.Changed = append(out.Changed, label)
		}
		if !ok {
			out.Warnings = append(out.Warnings, fmt.Sprintf("could not check %q", label))
			log.Warn("Permission checkbox could not be checked.", zap.String("label", label))
		}
	}

	changed, ok := s.ensureChecked(ctx, s.allTransactions)
	out.Observed[allTransactionsLabel] = ok
	if changed {
		out.Changed = append(out.Changed, allTransactionsLabel)
	}
	if !ok {
		out.Warnings = append(out.Warnings, "could not check "+allTransactionsLabel)
	}

	if _, err := s.exec.Perform(ctx, interaction.Select(s.driver, s.save), interaction.ForceClick()); err != nil {
		s.recover(ctx, log)
		out.Kind, out.Err = cycle.Failed, fmt.Errorf("save: %w", err)
		return out
	}
	s.overlay.AwaitIdle(ctx)

	out.Kind = cycle.Applied
	return out
}

// selectProvider opens the provider menu, filters it by name and picks the
// option that matches.
func (s *ServiceRegistrar) selectProvider(ctx context.Context, name string) error {
	if _, err := s.exec.Perform(ctx, interaction.Select(s.driver, s.providerTrigger), interaction.Click()); err != nil {
		return fmt.Errorf("opening provider menu: %w", err)
	}
	if err := interaction.Pause(ctx, s.timings.PickerOpenSettle); err != nil {
		return err
	}

	if _, err := interaction.WaitVisible(ctx, s.driver, s.providerFilter, s.timings.ElementTimeout, s.timings.PollInterval); err != nil {
		return fmt.Errorf("provider filter: %w", err)
	}
	if _, err := s.exec.Perform(ctx, interaction.Select(s.driver, s.providerFilter), interaction.Fill(name)); err != nil {
		return fmt.Errorf("filtering providers: %w", err)
	}
	if err := interaction.Pause(ctx, s.timings.FilterSettle); err != nil {
		return err
	}

	itemSel := s.providerItem.With(name)
	if _, err := interaction.WaitVisible(ctx, s.driver, itemSel, s.timings.ElementTimeout, s.timings.PollInterval); err != nil {
		return fmt.Errorf("provider %q not in list: %w", name, err)
	}
	item := interaction.Target{
		Name: itemSel.String(),
		Resolve: func(ctx context.Context) (uidriver.Handle, error) {
			items, err := interaction.VisibleMatches(ctx, s.driver, itemSel)
			if err != nil {
				return nil, err
			}
			return pickByText(ctx, s.driver, items, name, true)
		},
	}
	if _, err := s.exec.Perform(ctx, item, interaction.Click()); err != nil {
		return fmt.Errorf("selecting provider %q: %w", name, err)
	}
	s.overlay.AwaitIdle(ctx)
	return nil
}

// ensurePermission tries each locator strategy for the label's checkbox until
// one of them ends up checked.
func (s *ServiceRegistrar) ensurePermission(ctx context.Context, log *zap.Logger, label string) (changed, ok bool) {
	for i, tmpl := range s.toggles {
		changed, ok := s.ensureChecked(ctx, tmpl.With(label))
		if ok {
			return changed, true
		}
		log.Debug("Checkbox strategy did not stick.", zap.String("label", label), zap.Int("strategy", i+1))
	}
	return false, false
}

// ensureChecked clicks the checkbox when it lacks the active class and
// verifies the class afterwards.
func (s *ServiceRegistrar) ensureChecked(ctx context.Context, sel uidriver.Selector) (changed, ok bool) {
	h, err := s.driver.Find(ctx, sel)
	if err != nil {
		return false, false
	}
	if active, err := interaction.HasClass(ctx, s.driver, h, s.activeClass); err == nil && active {
		return false, true
	}

	if _, err := s.exec.Perform(ctx, interaction.Select(s.driver, sel), interaction.ForceClick()); err != nil {
		return false, false
	}
	if interaction.Pause(ctx, s.timings.ToggleSettle) != nil {
		return false, false
	}

	h, err = s.driver.Find(ctx, sel)
	if err != nil {
		return false, false
	}
	active, err := interaction.HasClass(ctx, s.driver, h, s.activeClass)
	return active, err == nil && active
}

func (s *ServiceRegistrar) recover(ctx context.Context, log *zap.Logger) {
	dismiss(ctx, s.driver, s.overlay, s.timings.RecoverySettle, log, nil)
}
