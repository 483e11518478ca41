package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/interaction"
	"github.com/xkilldash9x/autotiss/internal/reconcile"
	"github.com/xkilldash9x/autotiss/internal/uidriver"
)

// ConfirmLogin blocks until the operator has logged in by hand.
type ConfirmLogin func(ctx context.Context) error

// Login opens the remote endpoint and signs in. With credentials configured
// it fills the login form and waits for it to go away; a form that stays up
// falls back to manual confirmation. Without credentials the operator logs in
// by hand. Afterwards the listing page is opened when one is configured.
func Login(ctx context.Context, deps reconcile.Deps, cfg *config.Config, confirm ConfirmLogin, logger *zap.Logger) error {
	log := logger.Named("login")
	d := deps.Driver

	if err := d.Navigate(ctx, cfg.RemoteEndpoint); err != nil {
		return fmt.Errorf("opening %s: %w", cfg.RemoteEndpoint, err)
	}
	deps.Overlay.AwaitIdle(ctx)

	if cfg.Credentials.Present() {
		err := autoLogin(ctx, deps, cfg)
		if err == nil {
			log.Info("Logged in.", zap.String("user", cfg.Credentials.Username))
			return openListing(ctx, deps, cfg)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Automatic login failed, asking for a manual login.", zap.Error(err))
		if cerr := confirm(ctx); cerr != nil {
			return errors.Join(err, cerr)
		}
		return openListing(ctx, deps, cfg)
	}

	log.Info("No credentials configured; waiting for a manual login.")
	if err := confirm(ctx); err != nil {
		return err
	}
	return openListing(ctx, deps, cfg)
}

func autoLogin(ctx context.Context, deps reconcile.Deps, cfg *config.Config) error {
	s := cfg.Selectors
	user := uidriver.Parse(s.LoginUsername)
	pass := uidriver.Parse(s.LoginPassword)
	submit := uidriver.Parse(s.LoginSubmit)
	if user.IsZero() || pass.IsZero() || submit.IsZero() {
		return fmt.Errorf("login form selectors are not configured: %w", interaction.ErrConfiguration)
	}

	steps := []struct {
		target interaction.Target
		action interaction.Action
	}{
		{interaction.Select(deps.Driver, user), interaction.Fill(cfg.Credentials.Username)},
		{interaction.Select(deps.Driver, pass), interaction.Fill(cfg.Credentials.Password)},
		{interaction.Select(deps.Driver, submit), interaction.Click()},
	}
	for _, st := range steps {
		if _, err := deps.Exec.Perform(ctx, st.target, st.action); err != nil {
			return err
		}
	}
	deps.Overlay.AwaitIdle(ctx)

	if err := deps.Driver.WaitUntilInvisible(ctx, pass, cfg.Engine.Timings.EntryTimeout); err != nil {
		return fmt.Errorf("login form still shown after submit: %w", err)
	}
	return nil
}

func openListing(ctx context.Context, deps reconcile.Deps, cfg *config.Config) error {
	if cfg.ListingURL == "" {
		return nil
	}
	if err := deps.Driver.Navigate(ctx, cfg.ListingURL); err != nil {
		return fmt.Errorf("opening listing %s: %w", cfg.ListingURL, err)
	}
	deps.Overlay.AwaitIdle(ctx)
	return nil
}
