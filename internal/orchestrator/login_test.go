package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/reconcile"
	"github.com/xkilldash9x/autotiss/internal/uidriver"
	"github.com/xkilldash9x/autotiss/internal/uidriver/uidrivertest"
)

// loginPage models a login form that disappears once the right password is
// submitted.
type loginPage struct {
	f    *uidrivertest.Fake
	user *uidrivertest.Element
	pass *uidrivertest.Element
}

func newLoginPage(cfg *config.Config, password string) *loginPage {
	f := uidrivertest.New()
	s := cfg.Selectors
	p := &loginPage{f: f}
	p.user = f.Add(nil, "username", uidriver.Parse(s.LoginUsername).Query)
	p.pass = f.Add(nil, "password", uidriver.Parse(s.LoginPassword).Query)
	submit := f.Add(nil, "submit", uidriver.Parse(s.LoginSubmit).Query)
	submit.OnClick = func() error {
		if p.pass.Value == password {
			p.user.Visible = false
			p.pass.Visible = false
		}
		return nil
	}
	return p
}

func (p *loginPage) navigations() []string {
	var urls []string
	for _, c := range p.f.Calls() {
		if c.Op == uidrivertest.OpNavigate {
			urls = append(urls, c.Arg)
		}
	}
	return urls
}

func loginConfig(t *testing.T) *config.Config {
	cfg := testConfig(t)
	cfg.RemoteEndpoint = "https://remote.example/login.jsf"
	cfg.ListingURL = "https://remote.example/logins.jsf"
	return cfg
}

func TestLogin(t *testing.T) {
	t.Run("credentials fill the form and open the listing", func(t *testing.T) {
		cfg := loginConfig(t)
		cfg.Credentials = config.CredentialsConfig{Username: "operador", Password: "s3cret"}
		page := newLoginPage(cfg, "s3cret")
		deps, err := reconcile.NewDeps(page.f, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		confirmed := false
		err = Login(context.Background(), deps, cfg, func(context.Context) error {
			confirmed = true
			return nil
		}, zaptest.NewLogger(t))

		require.NoError(t, err)
		assert.False(t, confirmed)
		assert.Equal(t, "operador", page.user.Value)
		assert.Equal(t, "s3cret", page.pass.Value)
		assert.Equal(t, []string{cfg.RemoteEndpoint, cfg.ListingURL}, page.navigations())
	})

	t.Run("rejected credentials fall back to a manual login", func(t *testing.T) {
		cfg := loginConfig(t)
		cfg.Credentials = config.CredentialsConfig{Username: "operador", Password: "wrong"}
		page := newLoginPage(cfg, "s3cret")
		deps, err := reconcile.NewDeps(page.f, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		confirmed := false
		err = Login(context.Background(), deps, cfg, func(context.Context) error {
			confirmed = true
			return nil
		}, zaptest.NewLogger(t))

		require.NoError(t, err)
		assert.True(t, confirmed)
		assert.Equal(t, []string{cfg.RemoteEndpoint, cfg.ListingURL}, page.navigations())
	})

	t.Run("failed fallback reports both errors", func(t *testing.T) {
		cfg := loginConfig(t)
		cfg.Credentials = config.CredentialsConfig{Username: "operador", Password: "wrong"}
		page := newLoginPage(cfg, "s3cret")
		deps, err := reconcile.NewDeps(page.f, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		noTerminal := errors.New("no terminal")
		err = Login(context.Background(), deps, cfg, func(context.Context) error { return noTerminal }, zaptest.NewLogger(t))

		require.ErrorIs(t, err, noTerminal)
		assert.ErrorIs(t, err, uidriver.ErrTimeout)
		assert.Equal(t, []string{cfg.RemoteEndpoint}, page.navigations())
	})

	t.Run("no credentials waits for the operator", func(t *testing.T) {
		cfg := loginConfig(t)
		cfg.ListingURL = ""
		page := newLoginPage(cfg, "s3cret")
		deps, err := reconcile.NewDeps(page.f, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		confirmed := false
		err = Login(context.Background(), deps, cfg, func(context.Context) error {
			confirmed = true
			return nil
		}, zaptest.NewLogger(t))

		require.NoError(t, err)
		assert.True(t, confirmed)
		assert.Zero(t, page.f.Count(uidrivertest.OpType, ""))
		assert.Equal(t, []string{cfg.RemoteEndpoint}, page.navigations())
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		cfg := loginConfig(t)
		page := newLoginPage(cfg, "s3cret")
		page.f.OnNavigate = func(string) error { return errors.New("net::ERR_NAME_NOT_RESOLVED") }
		deps, err := reconcile.NewDeps(page.f, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		err = Login(context.Background(), deps, cfg, func(context.Context) error { return nil }, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
	})
}
