// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 40, cfg.BusyWaitTimeoutSeconds)
	assert.Equal(t, 40*time.Second, cfg.BusyWaitTimeout())
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "autotiss", cfg.Logger.ServiceName)
	assert.False(t, cfg.Browser.Headless, "the browser window must be visible by default")
	assert.Equal(t, "dados.json", cfg.Input.Path)
	assert.Equal(t, "logins_para_vincular", cfg.Input.AssociationsField)
	assert.Equal(t, 3, cfg.Engine.ActionAttempts)
	assert.Equal(t, SelfRowLast, cfg.Engine.SelfRowPolicy)
	assert.Equal(t, MatchAggregate, cfg.Engine.AssociationMatch)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.Timings.ScrollSettle)
	assert.Equal(t, time.Second, cfg.Engine.Timings.StaleBackoff)
	assert.Equal(t, 1500*time.Millisecond, cfg.Engine.Timings.FilterSettle)
	assert.Equal(t, "#aguarde", cfg.Selectors.BusyIndicator)
	assert.Equal(t, []string{"Visualiza transações", "Cancela/Exclui"}, cfg.Services.Permissions)
	assert.Len(t, cfg.Selectors.PermissionToggles, 3)
	assert.False(t, cfg.Credentials.Present())
	assert.Empty(t, cfg.RemoteEndpoint, "the remote endpoint has no default")
}

// validConfig returns the defaults plus the one setting they leave unset.
func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.RemoteEndpoint = "https://remote.example/app/login.jsf"
	return cfg
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Defaults Are Valid", func(t *testing.T) {
		cfg := validConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Bare Defaults Lack An Endpoint", func(t *testing.T) {
		err := NewDefaultConfig().Validate()
		require.Error(t, err)
		assert.Equal(t, "RemoteEndpoint is required", err.Error())
	})

	t.Run("Nil Config", func(t *testing.T) {
		var cfg *Config
		assert.Error(t, cfg.Validate())
	})

	t.Run("Struct Tags", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(*Config)
			want   string
		}{
			{"missing endpoint", func(c *Config) { c.RemoteEndpoint = "" }, "RemoteEndpoint is required"},
			{"bad endpoint", func(c *Config) { c.RemoteEndpoint = "not a url" }, "RemoteEndpoint must be a valid URL"},
			{"zero busy wait", func(c *Config) { c.BusyWaitTimeoutSeconds = 0 }, "BusyWaitTimeoutSeconds fails gte=1"},
			{"zero attempts", func(c *Config) { c.Engine.ActionAttempts = 0 }, "Engine.ActionAttempts fails gte=1"},
			{"bad policy", func(c *Config) { c.Engine.SelfRowPolicy = "first" }, "Engine.SelfRowPolicy must be one of [last none]"},
			{"bad match", func(c *Config) { c.Engine.AssociationMatch = "fuzzy" }, "Engine.AssociationMatch must be one of"},
			{"negative settle", func(c *Config) { c.Engine.Timings.ToggleSettle = -time.Second }, "Engine.Timings.ToggleSettle fails gte=0"},
			{"zero poll", func(c *Config) { c.Engine.Timings.PollInterval = 0 }, "Engine.Timings.PollInterval fails gt=0"},
			{"missing overlay selector", func(c *Config) { c.Selectors.BusyIndicator = "" }, "Selectors.BusyIndicator is required"},
			{"username without password", func(c *Config) { c.Credentials.Username = "op" }, "Credentials.Password is required"},
			{"unknown log color", func(c *Config) { c.Logger.Colors.Warn = "orange" }, `Logger.Colors.Warn: unknown color "orange"`},
			{"blank permission", func(c *Config) { c.Services.Permissions = []string{"ok", ""} }, "Services.Permissions[1] is required"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				cfg := validConfig()
				tc.mutate(cfg)
				err := cfg.Validate()
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.want)
			})
		}
	})

	t.Run("Cross Field", func(t *testing.T) {
		cfg := validConfig()
		cfg.Selectors.ProviderItem = "//li"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "selectors.provider_item must contain")

		cfg = validConfig()
		cfg.Selectors.PermissionToggles = []string{"//label[contains(text(), %s)]", "//div"}
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "selectors.permission_toggles[1]")

		cfg = validConfig()
		cfg.Selectors.NegativeMarkers = []string{"sim"}
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "both affirmative and negative")

		cfg = validConfig()
		cfg.Credentials = CredentialsConfig{Username: "op", Password: "secret"}
		cfg.Selectors.LoginSubmit = ""
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "login selectors are incomplete")
	})
}

// -- Viper Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("File Overrides Defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		yamlConfig := []byte(`
remote_endpoint: "https://example.test/app/login.jsf"
busy_wait_timeout_seconds: 12
engine:
  action_attempts: 5
  self_row_policy: none
  timings:
    scroll_settle: 0s
    stale_backoff: 250ms
input:
  path: "~/autotiss/input.yaml"
services:
  permissions: ["Somente leitura"]
`)
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "https://example.test/app/login.jsf", cfg.RemoteEndpoint)
		assert.Equal(t, 12*time.Second, cfg.BusyWaitTimeout())
		assert.Equal(t, 5, cfg.Engine.ActionAttempts)
		assert.Equal(t, SelfRowNone, cfg.Engine.SelfRowPolicy)
		assert.Equal(t, time.Duration(0), cfg.Engine.Timings.ScrollSettle)
		assert.Equal(t, 250*time.Millisecond, cfg.Engine.Timings.StaleBackoff)
		// Untouched nested keys keep their defaults.
		assert.Equal(t, 300*time.Millisecond, cfg.Engine.Timings.IdleSettle)
		assert.Equal(t, []string{"Somente leitura"}, cfg.Services.Permissions)

		home, err := homedir.Dir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "autotiss", "input.yaml"), cfg.Input.Path)
	})

	t.Run("Password From Environment", func(t *testing.T) {
		t.Setenv("AUTOTISS_PASSWORD", "from-env")
		v := viper.New()
		SetDefaults(v)
		v.Set("remote_endpoint", "https://remote.example/app/login.jsf")
		v.Set("credentials.username", "operator")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.True(t, cfg.Credentials.Present())
		assert.Equal(t, "from-env", cfg.Credentials.Password)
	})

	t.Run("Invalid Config Is Rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("remote_endpoint", "https://remote.example/app/login.jsf")
		v.Set("engine.association_match", "sometimes")

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Missing Endpoint Is Rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "RemoteEndpoint is required")
	})
}
