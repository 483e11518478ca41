// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autotiss/internal/orchestrator"
)

// testApp returns an app whose run step only records the requested mode.
func testApp(modes *[]orchestrator.Mode) (*app, *bytes.Buffer) {
	out := new(bytes.Buffer)
	return &app{
		v:   viper.New(),
		in:  strings.NewReader(""),
		out: out,
		run: func(ctx context.Context, a *app, mode orchestrator.Mode) error {
			*modes = append(*modes, mode)
			return nil
		},
	}, out
}

// quietConfig writes a config file that names a remote endpoint and keeps the
// log file out of the package directory, plus any extra YAML.
func quietConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "remote_endpoint: https://remote.example/login.jsf\nlogger:\n  log_file: \"\"\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, a *app, args ...string) error {
	t.Helper()
	root := newRootCmd(a)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestRootCommandModes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want orchestrator.Mode
	}{
		{"no subcommand opens the menu", nil, ""},
		{"link logins", []string{"link-logins"}, orchestrator.ModeLinkLogins},
		{"link logins per container", []string{"link-logins", "--containers"}, orchestrator.ModeLinkPerContainer},
		{"register services", []string{"register-services"}, orchestrator.ModeRegisterServices},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var modes []orchestrator.Mode
			a, _ := testApp(&modes)
			args := append([]string{"--config", quietConfig(t, "")}, tt.args...)

			require.NoError(t, execute(t, a, args...))
			assert.Equal(t, []orchestrator.Mode{tt.want}, modes)
		})
	}
}

func TestRootCommandRejectsArguments(t *testing.T) {
	var modes []orchestrator.Mode
	a, _ := testApp(&modes)

	err := execute(t, a, "--config", quietConfig(t, ""), "link-logins", "extra")
	require.Error(t, err)
	assert.Empty(t, modes)
}

func TestVersion(t *testing.T) {
	t.Run("subcommand skips config loading", func(t *testing.T) {
		var modes []orchestrator.Mode
		a, out := testApp(&modes)

		require.NoError(t, execute(t, a, "--config", "/nonexistent/config.yaml", "version"))
		assert.Equal(t, "autotiss dev\n", out.String())
	})

	t.Run("flag", func(t *testing.T) {
		var modes []orchestrator.Mode
		a, out := testApp(&modes)

		require.NoError(t, execute(t, a, "--version"))
		assert.Equal(t, "dev\n", out.String())
		assert.Empty(t, modes)
	})
}

func TestConfigLayering(t *testing.T) {
	t.Setenv("AUTOTISS_ENGINE_ACTION_ATTEMPTS", "5")
	reports := t.TempDir()

	var modes []orchestrator.Mode
	a, _ := testApp(&modes)
	cfgFile := quietConfig(t, "input:\n  path: lista.yaml\nengine:\n  action_attempts: 2\nbrowser:\n  headless: false\n")

	require.NoError(t, execute(t, a, "--config", cfgFile, "--report-dir", reports, "--headless", "link-logins"))

	require.NotNil(t, a.cfg)
	assert.Equal(t, "lista.yaml", a.cfg.Input.Path, "config file")
	assert.Equal(t, 5, a.cfg.Engine.ActionAttempts, "environment beats the file")
	assert.Equal(t, reports, a.cfg.Report.Dir, "flag")
	assert.True(t, a.cfg.Browser.Headless, "flag beats the file")
}

func TestConfigErrors(t *testing.T) {
	t.Run("explicit config file must exist", func(t *testing.T) {
		var modes []orchestrator.Mode
		a, _ := testApp(&modes)

		err := execute(t, a, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "link-logins")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
		assert.Empty(t, modes)
	})

	t.Run("remote endpoint is required", func(t *testing.T) {
		var modes []orchestrator.Mode
		a, _ := testApp(&modes)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logger:\n  log_file: \"\"\n"), 0o600))

		err := execute(t, a, "--config", path, "link-logins")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RemoteEndpoint is required")
		assert.Empty(t, modes)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		var modes []orchestrator.Mode
		a, _ := testApp(&modes)

		err := execute(t, a, "--config", quietConfig(t, "engine:\n  action_attempts: 0\n"), "register-services")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Empty(t, modes)
	})
}
