// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/observability"
	"github.com/xkilldash9x/autotiss/internal/orchestrator"
)

// runFunc executes a mode, or the interactive menu when mode is empty.
type runFunc func(ctx context.Context, a *app, mode orchestrator.Mode) error

// app is the state shared by one command tree.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	in      io.Reader
	out     io.Writer
	run     runFunc
}

// NewRootCommand builds an isolated command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	return newRootCmd(&app{v: viper.New(), in: os.Stdin, out: os.Stdout, run: runSession})
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autotiss",
		Short: "autotiss keeps login associations and provider services in sync on the remote portal.",
		Long: `autotiss drives a browser through the remote portal's listing screens and
makes sure every entity carries the desired associations. Without a
subcommand it opens the interactive menu.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(a.v, a.cfgFile); err != nil {
				return err
			}
			cfg, err := config.NewConfigFromViper(a.v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "autotiss"})
				return err
			}
			observability.InitializeLogger(cfg.Logger)
			a.cfg = cfg

			observability.GetLogger().Info("Starting autotiss", zap.String("version", Version))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), a, "")
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.SetIn(a.in)
	rootCmd.SetOut(a.out)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.String("input", "", "input list file (overrides input.path)")
	flags.String("report-dir", "", "directory for per-cycle JSON reports (overrides report.dir)")
	flags.Bool("headless", false, "run the browser without a window (overrides browser.headless)")
	flags.String("log-level", "", "log level (overrides logger.level)")
	for key, flag := range map[string]string{
		"input.path":       "input",
		"report.dir":       "report-dir",
		"browser.headless": "headless",
		"logger.level":     "log-level",
	} {
		// Lookup never fails for flags defined just above.
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(newLinkCmd(a), newServicesCmd(a), newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with the signal-aware ctx from main.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		observability.GetLogger().Warn("Interrupted by signal.")
	default:
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	return err
}

// initializeConfig layers defaults, the config file and AUTOTISS_* variables.
// A missing default config file is fine; a missing explicit one is not.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AUTOTISS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
