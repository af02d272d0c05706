package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/fiveworlds/internal/config"
)

// version is set at build time with -ldflags "-X .../cmd.version=...".
var version = "dev"

var (
	cfgFile      string
	flagLogLevel string

	cfg    *config.Config
	logger *slog.Logger
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fiveworlds",
		Short:         "Run a coding task in five parallel worlds and keep the best attempt",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadOrDefault(cfgFile)
			if err != nil {
				return err
			}
			if flagLogLevel != "" {
				if _, err := config.ParseLevel(flagLogLevel); err != nil {
					return err
				}
				loaded.LogLevel = flagLogLevel
			}
			cfg = loaded
			logger = newLogger(cmd.ErrOrStderr(), cfg)
			slog.SetDefault(logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.AddCommand(newRunCmd())
	root.AddCommand(newWorldsCmd())
	root.AddCommand(newCleanupCmd())
	root.AddCommand(newBreakersCmd())
	root.AddCommand(newReportCmd())
	return root
}

// Execute runs the root command and prints any error to stderr.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, c *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
