// Package cli implements the Whispie command-line interface using Cobra.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/whispie/whispie/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "whispie",
	Short: "Whispie - conversation practice progression engine",
	Long: `Whispie turns scored practice conversations into XP, levels, daily
streaks and achievements.

Run 'whispie serve' for the HTTP API, or use the commands below to inspect
and update profiles directly against the configured store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openDaemon loads config and opens the store for a one-shot command.
// One-shot commands log warnings only unless --verbose is set.
func openDaemon(ctx context.Context, quiet bool, opts ...daemon.Option) (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	switch {
	case verbose:
		cfg.Logging.Level = "debug"
	case quiet:
		cfg.Logging.Level = "warn"
	}
	return daemon.NewWithConfig(ctx, cfg, rootCmd.Version, opts...)
}

// normalizeUserID returns UUIDs in canonical form; other IDs are kept as is.
func normalizeUserID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
