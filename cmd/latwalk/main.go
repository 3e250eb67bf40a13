package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/latwalk/internal/config"
	"github.com/nvandessel/latwalk/internal/logging"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "latwalk",
		Short: "Self-avoiding walk observables on planar lattices",
		Long: `latwalk grows self-avoiding walks on the hexagonal and square lattices and
accumulates weighted observables per (length, contacts, face contacts) bin:
end-to-end distance, radius of gyration and mean square distance, plus the
heaviest walk seen in every bin.

Results are written as checkpoints that can be inspected, verified, merged
and pruned.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.latwalk/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newEnumerateCmd(),
		newCheckpointCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "latwalk version %s\n", version)
			}
		},
	}
}

// loadConfig reads --config if given, else the default locations, and
// applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.LatwalkConfig, error) {
	var (
		cfg *config.LatwalkConfig
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// newLogger builds the stderr logger for cfg. --json switches it to JSON
// records so that stdout and stderr are both machine readable.
func newLogger(cmd *cobra.Command, cfg *config.LatwalkConfig) *slog.Logger {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr(), jsonOut)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
