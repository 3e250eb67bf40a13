package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/latwalk/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show latwalk configuration",
		Long: `Show the effective configuration: defaults, then ~/.latwalk/config.yaml
(or --config), then LATWALK_* environment variables.

Examples:
  latwalk config show
  latwalk config show --json
  latwalk config path`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigPathCmd(),
	)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			validErr := cfg.Validate()

			if jsonOut {
				out := map[string]any{"config": cfg, "valid": validErr == nil}
				if validErr != nil {
					out["error"] = validErr.Error()
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			if validErr != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\n# invalid: %v\n", validErr)
			}
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the default config file location",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(config.Dir(), "config.yaml"))
		},
	}
}
