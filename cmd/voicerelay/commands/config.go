package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicerelay/cmd/voicerelay/internal/config"
	"github.com/haivivi/voicerelay/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
	Long: `Inspect the configuration file and the values the server would use.

Examples:
  voicerelay config path
  voicerelay config show
  voicerelay config show -o json`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts, err := outputOptions(cmd, cli.FormatYAML)
		if err != nil {
			return err
		}
		return cli.Output(cfg.Redacted(), opts)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
