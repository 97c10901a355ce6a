package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicerelay/cmd/voicerelay/internal/build"
	"github.com/haivivi/voicerelay/pkg/cli"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFlag != "" {
			opts, err := outputOptions(cmd, cli.FormatYAML)
			if err != nil {
				return err
			}
			return cli.Output(build.Get(), opts)
		}
		fmt.Fprintln(cmd.OutOrStdout(), build.String())
		if verbose {
			info := build.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "  go:     %s\n", info.Go)
			if cfg, err := loadConfig(); err == nil && cfg.Path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  config: %s\n", cfg.Path)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
