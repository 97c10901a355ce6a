package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicerelay/cmd/voicerelay/internal/config"
	"github.com/haivivi/voicerelay/pkg/cli"
)

var (
	// Global flags
	configPath string
	logLevel   string
	outputFlag string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "voicerelay",
	Short: "Voice session relay with speaker identification",
	Long: `voicerelay - relays chunked voice sessions to a speech recognizer,
identifies the speaker against enrolled voice profiles and enrolls new
speakers across sessions.

Configuration is read from the OS config directory unless --config is set:
  macOS:   ~/Library/Application Support/voicerelay/config.yaml
  Linux:   ~/.config/voicerelay/config.yaml
  Windows: %AppData%/voicerelay/config.yaml

Examples:
  # Run the server
  voicerelay serve --listen :8000

  # Inspect enrolled profiles
  voicerelay profiles list -o table`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.AppName+"/"+cli.DefaultConfigFile+" in the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "", "output format (yaml, json, table)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if _, err := cfg.LogLevel(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h), nil
}

func outputOptions(cmd *cobra.Command, def cli.OutputFormat) (cli.OutputOptions, error) {
	if outputFlag == "" {
		return cli.OutputOptions{Format: def, Writer: cmd.OutOrStdout()}, nil
	}
	f, err := cli.ParseFormat(outputFlag)
	if err != nil {
		return cli.OutputOptions{}, fmt.Errorf("--output: %w", err)
	}
	return cli.OutputOptions{Format: f, Writer: cmd.OutOrStdout()}, nil
}
