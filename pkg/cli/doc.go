// Package cli holds the terminal helpers shared by the voicerelay commands:
// result output as YAML, JSON or a styled table, human-readable sizes and
// the per-user config and data directories.
//
//	cli.Output(profiles, cli.OutputOptions{Format: cli.FormatTable})
package cli
