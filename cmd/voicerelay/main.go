// Package main is the entry point for the voicerelay server and its admin
// commands.
//
// Usage:
//
//	voicerelay [flags] <command> [subcommand] [args]
//
// Commands:
//
//	serve      - Run the HTTP/WebSocket relay
//	profiles   - List or delete enrolled voice profiles
//	config     - Show the effective configuration
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/voicerelay/cmd/voicerelay/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
