// Scenebridge is a local command server that lets automation clients drive a
// 3D scene over a JSON socket protocol.
//
// The serve command hosts the scene and listens on localhost:9876. The other
// commands are clients: send and ping talk to a running server, discover
// finds servers on the local network, history reads the command journal,
// and mcp exposes the command set to MCP clients over stdio.
//
// Usage:
//
//	scenebridge [command] [flags]
//
// See 'scenebridge --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/scenebridge/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Flags shared by every command
var (
	configPath string
	host       string
	port       int
	timeout    int
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "scenebridge",
	Short: "Local JSON command server for a 3D scene",
	Long: `A local TCP command server for driving a 3D scene.

Clients send one JSON object per command, {"type": "...", "params": {...}},
and receive exactly one JSON response per command. All scene access runs on a
single owner context, so commands from many clients never overlap.

Optional command groups (asset_library, generated_content) are enabled in the
config file and can be toggled while the server runs.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/scenebridge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Server host (default from config: localhost)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "Server port (default from config: 9876)")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 0, "Client timeout in seconds (0 = command default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON instead of formatted output")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "scenebridge %s\n", version.Full())
	},
}
