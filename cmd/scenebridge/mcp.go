package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/bridge"
	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/version"
)

var mcpLogLevel string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose a running server to MCP clients over stdio",
	Long: `Run an MCP server on stdin/stdout whose tools forward to a running
scenebridge server.

Every command the server understands is available as a tool of the same
name, plus send_command for anything else. stdout carries the MCP protocol,
so logs always go to stderr.`,
	Example: `  # Register with an MCP client
  {"command": "scenebridge", "args": ["mcp"]}

  # Talk to a server on another port, with debug logs on stderr
  scenebridge mcp --port 9877 --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpLogLevel, "log-level", "", "Log level for stderr (default: $SCENEBRIDGE_LOG_LEVEL or silent)")

	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(mcpLogLevel, "stderr"); err != nil {
		return err
	}
	defer logging.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c := newClient(cfg)
	defer c.Close()

	logging.Debug("Forwarding MCP tools", zap.String("server", c.Addr))
	return bridge.New(c, version.Version).Run(cmd.Context())
}
