package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/muurk/scenebridge/internal/client"
	"github.com/muurk/scenebridge/internal/config"
	"github.com/muurk/scenebridge/internal/protocol"
	"github.com/muurk/scenebridge/internal/ui"
)

// loadConfig reads the config file and applies the shared --host and --port
// overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *client.Client {
	c := client.New(cfg.Server.Host, cfg.Server.Port)
	if timeout > 0 {
		c.SetTimeout(time.Duration(timeout) * time.Second)
	}
	return c
}

// pretty reports whether output should be rendered for a terminal.
func pretty() bool {
	return !jsonOutput && ui.IsTerminal()
}

// printResponse writes resp as a result box, or as JSON when output is not
// a terminal.
func printResponse(w io.Writer, cmdType string, resp protocol.Response, elapsed time.Duration) error {
	if !pretty() {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w, ui.NewResponseResult(cmdType, resp, elapsed).Render())
	return nil
}

// printTransportError renders err with troubleshooting hints and returns
// it so the command exits non-zero.
func printTransportError(w io.Writer, title string, err error) error {
	if pretty() {
		fmt.Fprintln(w, ui.NewErrorResult(title, err).Render())
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
