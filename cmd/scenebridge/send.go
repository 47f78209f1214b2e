package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/protocol"
)

var errCommandFailed = errors.New("server returned an error response")

var sendParams []string

var sendCmd = &cobra.Command{
	Use:   "send <type> [params-json]",
	Short: "Send one command to a running server",
	Long: `Send one command to a running scenebridge server and print the response.

Params can be given as a JSON object, as repeated --param key=value flags, or
both (flags win). A --param value that parses as JSON is sent as that value,
otherwise as a string.

The exit status is non-zero when the server answers with an error.`,
	Example: `  # Scene overview
  scenebridge send get_scene_info

  # Create a sphere one unit up
  scenebridge send create_object '{"type":"SPHERE","location":[0,0,1]}'

  # Same, with flags
  scenebridge send create_object --param type=SPHERE --param location=[0,0,1]

  # Raw JSON for scripting
  scenebridge send get_object_info --param name=Cube --json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that a server is answering",
	RunE:  runPing,
}

func init() {
	sendCmd.Flags().StringArrayVarP(&sendParams, "param", "p", nil, "Command parameter as key=value (repeatable)")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(pingCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	if err := logging.InitializeFromEnv(); err != nil {
		return err
	}
	defer logging.Sync()

	params, err := buildParams(args[1:], sendParams)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c := newClient(cfg)
	defer c.Close()

	start := time.Now()
	resp, err := c.Send(cmd.Context(), protocol.Command{Type: args[0], Params: params})
	if err != nil {
		return printTransportError(cmd.OutOrStdout(), args[0], err)
	}
	if err := printResponse(cmd.OutOrStdout(), args[0], resp, time.Since(start)); err != nil {
		return err
	}
	if !resp.OK() {
		return errCommandFailed
	}
	return nil
}

func runPing(cmd *cobra.Command, args []string) error {
	if err := logging.InitializeFromEnv(); err != nil {
		return err
	}
	defer logging.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c := newClient(cfg)
	defer c.Close()

	rtt, err := c.Ping(cmd.Context())
	if err != nil {
		return printTransportError(cmd.OutOrStdout(), "ping "+c.Addr, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s answered in %s\n", c.Addr, rtt.Round(time.Microsecond))
	return nil
}

// buildParams merges an optional JSON object argument with key=value flags.
func buildParams(rawJSON []string, kv []string) (map[string]any, error) {
	params := map[string]any{}
	if len(rawJSON) > 0 && strings.TrimSpace(rawJSON[0]) != "" {
		if err := json.Unmarshal([]byte(rawJSON[0]), &params); err != nil || params == nil {
			return nil, fmt.Errorf("params must be a JSON object: %s", rawJSON[0])
		}
	}
	for _, pair := range kv {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		params[key] = v
	}
	return params, nil
}
