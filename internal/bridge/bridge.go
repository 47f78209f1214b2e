// Package bridge exposes the scenebridge command set as MCP tools.
//
// Each tool call becomes one Command sent to a running server through a
// Caller; the server's Response is returned to the MCP client as text
// content. Error responses and transport failures are tool errors, never
// protocol errors, so the model can read them and correct itself.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/protocol"
	"github.com/muurk/scenebridge/internal/remote"
)

// Name is the MCP implementation name.
const Name = "scenebridge"

// Caller sends one command and returns the server's response.
type Caller interface {
	Send(ctx context.Context, cmd protocol.Command) (protocol.Response, error)
}

// Bridge owns an MCP server whose tools forward to a Caller.
type Bridge struct {
	caller Caller
	server *mcp.Server
}

// New builds the MCP server and registers every tool.
func New(caller Caller, version string) *Bridge {
	b := &Bridge{caller: caller}
	b.server = mcp.NewServer(
		&mcp.Implementation{
			Name:    Name,
			Version: version,
		},
		&mcp.ServerOptions{
			HasTools:     true,
			HasPrompts:   true,
			Instructions: instructions,
		},
	)
	b.registerTools()
	b.registerPrompts()
	return b
}

// Server returns the underlying MCP server.
func (b *Bridge) Server() *mcp.Server {
	return b.server
}

// Run serves MCP over stdin/stdout until ctx is done or the client leaves.
func (b *Bridge) Run(ctx context.Context) error {
	logging.Info("MCP bridge started", zap.String("transport", "stdio"))
	err := b.server.Run(ctx, &mcp.StdioTransport{})
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// call forwards cmdType and converts the outcome into a tool result.
func (b *Bridge) call(ctx context.Context, cmdType string, params map[string]any) *mcp.CallToolResult {
	resp, err := b.send(ctx, cmdType, params)
	if err != nil {
		return transportError(err)
	}
	if !resp.OK() {
		return errorResult(resp.Message)
	}
	return jsonResult(resp.Result)
}

func (b *Bridge) send(ctx context.Context, cmdType string, params map[string]any) (protocol.Response, error) {
	start := time.Now()
	resp, err := b.caller.Send(ctx, protocol.Command{Type: cmdType, Params: params})
	if err != nil {
		logging.Warn("Command forwarding failed",
			zap.String("type", cmdType),
			zap.Error(err),
		)
		return resp, err
	}
	logging.Debug("Command forwarded",
		zap.String("type", cmdType),
		zap.String("status", resp.Status),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to encode result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// transportError includes the troubleshooting hint so the model can tell
// the user to start the server.
func transportError(err error) *mcp.CallToolResult {
	return errorResult(remote.Short(err) + "\n\n" + remote.Hint(err))
}

// toParams turns a tool input struct into command params. Fields tagged
// omitempty that were not supplied are left out so the server applies its
// own defaults.
func toParams(in any) (map[string]any, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	params := map[string]any{}
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	return params, nil
}

const instructions = `Drive a live 3D scene through a scenebridge server.

Start with get_scene_info to see what exists, then create, modify or delete
objects. execute_code runs JavaScript against the scene for anything the
other tools cannot do. Asset library and generated model tools only work
when the matching feature is enabled on the server; check with
get_polyhaven_status and get_hyper3d_status first.`
