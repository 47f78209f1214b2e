package bridge

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"syscall"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/scenebridge/internal/protocol"
	"github.com/muurk/scenebridge/internal/remote"
)

type fakeCaller struct {
	mu    sync.Mutex
	sent  []protocol.Command
	reply func(protocol.Command) (protocol.Response, error)
}

func (f *fakeCaller) Send(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	f.mu.Lock()
	f.sent = append(f.sent, cmd)
	f.mu.Unlock()
	return f.reply(cmd)
}

func (f *fakeCaller) last() protocol.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func connect(t *testing.T, caller Caller) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	b := New(caller, "test")
	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := b.Server().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	c := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1"}, nil)
	cs, err := c.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func succeed(result any) func(protocol.Command) (protocol.Response, error) {
	return func(protocol.Command) (protocol.Response, error) {
		return protocol.Success(result), nil
	}
}

func TestListTools(t *testing.T) {
	cs := connect(t, &fakeCaller{reply: succeed(nil)})

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"get_scene_info", "get_object_info", "create_object", "modify_object",
		"delete_object", "set_material", "execute_code", "get_viewport_screenshot",
		"get_polyhaven_status", "get_hyper3d_status", "get_polyhaven_categories",
		"search_polyhaven_assets", "download_polyhaven_asset", "set_texture",
		"create_rodin_job", "poll_rodin_job_status", "import_generated_asset",
		"send_command",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestForwardSuccess(t *testing.T) {
	caller := &fakeCaller{reply: succeed(map[string]any{"name": "Ball", "type": "MESH"})}
	cs := connect(t, caller)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "create_object",
		Arguments: map[string]any{
			"type":     "SPHERE",
			"name":     "Ball",
			"location": []float64{0, 0, 1},
		},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Equal(t, "Ball", got["name"])

	cmd := caller.last()
	assert.Equal(t, "create_object", cmd.Type)
	assert.Equal(t, "SPHERE", cmd.Params["type"])
	assert.Equal(t, []any{0.0, 0.0, 1.0}, cmd.Params["location"])
	_, hasRotation := cmd.Params["rotation"]
	assert.False(t, hasRotation, "omitted fields are not forwarded")
}

func TestForwardErrorResponse(t *testing.T) {
	caller := &fakeCaller{reply: func(protocol.Command) (protocol.Response, error) {
		return protocol.Failure("Object 'Cube' not found"), nil
	}}
	cs := connect(t, caller)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "delete_object",
		Arguments: map[string]any{"name": "Cube"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "Object 'Cube' not found", text(t, res))
}

func TestForwardTransportError(t *testing.T) {
	caller := &fakeCaller{reply: func(protocol.Command) (protocol.Response, error) {
		return protocol.Response{}, remote.Classify(syscall.ECONNREFUSED, "scenebridge server")
	}}
	cs := connect(t, caller)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: "get_scene_info"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "refused connection")
	assert.Contains(t, text(t, res), "scenebridge serve")
}

func TestSendCommand(t *testing.T) {
	caller := &fakeCaller{reply: succeed(map[string]any{"deleted": "Cube"})}
	cs := connect(t, caller)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "send_command",
		Arguments: map[string]any{
			"type":   "delete_object",
			"params": map[string]any{"name": "Cube"},
		},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	cmd := caller.last()
	assert.Equal(t, "delete_object", cmd.Type)
	assert.Equal(t, "Cube", cmd.Params["name"])
}

func TestScreenshot(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	var path string
	caller := &fakeCaller{reply: func(cmd protocol.Command) (protocol.Response, error) {
		path = cmd.Params["filepath"].(string)
		if err := os.WriteFile(path, png, 0600); err != nil {
			return protocol.Response{}, err
		}
		return protocol.Success(map[string]any{"filepath": path, "width": 800, "height": 450}), nil
	}}
	cs := connect(t, caller)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_viewport_screenshot",
		Arguments: map[string]any{"max_size": 800},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)

	img, ok := res.Content[0].(*mcp.ImageContent)
	require.True(t, ok, "content is %T", res.Content[0])
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, png, img.Data)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "screenshot file is removed")
}

func TestPrompt(t *testing.T) {
	cs := connect(t, &fakeCaller{reply: succeed(nil)})

	res, err := cs.GetPrompt(context.Background(), &mcp.GetPromptParams{Name: strategyPrompt})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)

	tc, ok := res.Messages[0].Content.(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, tc.Text, "get_scene_info")
}

func TestToParams(t *testing.T) {
	params, err := toParams(DownloadInput{AssetID: "rocky_trail", AssetType: "textures"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"asset_id": "rocky_trail", "asset_type": "textures"}, params)

	params, err = toParams(NoInput{})
	require.NoError(t, err)
	assert.Empty(t, params)
}
