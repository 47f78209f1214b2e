package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
)

// NoInput is the input of tools that take no arguments.
type NoInput struct{}

// ObjectNameInput names one object.
type ObjectNameInput struct {
	Name string `json:"name" jsonschema:"Name of the object"`
}

// CreateObjectInput defines input for create_object.
type CreateObjectInput struct {
	Type     string    `json:"type,omitempty" jsonschema:"Primitive type: CUBE (default), SPHERE, CYLINDER or PLANE"`
	Name     string    `json:"name,omitempty" jsonschema:"Object name (a numeric suffix is added when taken)"`
	Location []float64 `json:"location,omitempty" jsonschema:"[x, y, z] location"`
	Rotation []float64 `json:"rotation,omitempty" jsonschema:"[x, y, z] rotation in radians"`
	Scale    []float64 `json:"scale,omitempty" jsonschema:"[x, y, z] scale"`
}

// ModifyObjectInput defines input for modify_object.
type ModifyObjectInput struct {
	Name     string    `json:"name" jsonschema:"Name of the object to modify"`
	Location []float64 `json:"location,omitempty" jsonschema:"New [x, y, z] location"`
	Rotation []float64 `json:"rotation,omitempty" jsonschema:"New [x, y, z] rotation in radians"`
	Scale    []float64 `json:"scale,omitempty" jsonschema:"New [x, y, z] scale"`
}

// SetMaterialInput defines input for set_material.
type SetMaterialInput struct {
	ObjectName   string    `json:"object_name" jsonschema:"Object to assign the material to"`
	MaterialName string    `json:"material_name" jsonschema:"Material name (created when missing)"`
	Color        []float64 `json:"color,omitempty" jsonschema:"Base color as [r, g, b] or [r, g, b, a] in 0..1"`
}

// ExecuteCodeInput defines input for execute_code.
type ExecuteCodeInput struct {
	Code string `json:"code" jsonschema:"JavaScript to run against the scene object"`
}

// ScreenshotInput defines input for get_viewport_screenshot.
type ScreenshotInput struct {
	MaxSize int    `json:"max_size,omitempty" jsonschema:"Largest dimension in pixels (default 800)"`
	Format  string `json:"format,omitempty" jsonschema:"png (default) or jpg"`
}

// CategoriesInput defines input for get_polyhaven_categories.
type CategoriesInput struct {
	AssetType string `json:"asset_type,omitempty" jsonschema:"hdris (default), textures, models or all"`
}

// SearchInput defines input for search_polyhaven_assets.
type SearchInput struct {
	AssetType  string `json:"asset_type,omitempty" jsonschema:"hdris, textures, models or all (default)"`
	Categories string `json:"categories,omitempty" jsonschema:"Comma separated category filter"`
}

// DownloadInput defines input for download_polyhaven_asset.
type DownloadInput struct {
	AssetID    string `json:"asset_id" jsonschema:"Asset id from search_polyhaven_assets"`
	AssetType  string `json:"asset_type" jsonschema:"hdris, textures or models"`
	Resolution string `json:"resolution,omitempty" jsonschema:"1k (default), 2k, 4k..."`
	FileFormat string `json:"file_format,omitempty" jsonschema:"hdr/exr for HDRIs, jpg/png for textures, gltf/fbx for models"`
}

// SetTextureInput defines input for set_texture.
type SetTextureInput struct {
	ObjectName string `json:"object_name" jsonschema:"Object to texture"`
	TextureID  string `json:"texture_id" jsonschema:"Id of a texture already downloaded"`
}

// CreateJobInput defines input for create_rodin_job.
type CreateJobInput struct {
	TextPrompt    string    `json:"text_prompt,omitempty" jsonschema:"Short English description of the model"`
	Images        []string  `json:"images,omitempty" jsonschema:"Reference image paths"`
	Tier          string    `json:"tier,omitempty" jsonschema:"Generation tier (default Sketch)"`
	BBoxCondition []float64 `json:"bbox_condition,omitempty" jsonschema:"[length, width, height] ratio of the model"`
}

// PollJobInput defines input for poll_rodin_job_status.
type PollJobInput struct {
	SubscriptionKey string `json:"subscription_key" jsonschema:"Key returned by create_rodin_job"`
}

// ImportAssetInput defines input for import_generated_asset.
type ImportAssetInput struct {
	Name     string `json:"name" jsonschema:"Name for the imported object"`
	TaskUUID string `json:"task_uuid" jsonschema:"Task uuid returned by create_rodin_job"`
}

// SendCommandInput defines input for send_command.
type SendCommandInput struct {
	Type   string         `json:"type" jsonschema:"Command type"`
	Params map[string]any `json:"params,omitempty" jsonschema:"Command parameters"`
}

// forward registers a tool that sends its input as the params of cmdType.
func forward[In any](b *Bridge, cmdType, description string) {
	mcp.AddTool(b.server, &mcp.Tool{
		Name:        cmdType,
		Description: description,
	}, func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		params, err := toParams(in)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil, nil
		}
		return b.call(ctx, cmdType, params), nil, nil
	})
}

func (b *Bridge) registerTools() {
	// Scene
	forward[NoInput](b, "get_scene_info",
		"Get the scene name, frame range and every object with its transform.")
	forward[ObjectNameInput](b, "get_object_info",
		"Get details of one object: transform, visibility, mesh counts and materials.")
	forward[CreateObjectInput](b, "create_object",
		`Create a primitive object.
Example: create_object {type: "SPHERE", name: "Ball", location: [0, 0, 1]}`)
	forward[ModifyObjectInput](b, "modify_object",
		"Change the location, rotation or scale of an object. Omitted fields are kept.")
	forward[ObjectNameInput](b, "delete_object",
		"Delete an object by name.")
	forward[SetMaterialInput](b, "set_material",
		`Assign a material to an object, creating it if needed.
Example: set_material {object_name: "Cube", material_name: "Red", color: [1, 0, 0]}`)
	forward[ExecuteCodeInput](b, "execute_code",
		`Run JavaScript with full access to the scene. Output of print and
console.log is returned. Use small steps; long scripts are interrupted.`)

	mcp.AddTool(b.server, &mcp.Tool{
		Name:        "get_viewport_screenshot",
		Description: "Capture the viewport and return it as an image.",
	}, b.screenshot)

	// Feature status
	forward[NoInput](b, "get_polyhaven_status",
		"Report whether the Poly Haven asset library is enabled on the server.")
	forward[NoInput](b, "get_hyper3d_status",
		"Report whether Hyper3D Rodin model generation is enabled on the server.")

	// Asset library
	forward[CategoriesInput](b, "get_polyhaven_categories",
		"List Poly Haven categories for an asset type with asset counts.")
	forward[SearchInput](b, "search_polyhaven_assets",
		`Search Poly Haven assets, most downloaded first.
Example: search_polyhaven_assets {asset_type: "textures", categories: "wood"}`)
	forward[DownloadInput](b, "download_polyhaven_asset",
		`Download a Poly Haven asset and import it. HDRIs become the world
lighting, textures become a material, models are added to the scene.`)
	forward[SetTextureInput](b, "set_texture",
		"Apply a downloaded Poly Haven texture to an object.")

	// Generated models
	forward[CreateJobInput](b, "create_rodin_job",
		`Start a Hyper3D Rodin generation job from a text prompt or images.
Poll with poll_rodin_job_status, then import with import_generated_asset.`)
	forward[PollJobInput](b, "poll_rodin_job_status",
		"Check a generation job. Done is true once every sub-job has finished.")
	forward[ImportAssetInput](b, "import_generated_asset",
		"Download a finished generation task and import the model into the scene.")

	mcp.AddTool(b.server, &mcp.Tool{
		Name: "send_command",
		Description: `Send any command type with raw params.
Example: send_command {type: "get_object_info", params: {name: "Cube"}}`,
	}, b.sendCommand)
}

func (b *Bridge) sendCommand(ctx context.Context, req *mcp.CallToolRequest, in SendCommandInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Type) == "" {
		return errorResult("type is required"), nil, nil
	}
	return b.call(ctx, in.Type, in.Params), nil, nil
}

// screenshot asks the server to write the capture to a temp file, then
// returns the file's bytes as image content and removes it.
func (b *Bridge) screenshot(ctx context.Context, req *mcp.CallToolRequest, in ScreenshotInput) (*mcp.CallToolResult, any, error) {
	ext, mime := ".png", "image/png"
	if f := strings.ToLower(in.Format); f == "jpg" || f == "jpeg" {
		ext, mime = ".jpg", "image/jpeg"
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("scenebridge_mcp_screenshot_%d%s", os.Getpid(), ext))

	params, err := toParams(in)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil, nil
	}
	params["filepath"] = path

	resp, err := b.send(ctx, "get_viewport_screenshot", params)
	if err != nil {
		return transportError(err), nil, nil
	}
	if !resp.OK() {
		return errorResult(resp.Message), nil, nil
	}
	if result, ok := resp.Result.(map[string]any); ok {
		if p, ok := result["filepath"].(string); ok && p != "" {
			path = p
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errorResult(fmt.Sprintf("Screenshot file not readable: %v", err)), nil, nil
	}
	if err := os.Remove(path); err != nil {
		logging.Debug("Could not remove screenshot file", zap.String("path", path), zap.Error(err))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.ImageContent{Data: data, MIMEType: mime},
		},
	}, nil, nil
}
