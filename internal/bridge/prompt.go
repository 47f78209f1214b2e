package bridge

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const strategyPrompt = "asset_creation_strategy"

const strategyText = `When building a scene, work in this order:

1. Call get_scene_info to see what is already there.
2. Check get_polyhaven_status. If the asset library is enabled, prefer it:
   - HDRIs for world lighting
   - textures for realistic materials
   - models for props and furniture
3. Check get_hyper3d_status. If generation is enabled, use create_rodin_job
   for single objects the library does not have, poll until done, then
   import_generated_asset.
4. Fall back to create_object and set_material for simple shapes.
5. Use execute_code only for what the other tools cannot express.

After every import, call get_object_info to confirm the object's size and
location, and move it with modify_object so nothing overlaps.`

func (b *Bridge) registerPrompts() {
	b.server.AddPrompt(&mcp.Prompt{
		Name:        strategyPrompt,
		Description: "Recommended order of tools for building a scene",
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: "Scene building strategy",
			Messages: []*mcp.PromptMessage{
				{
					Role:    "user",
					Content: &mcp.TextContent{Text: strategyText},
				},
			},
		}, nil
	})
}
