// Package handlers implements the commands served by scenebridge.
//
// Every handler mutates the scene only from the owner context. Commands that
// talk to a remote service do their network I/O in a router prepare stage and
// hand the owner a short apply step.
package handlers

import (
	"os"

	"go.uber.org/multierr"

	"github.com/muurk/scenebridge/internal/assets"
	"github.com/muurk/scenebridge/internal/rodin"
	"github.com/muurk/scenebridge/internal/router"
	"github.com/muurk/scenebridge/internal/scene"
)

// Deps holds the collaborators the handlers need.
type Deps struct {
	Scene     *scene.Scene
	Features  router.FeatureSource
	Assets    *assets.Client
	Rodin     *rodin.Client
	Scripting *Scripting

	// TempDir receives viewport captures when no filepath is given
	// (default: os.TempDir()).
	TempDir string
}

// RegisterAll registers the base command set and both optional subsets.
func RegisterAll(r *router.Router, d Deps) error {
	if d.Scene == nil {
		d.Scene = scene.New()
	}
	if d.Assets == nil {
		d.Assets = assets.NewClient("")
	}
	if d.Rodin == nil {
		d.Rodin = rodin.NewClient("", "")
	}
	if d.Scripting == nil {
		d.Scripting = NewScripting(true, DefaultScriptTimeout)
	}
	if d.TempDir == "" {
		d.TempDir = os.TempDir()
	}

	return multierr.Combine(
		registerBase(r, d),
		registerLibrary(r, d),
		registerGenerated(r, d),
	)
}

func registerBase(r *router.Router, d Deps) error {
	b := &base{scene: d.Scene, features: d.Features, tempDir: d.TempDir}
	return multierr.Combine(
		r.Register("get_scene_info", b.sceneInfo),
		r.Register("get_object_info", b.objectInfo),
		r.Register("create_object", b.createObject),
		r.Register("modify_object", b.modifyObject),
		r.Register("delete_object", b.deleteObject),
		r.Register("execute_code", d.Scripting.handler(d.Scene)),
		r.Register("set_material", b.setMaterial),
		r.Register("get_polyhaven_status", b.status(router.FeatureAssetLibrary)),
		r.Register("get_hyper3d_status", b.status(router.FeatureGeneratedContent)),
		r.Register("get_viewport_screenshot", b.screenshot),
	)
}

func registerLibrary(r *router.Router, d Deps) error {
	l := &library{scene: d.Scene, client: d.Assets}
	const f = router.FeatureAssetLibrary
	return multierr.Combine(
		r.RegisterPrepared(f, "get_polyhaven_categories", l.categories),
		r.RegisterPrepared(f, "search_polyhaven_assets", l.search),
		r.RegisterPrepared(f, "download_polyhaven_asset", l.download),
		r.RegisterGated(f, "set_texture", l.setTexture),

		r.RegisterPrepared(f, "get_asset_categories", l.categories),
		r.RegisterPrepared(f, "search_assets", l.search),
		r.RegisterPrepared(f, "download_asset", l.download),
	)
}

func registerGenerated(r *router.Router, d Deps) error {
	g := &generated{scene: d.Scene, client: d.Rodin}
	const f = router.FeatureGeneratedContent
	return multierr.Combine(
		r.RegisterPrepared(f, "create_rodin_job", g.createJob),
		r.RegisterPrepared(f, "poll_rodin_job_status", g.pollStatus),
		r.RegisterPrepared(f, "import_generated_asset", g.importAsset),
	)
}
