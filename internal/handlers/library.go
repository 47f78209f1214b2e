package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/muurk/scenebridge/internal/assets"
	"github.com/muurk/scenebridge/internal/router"
	"github.com/muurk/scenebridge/internal/scene"
)

type library struct {
	scene  *scene.Scene
	client *assets.Client
}

// done wraps an already computed result as an apply step.
func done(result any) router.Apply {
	return func() (any, error) { return result, nil }
}

func (l *library) categories(ctx context.Context, p router.Params) (router.Apply, error) {
	if err := p.Expect("asset_type"); err != nil {
		return nil, err
	}
	assetType, err := p.StringOr("asset_type", assets.TypeHDRI)
	if err != nil {
		return nil, err
	}
	cats, err := l.client.Categories(ctx, assetType)
	if err != nil {
		return nil, err
	}
	return done(map[string]any{"categories": cats, "asset_type": assetType}), nil
}

func (l *library) search(ctx context.Context, p router.Params) (router.Apply, error) {
	if err := p.Expect("asset_type", "categories"); err != nil {
		return nil, err
	}
	assetType, err := p.StringOr("asset_type", assets.TypeAll)
	if err != nil {
		return nil, err
	}
	categories, err := categoryFilter(p)
	if err != nil {
		return nil, err
	}
	res, err := l.client.Search(ctx, assetType, categories)
	if err != nil {
		return nil, err
	}
	return done(map[string]any{
		"assets":         res.Assets,
		"total_count":    res.TotalCount,
		"returned_count": res.ReturnedCount,
		"asset_type":     assetType,
	}), nil
}

// categoryFilter accepts categories as a comma separated string or a list.
func categoryFilter(p router.Params) (string, error) {
	if _, ok := p["categories"].([]any); ok {
		names, err := p.StringSlice("categories")
		if err != nil {
			return "", err
		}
		return strings.Join(names, ","), nil
	}
	if !p.Has("categories") {
		return "", nil
	}
	return p.String("categories")
}

func (l *library) download(ctx context.Context, p router.Params) (router.Apply, error) {
	if err := p.Expect("asset_id", "asset_type", "resolution", "file_format"); err != nil {
		return nil, err
	}
	id, err := p.String("asset_id")
	if err != nil {
		return nil, err
	}
	assetType, err := p.String("asset_type")
	if err != nil {
		return nil, err
	}
	resolution, err := p.StringOr("resolution", assets.DefaultResolution)
	if err != nil {
		return nil, err
	}
	format, err := p.StringOr("file_format", "")
	if err != nil {
		return nil, err
	}

	dl, err := l.client.Download(ctx, id, assetType, resolution, format)
	if err != nil {
		return nil, err
	}
	return func() (any, error) { return l.importDownload(dl) }, nil
}

// importDownload brings downloaded files into the scene. HDRIs light the
// world, textures become a material named after the asset, models become
// an object.
func (l *library) importDownload(dl *assets.Download) (any, error) {
	result := map[string]any{
		"success":     true,
		"asset_id":    dl.AssetID,
		"asset_type":  dl.AssetType,
		"resolution":  dl.Resolution,
		"file_format": dl.Format,
		"files":       dl.Files,
	}

	switch dl.AssetType {
	case assets.TypeHDRI:
		l.scene.SetWorldHDRI(dl.MainFile, 1)
		result["message"] = fmt.Sprintf("HDRI '%s' set as world environment", dl.AssetID)
		result["image"] = dl.MainFile
	case assets.TypeTexture:
		mat := l.scene.EnsureMaterial(dl.AssetID)
		for kind, path := range dl.Maps {
			mat.Maps[kind] = path
		}
		result["message"] = fmt.Sprintf("Texture '%s' imported as material '%s'", dl.AssetID, mat.Name)
		result["material"] = mat.Name
		result["maps"] = sortedKeys(mat.Maps)
	case assets.TypeModel:
		obj := l.scene.Import(dl.AssetID, dl.MainFile, scene.Vec3{})
		result["message"] = fmt.Sprintf("Model '%s' imported as '%s'", dl.AssetID, obj.Name)
		result["imported_objects"] = []string{obj.Name}
	default:
		return nil, fmt.Errorf("Unsupported asset type: %s", dl.AssetType)
	}
	return result, nil
}

func (l *library) setTexture(p router.Params) (any, error) {
	if err := p.Expect("object_name", "texture_id"); err != nil {
		return nil, err
	}
	objectName, err := p.String("object_name")
	if err != nil {
		return nil, err
	}
	textureID, err := p.String("texture_id")
	if err != nil {
		return nil, err
	}

	if _, err := l.scene.Object(objectName); err != nil {
		return nil, err
	}
	mat, ok := l.scene.Material(textureID)
	if !ok || len(mat.Maps) == 0 {
		return nil, fmt.Errorf("Texture '%s' has not been downloaded. Download it with download_polyhaven_asset first", textureID)
	}
	if err := l.scene.AssignMaterial(objectName, mat.Name); err != nil {
		return nil, err
	}

	return map[string]any{
		"success":     true,
		"object":      objectName,
		"texture_set": true,
		"material":    mat.Name,
		"maps":        sortedKeys(mat.Maps),
	}, nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
