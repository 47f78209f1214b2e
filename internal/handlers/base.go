package handlers

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/router"
	"github.com/muurk/scenebridge/internal/scene"
)

var (
	origin   = []float64{0, 0, 0}
	unitSize = []float64{1, 1, 1}
)

type base struct {
	scene    *scene.Scene
	features router.FeatureSource
	tempDir  string
}

func (b *base) sceneInfo(p router.Params) (any, error) {
	if err := p.Expect(); err != nil {
		return nil, err
	}
	return b.scene.Info(), nil
}

func (b *base) objectInfo(p router.Params) (any, error) {
	if err := p.Expect("name"); err != nil {
		return nil, err
	}
	name, err := p.String("name")
	if err != nil {
		return nil, err
	}
	return b.scene.Describe(name)
}

func (b *base) createObject(p router.Params) (any, error) {
	if err := p.Expect("type", "name", "location", "rotation", "scale"); err != nil {
		return nil, err
	}
	kind, err := p.StringOr("type", "CUBE")
	if err != nil {
		return nil, err
	}
	name, err := p.StringOr("name", "")
	if err != nil {
		return nil, err
	}
	loc, rot, scale, err := transform(p, origin, origin, unitSize)
	if err != nil {
		return nil, err
	}

	obj, err := b.scene.CreatePrimitive(kind, scene.VecFrom(loc), scene.VecFrom(rot), scene.VecFrom(scale), name)
	if err != nil {
		return nil, err
	}
	logging.Debug("Object created", zap.String("name", obj.Name), zap.String("primitive", obj.Primitive))
	return map[string]any{"name": obj.Name, "type": obj.Type}, nil
}

func (b *base) modifyObject(p router.Params) (any, error) {
	if err := p.Expect("name", "location", "rotation", "scale"); err != nil {
		return nil, err
	}
	name, err := p.String("name")
	if err != nil {
		return nil, err
	}
	obj, err := b.scene.Object(name)
	if err != nil {
		return nil, err
	}
	loc, rot, scale, err := transform(p, obj.Location.Slice(), obj.Rotation.Slice(), obj.Scale.Slice())
	if err != nil {
		return nil, err
	}

	obj.Location = scene.VecFrom(loc)
	obj.Rotation = scene.VecFrom(rot)
	obj.Scale = scene.VecFrom(scale)
	return map[string]any{"name": obj.Name, "modified": true}, nil
}

// transform reads the optional location, rotation and scale vectors. All
// three are validated before any of them is used.
func transform(p router.Params, loc, rot, scale []float64) ([]float64, []float64, []float64, error) {
	loc, err := p.VectorOr("location", loc)
	if err != nil {
		return nil, nil, nil, err
	}
	rot, err = p.VectorOr("rotation", rot)
	if err != nil {
		return nil, nil, nil, err
	}
	scale, err = p.VectorOr("scale", scale)
	if err != nil {
		return nil, nil, nil, err
	}
	return loc, rot, scale, nil
}

func (b *base) deleteObject(p router.Params) (any, error) {
	if err := p.Expect("name"); err != nil {
		return nil, err
	}
	name, err := p.String("name")
	if err != nil {
		return nil, err
	}
	if err := b.scene.Delete(name); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": name}, nil
}

func (b *base) setMaterial(p router.Params) (any, error) {
	if err := p.Expect("object_name", "material_name", "color"); err != nil {
		return nil, err
	}
	objectName, err := p.String("object_name")
	if err != nil {
		return nil, err
	}
	materialName, err := p.String("material_name")
	if err != nil {
		return nil, err
	}
	color, err := p.Floats("color")
	if err != nil {
		return nil, err
	}
	if color != nil && len(color) != 3 && len(color) != 4 {
		return nil, fmt.Errorf("parameter 'color' must be a list of 3 or 4 numbers")
	}

	if _, err := b.scene.Object(objectName); err != nil {
		return nil, err
	}
	mat := b.scene.EnsureMaterial(materialName)
	if color != nil {
		mat.BaseColor = [4]float64{color[0], color[1], color[2], 1}
		if len(color) == 4 {
			mat.BaseColor[3] = color[3]
		}
	}
	if err := b.scene.AssignMaterial(objectName, materialName); err != nil {
		return nil, err
	}
	return map[string]any{"material_set": materialName}, nil
}

func (b *base) status(feature string) router.Handler {
	return func(p router.Params) (any, error) {
		if err := p.Expect(); err != nil {
			return nil, err
		}
		enabled := b.features != nil && b.features.FeatureEnabled(feature)
		return map[string]any{"enabled": enabled, "available": true}, nil
	}
}

func (b *base) screenshot(p router.Params) (any, error) {
	if err := p.Expect("max_size", "filepath", "format"); err != nil {
		return nil, err
	}
	maxSize, err := p.IntOr("max_size", scene.DefaultViewportSize)
	if err != nil {
		return nil, err
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("parameter 'max_size' must be positive")
	}
	if maxSize > scene.MaxViewportSize {
		return nil, fmt.Errorf("parameter 'max_size' must be at most %d", scene.MaxViewportSize)
	}
	format, err := p.StringOr("format", scene.FormatPNG)
	if err != nil {
		return nil, err
	}
	format, err = scene.NormalizeFormat(format)
	if err != nil {
		return nil, err
	}
	path, err := p.StringOr("filepath", "")
	if err != nil {
		return nil, err
	}
	if path == "" {
		ext := ".png"
		if format == scene.FormatJPEG {
			ext = ".jpg"
		}
		path = filepath.Join(b.tempDir, fmt.Sprintf("scenebridge_screenshot_%d%s", os.Getpid(), ext))
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create screenshot file: %w", err)
	}
	width, height, err := b.scene.RenderViewport(f, maxSize, format)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to capture viewport: %w", err)
	}

	return map[string]any{
		"filepath": path,
		"format":   format,
		"width":    width,
		"height":   height,
	}, nil
}
