package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/remote"
)

// Default file formats per asset type.
var defaultFormats = map[string]string{
	TypeHDRI:    "hdr",
	TypeTexture: "jpg",
	TypeModel:   "gltf",
}

// Keys in a texture's file listing that are not image maps.
var nonMapKeys = map[string]bool{
	"blend": true,
	"gltf":  true,
	"mtlx":  true,
}

type fileRef struct {
	URL     string             `json:"url"`
	Size    int64              `json:"size"`
	MD5     string             `json:"md5"`
	Include map[string]fileRef `json:"include,omitempty"`
}

// formats maps a file format to a file; resolutions maps a resolution to
// the formats available at it.
type (
	formats     map[string]fileRef
	resolutions map[string]formats
)

// Download describes files fetched for one asset.
type Download struct {
	AssetID    string            `json:"asset_id"`
	AssetType  string            `json:"asset_type"`
	Resolution string            `json:"resolution"`
	Format     string            `json:"file_format"`
	Dir        string            `json:"directory"`
	MainFile   string            `json:"main_file,omitempty"`
	Maps       map[string]string `json:"maps,omitempty"`
	Files      []string          `json:"files"`
	Bytes      int64             `json:"bytes"`
}

// Download fetches an asset at the given resolution and format. An empty
// resolution or format selects the default for the asset type.
func (c *Client) Download(ctx context.Context, id, assetType, resolution, format string) (*Download, error) {
	if id == "" {
		return nil, errors.New("asset id cannot be empty")
	}
	if err := ValidType(assetType, false); err != nil {
		return nil, err
	}
	if resolution == "" {
		resolution = DefaultResolution
	}
	if format == "" {
		format = defaultFormats[assetType]
	}

	var files map[string]json.RawMessage
	if err := c.getJSON(ctx, "/files/"+url.PathEscape(id), nil, &files); err != nil {
		var re *remote.Error
		if errors.As(err, &re) && re.Type == remote.ErrTypeNotFound {
			return nil, fmt.Errorf("Asset '%s' not found", id)
		}
		return nil, err
	}

	d := &Download{
		AssetID:    id,
		AssetType:  assetType,
		Resolution: resolution,
		Format:     format,
		Dir:        c.assetDir(id),
	}

	var err error
	switch assetType {
	case TypeHDRI:
		err = c.downloadHDRI(ctx, d, files)
	case TypeTexture:
		err = c.downloadTexture(ctx, d, files)
	case TypeModel:
		err = c.downloadModel(ctx, d, files)
	}
	if err != nil {
		return nil, err
	}

	logging.Info("Downloaded asset",
		zap.String("asset_id", id),
		zap.String("asset_type", assetType),
		zap.String("resolution", resolution),
		zap.Int("files", len(d.Files)),
		zap.Int64("bytes", d.Bytes),
	)
	return d, nil
}

func (c *Client) fetch(ctx context.Context, d *Download, ref fileRef, rel string) (string, error) {
	dest := filepath.Join(d.Dir, filepath.FromSlash(rel))
	if !strings.HasPrefix(dest, filepath.Clean(d.Dir)+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing to write outside %s: %s", d.Dir, rel)
	}
	n, err := c.downloadFile(ctx, ref.URL, dest)
	if err != nil {
		return "", err
	}
	d.Files = append(d.Files, dest)
	d.Bytes += n
	return dest, nil
}

func pick(res resolutions, d *Download) (fileRef, error) {
	byFormat, ok := res[d.Resolution]
	if !ok {
		return fileRef{}, fmt.Errorf("Resolution '%s' not available for asset '%s' (available: %s)",
			d.Resolution, d.AssetID, strings.Join(keys(res), ", "))
	}
	ref, ok := byFormat[d.Format]
	if !ok {
		return fileRef{}, fmt.Errorf("Format '%s' not available for asset '%s' at %s (available: %s)",
			d.Format, d.AssetID, d.Resolution, strings.Join(keys(byFormat), ", "))
	}
	return ref, nil
}

func (c *Client) downloadHDRI(ctx context.Context, d *Download, files map[string]json.RawMessage) error {
	var res resolutions
	if err := json.Unmarshal(files["hdri"], &res); err != nil || res == nil {
		return remote.NewParseError(service, fmt.Sprintf("asset '%s' has no HDRI files", d.AssetID), err)
	}
	ref, err := pick(res, d)
	if err != nil {
		return err
	}
	main, err := c.fetch(ctx, d, ref, fileName(ref.URL))
	if err != nil {
		return err
	}
	d.MainFile = main
	return nil
}

func (c *Client) downloadTexture(ctx context.Context, d *Download, files map[string]json.RawMessage) error {
	d.Maps = make(map[string]string)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if nonMapKeys[strings.ToLower(name)] {
			continue
		}
		var res resolutions
		if err := json.Unmarshal(files[name], &res); err != nil {
			continue
		}
		byFormat, ok := res[d.Resolution]
		if !ok {
			continue
		}
		ref, ok := byFormat[d.Format]
		if !ok {
			continue
		}
		dest, err := c.fetch(ctx, d, ref, fileName(ref.URL))
		if err != nil {
			return err
		}
		d.Maps[strings.ToLower(name)] = dest
	}

	if len(d.Maps) == 0 {
		return fmt.Errorf("No texture maps available for asset '%s' at %s %s", d.AssetID, d.Resolution, d.Format)
	}
	return nil
}

func (c *Client) downloadModel(ctx context.Context, d *Download, files map[string]json.RawMessage) error {
	raw, ok := files[d.Format]
	if !ok {
		return fmt.Errorf("Format '%s' not available for asset '%s' (available: %s)",
			d.Format, d.AssetID, strings.Join(rawKeys(files), ", "))
	}
	var res resolutions
	if err := json.Unmarshal(raw, &res); err != nil {
		return remote.NewParseError(service, fmt.Sprintf("asset '%s' has an unexpected %s listing", d.AssetID, d.Format), err)
	}
	ref, err := pick(res, d)
	if err != nil {
		return err
	}

	main, err := c.fetch(ctx, d, ref, fileName(ref.URL))
	if err != nil {
		return err
	}
	d.MainFile = main

	includes := make([]string, 0, len(ref.Include))
	for rel := range ref.Include {
		includes = append(includes, rel)
	}
	sort.Strings(includes)
	for _, rel := range includes {
		if _, err := c.fetch(ctx, d, ref.Include[rel], rel); err != nil {
			return err
		}
	}
	return nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func rawKeys(m map[string]json.RawMessage) []string {
	return keys(m)
}
