// Package assets is a client for the Poly Haven public asset API.
//
// It lists categories, searches assets, and downloads HDRIs, texture sets
// and models to a local directory so they can be imported into the scene.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/remote"
)

const (
	// DefaultBaseURL is the public Poly Haven API
	DefaultBaseURL = "https://api.polyhaven.com"

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second

	// DefaultResolution is used when a download does not name one
	DefaultResolution = "1k"

	// SearchLimit caps the number of assets returned by Search
	SearchLimit = 20

	service = "asset library"
)

// Asset types understood by the API.
const (
	TypeHDRI     = "hdris"
	TypeTexture  = "textures"
	TypeModel    = "models"
	TypeAll      = "all"
	userAgent    = "scenebridge"
	maxErrorBody = 4 << 10
)

// ValidType reports whether t is an accepted asset type. all is accepted
// only when allowAll is set.
func ValidType(t string, allowAll bool) error {
	switch t {
	case TypeHDRI, TypeTexture, TypeModel:
		return nil
	case TypeAll:
		if allowAll {
			return nil
		}
	}
	if allowAll {
		return fmt.Errorf("Invalid asset type: %s. Must be one of: hdris, textures, models, all", t)
	}
	return fmt.Errorf("Invalid asset type: %s. Must be one of: hdris, textures, models", t)
}

// Client talks to the asset API
type Client struct {
	// BaseURL is the API root (default: DefaultBaseURL)
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// DownloadDir is where downloaded files are written (empty = temp dir)
	DownloadDir string
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// Asset is one search hit.
type Asset struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Categories    []string `json:"categories"`
	Tags          []string `json:"tags,omitempty"`
	DownloadCount int      `json:"download_count"`
	Authors       []string `json:"authors,omitempty"`
}

// SearchResult is the outcome of Search.
type SearchResult struct {
	Assets        []Asset `json:"assets"`
	TotalCount    int     `json:"total_count"`
	ReturnedCount int     `json:"returned_count"`
}

// wireAsset is the shape of one entry in the /assets response.
type wireAsset struct {
	Name          string         `json:"name"`
	Type          int            `json:"type"`
	Categories    []string       `json:"categories"`
	Tags          []string       `json:"tags"`
	DownloadCount int            `json:"download_count"`
	Authors       map[string]any `json:"authors"`
}

var typeNames = map[int]string{0: TypeHDRI, 1: TypeTexture, 2: TypeModel}

// Categories returns category names and asset counts for assetType.
func (c *Client) Categories(ctx context.Context, assetType string) (map[string]int, error) {
	if err := ValidType(assetType, true); err != nil {
		return nil, err
	}
	var out map[string]int
	if err := c.getJSON(ctx, "/categories/"+url.PathEscape(assetType), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Search lists assets of assetType, optionally filtered by a comma separated
// category list. Results are ordered by popularity and capped at SearchLimit.
func (c *Client) Search(ctx context.Context, assetType, categories string) (*SearchResult, error) {
	if err := ValidType(assetType, true); err != nil {
		return nil, err
	}

	q := url.Values{}
	if assetType != TypeAll {
		q.Set("t", assetType)
	}
	if categories != "" {
		q.Set("c", categories)
	}

	var raw map[string]wireAsset
	if err := c.getJSON(ctx, "/assets", q, &raw); err != nil {
		return nil, err
	}

	assets := make([]Asset, 0, len(raw))
	for id, a := range raw {
		authors := make([]string, 0, len(a.Authors))
		for name := range a.Authors {
			authors = append(authors, name)
		}
		sort.Strings(authors)
		assets = append(assets, Asset{
			ID:            id,
			Name:          a.Name,
			Type:          typeNames[a.Type],
			Categories:    a.Categories,
			Tags:          a.Tags,
			DownloadCount: a.DownloadCount,
			Authors:       authors,
		})
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].DownloadCount != assets[j].DownloadCount {
			return assets[i].DownloadCount > assets[j].DownloadCount
		}
		return assets[i].ID < assets[j].ID
	})

	result := &SearchResult{TotalCount: len(assets)}
	if len(assets) > SearchLimit {
		assets = assets[:SearchLimit]
	}
	result.Assets = assets
	result.ReturnedCount = len(assets)
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, p string, q url.Values, out any) error {
	u := c.BaseURL + p
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return remote.NewNetworkError(service, "failed to create request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	logging.Debug("Asset library request", zap.String("url", u))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return remote.NewNetworkError(service, "asset library unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return remote.NewHTTPError(service, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return remote.NewParseError(service, "failed to decode response", err)
	}
	return nil
}

func (c *Client) downloadFile(ctx context.Context, src, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return 0, remote.NewNetworkError(service, "failed to create download request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, remote.NewNetworkError(service, "download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, remote.NewHTTPError(service, resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("failed to create download directory: %w", err)
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, remote.NewNetworkError(service, "download interrupted", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to save %s: %w", dest, err)
	}
	return n, nil
}

func (c *Client) assetDir(id string) string {
	base := c.DownloadDir
	if base == "" {
		base = filepath.Join(os.TempDir(), "scenebridge-assets")
	}
	return filepath.Join(base, id)
}

// fileName returns the last path element of a download URL.
func fileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return path.Base(rawURL)
	}
	return path.Base(u.Path)
}
