package config

import (
	"go.uber.org/atomic"
)

// Feature names as used in the features section and by the router.
const (
	FeatureAssetLibrary     = "asset_library"
	FeatureGeneratedContent = "generated_content"
)

// Flags holds the live state of the optional features. It is read on every
// command lookup and written by the config watcher, so both sides are atomic.
type Flags struct {
	assetLibrary     atomic.Bool
	generatedContent atomic.Bool
}

// NewFlags creates Flags initialized from fc.
func NewFlags(fc FeaturesConfig) *Flags {
	f := &Flags{}
	f.Apply(fc)
	return f
}

// FeatureEnabled reports whether the named feature is on. Unknown names are
// always off.
func (f *Flags) FeatureEnabled(name string) bool {
	switch name {
	case FeatureAssetLibrary:
		return f.assetLibrary.Load()
	case FeatureGeneratedContent:
		return f.generatedContent.Load()
	default:
		return false
	}
}

// Apply replaces every flag with the values in fc and reports whether any
// of them changed.
func (f *Flags) Apply(fc FeaturesConfig) bool {
	changed := f.Snapshot() != fc
	f.assetLibrary.Store(fc.AssetLibrary)
	f.generatedContent.Store(fc.GeneratedContent)
	return changed
}

// Snapshot returns the current flag values.
func (f *Flags) Snapshot() FeaturesConfig {
	return FeaturesConfig{
		AssetLibrary:     f.assetLibrary.Load(),
		GeneratedContent: f.generatedContent.Load(),
	}
}

// Enabled returns the names of the features that are on.
func (f *Flags) Enabled() []string {
	var out []string
	if f.assetLibrary.Load() {
		out = append(out, FeatureAssetLibrary)
	}
	if f.generatedContent.Load() {
		out = append(out, FeatureGeneratedContent)
	}
	return out
}
