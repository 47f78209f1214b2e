// Package config provides the scenebridge configuration file.
//
// The file is YAML and follows OS-specific conventions for its location:
//   - Linux: $XDG_CONFIG_HOME/scenebridge/config.yaml or $HOME/.config/scenebridge/config.yaml
//   - macOS: $HOME/.config/scenebridge/config.yaml
//   - Windows: %LOCALAPPDATA%\scenebridge\config.yaml
//
// A missing file is not an error; Load returns Default(). Values present in
// the file override the defaults field by field.
//
// # Live Reload
//
// Watch re-reads the file whenever it changes. The server applies the
// features section to its Flags and logging.level to the logger without a
// restart. Other sections are read once at startup.
//
// # Security
//
// generated_content.api_key is stored in plain text. The file is written with
// 0600 permissions inside a 0700 directory.
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	flags := config.NewFlags(cfg.Features)
//	w, err := config.Watch("", func(next *config.Config) {
//	    flags.Apply(next.Features)
//	    logging.SetLevel(next.Logging.Level)
//	})
package config
