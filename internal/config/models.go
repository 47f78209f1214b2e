package config

import "time"

// Config represents the entire configuration file.
type Config struct {
	Version          int                    `yaml:"version"`
	Server           ServerConfig           `yaml:"server"`
	Executor         ExecutorConfig         `yaml:"executor"`
	Features         FeaturesConfig         `yaml:"features"`
	Scripting        ScriptingConfig        `yaml:"scripting"`
	AssetLibrary     AssetLibraryConfig     `yaml:"asset_library"`
	GeneratedContent GeneratedContentConfig `yaml:"generated_content"`
	HTTP             HTTPConfig             `yaml:"http"`
	Discovery        DiscoveryConfig        `yaml:"discovery"`
	Journal          JournalConfig          `yaml:"journal"`
	Logging          LoggingConfig          `yaml:"logging"`
}

// ServerConfig holds the TCP listener settings. Durations are in seconds.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeout    int    `yaml:"read_timeout"`  // Idle time before a client is dropped
	WriteTimeout   int    `yaml:"write_timeout"` // Deadline for writing one response
	AcceptPoll     int    `yaml:"accept_poll"`   // How often the accept loop rechecks the running flag
	StopTimeout    int    `yaml:"stop_timeout"`  // How long Stop waits for the accept loop
	MaxBufferBytes int    `yaml:"max_buffer_bytes"`
}

// ExecutorConfig holds owner context settings.
type ExecutorConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`
}

// FeaturesConfig toggles the optional command groups.
type FeaturesConfig struct {
	AssetLibrary     bool `yaml:"asset_library"`
	GeneratedContent bool `yaml:"generated_content"`
}

// ScriptingConfig controls execute_code.
type ScriptingConfig struct {
	Enabled bool `yaml:"enabled"`
	Timeout int  `yaml:"timeout"` // Seconds before a running script is interrupted
}

// AssetLibraryConfig points at the public asset library API.
type AssetLibraryConfig struct {
	BaseURL     string `yaml:"base_url"`
	DownloadDir string `yaml:"download_dir,omitempty"` // Empty = system temp dir
	Timeout     int    `yaml:"timeout"`
}

// GeneratedContentConfig points at the 3D generation service.
type GeneratedContentConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key,omitempty"`
	DownloadDir string `yaml:"download_dir,omitempty"`
	Timeout     int    `yaml:"timeout"`
}

// HTTPConfig controls the side listener serving metrics, health and the
// WebSocket gateway.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// DiscoveryConfig controls mDNS advertisement.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// JournalConfig controls the command audit log.
type JournalConfig struct {
	Path       string `yaml:"path,omitempty"` // Empty = journal disabled
	MaxEntries int    `yaml:"max_entries"`    // Oldest entries are dropped past this (0 = unlimited)
}

// LoggingConfig holds the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host:           "localhost",
			Port:           9876,
			ReadTimeout:    15,
			WriteTimeout:   10,
			AcceptPoll:     1,
			StopTimeout:    1,
			MaxBufferBytes: 16 << 20,
		},
		Executor: ExecutorConfig{
			TickIntervalMs: 50,
		},
		Scripting: ScriptingConfig{
			Enabled: true,
			Timeout: 30,
		},
		AssetLibrary: AssetLibraryConfig{
			BaseURL: "https://api.polyhaven.com",
			Timeout: 30,
		},
		GeneratedContent: GeneratedContentConfig{
			BaseURL: "https://hyperhuman.deemos.com/api",
			Timeout: 60,
		},
		HTTP: HTTPConfig{
			Host: "localhost",
			Port: 9877,
		},
		Discovery: DiscoveryConfig{
			Instance: "scenebridge",
		},
		Journal: JournalConfig{
			MaxEntries: 10000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetReadTimeout returns the client idle timeout as a duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the response write deadline as a duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetAcceptPoll returns the accept loop poll period as a duration
func (s *ServerConfig) GetAcceptPoll() time.Duration {
	return time.Duration(s.AcceptPoll) * time.Second
}

// GetStopTimeout returns the stop wait as a duration
func (s *ServerConfig) GetStopTimeout() time.Duration {
	return time.Duration(s.StopTimeout) * time.Second
}

// GetTickInterval returns the executor polling period as a duration
func (e *ExecutorConfig) GetTickInterval() time.Duration {
	return time.Duration(e.TickIntervalMs) * time.Millisecond
}

// GetTimeout returns the script time limit as a duration
func (s *ScriptingConfig) GetTimeout() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetTimeout returns the HTTP client timeout as a duration
func (a *AssetLibraryConfig) GetTimeout() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetTimeout returns the HTTP client timeout as a duration
func (g *GeneratedContentConfig) GetTimeout() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}
