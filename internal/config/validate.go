package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate performs validation of the whole configuration
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d (expected 1)", c.Version)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("executor config: %w", err)
	}
	if err := c.Scripting.Validate(); err != nil {
		return fmt.Errorf("scripting config: %w", err)
	}
	if err := c.AssetLibrary.Validate(); err != nil {
		return fmt.Errorf("asset_library config: %w", err)
	}
	if err := c.GeneratedContent.Validate(); err != nil {
		return fmt.Errorf("generated_content config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if c.HTTP.Enabled && c.HTTP.Port == c.Server.Port && c.HTTP.Host == c.Server.Host {
		return fmt.Errorf("http config: port %d is already used by the command server", c.HTTP.Port)
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery config: %w", err)
	}
	if err := c.Journal.Validate(); err != nil {
		return fmt.Errorf("journal config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", s.Port)
	}
	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}
	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}
	if s.AcceptPoll < 1 {
		return fmt.Errorf("accept_poll must be at least 1 second, got %d", s.AcceptPoll)
	}
	if s.StopTimeout < 1 {
		return fmt.Errorf("stop_timeout must be at least 1 second, got %d", s.StopTimeout)
	}
	if s.MaxBufferBytes < 4096 {
		return fmt.Errorf("max_buffer_bytes must be at least 4096, got %d", s.MaxBufferBytes)
	}
	return nil
}

// Validate validates executor configuration
func (e *ExecutorConfig) Validate() error {
	if e.TickIntervalMs < 1 || e.TickIntervalMs > 1000 {
		return fmt.Errorf("tick_interval_ms must be between 1 and 1000, got %d", e.TickIntervalMs)
	}
	return nil
}

// Validate validates scripting configuration
func (s *ScriptingConfig) Validate() error {
	if s.Enabled && s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}
	return nil
}

// Validate validates asset library configuration
func (a *AssetLibraryConfig) Validate() error {
	if err := validateBaseURL(a.BaseURL); err != nil {
		return err
	}
	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}
	return nil
}

// Validate validates generated content configuration
func (g *GeneratedContentConfig) Validate() error {
	if err := validateBaseURL(g.BaseURL); err != nil {
		return err
	}
	if g.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", g.Timeout)
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}
		if h.Host == "" {
			return fmt.Errorf("http host cannot be empty when HTTP is enabled")
		}
	}
	return nil
}

// Validate validates discovery configuration
func (d *DiscoveryConfig) Validate() error {
	if d.Enabled && d.Instance == "" {
		return fmt.Errorf("instance cannot be empty when discovery is enabled")
	}
	return nil
}

// Validate validates journal configuration
func (j *JournalConfig) Validate() error {
	if j.MaxEntries < 0 {
		return fmt.Errorf("max_entries cannot be negative, got %d", j.MaxEntries)
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be an http(s) URL, got %q", raw)
	}
	return nil
}
