// Package config provides configuration loading for mcp-task-server.
//
// Configuration is layered: hardcoded defaults, an optional YAML file, then
// environment variable overrides (highest precedence).
package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// Config holds the complete mcp-task-server configuration.
type Config struct {
	Transport TransportConfig `koanf:"transport"`
	RateLimit RateLimitConfig `koanf:"rate-limit"`
	Async     AsyncConfig     `koanf:"async"`
	Audit     AuditConfig     `koanf:"audit"`
	Resource  ResourceConfig  `koanf:"resource"`
	Store     StoreConfig     `koanf:"store"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// TransportConfig controls the MCP transport mode and HTTP transport details.
type TransportConfig struct {
	Mode string    `koanf:"mode"` // "stdio" (default), "http", or "both"
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig controls the HTTP+SSE transport.
type HTTPConfig struct {
	Port              int            `koanf:"port"`
	CORSEnabled       bool           `koanf:"cors-enabled"`
	CORSAllowedOrigins []string      `koanf:"cors-allowed-origins"`
	SSE               SSEConfig      `koanf:"sse"`
	Security          SecurityConfig `koanf:"security"`
}

// SSEConfig controls heartbeat/timeout/connection behavior of the SSE stream.
type SSEConfig struct {
	HeartbeatIntervalSeconds  int `koanf:"heartbeat-interval-seconds"`
	ConnectionTimeoutMinutes  int `koanf:"connection-timeout-minutes"`
	MaxConnections            int `koanf:"max-connections"`
}

// SecurityConfig holds the API keys accepted by the HTTP transport and the
// development override that permits disabling the auth gate.
type SecurityConfig struct {
	APIKeys    []APIKeyEntry `koanf:"api-keys"`
	DisableAuth bool         `koanf:"disable-auth"`
}

// APIKeyEntry names one accepted API key.
type APIKeyEntry struct {
	Name        string `koanf:"name"`
	Key         Secret `koanf:"key"`
	Description string `koanf:"description"`
}

// RateLimitConfig holds the default token bucket plus per-tool overrides.
type RateLimitConfig struct {
	Capacity      int                      `koanf:"capacity"`
	Tokens        int                      `koanf:"tokens"`
	RefillMinutes float64                  `koanf:"refill-minutes"`
	Tools         map[string]ToolRateLimit `koanf:"tools"`
}

// ToolRateLimit overrides the default bucket for a single tool name.
type ToolRateLimit struct {
	Capacity      int     `koanf:"capacity"`
	Tokens        int     `koanf:"tokens"`
	RefillMinutes float64 `koanf:"refill-minutes"`
}

// AsyncConfig configures the bounded worker pool backing the batch job engine.
type AsyncConfig struct {
	CorePoolSize      int `koanf:"corePoolSize"`
	MaxPoolSize       int `koanf:"maxPoolSize"`
	QueueCapacity     int `koanf:"queueCapacity"`
	TerminationSeconds int `koanf:"terminationSeconds"`
}

// AuditConfig controls audit-event emission and sanitization.
type AuditConfig struct {
	Enabled               bool     `koanf:"enabled"`
	EnabledCategories     []string `koanf:"enabledCategories"`
	SensitiveDataMaxLength int     `koanf:"sensitiveDataMaxLength"`
	SensitiveDataStrategy  string  `koanf:"sensitiveDataStrategy"` // "redact" (default) or "drop"
	LogPath                string  `koanf:"log-path"`
}

// ResourceConfig controls the resource provider.
type ResourceConfig struct {
	MaxTasks int `koanf:"max-tasks"`
}

// StoreConfig controls the bundled SQLite Task Store adapter.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// TelemetryConfig controls the OpenTelemetry tracer/meter providers.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service-name"`
	Endpoint    string `koanf:"endpoint"`
	Protocol    string `koanf:"protocol"` // "grpc" or "http/protobuf"
	Insecure    bool   `koanf:"insecure"`
}

// Validate checks the configuration for internal consistency and the
// security invariants the HTTP transport must satisfy before it starts.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http", "both":
	default:
		return fmt.Errorf("invalid transport mode: %q (must be stdio, http, or both)", c.Transport.Mode)
	}

	if c.Transport.Mode == "http" || c.Transport.Mode == "both" {
		if c.Transport.HTTP.Port < 1 || c.Transport.HTTP.Port > 65535 {
			return fmt.Errorf("invalid http port: %d (must be 1-65535)", c.Transport.HTTP.Port)
		}
		if len(c.Transport.HTTP.Security.APIKeys) == 0 && !c.Transport.HTTP.Security.DisableAuth {
			return errors.New("http transport requires at least one api key, or transport.http.security.disable-auth set explicitly")
		}
		if c.Transport.HTTP.SSE.HeartbeatIntervalSeconds <= 0 {
			return errors.New("transport.http.sse.heartbeat-interval-seconds must be positive")
		}
		if c.Transport.HTTP.SSE.ConnectionTimeoutMinutes <= 0 {
			return errors.New("transport.http.sse.connection-timeout-minutes must be positive")
		}
		if c.Transport.HTTP.SSE.MaxConnections <= 0 {
			return errors.New("transport.http.sse.max-connections must be positive")
		}
	}

	if c.RateLimit.Capacity <= 0 || c.RateLimit.Tokens <= 0 || c.RateLimit.RefillMinutes <= 0 {
		return errors.New("rate-limit defaults must all be positive")
	}
	for name, override := range c.RateLimit.Tools {
		if override.Capacity <= 0 || override.Tokens <= 0 || override.RefillMinutes <= 0 {
			return fmt.Errorf("rate-limit override for tool %q must have positive capacity/tokens/refill-minutes", name)
		}
	}

	if c.Async.CorePoolSize <= 0 || c.Async.MaxPoolSize <= 0 || c.Async.QueueCapacity <= 0 {
		return errors.New("async.corePoolSize, maxPoolSize, and queueCapacity must all be positive")
	}
	if c.Async.MaxPoolSize < c.Async.CorePoolSize {
		return errors.New("async.maxPoolSize must be >= async.corePoolSize")
	}
	if c.Async.TerminationSeconds <= 0 {
		return errors.New("async.terminationSeconds must be positive")
	}

	if c.Resource.MaxTasks <= 0 {
		return errors.New("resource.max-tasks must be positive")
	}

	if c.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if err := validatePath(c.Store.Path); err != nil {
		return fmt.Errorf("invalid store.path: %w", err)
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("telemetry.service-name required when telemetry is enabled")
	}
	if c.Telemetry.Endpoint != "" {
		if err := validateHostname(stripSchemeAndPort(c.Telemetry.Endpoint)); err != nil {
			return fmt.Errorf("invalid telemetry.endpoint: %w", err)
		}
	}

	return nil
}

// validateHostname checks that a hostname is plausible and free of shell
// metacharacters before it is handed to any dialer.
func validateHostname(host string) error {
	if host == "" {
		return nil
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format: %s", host)
	}
	invalidChars := []string{";", "\n", "\r", "$", "`", "|", "&", "<", ">", "(", ")"}
	for _, char := range invalidChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("invalid hostname: contains forbidden character %q", char)
		}
	}
	return nil
}

func stripSchemeAndPort(endpoint string) string {
	s := endpoint
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	return s
}

// validatePath rejects traversal sequences in configured filesystem paths.
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}
	return nil
}
