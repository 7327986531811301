package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// LoadWithFile loads configuration from an optional YAML file, then applies
// environment variable overrides, then defaults and validation.
//
// Precedence (highest to lowest):
//  1. Environment variables (MCP_TRANSPORT, MCP_HTTP_PORT, ...)
//  2. YAML config file (MCP_CONFIG_FILE or ~/.config/mcp-task-server/config.yaml)
//  3. Hardcoded defaults
//
// The config file, if present, must live under an allowed directory and
// carry 0600/0400 permissions; both are enforced before the file is parsed.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = os.Getenv("MCP_CONFIG_FILE")
	}
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "mcp-task-server", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("MCP_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	applyDefaults(&cfg)
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyLegacyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envTransform maps MCP_TRANSPORT_MODE -> transport.mode,
// MCP_HTTP_PORT -> http.port (caller dot-joins with the MCP_ prefix already
// stripped), following the same first-underscore-is-section strategy used
// throughout the rest of the config tree.
func envTransform(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// applyLegacyEnv binds the handful of top-level environment variables named
// explicitly in the external interface contract (MCP_TRANSPORT,
// MCP_HTTP_PORT, MCP_API_KEY) which don't follow the section_field pattern
// envTransform expects.
func applyLegacyEnv(cfg *Config) {
	if v := os.Getenv("MCP_TRANSPORT"); v != "" {
		cfg.Transport.Mode = v
	}
	if v := os.Getenv("MCP_HTTP_PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			cfg.Transport.HTTP.Port = port
		}
	}
	if v := os.Getenv("MCP_API_KEY"); v != "" {
		cfg.Transport.HTTP.Security.APIKeys = append(cfg.Transport.HTTP.Security.APIKeys, APIKeyEntry{
			Name: "default",
			Key:  Secret(v),
		})
	}
	if os.Getenv("MCP_DEV_DISABLE_AUTH") == "1" || strings.EqualFold(os.Getenv("MCP_DEV_DISABLE_AUTH"), "true") {
		cfg.Transport.HTTP.Security.DisableAuth = true
	}
	if v := os.Getenv("MCP_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("MCP_AUDIT_LOG_PATH"); v != "" {
		cfg.Audit.LogPath = v
	}
	if os.Getenv("MCP_OTEL_ENABLED") == "1" || strings.EqualFold(os.Getenv("MCP_OTEL_ENABLED"), "true") {
		cfg.Telemetry.Enabled = true
	}
	if v := os.Getenv("MCP_OTEL_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
	}
}

func parsePort(s string) (int, error) {
	var port int
	_, err := fmt.Sscanf(s, "%d", &port)
	return port, err
}

// EnsureConfigDir creates the mcp-task-server config directory if absent,
// with owner-only permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "mcp-task-server")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks that path resolves into an allowed directory,
// evaluating symlinks first so a link cannot be used to escape the allow-list.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	allowedDirs := []string{
		filepath.Join(home, ".config", "mcp-task-server"),
		"/etc/mcp-task-server",
	}
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/mcp-task-server/ or /etc/mcp-task-server/")
}

// validateConfigFileProperties rejects world/group-readable or oversized
// config files. Called on an already-opened file descriptor to avoid a
// TOCTOU race between the permission check and the read.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults seeds cfg with the values named in the external interface
// contract before the YAML/env layers are unmarshaled on top.
func applyDefaults(cfg *Config) {
	cfg.Transport.Mode = "stdio"
	cfg.Transport.HTTP.Port = 8070
	cfg.Transport.HTTP.SSE.HeartbeatIntervalSeconds = 30
	cfg.Transport.HTTP.SSE.ConnectionTimeoutMinutes = 5
	cfg.Transport.HTTP.SSE.MaxConnections = 100

	cfg.RateLimit.Capacity = 100
	cfg.RateLimit.Tokens = 100
	cfg.RateLimit.RefillMinutes = 1

	cfg.Async.CorePoolSize = 2
	cfg.Async.MaxPoolSize = 8
	cfg.Async.QueueCapacity = 100
	cfg.Async.TerminationSeconds = 30

	cfg.Audit.Enabled = true
	cfg.Audit.SensitiveDataMaxLength = 256
	cfg.Audit.SensitiveDataStrategy = "redact"
	cfg.Audit.LogPath = filepath.Join("data", "audit", "audit.log")

	cfg.Resource.MaxTasks = 1000

	cfg.Store.Path = filepath.Join("data", "mcp-task-server.db")

	cfg.Telemetry.ServiceName = "mcp-task-server"
	cfg.Telemetry.Protocol = "grpc"
	cfg.Telemetry.Insecure = true
}
