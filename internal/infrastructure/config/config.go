package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all host configuration.
type Config struct {
	Extensions   ExtensionsConfig
	Socket       SocketConfig
	Identity     IdentityConfig
	Ledger       LedgerConfig
	Control      ControlConfig
	Health       HealthConfig
	Logging      LogConfig
	RateLimit    RateLimitConfig
	Presentation PresentationConfig
}

// ExtensionsConfig holds the runtime switches for the extension surface.
// Both flags can be flipped later through the control API.
type ExtensionsConfig struct {
	Enabled     bool   `envconfig:"EXTENSIONS_ENABLED" default:"true"`
	Diagnostics bool   `envconfig:"EXTENSIONS_DIAGNOSTICS" default:"false"`
	HostVersion string `envconfig:"HOST_VERSION" default:"1.0.0"`
}

// SocketConfig holds the extension listener configuration.
type SocketConfig struct {
	Path           string        `envconfig:"SOCKET_PATH"`
	MaxConnections int           `envconfig:"SOCKET_MAX_CONNECTIONS" default:"64"`
	SendQueue      int           `envconfig:"SOCKET_SEND_QUEUE" default:"64"`
	ReadLimit      int64         `envconfig:"SOCKET_READ_LIMIT" default:"1048576"`
	WriteTimeout   time.Duration `envconfig:"SOCKET_WRITE_TIMEOUT" default:"5s"`
	PingInterval   time.Duration `envconfig:"SOCKET_PING_INTERVAL" default:"30s"`
}

// IdentityConfig points at the directory of extension manifests.
type IdentityConfig struct {
	ManifestDir string `envconfig:"IDENTITY_MANIFEST_DIR" default:"/etc/notchkit/extensions.d"`
}

// LedgerConfig holds authorization ledger persistence. An empty path keeps
// the ledger in memory only.
type LedgerConfig struct {
	Path string `envconfig:"LEDGER_PATH"`
}

// ControlConfig holds the host control API configuration.
type ControlConfig struct {
	Addr              string   `envconfig:"CONTROL_ADDR" default:"127.0.0.1:8765"`
	MaxConnections    int      `envconfig:"CONTROL_MAX_CONNECTIONS" default:"16"`
	AllowOrigins      []string `envconfig:"CONTROL_ALLOW_ORIGINS" default:"http://127.0.0.1,http://localhost"`
	RequestsPerSecond int      `envconfig:"CONTROL_RATE_LIMIT_RPS" default:"20"`
	Burst             int      `envconfig:"CONTROL_RATE_LIMIT_BURST" default:"40"`
	TokenPath         string   `envconfig:"CONTROL_TOKEN_PATH"`
}

// HealthConfig holds the gRPC health endpoint configuration.
type HealthConfig struct {
	Addr    string `envconfig:"HEALTH_ADDR" default:"127.0.0.1:8766"`
	Enabled bool   `envconfig:"HEALTH_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds per-connection request throttling.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// PresentationConfig holds per-region slot counts.
type PresentationConfig struct {
	WidgetSlots int `envconfig:"WIDGET_SLOTS" default:"3"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Socket.Path == "" {
		cfg.Socket.Path = DefaultSocketPath()
	}
	if cfg.Control.TokenPath == "" {
		cfg.Control.TokenPath = DefaultTokenPath()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the host cannot run with.
func (c *Config) Validate() error {
	if c.Socket.Path == "" {
		return fmt.Errorf("socket path is required")
	}
	if c.Socket.MaxConnections <= 0 {
		return fmt.Errorf("socket max connections must be positive, got %d", c.Socket.MaxConnections)
	}
	if c.Socket.SendQueue <= 0 {
		return fmt.Errorf("socket send queue must be positive, got %d", c.Socket.SendQueue)
	}
	if c.Presentation.WidgetSlots <= 0 {
		return fmt.Errorf("widget slots must be positive, got %d", c.Presentation.WidgetSlots)
	}
	if c.Control.TokenPath == "" {
		return fmt.Errorf("control token path is required")
	}
	if c.Control.MaxConnections <= 0 {
		return fmt.Errorf("control max connections must be positive, got %d", c.Control.MaxConnections)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit rps must be positive when enabled")
	}
	return nil
}

// DefaultSocketPath returns the per-user socket location.
func DefaultSocketPath() string {
	return filepath.Join(runtimeDir(), "notchkit", "extensions.sock")
}

// DefaultTokenPath returns where the control API credential is written.
func DefaultTokenPath() string {
	return filepath.Join(runtimeDir(), "notchkit", "control.token")
}

func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Extensions: ExtensionsConfig{
			Enabled:     true,
			HostVersion: "1.0.0",
		},
		Socket: SocketConfig{
			Path:           DefaultSocketPath(),
			MaxConnections: 64,
			SendQueue:      64,
			ReadLimit:      1 << 20,
			WriteTimeout:   5 * time.Second,
			PingInterval:   30 * time.Second,
		},
		Identity: IdentityConfig{
			ManifestDir: "/etc/notchkit/extensions.d",
		},
		Control: ControlConfig{
			Addr:              "127.0.0.1:8765",
			MaxConnections:    16,
			AllowOrigins:      []string{"http://127.0.0.1", "http://localhost"},
			RequestsPerSecond: 20,
			Burst:             40,
			TokenPath:         DefaultTokenPath(),
		},
		Health: HealthConfig{
			Addr:    "127.0.0.1:8766",
			Enabled: true,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
		Presentation: PresentationConfig{
			WidgetSlots: 3,
		},
	}
}
