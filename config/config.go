package config

// Config is the resolved startup configuration for the TES dev console.
//
// Values come from (highest priority first): environment variables, an
// optional tes.toml file, and built-in defaults. The server treats this as an
// immutable snapshot after boot; the only consumer that re-reads it is the
// /api/dev/configs endpoint, which serves the redacted snapshot.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig configures the HTTP/WebSocket listener
type ServerConfig struct {
	Hostname           string `mapstructure:"hostname"`             // Bind address (default: 0.0.0.0)
	Port               int    `mapstructure:"port"`                 // Resolved via ResolvePort; 0 means random
	IdleTimeoutSeconds int    `mapstructure:"idle_timeout_seconds"` // HTTP idle timeout (default: 120)
	Env                string `mapstructure:"env"`                  // "production" disables error pages
	LogRequests        bool   `mapstructure:"log_requests"`         // Per-request access logging
	ShadowWSPort       int    `mapstructure:"shadow_ws_port"`       // Shadow-market WS sibling (default: 3003)
	SplineAPIPort      int    `mapstructure:"spline_api_port"`      // Spline sibling service, 0 = embedded
	PrimaryRegion      string `mapstructure:"primary_region"`       // Region label; not sent in any response header
	APIDomain          string `mapstructure:"api_domain"`           // X-API-Domain header value
}

// WorkersConfig configures the worker pool and the sibling telemetry service
type WorkersConfig struct {
	PoolSize          int `mapstructure:"pool_size"`            // Initial cohort size (default: 4)
	APIPort           int `mapstructure:"api_port"`             // Sibling telemetry API (default: 3000)
	APICheckTimeoutMS int `mapstructure:"api_check_timeout_ms"` // Probe deadline (default: 750)
}

// SecurityConfig configures the static developer token and origin policy
type SecurityConfig struct {
	DevToken          string `mapstructure:"dev_token"`           // X-TES-Dev-Token value for /api/workers/*
	AllowedOriginPort int    `mapstructure:"allowed_origin_port"` // localhost port allowed as Origin (default: 3002)
}

// IsProduction reports whether the server runs with production error handling.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// IdleTimeout default and port fallback, shared with ResolvePort.
const (
	DefaultPort        = 3002
	DefaultWorkerPort  = 3000
	DefaultShadowPort  = 3003
	DefaultIdleTimeout = 120
	DefaultPoolSize    = 4
	DefaultDevToken    = "dev-token-default"
)
