package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

var (
	globalConfig *Config
	globalMu     sync.Mutex
)

// Load reads the TES configuration using Viper.
//
// The result is cached process-wide; tests that need isolation should use
// LoadWithViper with a fresh instance.
func Load() (*Config, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	resolveEnvOverrides(&cfg)

	globalConfig = &cfg
	return globalConfig, nil
}

// LoadWithViper loads configuration from a provided Viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	resolveEnvOverrides(&cfg)
	return &cfg, nil
}

// Reset clears the cached config. Test helper.
func Reset() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = nil
}

func initViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("tes")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	// Missing config file is fine: env + defaults carry a full config
	_ = v.ReadInConfig()

	return v
}

// resolveEnvOverrides applies the flat legacy environment variables. They
// predate the sectioned config file, so they are mapped by hand rather than
// through viper's automatic env layer.
func resolveEnvOverrides(cfg *Config) {
	if tok := os.Getenv("TES_DEV_TOKEN"); tok != "" {
		cfg.Security.DevToken = tok
	}
	if host := os.Getenv("HOSTNAME"); host != "" {
		cfg.Server.Hostname = host
	}
	if env := firstEnv("NODE_ENV", "BUN_ENV"); env != "" {
		cfg.Server.Env = strings.ToLower(env)
	}
	if s := os.Getenv("IDLE_TIMEOUT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.Server.IdleTimeoutSeconds = n
		}
	}
	if s := os.Getenv("SHADOW_WS_PORT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.Server.ShadowWSPort = n
		}
	}
	if s := os.Getenv("WORKER_API_PORT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.Workers.APIPort = n
		}
	}
	if s := os.Getenv("SPLINE_API_PORT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.Server.SplineAPIPort = n
		}
	}
	if s := os.Getenv("LOG_REQUESTS"); s != "" {
		cfg.Server.LogRequests = s == "1" || strings.EqualFold(s, "true")
	}
	if region := os.Getenv("TES_PRIMARY_REGION"); region != "" {
		cfg.Server.PrimaryRegion = region
	}
	if domain := os.Getenv("TES_API_DOMAIN"); domain != "" {
		cfg.Server.APIDomain = domain
	}
	cfg.Server.Port = ResolvePort(-1, cfg.Server.Port)
}

// ResolvePort resolves the listen port with the documented priority:
// CLI --port > BUN_PORT > PORT > NODE_PORT > config file > default 3002.
// flagPort <= -1 means the flag was not set; 0 is a valid request for a
// random port.
func ResolvePort(flagPort int, configPort int) int {
	if flagPort >= 0 {
		return flagPort
	}
	for _, name := range []string{"BUN_PORT", "PORT", "NODE_PORT"} {
		if s := os.Getenv(name); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n >= 0 {
				return n
			}
		}
	}
	if configPort > 0 {
		return configPort
	}
	return DefaultPort
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
