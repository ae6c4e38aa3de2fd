package config

import "github.com/spf13/viper"

// SetDefaults registers the built-in defaults on a Viper instance.
// Every key the Config struct can hold appears here so a bare environment
// still produces a complete, working config.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.hostname", "0.0.0.0")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.idle_timeout_seconds", DefaultIdleTimeout)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_requests", false)
	v.SetDefault("server.shadow_ws_port", DefaultShadowPort)
	v.SetDefault("server.spline_api_port", 0)
	v.SetDefault("server.primary_region", "local")
	v.SetDefault("server.api_domain", "tes.localhost")

	v.SetDefault("workers.pool_size", DefaultPoolSize)
	v.SetDefault("workers.api_port", DefaultWorkerPort)
	v.SetDefault("workers.api_check_timeout_ms", 750)

	v.SetDefault("security.dev_token", DefaultDevToken)
	v.SetDefault("security.allowed_origin_port", DefaultPort)
}
