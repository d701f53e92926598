package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	// Bind environment variables with DK_ prefix
	v.SetEnvPrefix("DK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		ProbeAPI: ProbeAPIConfig{
			Host:           v.GetString("probe_api.host"),
			Port:           v.GetInt("probe_api.port"),
			MaxConnections: v.GetInt("probe_api.max_connections"),
			RequestTimeout: v.GetDuration("probe_api.request_timeout"),
			MaxRules:       v.GetInt("probe_api.max_rules"),
			MaxAlerts:      v.GetInt("probe_api.max_alerts"),
			MaxBatchSize:   v.GetInt("probe_api.max_batch_size"),
			DataDir:        v.GetString("probe_api.data_dir"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Address: v.GetString("metrics.address"),
			Path:    v.GetString("metrics.path"),
		},
		Events: EventsConfig{
			Brokers: splitList(v.GetStringSlice("events.brokers")),
			Topic:   v.GetString("events.topic"),
		},
		Cache: CacheConfig{
			RedisAddr: v.GetString("cache.redis_addr"),
			TTL:       v.GetDuration("cache.ttl"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("probe_api.host", d.ProbeAPI.Host)
	v.SetDefault("probe_api.port", d.ProbeAPI.Port)
	v.SetDefault("probe_api.max_connections", d.ProbeAPI.MaxConnections)
	v.SetDefault("probe_api.request_timeout", d.ProbeAPI.RequestTimeout.String())
	v.SetDefault("probe_api.max_rules", d.ProbeAPI.MaxRules)
	v.SetDefault("probe_api.max_alerts", d.ProbeAPI.MaxAlerts)
	v.SetDefault("probe_api.max_batch_size", d.ProbeAPI.MaxBatchSize)
	v.SetDefault("probe_api.data_dir", d.ProbeAPI.DataDir)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", d.Events.Topic)

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", d.Cache.TTL.String())
}

// splitList accepts both YAML lists and comma-separated environment values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig checks port range and positive limits.
func validateConfig(cfg *Config) error {
	p := cfg.ProbeAPI
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", p.Port)
	}
	if p.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", p.MaxConnections)
	}
	if p.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", p.RequestTimeout)
	}
	if p.MaxRules <= 0 {
		return fmt.Errorf("max_rules must be positive, got %d", p.MaxRules)
	}
	if p.MaxAlerts <= 0 {
		return fmt.Errorf("max_alerts must be positive, got %d", p.MaxAlerts)
	}
	if p.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", p.MaxBatchSize)
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /, got %q", cfg.Metrics.Path)
	}
	if cfg.Events.Enabled() && cfg.Events.Topic == "" {
		return fmt.Errorf("events topic required when brokers are configured")
	}
	if cfg.Cache.Enabled() && cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %v", cfg.Cache.TTL)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets. Only the
// config file is inspected; DK_HMAC_SECRET in the environment is expected.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("probe_api.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use DK_HMAC_SECRET environment variable)")
	}
	return nil
}
