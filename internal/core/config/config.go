// Package config provides configuration management for dispatchkeeper services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	ProbeAPI ProbeAPIConfig
	Metrics  MetricsConfig
	Events   EventsConfig
	Cache    CacheConfig
}

// ProbeAPIConfig holds configuration for the gRPC match-debug probe service.
type ProbeAPIConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
	MaxRules       int
	// MaxAlerts caps the alerts replayed by one probe.
	MaxAlerts int
	// MaxBatchSize caps one ReportAlerts batch.
	MaxBatchSize int
	DataDir      string
}

// Addr returns host:port for listening.
func (c ProbeAPIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool
	Address string
	Path    string
}

// EventsConfig controls group-change publishing. No brokers disables it.
type EventsConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether any broker is configured.
func (c EventsConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// CacheConfig controls the probe response cache. An empty address disables it.
type CacheConfig struct {
	RedisAddr string
	TTL       time.Duration
}

// Enabled reports whether a redis address is configured.
func (c CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		ProbeAPI: ProbeAPIConfig{
			Host:           "0.0.0.0",
			Port:           50061,
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
			MaxRules:       1000,
			MaxAlerts:      100000,
			MaxBatchSize:   1000,
			DataDir:        "./data",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9464",
			Path:    "/metrics",
		},
		Events: EventsConfig{
			Topic: "dispatchkeeper.group-changed",
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
	}
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports DK_HMAC_SECRET (single) and DK_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check DK_HMAC_SECRET and DK_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
		return nil
	}

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("DK_HMAC_SECRET"); val != "" {
		if err := add("DK_HMAC_SECRET", val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old and new keys valid during rotation
	for i := 1; ; i++ {
		key := fmt.Sprintf("DK_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecret decodes base64-encoded HMAC secret from environment variable.
func ParseHMACSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 lowercase hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = ParseHMACSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}
