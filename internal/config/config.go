package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/htlvc/internal/profile"
	"github.com/pelletier/go-toml/v2"
)

// ServiceFile is the on-disk shape of an htlvcd service config. Every key is
// optional; htlvcd fills the rest from defaults.
type ServiceFile struct {
	DeviceID        string   `toml:"device_id"`
	Profile         string   `toml:"profile"`
	StreamAddr      string   `toml:"stream_addr"`
	WebSocketAddr   string   `toml:"websocket_addr"`
	WebSocketPath   string   `toml:"websocket_path"`
	AdminAddr       string   `toml:"admin_addr"`
	AdminToken      string   `toml:"admin_token"`
	CorsOrigins     []string `toml:"cors_origins"`
	MaxNestingDepth int      `toml:"max_nesting_depth"`
	QueueDepth      int      `toml:"queue_depth"`
	PoolBytes       int      `toml:"pool_bytes"`
	ReadTimeout     string   `toml:"read_timeout"`
	WriteTimeout    string   `toml:"write_timeout"`
	RatePerSecond   int      `toml:"rate_per_second"`
	RateBurst       int      `toml:"rate_burst"`
	BreakerFailures int      `toml:"breaker_failures"`
	BreakerCooldown string   `toml:"breaker_cooldown"`
	TLSEnabled      bool     `toml:"tls_enabled"`
	TLSCertFile     string   `toml:"tls_cert_file"`
	TLSKeyFile      string   `toml:"tls_key_file"`
	TLSCAFile       string   `toml:"tls_ca_file"`
}

// LoadServiceFile decodes path strictly; unknown keys are errors.
func LoadServiceFile(path string) (ServiceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServiceFile{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var cfg ServiceFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return ServiceFile{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := ValidateServiceFile(cfg); err != nil {
		return ServiceFile{}, err
	}
	return cfg, nil
}

// LoadProfile validates a device profile file.
func LoadProfile(path string) (profile.Profile, error) {
	return profile.Load(path)
}

func ValidateServiceFile(cfg ServiceFile) error {
	durations := map[string]string{
		"read_timeout":     cfg.ReadTimeout,
		"write_timeout":    cfg.WriteTimeout,
		"breaker_cooldown": cfg.BreakerCooldown,
	}
	for key, raw := range durations {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("service config %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("service config %s must be > 0", key)
		}
	}
	if cfg.MaxNestingDepth < 0 || cfg.QueueDepth < 0 || cfg.PoolBytes < 0 {
		return fmt.Errorf("service config engine bounds must be >= 0")
	}
	if cfg.RatePerSecond < 0 || cfg.RateBurst < 0 || cfg.BreakerFailures < 0 {
		return fmt.Errorf("service config rate and breaker bounds must be >= 0")
	}
	if cfg.WebSocketPath != "" && !strings.HasPrefix(cfg.WebSocketPath, "/") {
		return fmt.Errorf("service config websocket_path must start with /")
	}
	if cfg.TLSEnabled && (strings.TrimSpace(cfg.TLSCertFile) == "" || strings.TrimSpace(cfg.TLSKeyFile) == "") {
		return fmt.Errorf("service config tls_enabled requires tls_cert_file and tls_key_file")
	}
	return nil
}
