package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/htlvc/internal/device"
)

type fileConfig struct {
	DeviceID        string   `toml:"device_id"`
	Profile         string   `toml:"profile"`
	StreamAddr      string   `toml:"stream_addr"`
	WebSocketAddr   string   `toml:"websocket_addr"`
	WebSocketPath   string   `toml:"websocket_path"`
	AdminAddr       string   `toml:"admin_addr"`
	CorsOrigins     []string `toml:"cors_origins"`
	MaxNestingDepth int      `toml:"max_nesting_depth"`
	QueueDepth      int      `toml:"queue_depth"`
	PoolBytes       int      `toml:"pool_bytes"`
	ReadTimeout     string   `toml:"read_timeout"`
	WriteTimeout    string   `toml:"write_timeout"`
	RatePerSecond   int      `toml:"rate_per_second"`
	RateBurst       int      `toml:"rate_burst"`
	BreakerFailures uint32   `toml:"breaker_failures"`
	BreakerCooldown string   `toml:"breaker_cooldown"`
	TLSEnabled      bool     `toml:"tls_enabled"`
	TLSCertFile     string   `toml:"tls_cert_file"`
	TLSKeyFile      string   `toml:"tls_key_file"`
	TLSCAFile       string   `toml:"tls_ca_file"`
	AdminToken      string   `toml:"admin_token"`
}

func loadServiceConfig(path string) (device.ServiceConfig, error) {
	cfg := device.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return device.ServiceConfig{}, fmt.Errorf("load htlvcd config: %w", err)
	}

	if meta.IsDefined("device_id") {
		if id := strings.TrimSpace(raw.DeviceID); id != "" {
			cfg.DeviceID = id
		}
	}
	if meta.IsDefined("profile") {
		cfg.ProfilePath = strings.TrimSpace(raw.Profile)
	}
	if meta.IsDefined("stream_addr") {
		cfg.Transport.StreamAddr = strings.TrimSpace(raw.StreamAddr)
	}
	if meta.IsDefined("websocket_addr") {
		cfg.WebSocketAddr = strings.TrimSpace(raw.WebSocketAddr)
	}
	if meta.IsDefined("websocket_path") {
		cfg.Transport.WebSocketPath = strings.TrimSpace(raw.WebSocketPath)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("max_nesting_depth") {
		cfg.Engine.MaxNestingDepth = raw.MaxNestingDepth
	}
	if meta.IsDefined("queue_depth") {
		cfg.Engine.QueueDepth = raw.QueueDepth
	}
	if meta.IsDefined("pool_bytes") {
		cfg.PoolBytes = raw.PoolBytes
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return device.ServiceConfig{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.Transport.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return device.ServiceConfig{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.Transport.WriteTimeout = d
	}
	if meta.IsDefined("rate_per_second") {
		cfg.Transport.RatePerSecond = raw.RatePerSecond
	}
	if meta.IsDefined("rate_burst") {
		cfg.Transport.RateBurst = raw.RateBurst
	}
	if meta.IsDefined("breaker_failures") {
		cfg.Transport.BreakerFailures = raw.BreakerFailures
	}
	if meta.IsDefined("breaker_cooldown") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.BreakerCooldown))
		if err != nil {
			return device.ServiceConfig{}, fmt.Errorf("parse breaker_cooldown: %w", err)
		}
		cfg.Transport.BreakerCooldown = d
	}

	if meta.IsDefined("tls_enabled") {
		cfg.Transport.TLS.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Transport.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Transport.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Transport.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}

	cfg.Engine = cfg.Engine.WithDefaults()
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
