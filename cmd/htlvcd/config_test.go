package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/htlvc/internal/device"
	"github.com/danmuck/htlvc/internal/profile"
	"github.com/danmuck/htlvc/internal/testutil/testlog"
)

func TestLoadServiceConfigOverrides(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadServiceConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DeviceID != "htlvc.bench" {
		t.Fatalf("unexpected device id: %q", cfg.DeviceID)
	}
	if cfg.ProfilePath != "cmd/htlvcd/ex.profile.toml" {
		t.Fatalf("unexpected profile: %q", cfg.ProfilePath)
	}
	if cfg.Transport.StreamAddr != "127.0.0.1:7420" || cfg.WebSocketAddr != "127.0.0.1:7421" {
		t.Fatalf("unexpected transport addrs: %+v", cfg)
	}
	if cfg.AdminAddr != "127.0.0.1:7480" {
		t.Fatalf("unexpected admin addr: %q", cfg.AdminAddr)
	}
	if len(cfg.CorsOrigins) != 1 || cfg.CorsOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CorsOrigins)
	}
	if cfg.Engine.MaxNestingDepth != 3 || cfg.Engine.QueueDepth != 32 {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Engine.Allocator == nil {
		t.Fatalf("expected default allocator")
	}
	if cfg.PoolBytes != 2048 {
		t.Fatalf("unexpected pool bytes: %d", cfg.PoolBytes)
	}
	if cfg.Transport.ReadTimeout != 45*time.Second || cfg.Transport.WriteTimeout != 2*time.Second {
		t.Fatalf("unexpected timeouts: %+v", cfg.Transport)
	}
	if cfg.Transport.RatePerSecond != 100 || cfg.Transport.RateBurst != 20 {
		t.Fatalf("unexpected rate limits: %+v", cfg.Transport)
	}
	if cfg.Transport.BreakerFailures != 3 || cfg.Transport.BreakerCooldown != 15*time.Second {
		t.Fatalf("unexpected breaker config: %+v", cfg.Transport)
	}
	if cfg.Transport.TLS.Enabled || cfg.Transport.TLS.CertFile != "local/tls/server.crt" || cfg.Transport.TLS.CAFile != "" {
		t.Fatalf("unexpected tls config: %+v", cfg.Transport.TLS)
	}
	if cfg.AdminToken != "change-me" {
		t.Fatalf("unexpected admin token: %q", cfg.AdminToken)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadServiceConfigKeepsDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "min.toml")
	if err := os.WriteFile(path, []byte("device_id = \"  \"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := device.DefaultServiceConfig()
	if cfg.DeviceID != def.DeviceID {
		t.Fatalf("blank device id should keep default, got %q", cfg.DeviceID)
	}
	if cfg.Transport.StreamAddr != def.Transport.StreamAddr || cfg.AdminAddr != def.AdminAddr {
		t.Fatalf("unexpected addr overrides: %+v", cfg)
	}
}

func TestLoadServiceConfigBadDuration(t *testing.T) {
	testlog.Start(t)
	for _, key := range []string{"read_timeout", "write_timeout", "breaker_cooldown"} {
		path := filepath.Join(t.TempDir(), key+".toml")
		if err := os.WriteFile(path, []byte(key+" = \"soon\"\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := loadServiceConfig(path); err == nil {
			t.Fatalf("expected %s parse error", key)
		}
	}
	if _, err := loadServiceConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestExampleProfileLoads(t *testing.T) {
	testlog.Start(t)
	p, err := profile.Load("ex.profile.toml")
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if _, err := p.Table(); err != nil {
		t.Fatalf("table: %v", err)
	}
	if len(p.Tags) != 6 {
		t.Fatalf("unexpected tag count: %d", len(p.Tags))
	}
}
