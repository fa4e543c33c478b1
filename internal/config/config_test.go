package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ArtNetPort != 6454 {
		t.Errorf("ArtNetPort = %d, want 6454", cfg.ArtNetPort)
	}
	if cfg.SACNPort != 5568 {
		t.Errorf("SACNPort = %d, want 5568", cfg.SACNPort)
	}
	if cfg.DeviceDefaultTransport != "udp" {
		t.Errorf("DeviceDefaultTransport = %q, want udp", cfg.DeviceDefaultTransport)
	}
	if cfg.RateLimitPerSecond != 10.0 || cfg.RateLimitBurst != 20 {
		t.Errorf("rate limiter defaults = %v/%v, want 10/20", cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BRIDGE_ARTNET_PORT", "7000")
	t.Setenv("BRIDGE_DRY_RUN", "true")
	t.Setenv("BRIDGE_DEVICE_SEND_TIMEOUT", "3s")
	t.Setenv("BRIDGE_RATE_LIMIT_PER_SECOND", "25.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ArtNetPort != 7000 {
		t.Errorf("ArtNetPort = %d, want 7000", cfg.ArtNetPort)
	}
	if !cfg.DryRun {
		t.Error("DryRun = false, want true")
	}
	if cfg.DeviceSendTimeout != 3*time.Second {
		t.Errorf("DeviceSendTimeout = %v, want 3s", cfg.DeviceSendTimeout)
	}
	if cfg.RateLimitPerSecond != 25.5 {
		t.Errorf("RateLimitPerSecond = %v, want 25.5", cfg.RateLimitPerSecond)
	}
}

func TestValidateRejectsBadTransport(t *testing.T) {
	cfg := Defaults()
	cfg.DeviceDefaultTransport = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for bad transport")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Defaults()
	cfg.ArtNetPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for out-of-range port")
	}
}

func TestRestartRequired(t *testing.T) {
	a := Defaults()
	b := Defaults()
	if a.RestartRequired(b) {
		t.Error("RestartRequired() = true for identical configs")
	}
	b.DBPath = "other.db"
	if !a.RestartRequired(b) {
		t.Error("RestartRequired() = false when db_path changed")
	}
}
