// Package config loads bridge configuration in precedence order:
// defaults -> TOML file -> environment variables -> CLI flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "BRIDGE_"

// ManualDevice is a statically declared device merged on startup via
// upsert_manual.
type ManualDevice struct {
	ID           string         `toml:"id"`
	IP           string         `toml:"ip"`
	Protocol     string         `toml:"protocol"`
	Model        string         `toml:"model"`
	Description  string         `toml:"description"`
	Capabilities map[string]any `toml:"capabilities"`
}

// Config holds every recognized option from spec §6, grouped by effect.
type Config struct {
	// Ports / networking
	ArtNetPort     int  `toml:"artnet_port"`
	ArtNetEnabled  bool `toml:"artnet_enabled"`
	ArtNetPriority int  `toml:"artnet_priority"`
	SACNPort       int  `toml:"sacn_port"`
	SACNEnabled    bool `toml:"sacn_enabled"`
	SACNMulticast  bool `toml:"sacn_multicast"`
	APIPort        int  `toml:"api_port"`

	// Mapper
	MapperDebounceDelay time.Duration `toml:"mapper_debounce_delay"`

	// Database
	DBPath      string `toml:"db_path"`
	MigrateOnly bool   `toml:"migrate_only"`

	// Discovery / liveness (collaborators)
	DiscoveryInterval          time.Duration `toml:"discovery_interval"`
	DiscoveryResponseTimeout   time.Duration `toml:"discovery_response_timeout"`
	DiscoveryStaleAfter        time.Duration `toml:"discovery_stale_after"`
	DevicePollEnabled          bool          `toml:"device_poll_enabled"`
	DevicePollInterval         time.Duration `toml:"device_poll_interval"`
	DevicePollTimeout          time.Duration `toml:"device_poll_timeout"`
	DevicePollOfflineThreshold int           `toml:"device_poll_offline_threshold"`

	// Delivery
	DeviceDefaultTransport  string        `toml:"device_default_transport"`
	DeviceDefaultPort       int           `toml:"device_default_port"`
	DeviceSendTimeout       time.Duration `toml:"device_send_timeout"`
	DeviceSendRetries       int           `toml:"device_send_retries"`
	DeviceBackoffBase       time.Duration `toml:"device_backoff_base"`
	DeviceBackoffFactor     float64       `toml:"device_backoff_factor"`
	DeviceBackoffMax        time.Duration `toml:"device_backoff_max"`
	DeviceMaxSendRate       float64       `toml:"device_max_send_rate"`
	DeviceQueuePollInterval time.Duration `toml:"device_queue_poll_interval"`
	DeviceIdleWait          time.Duration `toml:"device_idle_wait"`
	DeviceOfflineThreshold  int           `toml:"device_offline_threshold"`
	DeviceMaxQueueDepth     int           `toml:"device_max_queue_depth"`

	// Rate limiter
	RateLimitPerSecond float64 `toml:"rate_limit_per_second"`
	RateLimitBurst     int     `toml:"rate_limit_burst"`

	// Supervisor
	SubsystemFailureThreshold int           `toml:"subsystem_failure_threshold"`
	SubsystemFailureCooldown  time.Duration `toml:"subsystem_failure_cooldown"`
	DryRun                    bool          `toml:"dry_run"`
	TraceContextIDs           bool          `toml:"trace_context_ids"`
	TraceContextSampleRate    float64       `toml:"trace_context_sample_rate"`
	NoisyLogSampleRate        float64       `toml:"noisy_log_sample_rate"`

	// Logging
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// Manual devices
	ManualDevices []ManualDevice `toml:"manual_devices"`

	// Capability catalog path; a reload that changes this is rejected
	// per spec §4.S, same as db_path.
	CapabilityCatalogPath string `toml:"capability_catalog_path"`
}

// Defaults mirrors the original bridge's config defaults, carried forward
// unchanged since spec.md doesn't redefine them.
func Defaults() Config {
	return Config{
		ArtNetPort:                 6454,
		ArtNetEnabled:              true,
		ArtNetPriority:             100,
		SACNPort:                   5568,
		SACNEnabled:                true,
		SACNMulticast:              true,
		APIPort:                    8000,
		MapperDebounceDelay:        50 * time.Millisecond,
		DBPath:                     "bridge.db",
		MigrateOnly:                false,
		DiscoveryInterval:          30 * time.Second,
		DiscoveryResponseTimeout:   2 * time.Second,
		DiscoveryStaleAfter:        300 * time.Second,
		DevicePollEnabled:          false,
		DevicePollInterval:         60 * time.Second,
		DevicePollTimeout:          1500 * time.Millisecond,
		DevicePollOfflineThreshold: 2,
		DeviceDefaultTransport:     "udp",
		DeviceDefaultPort:          4003,
		DeviceSendTimeout:          2 * time.Second,
		DeviceSendRetries:          3,
		DeviceBackoffBase:          500 * time.Millisecond,
		DeviceBackoffFactor:        2.0,
		DeviceBackoffMax:           5 * time.Second,
		DeviceMaxSendRate:          10.0,
		DeviceQueuePollInterval:    500 * time.Millisecond,
		DeviceIdleWait:             200 * time.Millisecond,
		DeviceOfflineThreshold:     3,
		DeviceMaxQueueDepth:        1000,
		RateLimitPerSecond:         10.0,
		RateLimitBurst:             20,
		SubsystemFailureThreshold:  5,
		SubsystemFailureCooldown:   15 * time.Second,
		DryRun:                     false,
		TraceContextIDs:            false,
		TraceContextSampleRate:     1.0,
		NoisyLogSampleRate:         1.0,
		LogLevel:                   "info",
		LogFormat:                  "plain",
	}
}

// Load builds a Config from defaults, an optional TOML file, and
// environment variables prefixed with EnvPrefix. CLI flags are layered on
// top of this by cmd/bridge via urfave/cli/v3's flag destinations, which
// is why every field here is exported and addressable.
func Load(tomlPath string) (Config, error) {
	cfg := Defaults()

	if tomlPath != "" {
		if _, err := os.Stat(tomlPath); err == nil {
			if _, err := toml.DecodeFile(tomlPath, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decode %s: %w", tomlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", tomlPath, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	getInt(&cfg.ArtNetPort, "ARTNET_PORT")
	getBool(&cfg.ArtNetEnabled, "ARTNET_ENABLED")
	getInt(&cfg.ArtNetPriority, "ARTNET_PRIORITY")
	getInt(&cfg.SACNPort, "SACN_PORT")
	getBool(&cfg.SACNEnabled, "SACN_ENABLED")
	getBool(&cfg.SACNMulticast, "SACN_MULTICAST")
	getInt(&cfg.APIPort, "API_PORT")
	getDuration(&cfg.MapperDebounceDelay, "MAPPER_DEBOUNCE_DELAY")
	getString(&cfg.DBPath, "DB_PATH")
	getBool(&cfg.MigrateOnly, "MIGRATE_ONLY")
	getDuration(&cfg.DiscoveryInterval, "DISCOVERY_INTERVAL")
	getBool(&cfg.DevicePollEnabled, "DEVICE_POLL_ENABLED")
	getDuration(&cfg.DevicePollInterval, "DEVICE_POLL_INTERVAL")
	getString(&cfg.DeviceDefaultTransport, "DEVICE_DEFAULT_TRANSPORT")
	getInt(&cfg.DeviceDefaultPort, "DEVICE_DEFAULT_PORT")
	getDuration(&cfg.DeviceSendTimeout, "DEVICE_SEND_TIMEOUT")
	getInt(&cfg.DeviceSendRetries, "DEVICE_SEND_RETRIES")
	getFloat(&cfg.DeviceMaxSendRate, "DEVICE_MAX_SEND_RATE")
	getInt(&cfg.DeviceOfflineThreshold, "DEVICE_OFFLINE_THRESHOLD")
	getFloat(&cfg.RateLimitPerSecond, "RATE_LIMIT_PER_SECOND")
	getInt(&cfg.RateLimitBurst, "RATE_LIMIT_BURST")
	getInt(&cfg.SubsystemFailureThreshold, "SUBSYSTEM_FAILURE_THRESHOLD")
	getDuration(&cfg.SubsystemFailureCooldown, "SUBSYSTEM_FAILURE_COOLDOWN")
	getBool(&cfg.DryRun, "DRY_RUN")
	getString(&cfg.LogLevel, "LOG_LEVEL")
	getString(&cfg.LogFormat, "LOG_FORMAT")
	getString(&cfg.CapabilityCatalogPath, "CAPABILITY_CATALOG_PATH")
}

func envName(suffix string) string { return EnvPrefix + suffix }

func getString(dst *string, suffix string) {
	if v, ok := os.LookupEnv(envName(suffix)); ok {
		*dst = v
	}
}

func getBool(dst *bool, suffix string) {
	if v, ok := os.LookupEnv(envName(suffix)); ok {
		*dst = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
	}
}

func getInt(dst *int, suffix string) {
	if v, ok := os.LookupEnv(envName(suffix)); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func getFloat(dst *float64, suffix string) {
	if v, ok := os.LookupEnv(envName(suffix)); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func getDuration(dst *time.Duration, suffix string) {
	if v, ok := os.LookupEnv(envName(suffix)); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else if secs, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = time.Duration(secs * float64(time.Second))
		}
	}
}

// Validate rejects out-of-range values fatally at startup (or, on reload,
// causes the caller to keep the previously running config).
func (c Config) Validate() error {
	if c.ArtNetPort <= 0 || c.ArtNetPort > 65535 {
		return fmt.Errorf("config: artnet_port out of range: %d", c.ArtNetPort)
	}
	if c.SACNPort <= 0 || c.SACNPort > 65535 {
		return fmt.Errorf("config: sacn_port out of range: %d", c.SACNPort)
	}
	if c.DeviceDefaultTransport != "udp" && c.DeviceDefaultTransport != "tcp" {
		return fmt.Errorf("config: device_default_transport must be udp or tcp, got %q", c.DeviceDefaultTransport)
	}
	if c.RateLimitPerSecond < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("config: rate limiter values must be non-negative")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	return nil
}

// RestartRequired reports whether moving from c to next requires a full
// restart rather than a hot reload, per spec §4.S: db_path or the
// capability catalog path changing.
func (c Config) RestartRequired(next Config) bool {
	return c.DBPath != next.DBPath || c.CapabilityCatalogPath != next.CapabilityCatalogPath
}
