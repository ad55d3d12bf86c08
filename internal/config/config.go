package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address for the HTTP(S) server.
	Addr           string
	DatabasePath   string
	MasterSecret   string
	Debug          bool
	LogLevel       string
	AllowedOrigins []string

	// Presence controls the stale-presence sweep.
	Presence PresenceConfig
	// MaxRoomMembers caps how many connections may share an ephemeral room.
	MaxRoomMembers int
	// VisitsEnabled allows connections to visit other users' dextops.
	VisitsEnabled bool
	// PrivatePrograms lists program types that never leave their owner's
	// client.
	PrivatePrograms []string

	// TLS holds HTTPS configuration. If nil, the server runs in plain HTTP mode.
	TLS *TLSConfig
}

// PresenceConfig configures the presence sweeper.
type PresenceConfig struct {
	// SweepInterval is how often stale presences are evicted.
	SweepInterval time.Duration
	// StaleAfter is the age after which a presence without updates is evicted.
	StaleAfter time.Duration
}

// TLSConfig holds file paths for serving HTTPS directly from the server.
type TLSConfig struct {
	// CertFile is a PEM-encoded certificate chain.
	CertFile string
	// KeyFile is a PEM-encoded private key.
	KeyFile string
}

// Overrides optionally overrides values from environment variables and the
// config file.
//
// A nil pointer means "use the file/environment/default value".
type Overrides struct {
	ConfigPath   *string
	Addr         *string
	DatabasePath *string
	MasterSecret *string
	Debug        *bool
	LogLevel     *string
	TLS          *TLSConfig
}

// DefaultPrivatePrograms are the per-user program types stripped from every
// broadcast snapshot.
var DefaultPrivatePrograms = []string{"characterEditor", "inventory", "shop", "achievements"}

// fileConfig mirrors the YAML config file layout. Durations use Go syntax
// ("90s", "5m").
type fileConfig struct {
	Addr           string   `yaml:"addr"`
	DatabasePath   string   `yaml:"databasePath"`
	MasterSecret   string   `yaml:"masterSecret"`
	Debug          *bool    `yaml:"debug"`
	LogLevel       string   `yaml:"logLevel"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	Presence       struct {
		SweepInterval string `yaml:"sweepInterval"`
		StaleAfter    string `yaml:"staleAfter"`
	} `yaml:"presence"`
	Rooms struct {
		MaxMembers int `yaml:"maxMembers"`
	} `yaml:"rooms"`
	Visits struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"visits"`
	PrivatePrograms []string `yaml:"privatePrograms"`
	TLS             *struct {
		CertFile string `yaml:"certFile"`
		KeyFile  string `yaml:"keyFile"`
	} `yaml:"tls"`
}

// Load loads server configuration from environment variables, an optional
// YAML file and any explicit overrides, in increasing precedence.
func Load(overrides Overrides) (*Config, error) {
	cfg := &Config{
		Addr:           ":3005",
		DatabasePath:   "./dextop.db",
		AllowedOrigins: []string{"*"},
		Presence: PresenceConfig{
			SweepInterval: time.Minute,
			StaleAfter:    5 * time.Minute,
		},
		MaxRoomMembers:  4,
		VisitsEnabled:   true,
		PrivatePrograms: append([]string(nil), DefaultPrivatePrograms...),
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			cfg.Addr = fmt.Sprintf(":%d", p)
		}
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	cfg.MasterSecret = os.Getenv("DEXTOP_MASTER_SECRET")
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		cfg.Debug = true
	}
	cfg.LogLevel = os.Getenv("DEXTOP_LOG_LEVEL")
	if raw := os.Getenv("DEXTOP_PRIVATE_PROGRAMS"); raw != "" {
		cfg.PrivatePrograms = splitList(raw)
	}

	path := os.Getenv("DEXTOP_CONFIG")
	if overrides.ConfigPath != nil {
		path = *overrides.ConfigPath
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := applyFile(cfg, raw); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if overrides.Addr != nil {
		cfg.Addr = *overrides.Addr
	}
	if overrides.DatabasePath != nil {
		cfg.DatabasePath = *overrides.DatabasePath
	}
	if overrides.MasterSecret != nil {
		cfg.MasterSecret = *overrides.MasterSecret
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}
	if overrides.LogLevel != nil {
		cfg.LogLevel = *overrides.LogLevel
	}
	if overrides.TLS != nil {
		cfg.TLS = overrides.TLS
	}

	if cfg.MasterSecret == "" {
		return nil, fmt.Errorf("DEXTOP_MASTER_SECRET environment variable is required")
	}
	if cfg.Presence.SweepInterval <= 0 || cfg.Presence.StaleAfter <= 0 {
		return nil, fmt.Errorf("presence sweep interval and stale timeout must be positive")
	}
	if cfg.MaxRoomMembers <= 0 {
		return nil, fmt.Errorf("rooms.maxMembers must be positive")
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return err
	}
	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.DatabasePath != "" {
		cfg.DatabasePath = fc.DatabasePath
	}
	if fc.MasterSecret != "" {
		cfg.MasterSecret = fc.MasterSecret
	}
	if fc.Debug != nil {
		cfg.Debug = *fc.Debug
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.Presence.SweepInterval != "" {
		d, err := time.ParseDuration(fc.Presence.SweepInterval)
		if err != nil {
			return fmt.Errorf("presence.sweepInterval: %w", err)
		}
		cfg.Presence.SweepInterval = d
	}
	if fc.Presence.StaleAfter != "" {
		d, err := time.ParseDuration(fc.Presence.StaleAfter)
		if err != nil {
			return fmt.Errorf("presence.staleAfter: %w", err)
		}
		cfg.Presence.StaleAfter = d
	}
	if fc.Rooms.MaxMembers != 0 {
		cfg.MaxRoomMembers = fc.Rooms.MaxMembers
	}
	if fc.Visits.Enabled != nil {
		cfg.VisitsEnabled = *fc.Visits.Enabled
	}
	if fc.PrivatePrograms != nil {
		cfg.PrivatePrograms = fc.PrivatePrograms
	}
	if fc.TLS != nil && fc.TLS.CertFile != "" {
		cfg.TLS = &TLSConfig{CertFile: fc.TLS.CertFile, KeyFile: fc.TLS.KeyFile}
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
