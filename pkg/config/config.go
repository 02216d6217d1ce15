package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Server defaults
const (
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 60 * time.Second
	ShutdownTimeout    = 30 * time.Second
)

// Cache freshness policy
//
// A rollup generated less than StaleWindow after the end of its period may
// have missed late-syncing data points and is treated as provisionally stale.
// Regeneration of a stale scope is rate-limited to once per RegenerateGuard
// to bound query-engine cost.
const (
	StaleWindow     = 36 * time.Hour
	RegenerateGuard = 1 * time.Hour
	GlobalMaxAge    = 24 * time.Hour
)

// Query engine polling
const (
	PollInterval = 1 * time.Second
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 64
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Config holds environment-driven server configuration.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	DataDir  string `env:"HEALTHLAKE_DATA_DIR" envDefault:"./data/healthlake"`
	Bucket   string `env:"HEALTHLAKE_BUCKET" envDefault:"healthlake"`
	Database string `env:"HEALTHLAKE_DATABASE" envDefault:"healthdb"`
	Timezone string `env:"HEALTHLAKE_TZ" envDefault:"America/New_York"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves the configured reference timezone. All "is this period in
// the past" checks are evaluated in this zone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
