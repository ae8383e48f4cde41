package cache

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the environment-tunable engine settings. Tier endpoints are
// included for the convenience of binaries wiring up the engine; the
// library itself only consumes the engine fields.
type Config struct {
	// RedisAddr is the volatile tier endpoint.
	RedisAddr string `env:"PROPCACHE_REDIS_ADDR" envDefault:"localhost:6379"`

	// SQLitePath is the durable tier database file (":memory:" for tests).
	SQLitePath string `env:"PROPCACHE_SQLITE_PATH" envDefault:"propcache.db"`

	// KeyPrefix namespaces all cache keys.
	KeyPrefix string `env:"PROPCACHE_KEY_PREFIX" envDefault:"prop"`

	// DurableTimeout bounds durable-tier queries.
	DurableTimeout time.Duration `env:"PROPCACHE_DURABLE_TIMEOUT" envDefault:"5s"`

	// VolatileCeiling is the hard cap on volatile TTLs.
	VolatileCeiling time.Duration `env:"PROPCACHE_VOLATILE_CEILING" envDefault:"6h"`

	// HitRateFloor is the advisory hit-rate warning threshold.
	HitRateFloor float64 `env:"PROPCACHE_HIT_RATE_FLOOR" envDefault:"0.5"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:       "localhost:6379",
		SQLitePath:      "propcache.db",
		KeyPrefix:       "prop",
		DurableTimeout:  DefaultDurableTimeout,
		VolatileCeiling: DefaultVolatileCeiling,
		HitRateFloor:    DefaultHitRateFloor,
	}
}

// LoadConfig reads the configuration from the environment, falling back to
// defaults for unset variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}
