package cache

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	want := DefaultConfig()
	if cfg != want {
		t.Errorf("LoadConfig defaults = %+v, want %+v", cfg, want)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PROPCACHE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("PROPCACHE_KEY_PREFIX", "staging")
	t.Setenv("PROPCACHE_DURABLE_TIMEOUT", "2s")
	t.Setenv("PROPCACHE_VOLATILE_CEILING", "3h")
	t.Setenv("PROPCACHE_HIT_RATE_FLOOR", "0.7")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.RedisAddr != "redis.internal:6380" {
		t.Errorf("RedisAddr = %s", cfg.RedisAddr)
	}
	if cfg.KeyPrefix != "staging" {
		t.Errorf("KeyPrefix = %s", cfg.KeyPrefix)
	}
	if cfg.DurableTimeout != 2*time.Second {
		t.Errorf("DurableTimeout = %v", cfg.DurableTimeout)
	}
	if cfg.VolatileCeiling != 3*time.Hour {
		t.Errorf("VolatileCeiling = %v", cfg.VolatileCeiling)
	}
	if cfg.HitRateFloor != 0.7 {
		t.Errorf("HitRateFloor = %v", cfg.HitRateFloor)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Setenv("PROPCACHE_DURABLE_TIMEOUT", "not-a-duration")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for malformed duration")
	}
}
