// Package config loads runtime configuration for the access verification
// daemon from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Load reads Global from the environment, applying defaults for the
// lifetime fields matching this system's baseline (12h server lifetime,
// 15m access lifetime, 300s nonce lifetime) and failing if Validate
// rejects the result.
func Load() (*Global, error) {
	cfg := &Global{
		Redis: Redis{
			Host:             envOr("REDIS_HOST", "localhost:6379"),
			DBHSMKeys:        envOrInt("REDIS_DB_HSM_KEYS", 0),
			DBAccessKeys:     envOrInt("REDIS_DB_ACCESS_KEYS", 1),
			DBResponseKeys:   envOrInt("REDIS_DB_RESPONSE_KEYS", 2),
			DBRevokedDevices: envOrInt("REDIS_DB_REVOKED_DEVICES", 3),
		},
		HSM: HSM{
			Host:     envOr("HSM_HOST", "localhost"),
			Port:     envOrInt("HSM_PORT", 443),
			Identity: os.Getenv("HSM_IDENTITY"),
		},
		Lifetimes: Lifetimes{
			ServerLifetimeHours:     uint32(envOrInt("SERVER_LIFETIME_HOURS", 12)),
			AccessLifetimeMinutes:   uint32(envOrInt("ACCESS_LIFETIME_MINUTES", 15)),
			AccessNonceLifetimeSecs: uint32(envOrInt("ACCESS_NONCE_LIFETIME_SECONDS", 300)),
		},
	}

	if err := Validate(*cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
