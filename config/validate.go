package config

import "fmt"

// Validate checks g for configuration values that would make the service
// unsafe or meaningless to run.
func Validate(g Global) error {
	if g.Redis.Host == "" {
		return fmt.Errorf("redis: host required")
	}
	if g.HSM.Identity == "" {
		return fmt.Errorf("hsm: identity required")
	}
	if g.Lifetimes.ServerLifetimeHours == 0 && g.Lifetimes.AccessLifetimeMinutes == 0 {
		return fmt.Errorf("lifetimes: verification window must be non-zero")
	}
	if g.Lifetimes.AccessNonceLifetimeSecs == 0 {
		return fmt.Errorf("lifetimes: access nonce lifetime must be non-zero")
	}
	return nil
}
