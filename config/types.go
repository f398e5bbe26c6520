package config

import "time"

// Redis bundles the logical database numbers the service uses on one Redis
// instance, one per domain the access-key resolution chain touches.
type Redis struct {
	Host             string
	DBHSMKeys        int
	DBAccessKeys     int
	DBResponseKeys   int
	DBRevokedDevices int
}

// HSM identifies the HSM this deployment trusts. Host and Port are loaded
// from the environment, but no component of this service connects to them.
type HSM struct {
	Host     string
	Port     int
	Identity string
}

// Lifetimes bundles every duration that feeds into the cache expiration and
// nonce-replay windows.
type Lifetimes struct {
	ServerLifetimeHours     uint32
	AccessLifetimeMinutes   uint32
	AccessNonceLifetimeSecs uint32
}

// VerificationWindow is serverLifetimeHours*3600 + accessLifetimeMinutes*60,
// the span a key-log cache entry remains trusted for after its createdAt.
func (l Lifetimes) VerificationWindow() time.Duration {
	return time.Duration(l.ServerLifetimeHours)*time.Hour + time.Duration(l.AccessLifetimeMinutes)*time.Minute
}

// NonceLifetime is the duration a reserved nonce stays rejected as a replay.
func (l Lifetimes) NonceLifetime() time.Duration {
	return time.Duration(l.AccessNonceLifetimeSecs) * time.Second
}

// Global bundles every runtime configuration value enforced by Validate.
type Global struct {
	Redis     Redis
	HSM       HSM
	Lifetimes Lifetimes
}
