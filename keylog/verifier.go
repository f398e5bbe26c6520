package keylog

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"golang.org/x/sync/singleflight"

	"hsmauthd/crypto"
	"hsmauthd/storage"
	"hsmauthd/verifyerr"
)

// CacheState names the coarse state of the verifier's cache, per its state
// machine: cold (nothing cached, or just invalidated), warming (a
// repopulation is in flight), warm (a validated snapshot is cached). Any
// cache miss drives warm back to cold atomically, before repopulation
// begins.
type CacheState string

const (
	StateCold    CacheState = "cold"
	StateWarming CacheState = "warming"
	StateWarm    CacheState = "warm"
)

type cachedEntry struct {
	entry      LogEntry
	expiration *time.Time
}

// Verifier resolves an HSM generationId to a trusted public key by fetching,
// parsing, validating, and caching the HSM key log. It owns its cache
// exclusively; concurrent callers share one Verifier.
type Verifier struct {
	store              storage.KeyValueStore
	clk                clock.Clock
	trustedIdentity    string
	verificationWindow time.Duration

	mu    sync.Mutex
	state CacheState
	cache map[string]cachedEntry

	group singleflight.Group
}

// NewVerifier constructs a Verifier. trustedIdentity is the compile-time
// configured HSM identity (injected as config rather than a package
// constant, per the boundary note in SPEC_FULL.md); verificationWindow is
// serverLifetimeHours*3600 + accessLifetimeMinutes*60 seconds.
func NewVerifier(store storage.KeyValueStore, clk clock.Clock, trustedIdentity string, verificationWindow time.Duration) *Verifier {
	return &Verifier{
		store:              store,
		clk:                clk,
		trustedIdentity:    trustedIdentity,
		verificationWindow: verificationWindow,
		state:              StateCold,
		cache:              make(map[string]cachedEntry),
	}
}

// Verify resolves hsmGenerationId to a trusted public key and checks
// signature over message against it, returning a *verifyerr.VerifyError on
// any failure.
func (v *Verifier) Verify(ctx context.Context, signature, hsmIdentity, hsmGenerationID string, message []byte) error {
	v.mu.Lock()
	if cached, ok := v.cache[hsmGenerationID]; ok {
		v.mu.Unlock()
		return v.verifyWithEntry(cached, signature, hsmIdentity, message)
	}
	v.mu.Unlock()

	if _, err, _ := v.group.Do("repopulate", func() (any, error) {
		return nil, v.repopulate(ctx)
	}); err != nil {
		return err
	}

	v.mu.Lock()
	cached, ok := v.cache[hsmGenerationID]
	v.mu.Unlock()
	if !ok {
		return verifyerr.Newf(verifyerr.KindPolicy, "keylog.not_found", "can't find valid public key")
	}

	return v.verifyWithEntry(cached, signature, hsmIdentity, message)
}

func (v *Verifier) verifyWithEntry(cached cachedEntry, signature, hsmIdentity string, message []byte) error {
	if cached.entry.Prefix != hsmIdentity {
		return verifyerr.Newf(verifyerr.KindPolicy, "keylog.bad_identity", "incorrect identity (expected hsm.identity == prefix)")
	}
	if cached.entry.Purpose != PurposeKeyAuthorization {
		return verifyerr.Newf(verifyerr.KindPolicy, "keylog.bad_purpose", "incorrect purpose (expected key-authorization)")
	}
	if cached.expiration != nil && cached.expiration.Before(v.clk.Now()) {
		return verifyerr.Newf(verifyerr.KindPolicy, "keylog.expired", "expired key")
	}
	if err := crypto.Verify(message, signature, cached.entry.PublicKey); err != nil {
		return verifyerr.New(verifyerr.KindCryptographic, "keylog.bad_signature", err)
	}
	return nil
}

type parsedEntry struct {
	signed     SignedLogEntry
	payloadRaw []byte
}

// repopulate clears the cache and rebuilds it from a fresh snapshot of the
// backing store. It is only ever run inside the singleflight group, so
// concurrent cache misses collapse into a single KV round trip and a single
// validation pass.
func (v *Verifier) repopulate(ctx context.Context) error {
	v.mu.Lock()
	v.state = StateCold
	v.cache = make(map[string]cachedEntry)
	v.state = StateWarming
	v.mu.Unlock()

	keys, err := v.store.Keys(ctx, "*")
	if err != nil {
		return verifyerr.New(verifyerr.KindTransientIO, "keylog.fetch_keys", err)
	}
	if len(keys) == 0 {
		return verifyerr.Newf(verifyerr.KindMalformedInput, "keylog.empty", "No HSM keys found")
	}

	values, err := v.store.MGet(ctx, keys)
	if err != nil {
		return verifyerr.New(verifyerr.KindTransientIO, "keylog.fetch_values", err)
	}

	byPrefix := make(map[string][]parsedEntry)
	for _, raw := range values {
		if raw == nil {
			continue
		}
		payloadRaw, err := ExtractObjectField(raw, "payload")
		if err != nil {
			return verifyerr.New(verifyerr.KindMalformedInput, "keylog.extract_payload", err)
		}
		var signed SignedLogEntry
		if err := json.Unmarshal(raw, &signed); err != nil {
			return verifyerr.New(verifyerr.KindMalformedInput, "keylog.parse_entry", err)
		}
		byPrefix[signed.Payload.Prefix] = append(byPrefix[signed.Payload.Prefix], parsedEntry{signed: signed, payloadRaw: payloadRaw})
	}

	for prefix, entries := range byPrefix {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].signed.Payload.SequenceNumber < entries[j].signed.Payload.SequenceNumber
		})
		byPrefix[prefix] = entries
	}

	// Per-entry self-addressing and signature validation.
	for _, entries := range byPrefix {
		for _, pe := range entries {
			payload := pe.signed.Payload
			if payload.SequenceNumber == 0 {
				if payload.ID != payload.Prefix {
					return verifyerr.Newf(verifyerr.KindMalformedInput, "keylog.bad_prefix", "prefix must equal id for sequence 0")
				}
			}
			if err := verifySelfAddress(pe.payloadRaw, payload); err != nil {
				return err
			}
			if err := crypto.Verify(pe.payloadRaw, pe.signed.Signature, payload.PublicKey); err != nil {
				return verifyerr.New(verifyerr.KindCryptographic, "keylog.bad_entry_signature", err)
			}
		}
	}

	// Chain validation, per prefix group.
	now := v.clk.Now()
	for _, entries := range byPrefix {
		var lastID, lastRotationHash string
		var lastCreatedAt time.Time
		for i, pe := range entries {
			payload := pe.signed.Payload
			if payload.SequenceNumber != i {
				return verifyerr.Newf(verifyerr.KindMalformedInput, "keylog.bad_sequence", "bad sequence number")
			}
			if !payload.CreatedAt.Before(now) {
				return verifyerr.Newf(verifyerr.KindMalformedInput, "keylog.future_timestamp", "future timestamp")
			}
			if i != 0 {
				if payload.Previous != lastID {
					return verifyerr.Newf(verifyerr.KindCryptographic, "keylog.broken_chain", "broken chain")
				}
				if !payload.CreatedAt.After(lastCreatedAt) {
					return verifyerr.Newf(verifyerr.KindMalformedInput, "keylog.non_increasing_timestamp", "non-increasing timestamp")
				}
				if crypto.Blake3Sum([]byte(payload.PublicKey)) != lastRotationHash {
					return verifyerr.Newf(verifyerr.KindCryptographic, "keylog.bad_commitment", "bad commitment")
				}
			}
			lastID = payload.ID
			lastRotationHash = payload.RotationHash
			lastCreatedAt = payload.CreatedAt
		}
	}

	entries, ok := byPrefix[v.trustedIdentity]
	if !ok {
		return verifyerr.Newf(verifyerr.KindPolicy, "keylog.identity_not_found", "hsm identity not found")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	tainted := false
	var expiration *time.Time
	for i := len(entries) - 1; i >= 0; i-- {
		payload := entries[i].signed.Payload
		if !tainted {
			v.cache[payload.ID] = cachedEntry{entry: payload, expiration: expiration}
		}
		tainted = payload.TaintPrevious
		exp := payload.CreatedAt.Add(v.verificationWindow)
		expiration = &exp
		if exp.Before(now) {
			break
		}
	}
	v.state = StateWarm

	return nil
}

// selfAddressPlaceholder is the fixed-width placeholder an entry's id field
// holds in place of during self-addressing: 44 '#' characters, the length
// of a CESR-encoded Blake3 digest.
var selfAddressPlaceholder = bytes.Repeat([]byte{'#'}, 44)

// verifySelfAddress recomputes an entry's self-addressing identifier. Every
// occurrence of the id value in the raw payload is replaced with the
// placeholder before hashing, not just the "id" field itself: an inception
// entry's prefix also equals its id, and both must be blanked out together
// to reproduce the bytes the id was originally computed over.
func verifySelfAddress(payloadRaw []byte, payload LogEntry) error {
	modified := bytes.ReplaceAll(payloadRaw, []byte(payload.ID), selfAddressPlaceholder)
	hash := crypto.Blake3Sum(modified)
	if hash != payload.ID {
		return verifyerr.Newf(verifyerr.KindCryptographic, "keylog.bad_self_address", "id does not match hash of payload")
	}
	return nil
}
