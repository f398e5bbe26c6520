package keylog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"hsmauthd/crypto"
	"hsmauthd/storage"
)

type testEntry struct {
	raw   []byte
	entry LogEntry
}

// buildEntry constructs a signed, self-addressed log entry. For sequence 0,
// prefix is computed to equal the entry's own id (an inception event);
// for later sequences, prefix is the caller-supplied established value.
func buildEntry(t *testing.T, key *crypto.PrivateKey, prefix string, previous string, seq int, createdAt time.Time, purpose, rotationHash string, taint bool) testEntry {
	t.Helper()
	placeholder := strings.Repeat("#", 44)

	inception := seq == 0
	p := LogEntry{
		ID:             placeholder,
		Prefix:         prefix,
		Previous:       previous,
		SequenceNumber: seq,
		CreatedAt:      createdAt,
		Purpose:        purpose,
		PublicKey:      key.PublicCESR(),
		RotationHash:   rotationHash,
		TaintPrevious:  taint,
	}
	if inception {
		p.Prefix = placeholder
	}
	placeholderJSON, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal placeholder: %v", err)
	}
	id := crypto.Blake3Sum(placeholderJSON)
	p.ID = id
	if inception {
		p.Prefix = id
	}

	realJSON, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal real payload: %v", err)
	}
	sig, err := key.Sign(realJSON)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	full := struct {
		Payload   json.RawMessage `json:"payload"`
		Signature string          `json:"signature"`
	}{Payload: realJSON, Signature: sig}
	raw, err := json.Marshal(full)
	if err != nil {
		t.Fatalf("marshal signed entry: %v", err)
	}
	return testEntry{raw: raw, entry: p}
}

// buildChain builds a 3-entry, non-tainted chain of sequential key
// rotations for one prefix, returning the entries, the keys that signed
// them (index-aligned), and the prefix they share.
func buildChain(t *testing.T, base time.Time, purpose string) ([]testEntry, []*crypto.PrivateKey, string) {
	t.Helper()
	k0, _ := crypto.GeneratePrivateKey()
	k1, _ := crypto.GeneratePrivateKey()
	k2, _ := crypto.GeneratePrivateKey()

	rot0 := crypto.Blake3Sum([]byte(k1.PublicCESR()))
	rot1 := crypto.Blake3Sum([]byte(k2.PublicCESR()))

	e0 := buildEntry(t, k0, "", "", 0, base, purpose, rot0, false)
	prefix := e0.entry.Prefix
	e1 := buildEntry(t, k1, prefix, e0.entry.ID, 1, base.Add(10*time.Minute), purpose, rot1, false)
	e2 := buildEntry(t, k2, prefix, e1.entry.ID, 2, base.Add(20*time.Minute), purpose, "", false)

	return []testEntry{e0, e1, e2}, []*crypto.PrivateKey{k0, k1, k2}, prefix
}

func seedStore(t *testing.T, entries []testEntry) *storage.MemStore {
	t.Helper()
	mem := storage.NewMemStore()
	ctx := context.Background()
	for i, e := range entries {
		if err := mem.Set(ctx, fmt.Sprintf("entry-%d", i), e.raw); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	return mem
}

func TestVerifyHappyPath(t *testing.T) {
	clk := clock.NewFake()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(base.Add(time.Hour))

	entries, keys, prefix := buildChain(t, base, PurposeKeyAuthorization)
	mem := seedStore(t, entries)

	v := NewVerifier(mem, clk, prefix, 24*time.Hour)

	message := []byte("device response payload")
	sig, err := keys[2].Sign(message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := v.Verify(context.Background(), sig, prefix, entries[2].entry.ID, message); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	clk := clock.NewFake()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(base.Add(time.Hour))

	entries, _, prefix := buildChain(t, base, PurposeKeyAuthorization)
	mem := seedStore(t, entries)

	v := NewVerifier(mem, clk, prefix, 24*time.Hour)

	if err := v.Verify(context.Background(), "0Inotarealsignature", prefix, entries[2].entry.ID, []byte("device response payload")); err == nil {
		t.Fatal("expected signature verification to fail for a bogus signature")
	}
}

func TestVerifyRejectsUnknownGeneration(t *testing.T) {
	clk := clock.NewFake()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(base.Add(time.Hour))

	entries, _, prefix := buildChain(t, base, PurposeKeyAuthorization)
	mem := seedStore(t, entries)

	v := NewVerifier(mem, clk, prefix, 24*time.Hour)

	err := v.Verify(context.Background(), "sig", prefix, "Enot-a-real-generation-id-000000000000000000", []byte("msg"))
	if err == nil {
		t.Fatal("expected error for unknown generation id")
	}
}

func TestVerifyRejectsBrokenChain(t *testing.T) {
	clk := clock.NewFake()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(base.Add(time.Hour))

	entries, _, prefix := buildChain(t, base, PurposeKeyAuthorization)
	// Corrupt entry 1's previous pointer so it no longer chains from entry 0.
	var full struct {
		Payload json.RawMessage `json:"payload"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(entries[1].raw, &full); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var payload LogEntry
	if err := json.Unmarshal(full.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	payload.Previous = "Ebroken0000000000000000000000000000000000"
	// Re-marshal without re-hashing or re-signing: the payload bytes no longer
	// hash to the entry's id, so the self-address check rejects entry 1
	// before its signature or the chain links are checked.
	corrupted, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	full.Payload = corrupted
	raw, err := json.Marshal(full)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	entries[1].raw = raw

	mem := seedStore(t, entries)
	v := NewVerifier(mem, clk, prefix, 24*time.Hour)

	err = v.Verify(context.Background(), "sig", prefix, entries[2].entry.ID, []byte("msg"))
	if err == nil {
		t.Fatal("expected verification to fail once the chain is corrupted")
	}
}

func TestVerifyRejectsBadCommitment(t *testing.T) {
	clk := clock.NewFake()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(base.Add(time.Hour))

	k0, _ := crypto.GeneratePrivateKey()
	k1, _ := crypto.GeneratePrivateKey()
	k2, _ := crypto.GeneratePrivateKey()

	wrongRotation := crypto.Blake3Sum([]byte("not-the-next-key"))

	e0 := buildEntry(t, k0, "", "", 0, base, PurposeKeyAuthorization, wrongRotation, false)
	prefix := e0.entry.Prefix
	e1 := buildEntry(t, k1, prefix, e0.entry.ID, 1, base.Add(10*time.Minute), PurposeKeyAuthorization, crypto.Blake3Sum([]byte(k2.PublicCESR())), false)

	mem := seedStore(t, []testEntry{e0, e1})
	v := NewVerifier(mem, clk, prefix, 24*time.Hour)

	if err := v.Verify(context.Background(), "sig", prefix, e1.entry.ID, []byte("msg")); err == nil {
		t.Fatal("expected verification to fail for a bad rotation commitment")
	}
}

func TestVerifyRejectsTaintedGeneration(t *testing.T) {
	clk := clock.NewFake()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(base.Add(time.Hour))

	k0, _ := crypto.GeneratePrivateKey()
	k1, _ := crypto.GeneratePrivateKey()

	rot0 := crypto.Blake3Sum([]byte(k1.PublicCESR()))
	e0 := buildEntry(t, k0, "", "", 0, base, PurposeKeyAuthorization, rot0, false)
	prefix := e0.entry.Prefix
	// entries[1] taints everything before it.
	e1 := buildEntry(t, k1, prefix, e0.entry.ID, 1, base.Add(10*time.Minute), PurposeKeyAuthorization, "", true)

	mem := seedStore(t, []testEntry{e0, e1})
	v := NewVerifier(mem, clk, prefix, 24*time.Hour)

	if err := v.Verify(context.Background(), "sig", prefix, e0.entry.ID, []byte("msg")); err == nil {
		t.Fatal("expected tainted (older) generation to be rejected")
	}
}

func TestVerifyRejectsExpiredEntry(t *testing.T) {
	clk := clock.NewFake()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(base.Add(2 * time.Hour))

	entries, keys, prefix := buildChain(t, base, PurposeKeyAuthorization)
	mem := seedStore(t, entries)

	// A one-hour window, with verification at base+2h: the newest entry
	// (base+20m) carries no expiration of its own, but its window closed at
	// base+1h20m, so the walk stops before entry 1 is cached and entry 1's
	// generation is rejected even with a genuine signature.
	v := NewVerifier(mem, clk, prefix, time.Hour)

	message := []byte("msg")
	sig, err := keys[1].Sign(message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	err = v.Verify(context.Background(), sig, prefix, entries[1].entry.ID, message)
	if err == nil {
		t.Fatal("expected verification to fail once the cache window has lapsed")
	}
}
