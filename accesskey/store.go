// Package accesskey resolves access verification keys: the short-lived
// public keys a device request is checked against, published by the
// access-key service and authorized by the HSM key log before they are
// trusted.
package accesskey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmhodges/clock"

	"hsmauthd/keylog"
	"hsmauthd/storage"
	"hsmauthd/verifyerr"
)

// AccessKeyPayload is the signed portion of a device's access-key record:
// the public key a request from that device is checked against, its
// purpose (must be "access"), and its expiry.
type AccessKeyPayload struct {
	Purpose    string    `json:"purpose"`
	PublicKey  string    `json:"publicKey"`
	Expiration time.Time `json:"expiration"`
}

// AccessKeyHSM names the HSM key-log entry that authorized this record.
type AccessKeyHSM struct {
	Identity     string `json:"identity"`
	GenerationID string `json:"generationId"`
}

// AccessKeyBody is the region of an AccessKeyRecord the HSM log's signature
// is computed over. It must be recovered as a raw byte substring via
// keylog.ExtractObjectField, never re-serialized: re-encoding it would
// produce different bytes than the ones the signature was made over.
type AccessKeyBody struct {
	Payload AccessKeyPayload `json:"payload"`
	HSM     AccessKeyHSM     `json:"hsm"`
}

// AccessKeyRecord is one device's authorization record as published by the
// access-key service: Body signed by the HSM-authorized key named in
// Body.HSM.
type AccessKeyRecord struct {
	Body      AccessKeyBody `json:"body"`
	Signature string        `json:"signature"`
}

// Config captures the parameters required to reach the access-key database
// and the key-log verifier used to authenticate each record against the
// HSM.
type Config struct {
	Store      storage.KeyValueStore
	KeyLog     *keylog.Verifier
	Clock      clock.Clock
	MaxRetries uint64
	RetryWait  time.Duration
}

// Store resolves device ids to their currently published, HSM-authorized
// access verification key, retrying transient store errors with
// exponential backoff.
type Store struct {
	store      storage.KeyValueStore
	keylog     *keylog.Verifier
	clk        clock.Clock
	maxRetries uint64
	retryWait  time.Duration
}

// New builds a Store from cfg.
func New(cfg Config) (*Store, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("accesskey: store required")
	}
	if cfg.KeyLog == nil {
		return nil, fmt.Errorf("accesskey: key-log verifier required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	retryWait := cfg.RetryWait
	if retryWait <= 0 {
		retryWait = 100 * time.Millisecond
	}
	return &Store{store: cfg.Store, keylog: cfg.KeyLog, clk: clk, maxRetries: maxRetries, retryWait: retryWait}, nil
}

// PublicKey reads the access-key record published for deviceID, verifies
// its HSM authorization through the key-log verifier, enforces purpose and
// expiry, and returns the CESR public key a request from this device
// should be checked against (spec.md §4.7 steps 1-6). Transient store
// errors are retried up to maxRetries times with exponential backoff
// starting at retryWait; every other failure is permanent.
func (s *Store) PublicKey(ctx context.Context, deviceID string) (string, error) {
	var key string

	operation := func() error {
		raw, err := s.store.Get(ctx, deviceID)
		if err == storage.ErrNotFound {
			return backoff.Permanent(verifyerr.Newf(verifyerr.KindPolicy, "accesskey.not_found", "no access key for device"))
		}
		if err != nil {
			return err
		}
		resolved, procErr := s.processRecord(ctx, raw)
		if procErr != nil {
			return backoff.Permanent(procErr)
		}
		key = resolved
		return nil
	}

	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.InitialInterval = s.retryWait
	bo := backoff.WithMaxRetries(retryPolicy, s.maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if ve, ok := verifyerr.As(err); ok {
			return "", ve
		}
		return "", verifyerr.New(verifyerr.KindTransientIO, "accesskey.fetch_failed", err)
	}

	return key, nil
}

// processRecord parses raw into an AccessKeyRecord, verifies its HSM
// authorization via the key-log verifier, and enforces purpose and expiry,
// per spec.md §4.7 steps 2-6.
func (s *Store) processRecord(ctx context.Context, raw []byte) (string, error) {
	bodyRaw, err := keylog.ExtractObjectField(raw, "body")
	if err != nil {
		return "", verifyerr.New(verifyerr.KindMalformedInput, "accesskey.extract_body", err)
	}

	var record AccessKeyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", verifyerr.New(verifyerr.KindMalformedInput, "accesskey.parse_record", err)
	}

	if err := s.keylog.Verify(ctx, record.Signature, record.Body.HSM.Identity, record.Body.HSM.GenerationID, bodyRaw); err != nil {
		return "", err
	}

	if record.Body.Payload.Purpose != keylog.PurposeAccess {
		return "", verifyerr.Newf(verifyerr.KindPolicy, "accesskey.bad_purpose", "invalid purpose")
	}

	if !record.Body.Payload.Expiration.After(s.clk.Now()) {
		return "", verifyerr.Newf(verifyerr.KindPolicy, "accesskey.expired", "key expired")
	}

	return record.Body.Payload.PublicKey, nil
}
