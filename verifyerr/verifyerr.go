// Package verifyerr classifies every failure the core verifier packages can
// produce into the disposition taxonomy the handler boundary needs: what
// level to log at, and what (generic) response to return to the caller.
package verifyerr

import (
	"errors"
	"fmt"
)

// Kind is the disposition category of a verification failure.
type Kind string

const (
	// KindMalformedInput covers missing body fields, unparseable JSON, and
	// bad RFC-3339 timestamps. Logged at error.
	KindMalformedInput Kind = "malformed_input"
	// KindCryptographic covers bad signatures, bad commitments, and hash
	// mismatches. Logged at warn; the specific check that failed is never
	// surfaced to the client.
	KindCryptographic Kind = "cryptographic_failure"
	// KindPolicy covers wrong purpose, expired key, and wrong identity.
	// Logged at warn.
	KindPolicy Kind = "policy_violation"
	// KindReplay covers a nonce reserved too recently. Logged at info.
	KindReplay Kind = "replay"
	// KindTransientIO covers an unreachable key-value store after retries
	// are exhausted. Logged at error.
	KindTransientIO Kind = "transient_io"
	// KindRevoked covers a device identity present in the revocation set.
	// Logged at info.
	KindRevoked Kind = "revoked_device"
)

// VerifyError is the single error variant that propagates to the top-level
// handler. It carries enough detail for internal logging but exposes
// nothing beyond Kind to any client-facing code path.
type VerifyError struct {
	Kind Kind
	Code string
	err  error
}

// New constructs a VerifyError wrapping cause with the given kind and a
// short stable code used for log correlation (never sent to the client).
func New(kind Kind, code string, cause error) *VerifyError {
	return &VerifyError{Kind: kind, Code: code, err: cause}
}

// Newf is a convenience constructor for a VerifyError without a wrapped
// cause, formatting a message for internal logging only.
func Newf(kind Kind, code, format string, args ...any) *VerifyError {
	return &VerifyError{Kind: kind, Code: code, err: fmt.Errorf(format, args...)}
}

func (e *VerifyError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Code, e.err)
}

func (e *VerifyError) Unwrap() error { return e.err }

// As reports whether err is (or wraps) a *VerifyError and, if so, returns it.
func As(err error) (*VerifyError, bool) {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is a *VerifyError, or
// KindMalformedInput as a conservative default for untyped errors that
// escaped classification.
func KindOf(err error) Kind {
	if ve, ok := As(err); ok {
		return ve.Kind
	}
	return KindMalformedInput
}
