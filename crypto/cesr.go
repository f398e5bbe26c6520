// Package crypto implements the CESR-addressed cryptographic primitives used
// by the HSM key log: Blake3 digests, secp256r1 (P-256) keys and ECDSA
// signatures, all encoded with a single-character type prefix over base64url.
package crypto

import (
	"encoding/base64"
	"fmt"
)

// Prefix codes used by this system. Only the three needed by the key log are
// defined; a real CESR implementation carries a much larger table.
const (
	PrefixBlake3Digest  byte = 'E'
	PrefixPublicKeyP256 byte = '1' // followed by a second code byte, see below
	PrefixSignatureP256 byte = '0' // followed by a second code byte, see below
)

// Fixed CESR type codes for the two variable-length materials this system
// handles. Real CESR tables use a two-character code for 33-byte and
// 64-byte materials; we hard-code the ones this system actually produces.
const (
	codePublicKeyP256 = "1AAI" // 4-char code, 3 padding bytes, compressed-style length class
	codeSignatureP256 = "0I"   // 2-char code, 2 padding bytes
)

// EncodeBlake3Digest CESR-encodes a 32-byte Blake3 digest: prepend a zero
// byte, base64url-encode without padding (44 chars), then overwrite the
// first character with the 'E' type code.
func EncodeBlake3Digest(digest [32]byte) string {
	padded := make([]byte, 0, 33)
	padded = append(padded, 0)
	padded = append(padded, digest[:]...)
	encoded := base64.RawURLEncoding.EncodeToString(padded)
	return string(PrefixBlake3Digest) + encoded[1:]
}

// DecodeBlake3Digest validates the 'E' prefix and recovers the raw 32-byte
// digest from its CESR encoding.
func DecodeBlake3Digest(cesr string) ([32]byte, error) {
	var out [32]byte
	if len(cesr) == 0 || cesr[0] != PrefixBlake3Digest {
		return out, fmt.Errorf("cesr: expected blake3 digest prefix %q, got %q", string(PrefixBlake3Digest), cesr)
	}
	// The 'E' type code overwrote the first character of the encoded,
	// zero-padded digest; restoring it as 'A' (all-zero bits) before decoding
	// recovers the original zero-padded bytes.
	raw, err := base64.RawURLEncoding.DecodeString("A" + cesr[1:])
	if err != nil {
		return out, fmt.Errorf("cesr: decode blake3 digest: %w", err)
	}
	if len(raw) != 33 {
		return out, fmt.Errorf("cesr: blake3 digest wrong length %d", len(raw))
	}
	copy(out[:], raw[1:])
	return out, nil
}

// EncodePublicKeyP256 CESR-encodes a SEC1-encoded P-256 public key point.
func EncodePublicKeyP256(sec1 []byte) string {
	padded := make([]byte, 0, 3+len(sec1))
	padded = append(padded, 0, 0, 0)
	padded = append(padded, sec1...)
	encoded := base64.RawURLEncoding.EncodeToString(padded)
	return codePublicKeyP256 + encoded[len(codePublicKeyP256):]
}

// DecodePublicKeyP256 validates the CESR type code and returns the raw SEC1
// point bytes (3-byte type padding stripped).
func DecodePublicKeyP256(cesr string) ([]byte, error) {
	if len(cesr) < len(codePublicKeyP256) || cesr[:1] != string(PrefixPublicKeyP256) {
		return nil, fmt.Errorf("cesr: expected p-256 public key prefix, got %q", cesr)
	}
	raw, err := base64.RawURLEncoding.DecodeString("AAAA" + cesr[len(codePublicKeyP256):])
	if err != nil {
		return nil, fmt.Errorf("cesr: decode public key: %w", err)
	}
	if len(raw) < 3 {
		return nil, fmt.Errorf("cesr: public key too short")
	}
	return raw[3:], nil
}

// EncodeSignatureP256 CESR-encodes a fixed-length IEEE-P1363 (r‖s) ECDSA
// signature.
func EncodeSignatureP256(rs []byte) string {
	padded := make([]byte, 0, 2+len(rs))
	padded = append(padded, 0, 0)
	padded = append(padded, rs...)
	encoded := base64.RawURLEncoding.EncodeToString(padded)
	return codeSignatureP256 + encoded[len(codeSignatureP256):]
}

// DecodeSignatureP256 validates the CESR type code and returns the raw
// (r‖s) signature bytes (2-byte type padding stripped).
func DecodeSignatureP256(cesr string) ([]byte, error) {
	if len(cesr) < len(codeSignatureP256) || cesr[:1] != string(PrefixSignatureP256) {
		return nil, fmt.Errorf("cesr: expected p-256 signature prefix, got %q", cesr)
	}
	raw, err := base64.RawURLEncoding.DecodeString("AA" + cesr[len(codeSignatureP256):])
	if err != nil {
		return nil, fmt.Errorf("cesr: decode signature: %w", err)
	}
	if len(raw) < 2 {
		return nil, fmt.Errorf("cesr: signature too short")
	}
	return raw[2:], nil
}
