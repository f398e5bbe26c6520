package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

func sha256Sum(message []byte) [32]byte {
	return sha256.Sum256(message)
}

// ErrInvalidSignature is returned for any signature verification failure.
// A single generic error is used deliberately: callers must not be able to
// distinguish "bad point", "bad r/s", or "signature mismatch" from the
// returned error, which would create a cryptographic oracle.
var ErrInvalidSignature = errors.New("invalid signature")

// PrivateKey is a secp256r1 (P-256) signing key.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// GeneratePrivateKey creates a new random P-256 private key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate p-256 key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PublicCESR returns the CESR encoding of the key's public point.
func (k *PrivateKey) PublicCESR() string {
	sec1 := elliptic.Marshal(elliptic.P256(), k.key.PublicKey.X, k.key.PublicKey.Y)
	return EncodePublicKeyP256(sec1)
}

// Hex returns the key's scalar encoded as hex, for storage at rest.
func (k *PrivateKey) Hex() string {
	return hex.EncodeToString(k.key.D.FillBytes(make([]byte, 32)))
}

// ParsePrivateKeyHex parses a key previously serialized with Hex.
func ParsePrivateKeyHex(s string) (*PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode private key hex: %w", err)
	}
	d := new(big.Int).SetBytes(raw)
	curve := elliptic.P256()
	x, y := curve.ScalarBaseMult(raw)
	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
		D:         d,
	}
	return &PrivateKey{key: key}, nil
}

// Sign signs message and returns the CESR-encoded IEEE-P1363 (r‖s) signature.
func (k *PrivateKey) Sign(message []byte) (string, error) {
	digest := sha256Sum(message)
	r, s, err := ecdsa.Sign(rand.Reader, k.key, digest[:])
	if err != nil {
		return "", fmt.Errorf("crypto: sign: %w", err)
	}
	rs := fixedWidthRS(r, s)
	return EncodeSignatureP256(rs), nil
}

// Verify verifies signature (CESR) over message using publicKey (CESR). It
// returns ErrInvalidSignature for every failure mode — malformed key,
// malformed signature, or a genuine mismatch — so that no oracle is exposed
// to a caller probing the verifier.
func Verify(message []byte, signatureCESR, publicKeyCESR string) error {
	pointBytes, err := DecodePublicKeyP256(publicKeyCESR)
	if err != nil {
		return ErrInvalidSignature
	}
	x, y := unmarshalSEC1Point(pointBytes)
	if x == nil {
		return ErrInvalidSignature
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}

	rs, err := DecodeSignatureP256(signatureCESR)
	if err != nil || len(rs) != 64 {
		return ErrInvalidSignature
	}
	r := new(big.Int).SetBytes(rs[:32])
	s := new(big.Int).SetBytes(rs[32:])

	digest := sha256Sum(message)
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return ErrInvalidSignature
	}
	return nil
}

// unmarshalSEC1Point decodes a SEC1-encoded P-256 point, accepting both the
// uncompressed (0x04) form elliptic.Unmarshal expects and the compressed
// (0x02/0x03) form HSM-issued keys may use.
func unmarshalSEC1Point(data []byte) (x, y *big.Int) {
	if len(data) == 0 {
		return nil, nil
	}
	switch data[0] {
	case 0x02, 0x03:
		return elliptic.UnmarshalCompressed(elliptic.P256(), data)
	default:
		return elliptic.Unmarshal(elliptic.P256(), data)
	}
}

func fixedWidthRS(r, s *big.Int) []byte {
	out := make([]byte, 64)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out
}
