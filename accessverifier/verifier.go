// Package accessverifier orchestrates the full access-key resolution
// chain: HSM key log -> device response key -> access key -> request.
package accessverifier

import (
	"context"

	"github.com/jmhodges/clock"

	"hsmauthd/accesskey"
	"hsmauthd/crypto"
	"hsmauthd/keylog"
	"hsmauthd/noncestore"
	"hsmauthd/verifyerr"
)

// Request is a device's access-key resolution request, already decoded
// from its wire envelope (spec.md §4.8 step 1).
type Request struct {
	// Nonce is this request's single-use replay-defence token.
	Nonce string
	// AccessPublicKeyIdentity names the device whose currently published,
	// HSM-authorized access key Signature is checked against.
	AccessPublicKeyIdentity string
	// TokenBlob is the compact access token describing which device and
	// HSM key generation this request claims to be bound to.
	TokenBlob string
	// RequestPayload is the canonical byte range Signature was computed
	// over.
	RequestPayload []byte
	// Signature signs RequestPayload with the device's currently
	// published access key.
	Signature string
}

// Verifier resolves and authenticates an access-key request end to end.
type Verifier struct {
	keylog     *keylog.Verifier
	accessKeys *accesskey.Store
	nonces     *noncestore.Store
	revoked    RevocationChecker
	clk        clock.Clock
}

// NewVerifier wires together the stages of the chain. clk is the
// Timestamper capability (spec.md §9) used to validate a decoded access
// token's own expiration claim; if nil, the system wall clock is used.
func NewVerifier(kl *keylog.Verifier, ak *accesskey.Store, nonces *noncestore.Store, revoked RevocationChecker, clk clock.Clock) *Verifier {
	if clk == nil {
		clk = clock.New()
	}
	return &Verifier{keylog: kl, accessKeys: ak, nonces: nonces, revoked: revoked, clk: clk}
}

// VerifyRequest authenticates req and returns its decoded access token on
// success, per spec.md §4.8:
//  1. the caller has already decoded the outer signed envelope into req;
//  2. reserve the nonce, rejecting replay;
//  3. reject the request if req.AccessPublicKeyIdentity is revoked;
//  4. resolve req.AccessPublicKeyIdentity to its HSM-authorized
//     verification key via the access-key store (spec.md §4.7);
//  5. verify Signature over RequestPayload against that key;
//  6. decode TokenBlob and validate its own expiration claim;
//  7. return the decoded token.
//
// Errors are *verifyerr.VerifyError, already classified by kind.
func (v *Verifier) VerifyRequest(ctx context.Context, req Request) (*AccessToken, error) {
	if !v.nonces.Reserve(req.Nonce) {
		return nil, verifyerr.Newf(verifyerr.KindReplay, "accessverifier.replay", "nonce already used")
	}

	revoked, err := v.revoked.IsRevoked(ctx, req.AccessPublicKeyIdentity)
	if err != nil {
		return nil, verifyerr.New(verifyerr.KindTransientIO, "accessverifier.revocation_check", err)
	}
	if revoked {
		return nil, verifyerr.Newf(verifyerr.KindRevoked, "accessverifier.device_revoked", "device revoked")
	}

	pubKey, err := v.accessKeys.PublicKey(ctx, req.AccessPublicKeyIdentity)
	if err != nil {
		return nil, err
	}

	if err := crypto.Verify(req.RequestPayload, req.Signature, pubKey); err != nil {
		return nil, verifyerr.New(verifyerr.KindCryptographic, "accessverifier.bad_request_signature", err)
	}

	token, err := ParseAccessToken(req.TokenBlob)
	if err != nil {
		return nil, verifyerr.New(verifyerr.KindMalformedInput, "accessverifier.bad_token", err)
	}

	if !token.Expiration.After(v.clk.Now()) {
		return nil, verifyerr.Newf(verifyerr.KindPolicy, "accessverifier.token_expired", "token expired")
	}

	return token, nil
}
