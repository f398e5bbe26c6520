package accessverifier

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is the decoded body of a device's access token: a JWT whose
// claims carry the attributes the access-key request was bound to
// (deviceId, hsm identity and generation, nonce, expiration). The service
// does not hold the signing key for these tokens — verification of the
// token's own signature happens upstream at issuance; this package only
// needs its claims, so the token is parsed unverified here. The request
// signature that VerifyRequest checks covers RequestPayload only, not the
// token, and the token's claims are not compared with the request's
// device identity; the only claim VerifyRequest enforces is the token's
// own expiration, per spec.md §4.8 step 5.
type AccessToken struct {
	DeviceID        string    `json:"deviceId"`
	HSMIdentity     string    `json:"hsmIdentity"`
	HSMGenerationID string    `json:"hsmGenerationId"`
	Nonce           string    `json:"nonce"`
	Expiration      time.Time `json:"expiration"`
}

// ParseAccessToken decodes raw (a compact JWT) into its claims without
// verifying its signature.
func ParseAccessToken(raw string) (*AccessToken, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("accessverifier: parse access token: %w", err)
	}

	token := &AccessToken{}
	if v, ok := claims["deviceId"].(string); ok {
		token.DeviceID = v
	}
	if v, ok := claims["hsmIdentity"].(string); ok {
		token.HSMIdentity = v
	}
	if v, ok := claims["hsmGenerationId"].(string); ok {
		token.HSMGenerationID = v
	}
	if v, ok := claims["nonce"].(string); ok {
		token.Nonce = v
	}
	if v, ok := claims["expiration"].(string); ok {
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("accessverifier: parse token expiration: %w", err)
		}
		token.Expiration = parsed
	}

	if token.DeviceID == "" || token.HSMIdentity == "" || token.HSMGenerationID == "" || token.Nonce == "" || token.Expiration.IsZero() {
		return nil, fmt.Errorf("accessverifier: access token missing required claim")
	}

	return token, nil
}
