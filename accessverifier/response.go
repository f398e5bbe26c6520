package accessverifier

import (
	"encoding/json"
	"fmt"

	"hsmauthd/crypto"
)

// ServerResponse wraps a response body together with a signature over its
// JSON encoding, produced with this server's own response key. That key is
// stored by the server itself and is not published through or authorized
// by the HSM key log.
type ServerResponse[T any] struct {
	Body      T      `json:"body"`
	Signature string `json:"signature"`
}

// Sign encodes body and signs it with key, returning the wrapped response.
func Sign[T any](body T, key *crypto.PrivateKey) (ServerResponse[T], error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return ServerResponse[T]{}, fmt.Errorf("accessverifier: marshal response body: %w", err)
	}
	sig, err := key.Sign(raw)
	if err != nil {
		return ServerResponse[T]{}, fmt.Errorf("accessverifier: sign response body: %w", err)
	}
	return ServerResponse[T]{Body: body, Signature: sig}, nil
}
