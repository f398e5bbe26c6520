package keylog

import "time"

// Purpose values honoured by the key log.
const (
	PurposeKeyAuthorization = "key-authorization"
	PurposeAccess           = "access"
)

// LogEntry is one link in the HSM key log.
type LogEntry struct {
	ID             string    `json:"id"`
	Prefix         string    `json:"prefix"`
	Previous       string    `json:"previous,omitempty"`
	SequenceNumber int       `json:"sequenceNumber"`
	CreatedAt      time.Time `json:"createdAt"`
	Purpose        string    `json:"purpose"`
	PublicKey      string    `json:"publicKey"`
	RotationHash   string    `json:"rotationHash"`
	TaintPrevious  bool      `json:"taintPrevious,omitempty"`
}

// SignedLogEntry pairs a LogEntry with the CESR-ECDSA-P256 signature
// computed over the raw JSON bytes of Payload.
type SignedLogEntry struct {
	Payload   LogEntry `json:"payload"`
	Signature string   `json:"signature"`
}
