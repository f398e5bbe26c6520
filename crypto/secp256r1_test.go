package crypto

import "testing"

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	message := []byte("the quick brown fox jumps over the lazy dog")

	sig, err := key.Sign(message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := Verify(message, sig, key.PublicCESR()); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sig, err := key.Sign([]byte("original"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := Verify([]byte("tampered"), sig, key.PublicCESR()); err != ErrInvalidSignature {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	message := []byte("payload")
	sig, err := key.Sign(message)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := Verify(message, sig, other.PublicCESR()); err != ErrInvalidSignature {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := Verify([]byte("payload"), "0Inotarealsignature", key.PublicCESR()); err != ErrInvalidSignature {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestHexRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	parsed, err := ParsePrivateKeyHex(key.Hex())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if parsed.PublicCESR() != key.PublicCESR() {
		t.Fatalf("public key mismatch after hex round trip")
	}
}
