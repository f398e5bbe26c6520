package crypto

import "lukechampine.com/blake3"

// Blake3Sum returns the CESR-encoded ('E' prefix) Blake3 digest of message.
// It is deterministic and pure: the same input always yields the same
// output, and the computation has no side effects.
func Blake3Sum(message []byte) string {
	var digest [32]byte
	sum := blake3.Sum256(message)
	copy(digest[:], sum[:])
	return EncodeBlake3Digest(digest)
}
