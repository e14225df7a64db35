package envelope

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HashHex returns the hex-encoded SHA-512 digest of b (128 characters).
func HashHex(b []byte) string {
	sum := sha512.Sum512(b)
	return hex.EncodeToString(sum[:])
}

// DeriveKey runs HKDF-SHA-512 over ikm with the given salt and info and
// returns length bytes of output keying material.
func DeriveKey(ikm, salt, info []byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("derive key: non-positive length %d", length)
	}
	out := make([]byte, length)
	r := hkdf.New(sha512.New, ikm, salt, info)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return out, nil
}

// Wipe zero-overwrites b. Callers holding key material run it on every
// exit path.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
