// Package envelope implements the authenticated encryption container
// used for content-set payloads: AES-256-GCM with the content-set
// identifier as AAD, SHA-512 integrity hashes on both sides of the
// cipher, and a versioned JSON codec for persistence.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
	// Algorithm identifies the only cipher this container supports.
	Algorithm = "aes-256-gcm"
	// SchemaVersion is the current envelope codec version.
	SchemaVersion = 1
)

var (
	ErrInvalidKeyLength    = errors.New("envelope: key must be 32 bytes")
	ErrRandomSource        = errors.New("envelope: random source failure")
	ErrCiphertextIntegrity = errors.New("envelope: ciphertext hash mismatch")
	ErrAeadAuthentication  = errors.New("envelope: authenticated decryption failed")
	ErrPlaintextIntegrity  = errors.New("envelope: plaintext hash mismatch")
	ErrMalformed           = errors.New("envelope: malformed envelope")
)

// Envelope is one encrypted content-set payload. IV, AuthTag and
// Ciphertext are raw bytes (base64 in the JSON encoding); the hashes are
// hex-encoded SHA-512.
type Envelope struct {
	SchemaVersion  int       `json:"schema_version"`
	ContentSetID   string    `json:"content_set_identifier"`
	IV             []byte    `json:"iv"`
	AuthTag        []byte    `json:"auth_tag"`
	Ciphertext     []byte    `json:"ciphertext"`
	PlaintextHash  string    `json:"plaintext_hash"`
	CiphertextHash string    `json:"ciphertext_hash"`
	KeyID          string    `json:"key_id"`
	Algorithm      string    `json:"algorithm"`
	EncryptedAt    time.Time `json:"encrypted_at"`
}

// Validate checks structural well-formedness, not cryptographic
// integrity.
func (e *Envelope) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: nil", ErrMalformed)
	case e.SchemaVersion != SchemaVersion:
		return fmt.Errorf("%w: unsupported schema version %d", ErrMalformed, e.SchemaVersion)
	case e.Algorithm != Algorithm:
		return fmt.Errorf("%w: unsupported algorithm %q", ErrMalformed, e.Algorithm)
	case len(e.IV) != NonceSize:
		return fmt.Errorf("%w: iv is %d bytes, want %d", ErrMalformed, len(e.IV), NonceSize)
	case len(e.AuthTag) != TagSize:
		return fmt.Errorf("%w: auth tag is %d bytes, want %d", ErrMalformed, len(e.AuthTag), TagSize)
	case len(e.Ciphertext) == 0:
		return fmt.Errorf("%w: empty ciphertext", ErrMalformed)
	case e.ContentSetID == "":
		return fmt.Errorf("%w: empty content set identifier", ErrMalformed)
	}
	return nil
}

// Encode serializes the envelope for storage.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a stored envelope and validates its shape.
func Decode(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Seal encrypts plaintext under key with a fresh random nonce. The
// content-set identifier is bound as AAD, so an envelope cannot be
// replayed under another set.
func Seal(plaintext, key []byte, keyID, contentSetID string) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	iv := make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, []byte(contentSetID))
	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	return &Envelope{
		SchemaVersion:  SchemaVersion,
		ContentSetID:   contentSetID,
		IV:             iv,
		AuthTag:        tag,
		Ciphertext:     ciphertext,
		PlaintextHash:  HashHex(plaintext),
		CiphertextHash: HashHex(ciphertext),
		KeyID:          keyID,
		Algorithm:      Algorithm,
		EncryptedAt:    time.Now().UTC(),
	}, nil
}

// Open decrypts an envelope, verifying in order: the stored ciphertext
// hash, the GCM tag with the set identifier as AAD, and the stored
// plaintext hash. The first failing stage decides the returned error.
func Open(e *Envelope, key []byte) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}

	if HashHex(e.Ciphertext) != e.CiphertextHash {
		return nil, ErrCiphertextIntegrity
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	sealed := make([]byte, 0, len(e.Ciphertext)+TagSize)
	sealed = append(sealed, e.Ciphertext...)
	sealed = append(sealed, e.AuthTag...)

	plaintext, err := gcm.Open(nil, e.IV, sealed, []byte(e.ContentSetID))
	if err != nil {
		return nil, ErrAeadAuthentication
	}

	if HashHex(plaintext) != e.PlaintextHash {
		Wipe(plaintext)
		return nil, ErrPlaintextIntegrity
	}
	return plaintext, nil
}

// Reseal decrypts with oldKey (all three verification stages) and
// re-encrypts with newKey under the same content-set identifier. The
// plaintext hash carries over unchanged; IV and ciphertext are fresh.
func Reseal(e *Envelope, oldKey, newKey []byte, newKeyID string) (*Envelope, error) {
	plaintext, err := Open(e, oldKey)
	if err != nil {
		return nil, err
	}
	defer Wipe(plaintext)

	out, err := Seal(plaintext, newKey, newKeyID, e.ContentSetID)
	if err != nil {
		return nil, err
	}
	return out, nil
}
