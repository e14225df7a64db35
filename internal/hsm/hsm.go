// Package hsm defines the key-custody boundary. Key material exists
// outside a provider only as short-lived buffers returned by
// KeyMaterial, which callers must wipe after use; persisted records
// reference keys by opaque handle only.
package hsm

import (
	"context"
	"errors"
)

var (
	ErrUnknownHandle  = errors.New("hsm: unknown key handle")
	ErrUnavailable    = errors.New("hsm: provider unavailable")
	ErrHolderMismatch = errors.New("hsm: holder list length must equal total shares")
)

// Share is one Shamir share of a key together with the identifier of
// the party it is destined for. Index runs 1..N; index 0 is reserved.
type Share struct {
	Index    byte
	Value    []byte
	HolderID string
}

// KeyInfo names a generated key. Handle is the provider-scoped locator;
// KeyID is the stable identifier recorded alongside envelopes.
type KeyInfo struct {
	Handle string
	KeyID  string
}

// Provider is the capability set every key custodian implements.
type Provider interface {
	// GenerateKey creates a fresh AES-256 key scoped to one content set
	// of one document and returns its handle and key id.
	GenerateKey(ctx context.Context, organizationID, documentID, setIdentifier string) (KeyInfo, error)

	// KeyMaterial returns a fresh 32-byte copy of the working key. The
	// caller is contractually required to zero the buffer after use.
	KeyMaterial(ctx context.Context, handle string) ([]byte, error)

	// DestroyKey zero-overwrites the stored material before deletion.
	// Destroying an already-destroyed or unknown handle succeeds.
	DestroyKey(ctx context.Context, handle string) error

	// SplitKey splits the working key into total shares with the given
	// threshold, one share per holder.
	SplitKey(ctx context.Context, handle string, threshold, total int, holderIDs []string) ([]Share, error)

	// CombineKey reconstructs the working key from at least threshold
	// shares. The caller wipes the returned buffer.
	CombineKey(ctx context.Context, shares []Share, threshold int) ([]byte, error)
}
