// Package softhsm is the development key custodian: in-memory storage
// with working keys derived from per-key random IKM via HKDF-SHA-512.
// It honors the same contract as the production provider, including
// zero-overwrite destruction.
package softhsm

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/crypto/envelope"
	"github.com/yungbote/tessera-backend/internal/crypto/shamir"
	"github.com/yungbote/tessera-backend/internal/hsm"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

const (
	handlePrefix = "softhsm:"
	saltPrefix   = "tessera-key:"
	deriveInfo   = "tessera-aes-256-gcm"
)

type storedKey struct {
	keyID string
	ikm   []byte
}

type Provider struct {
	mu   sync.Mutex
	keys map[string]*storedKey
	log  *logger.Logger
}

var _ hsm.Provider = (*Provider)(nil)

func New(baseLog *logger.Logger) *Provider {
	return &Provider{
		keys: make(map[string]*storedKey),
		log:  baseLog.With("provider", "SoftHSM"),
	}
}

func (p *Provider) GenerateKey(ctx context.Context, organizationID, documentID, setIdentifier string) (hsm.KeyInfo, error) {
	if err := ctx.Err(); err != nil {
		return hsm.KeyInfo{}, err
	}

	ikm := make([]byte, 32)
	if _, err := rand.Read(ikm); err != nil {
		return hsm.KeyInfo{}, fmt.Errorf("generate ikm: %w", err)
	}

	keyID := uuid.NewString()
	handle := handlePrefix + uuid.NewString()

	p.mu.Lock()
	p.keys[handle] = &storedKey{keyID: keyID, ikm: ikm}
	p.mu.Unlock()

	p.log.Debug("generated key",
		"key_id", keyID,
		"organization_id", organizationID,
		"document_id", documentID,
		"set_identifier", setIdentifier,
	)
	return hsm.KeyInfo{Handle: handle, KeyID: keyID}, nil
}

func (p *Provider) KeyMaterial(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	k, ok := p.keys[handle]
	p.mu.Unlock()
	if !ok {
		return nil, hsm.ErrUnknownHandle
	}

	return deriveWorkingKey(k)
}

func (p *Provider) DestroyKey(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	k, ok := p.keys[handle]
	if !ok {
		return nil
	}
	envelope.Wipe(k.ikm)
	delete(p.keys, handle)
	p.log.Debug("destroyed key", "key_id", k.keyID)
	return nil
}

func (p *Provider) SplitKey(ctx context.Context, handle string, threshold, total int, holderIDs []string) ([]hsm.Share, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(holderIDs) != total {
		return nil, fmt.Errorf("%w: %d holders for %d shares", hsm.ErrHolderMismatch, len(holderIDs), total)
	}

	key, err := p.KeyMaterial(ctx, handle)
	if err != nil {
		return nil, err
	}
	defer envelope.Wipe(key)

	raw, err := shamir.Split(key, threshold, total)
	if err != nil {
		return nil, fmt.Errorf("split key: %w", err)
	}

	shares := make([]hsm.Share, len(raw))
	for i, s := range raw {
		shares[i] = hsm.Share{Index: s.Index, Value: s.Value, HolderID: holderIDs[i]}
	}
	return shares, nil
}

func (p *Provider) CombineKey(ctx context.Context, shares []hsm.Share, threshold int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := make([]shamir.Share, len(shares))
	for i, s := range shares {
		raw[i] = shamir.Share{Index: s.Index, Value: s.Value}
	}
	key, err := shamir.Combine(raw, threshold)
	if err != nil {
		return nil, fmt.Errorf("combine key: %w", err)
	}
	return key, nil
}

// Close wipes every retained IKM buffer. The provider is unusable
// afterwards.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for handle, k := range p.keys {
		envelope.Wipe(k.ikm)
		delete(p.keys, handle)
	}
}

func deriveWorkingKey(k *storedKey) ([]byte, error) {
	salt := []byte(saltPrefix + k.keyID)
	key, err := envelope.DeriveKey(k.ikm, salt, []byte(deriveInfo), envelope.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive working key: %w", err)
	}
	return key, nil
}
