// Package vaulthsm is the production key custodian, backed by a
// HashiCorp Vault KV v2 mount. Handles map to KV paths; destruction
// zero-overwrites the stored material before removing every version.
package vaulthsm

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/vault/api"

	"github.com/yungbote/tessera-backend/internal/crypto/envelope"
	"github.com/yungbote/tessera-backend/internal/crypto/shamir"
	"github.com/yungbote/tessera-backend/internal/hsm"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

const (
	handlePrefix = "vault:"
	saltPrefix   = "tessera-key:"
	deriveInfo   = "tessera-aes-256-gcm"
)

type Config struct {
	Address  string
	Token    string
	Mount    string
	BasePath string
	Timeout  time.Duration
}

type Provider struct {
	client   *api.Client
	mount    string
	basePath string
	log      *logger.Logger
}

var _ hsm.Provider = (*Provider)(nil)

func New(cfg Config, baseLog *logger.Logger) (*Provider, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vaulthsm: address is required")
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "tessera/keys"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	vaultCfg := api.DefaultConfig()
	vaultCfg.Address = cfg.Address
	vaultCfg.Timeout = cfg.Timeout

	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Provider{
		client:   client,
		mount:    strings.TrimSuffix(cfg.Mount, "/"),
		basePath: strings.Trim(cfg.BasePath, "/"),
		log:      baseLog.With("provider", "VaultHSM"),
	}, nil
}

// Ping verifies the mount is reachable, initialized, and unsealed.
func (p *Provider) Ping(ctx context.Context) error {
	health, err := p.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", hsm.ErrUnavailable, err)
	}
	if !health.Initialized || health.Sealed {
		return fmt.Errorf("%w: initialized=%t sealed=%t", hsm.ErrUnavailable, health.Initialized, health.Sealed)
	}
	return nil
}

func (p *Provider) GenerateKey(ctx context.Context, organizationID, documentID, setIdentifier string) (hsm.KeyInfo, error) {
	ikm := make([]byte, 32)
	if _, err := rand.Read(ikm); err != nil {
		return hsm.KeyInfo{}, fmt.Errorf("generate ikm: %w", err)
	}
	defer envelope.Wipe(ikm)

	keyID := uuid.NewString()
	relPath := fmt.Sprintf("%s/%s/%s/%s/%s", p.basePath, organizationID, documentID, setIdentifier, keyID)

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"ikm":    base64.StdEncoding.EncodeToString(ikm),
			"key_id": keyID,
		},
	}
	if _, err := p.client.Logical().WriteWithContext(ctx, p.dataPath(relPath), payload); err != nil {
		return hsm.KeyInfo{}, fmt.Errorf("%w: %v", hsm.ErrUnavailable, err)
	}

	p.log.Debug("generated key",
		"key_id", keyID,
		"organization_id", organizationID,
		"document_id", documentID,
		"set_identifier", setIdentifier,
	)
	return hsm.KeyInfo{Handle: handlePrefix + relPath, KeyID: keyID}, nil
}

func (p *Provider) KeyMaterial(ctx context.Context, handle string) ([]byte, error) {
	relPath, err := parseHandle(handle)
	if err != nil {
		return nil, err
	}

	ikm, keyID, err := p.readKey(ctx, relPath)
	if err != nil {
		return nil, err
	}
	defer envelope.Wipe(ikm)

	key, err := envelope.DeriveKey(ikm, []byte(saltPrefix+keyID), []byte(deriveInfo), envelope.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive working key: %w", err)
	}
	return key, nil
}

func (p *Provider) DestroyKey(ctx context.Context, handle string) error {
	relPath, err := parseHandle(handle)
	if err != nil {
		return err
	}

	ikm, _, err := p.readKey(ctx, relPath)
	if err != nil {
		if errors.Is(err, hsm.ErrUnknownHandle) {
			return nil
		}
		return err
	}
	envelope.Wipe(ikm)

	// Overwrite with a zeroed version first, then drop every version via
	// the metadata path.
	zeroed := map[string]interface{}{
		"data": map[string]interface{}{
			"ikm":    base64.StdEncoding.EncodeToString(make([]byte, 32)),
			"key_id": "",
		},
	}
	if _, err := p.client.Logical().WriteWithContext(ctx, p.dataPath(relPath), zeroed); err != nil {
		return fmt.Errorf("%w: %v", hsm.ErrUnavailable, err)
	}
	if _, err := p.client.Logical().DeleteWithContext(ctx, p.metadataPath(relPath)); err != nil {
		return fmt.Errorf("%w: %v", hsm.ErrUnavailable, err)
	}
	p.log.Debug("destroyed key", "handle_path", relPath)
	return nil
}

func (p *Provider) SplitKey(ctx context.Context, handle string, threshold, total int, holderIDs []string) ([]hsm.Share, error) {
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

func (p *Provider) readKey(ctx context.Context, relPath string) (ikm []byte, keyID string, err error) {
	secret, err := p.client.Logical().ReadWithContext(ctx, p.dataPath(relPath))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", hsm.ErrUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, "", hsm.ErrUnknownHandle
	}

	inner, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, "", hsm.ErrUnknownHandle
	}
	encoded, ok := inner["ikm"].(string)
	if !ok || encoded == "" {
		return nil, "", hsm.ErrUnknownHandle
	}
	keyID, _ = inner["key_id"].(string)
	if keyID == "" {
		return nil, "", hsm.ErrUnknownHandle
	}

	ikm, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decode ikm: %w", err)
	}
	return ikm, keyID, nil
}

func (p *Provider) dataPath(relPath string) string {
	return fmt.Sprintf("%s/data/%s", p.mount, relPath)
}

func (p *Provider) metadataPath(relPath string) string {
	return fmt.Sprintf("%s/metadata/%s", p.mount, relPath)
}

func parseHandle(handle string) (string, error) {
	if !strings.HasPrefix(handle, handlePrefix) {
		return "", fmt.Errorf("%w: %q", hsm.ErrUnknownHandle, handle)
	}
	relPath := strings.TrimPrefix(handle, handlePrefix)
	if relPath == "" {
		return "", fmt.Errorf("%w: empty path", hsm.ErrUnknownHandle)
	}
	return relPath, nil
}
