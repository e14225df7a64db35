package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	accessrepo "github.com/yungbote/tessera-backend/internal/data/repos/access"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/envutil"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

type ComposedConfig struct {
	VerifierEndpoint string
	APIKey           string
	Timeout          time.Duration
}

func ComposedConfigFromEnv() ComposedConfig {
	timeoutSec := envutil.Int("PROOF_VERIFIER_TIMEOUT_SECONDS", 10)
	return ComposedConfig{
		VerifierEndpoint: strings.TrimSpace(os.Getenv("PROOF_VERIFIER_ENDPOINT")),
		APIKey:           strings.TrimSpace(os.Getenv("PROOF_VERIFIER_API_KEY")),
		Timeout:          time.Duration(timeoutSec) * time.Second,
	}
}

// ComposedProvider layers an external proof verifier on top of the
// conventional entitlement check. When the verifier is unreachable, a
// recent positive proof cached in Redis keeps tier_2 sessions alive;
// tier_3 organizations require a live verification on every request.
// Without a usable cached proof the request is denied, never silently
// granted.
type ComposedProvider struct {
	cfg          ComposedConfig
	entitlements *ConventionalProvider
	profiles     accessrepo.SecurityProfileRepo
	cache        *goredis.Client
	httpClient   *http.Client
	log          *logger.Logger
}

func NewComposedProvider(
	cfg ComposedConfig,
	entitlements *ConventionalProvider,
	profiles accessrepo.SecurityProfileRepo,
	cache *goredis.Client,
	baseLog *logger.Logger,
) (*ComposedProvider, error) {
	if strings.TrimSpace(cfg.VerifierEndpoint) == "" {
		return nil, fmt.Errorf("missing PROOF_VERIFIER_ENDPOINT")
	}
	cfg.VerifierEndpoint = strings.TrimRight(strings.TrimSpace(cfg.VerifierEndpoint), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ComposedProvider{
		cfg:          cfg,
		entitlements: entitlements,
		profiles:     profiles,
		cache:        cache,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		log:          baseLog.With("provider", "ComposedProvider"),
	}, nil
}

func (p *ComposedProvider) Name() string { return types.ProviderComposed }

type proofRequest struct {
	UserID         string `json:"user_id"`
	DocumentID     string `json:"document_id"`
	AccessLevelID  string `json:"access_level_id"`
	OrganizationID string `json:"organization_id"`
	AccessType     string `json:"access_type"`
}

type proofResponse struct {
	Valid    bool   `json:"valid"`
	ProofRef string `json:"proof_ref,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (p *ComposedProvider) Authorize(dbc dbctx.Context, req Request) (*Result, error) {
	ent, err := p.entitlements.Authorize(dbc, req)
	if err != nil {
		return nil, err
	}
	if !ent.Granted {
		// Entitlement failures are final; the proof layer cannot widen
		// access.
		ent.Provider = p.Name()
		return ent, nil
	}

	var profile *types.SecurityProfile
	if p.cache != nil {
		profile = p.lookupProfile(dbc, req)
	}

	proof, verifyErr := p.verify(dbc.Ctx, req)
	if verifyErr == nil {
		if !proof.Valid {
			p.log.Info("proof verification rejected",
				"user_id", req.UserID.String(),
				"document_id", req.DocumentID.String(),
				"reason", proof.Reason,
			)
			return &Result{
				Granted:      false,
				Provider:     p.Name(),
				DenialReason: DenialProofFailed,
				AuditMetadata: map[string]interface{}{
					"access_type":     req.AccessType,
					"verifier_reason": proof.Reason,
				},
			}, nil
		}
		p.cachePositive(dbc.Ctx, req, profile, proof.ProofRef)
		return p.granted(ent, proof.ProofRef, false), nil
	}

	// Verifier unreachable: a recent cached positive proof carries
	// tier_2 organizations through the outage; tier_3 fails closed.
	if fallbackEligible(profile) {
		if ref, ok := p.cachedProof(dbc.Ctx, req); ok {
			p.log.Warn("proof verifier unreachable, honoring cached proof",
				"user_id", req.UserID.String(),
				"document_id", req.DocumentID.String(),
				"error", verifyErr,
			)
			return p.granted(ent, ref, true), nil
		}
	}

	p.log.Warn("proof verifier unreachable, no cached proof",
		"user_id", req.UserID.String(),
		"document_id", req.DocumentID.String(),
		"error", verifyErr,
	)
	return &Result{
		Granted:      false,
		Provider:     p.Name(),
		DenialReason: DenialProviderUnavailable,
		AuditMetadata: map[string]interface{}{
			"access_type":    req.AccessType,
			"verifier_error": verifyErr.Error(),
		},
	}, nil
}

func (p *ComposedProvider) granted(ent *Result, proofRef string, cached bool) *Result {
	meta := map[string]interface{}{
		"proof_ref": proofRef,
	}
	for k, v := range ent.AuditMetadata {
		meta[k] = v
	}
	if cached {
		meta["cached_proof"] = true
	}
	return &Result{
		Granted:        true,
		ContentSetRefs: ent.ContentSetRefs,
		Provider:       p.Name(),
		AuditMetadata:  meta,
	}
}

func (p *ComposedProvider) verify(ctx context.Context, req Request) (*proofResponse, error) {
	body := proofRequest{
		UserID:         req.UserID.String(),
		DocumentID:     req.DocumentID.String(),
		AccessLevelID:  req.AccessLevelID.String(),
		OrganizationID: req.OrganizationID.String(),
		AccessType:     req.AccessType,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.VerifierEndpoint+"/v1/verify", &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("verifier http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out proofResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode verifier response: %w", err)
	}
	return &out, nil
}

func (p *ComposedProvider) cacheKey(req Request) string {
	return fmt.Sprintf("authz:proof:%s:%s:%s:%s:%s",
		req.OrganizationID, req.UserID, req.DocumentID, req.AccessLevelID, req.AccessType)
}

func (p *ComposedProvider) cachePositive(ctx context.Context, req Request, profile *types.SecurityProfile, proofRef string) {
	if p.cache == nil || !fallbackEligible(profile) {
		return
	}
	ttl := cacheTTL(profile)
	if ttl <= 0 {
		return
	}
	if err := p.cache.Set(ctx, p.cacheKey(req), proofRef, ttl).Err(); err != nil {
		p.log.Warn("proof cache write failed", "error", err)
	}
}

func (p *ComposedProvider) cachedProof(ctx context.Context, req Request) (string, bool) {
	if p.cache == nil {
		return "", false
	}
	val, err := p.cache.Get(ctx, p.cacheKey(req)).Result()
	if err != nil {
		if err != goredis.Nil {
			p.log.Warn("proof cache read failed", "error", err)
		}
		return "", false
	}
	return val, true
}

func (p *ComposedProvider) lookupProfile(dbc dbctx.Context, req Request) *types.SecurityProfile {
	if p.profiles == nil {
		return nil
	}
	profile, err := p.profiles.GetByOrganizationID(dbc, req.OrganizationID)
	if err != nil {
		p.log.Warn("security profile lookup failed", "error", err)
		return nil
	}
	return profile
}

// fallbackEligible reports whether a cached proof may stand in for a
// live verification. Tier_3 never accepts a cached proof; an absent
// profile keeps the permissive default.
func fallbackEligible(profile *types.SecurityProfile) bool {
	return profile == nil || profile.StorageTier != types.TierThree
}

func cacheTTL(profile *types.SecurityProfile) time.Duration {
	if profile == nil {
		return 300 * time.Second
	}
	if profile.CachedAuthzTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(profile.CachedAuthzTTLSeconds) * time.Second
}
