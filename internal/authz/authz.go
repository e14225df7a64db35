package authz

import (
	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
)

const (
	AccessTypeReconstruct = "reconstruct"
	AccessTypeExport      = "export"
)

// Denial reasons carried on a negative decision and into the audit
// trail.
const (
	DenialNoGrant             = "no_grant"
	DenialExpired             = "expired"
	DenialRevoked             = "revoked"
	DenialLevelInactive       = "level_inactive"
	DenialProofFailed         = "proof_failed"
	DenialProviderUnavailable = "provider_unavailable"
)

// Request is one authorization question: may this user perform this
// access against this document at this access level.
type Request struct {
	UserID         uuid.UUID
	DocumentID     uuid.UUID
	AccessLevelID  uuid.UUID
	OrganizationID uuid.UUID
	AccessType     string
}

// Result is the provider's decision. ContentSetRefs lists the content
// set identifiers the access level authorizes; on denial it is empty
// and DenialReason is set.
type Result struct {
	Granted        bool
	ContentSetRefs []string
	Provider       string
	DenialReason   string
	AuditMetadata  map[string]interface{}
}

// Provider answers authorization requests. A denial is a Result with
// Granted false, not an error; errors mean the provider itself could
// not decide.
type Provider interface {
	Name() string
	Authorize(dbc dbctx.Context, req Request) (*Result, error)
}

// DeniedError is what engines return to callers after recording a
// negative decision.
type DeniedError struct {
	Reason   string
	Provider string
}

func (e *DeniedError) Error() string {
	return "authorization denied: " + e.Reason
}

// Registry maps provider names from security profiles to
// implementations.
type Registry struct {
	providers map[string]Provider
	fallback  Provider
}

func NewRegistry(fallback Provider) *Registry {
	r := &Registry{
		providers: map[string]Provider{},
		fallback:  fallback,
	}
	if fallback != nil {
		r.providers[fallback.Name()] = fallback
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Resolve returns the provider registered under name, or the fallback
// when the name is unknown or empty.
func (r *Registry) Resolve(name string) Provider {
	if p, ok := r.providers[name]; ok {
		return p
	}
	return r.fallback
}
