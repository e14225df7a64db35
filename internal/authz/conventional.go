package authz

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	accessrepo "github.com/yungbote/tessera-backend/internal/data/repos/access"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

// ConventionalProvider decides from persisted grants and access
// levels. It is the default provider and the entitlement half of the
// composed-proof provider.
type ConventionalProvider struct {
	grants   accessrepo.AccessGrantRepo
	levels   accessrepo.AccessLevelRepo
	levelSet accessrepo.AccessLevelContentSetRepo
	log      *logger.Logger
}

func NewConventionalProvider(
	grants accessrepo.AccessGrantRepo,
	levels accessrepo.AccessLevelRepo,
	levelSet accessrepo.AccessLevelContentSetRepo,
	baseLog *logger.Logger,
) *ConventionalProvider {
	return &ConventionalProvider{
		grants:   grants,
		levels:   levels,
		levelSet: levelSet,
		log:      baseLog.With("provider", "ConventionalProvider"),
	}
}

func (p *ConventionalProvider) Name() string { return types.ProviderConventional }

func (p *ConventionalProvider) Authorize(dbc dbctx.Context, req Request) (*Result, error) {
	now := time.Now().UTC()

	grants, err := p.grants.GetForDecision(dbc, req.UserID, req.DocumentID, req.AccessLevelID)
	if err != nil {
		return nil, fmt.Errorf("load grants: %w", err)
	}

	var usable *types.AccessGrant
	for _, g := range grants {
		if g.OrganizationID != req.OrganizationID {
			continue
		}
		if g.Usable(now) {
			usable = g
			break
		}
	}
	if usable == nil {
		return p.deny(classifyGrants(grants, req.OrganizationID, now), req), nil
	}

	level, err := p.levels.GetByID(dbc, req.AccessLevelID)
	if err != nil {
		return nil, fmt.Errorf("load access level: %w", err)
	}
	if level == nil || !level.IsActive || level.OrganizationID != req.OrganizationID {
		return p.deny(DenialLevelInactive, req), nil
	}

	rows, err := p.levelSet.GetByAccessLevelID(dbc, level.ID)
	if err != nil {
		return nil, fmt.Errorf("load level content sets: %w", err)
	}
	refs := make([]string, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, row.SetIdentifier)
	}

	return &Result{
		Granted:        true,
		ContentSetRefs: refs,
		Provider:       p.Name(),
		AuditMetadata: map[string]interface{}{
			"grant_id":   usable.ID.String(),
			"granted_at": usable.GrantedAt.UTC().Format(time.RFC3339),
			"level_name": level.Name,
		},
	}, nil
}

func (p *ConventionalProvider) deny(reason string, req Request) *Result {
	p.log.Info("authorization denied",
		"reason", reason,
		"user_id", req.UserID.String(),
		"document_id", req.DocumentID.String(),
		"access_level_id", req.AccessLevelID.String(),
	)
	return &Result{
		Granted:      false,
		Provider:     p.Name(),
		DenialReason: reason,
		AuditMetadata: map[string]interface{}{
			"access_type": req.AccessType,
		},
	}
}

// classifyGrants picks the most specific denial reason: a revoked or
// expired grant is reported as such, absence as no_grant.
func classifyGrants(grants []*types.AccessGrant, organizationID uuid.UUID, now time.Time) string {
	reason := DenialNoGrant
	for _, g := range grants {
		if g.OrganizationID != organizationID {
			continue
		}
		if g.RevokedAt != nil {
			return DenialRevoked
		}
		if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
			reason = DenialExpired
		}
	}
	return reason
}
