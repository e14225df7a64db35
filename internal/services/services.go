package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/tessera-backend/internal/data/repos"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/hsm"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
	"github.com/yungbote/tessera-backend/internal/platform/logger"
)

var (
	// ErrPrecondition marks refusals where the document, session, or
	// tenant profile is not in a state the operation accepts.
	ErrPrecondition = errors.New("services: precondition failed")

	// ErrEmptyAssignmentSet is returned when an approved markup session
	// carries nothing to deconstruct.
	ErrEmptyAssignmentSet = errors.New("services: approved session has no assignments")

	// ErrBaseDocumentTampered is returned when the stored base document
	// is missing or no longer matches its recorded hash.
	ErrBaseDocumentTampered = errors.New("services: base document failed integrity verification")
)

// Audit event types. The same names serve as anchor transaction types
// so the on-chain record and the audit trail join on one vocabulary.
const (
	EventDeconstructed        = "document.deconstructed"
	EventReconstructed        = "document.reconstructed"
	EventReconstructionDenied = "reconstruction.denied"
	EventIntegrityVerified    = "integrity.verified"
	EventIntegrityFailure     = "integrity.failure"
	EventKeysRotated          = "keys.rotated"
	EventDocumentDestroyed    = "document.destroyed"
	EventContentSetDestroyed  = "content_set.destroyed"
)

const auditTargetDocument = "document"

// loadProfile resolves the tenant's security profile. Every engine
// decision reads it, so operating without one is never allowed.
func loadProfile(dbc dbctx.Context, profiles repos.SecurityProfileRepo, organizationID uuid.UUID) (*types.SecurityProfile, error) {
	profile, err := profiles.GetByOrganizationID(dbc, organizationID)
	if err != nil {
		return nil, fmt.Errorf("load security profile: %w", err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: no security profile for organization %s", ErrPrecondition, organizationID.String())
	}
	return profile, nil
}

// resolveHolders returns the custody roster for a split into total
// shares. A profile that names holders must name exactly one per
// share; an empty list falls back to positional platform custodians.
func resolveHolders(profile *types.SecurityProfile, total int) ([]string, error) {
	named := profile.HolderIDs()
	if len(named) == 0 {
		holders := make([]string, total)
		for i := range holders {
			holders[i] = fmt.Sprintf("holder-%d", i+1)
		}
		return holders, nil
	}
	if len(named) != total {
		return nil, fmt.Errorf("%w: profile names %d share holders, need %d", ErrPrecondition, len(named), total)
	}
	return named, nil
}

// persistShares records custody metadata for a freshly split key.
// Rows start undistributed; handing shares to their holders happens
// out of band and flips the flag then. Share bytes are stored only
// when the tenant profile opts in.
func persistShares(dbc dbctx.Context, shares repos.KeyShareRepo, keyID uuid.UUID, keyShares []hsm.Share, persistData bool, now time.Time) error {
	rows := make([]*types.KeyShare, 0, len(keyShares))
	for _, sh := range keyShares {
		row := &types.KeyShare{
			ID:         uuid.New(),
			KeyID:      keyID,
			ShareIndex: int(sh.Index),
			HolderID:   sh.HolderID,
			CreatedAt:  now,
		}
		if persistData {
			row.ShareData = sh.Value
		}
		rows = append(rows, row)
	}
	if _, err := shares.Create(dbc, rows); err != nil {
		return fmt.Errorf("persist key shares: %w", err)
	}
	return nil
}

// destroyHandles removes HSM keys outside any transaction. DestroyKey
// is idempotent, so a handle that is already gone is not worth failing
// over; everything else is logged and skipped.
func destroyHandles(keystore hsm.Provider, log *logger.Logger, handles []string) {
	for _, handle := range handles {
		if handle == "" {
			continue
		}
		if err := keystore.DestroyKey(context.Background(), handle); err != nil {
			log.Warn("hsm key destruction failed", "handle", handle, "error", err)
		}
	}
}

// transitionDocument applies one guarded status move inside the
// caller's transaction. A zero-row update means another operation won
// the claim, and the caller's transaction rolls back.
func transitionDocument(dbc dbctx.Context, documents repos.DocumentRepo, documentID uuid.UUID, from, to string) error {
	if err := types.ValidateTransition(from, to); err != nil {
		return err
	}
	moved, err := documents.UpdateStatusWhere(dbc, documentID, from, to)
	if err != nil {
		return fmt.Errorf("move document %s to %s: %w", documentID.String(), to, err)
	}
	if !moved {
		return fmt.Errorf("%w: document %s left %s concurrently", ErrPrecondition, documentID.String(), from)
	}
	return nil
}

// rewindDocument is the rollback arm of a claimed operation. It runs
// after the failed transaction and must not mask the original error,
// so its own failure is only logged.
func rewindDocument(documents repos.DocumentRepo, log *logger.Logger, documentID uuid.UUID, from, to string) {
	dbc := dbctx.Context{Ctx: context.Background()}
	moved, err := documents.UpdateStatusWhere(dbc, documentID, from, to)
	if err != nil || !moved {
		log.Error("status rewind failed",
			"document_id", documentID.String(),
			"from", from,
			"to", to,
			"error", err,
		)
	}
}

// replicaKey is the blob path of one content set's envelope replica.
func replicaKey(organizationID, documentID uuid.UUID, setIdentifier string) string {
	return fmt.Sprintf("org/%s/doc/%s/%s.json", organizationID, documentID, setIdentifier)
}

// replicaPrefix covers every replica of one document.
func replicaPrefix(organizationID, documentID uuid.UUID) string {
	return fmt.Sprintf("org/%s/doc/%s/", organizationID, documentID)
}
