package authz

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	accessrepo "github.com/yungbote/tessera-backend/internal/data/repos/access"
	"github.com/yungbote/tessera-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tessera-backend/internal/domain"
	"github.com/yungbote/tessera-backend/internal/platform/dbctx"
)

func newConventionalForTest(t *testing.T) (*ConventionalProvider, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	p := NewConventionalProvider(
		accessrepo.NewAccessGrantRepo(db, log),
		accessrepo.NewAccessLevelRepo(db, log),
		accessrepo.NewAccessLevelContentSetRepo(db, log),
		log,
	)
	return p, dbctx.Context{Ctx: context.Background(), Tx: tx}
}

func TestConventionalProviderGrants(t *testing.T) {
	p, dbc := newConventionalForTest(t)
	ctx := context.Background()

	orgID := uuid.New()
	userID := uuid.New()
	doc := testutil.SeedDocument(t, ctx, dbc.Tx, orgID, types.StatusActive)
	level := testutil.SeedAccessLevel(t, ctx, dbc.Tx, orgID, "analyst", "CS-CONFIDENTIAL", "CS-SECRET")
	testutil.SeedGrant(t, ctx, dbc.Tx, userID, doc.ID, level.ID, orgID)

	res, err := p.Authorize(dbc, Request{
		UserID:         userID,
		DocumentID:     doc.ID,
		AccessLevelID:  level.ID,
		OrganizationID: orgID,
		AccessType:     AccessTypeReconstruct,
	})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !res.Granted {
		t.Fatalf("denied: %s", res.DenialReason)
	}
	if len(res.ContentSetRefs) != 2 {
		t.Fatalf("refs = %v, want 2 sets", res.ContentSetRefs)
	}
	if res.ContentSetRefs[0] != "CS-CONFIDENTIAL" || res.ContentSetRefs[1] != "CS-SECRET" {
		t.Fatalf("refs out of order: %v", res.ContentSetRefs)
	}
	if res.Provider != types.ProviderConventional {
		t.Fatalf("provider = %q", res.Provider)
	}
	if res.AuditMetadata["grant_id"] == "" {
		t.Fatal("missing grant_id in audit metadata")
	}
}

func TestConventionalProviderDenials(t *testing.T) {
	p, dbc := newConventionalForTest(t)
	ctx := context.Background()

	orgID := uuid.New()
	doc := testutil.SeedDocument(t, ctx, dbc.Tx, orgID, types.StatusActive)
	level := testutil.SeedAccessLevel(t, ctx, dbc.Tx, orgID, "analyst", "CS-CONFIDENTIAL")

	authorize := func(userID uuid.UUID, levelID uuid.UUID) *Result {
		t.Helper()
		res, err := p.Authorize(dbc, Request{
			UserID:         userID,
			DocumentID:     doc.ID,
			AccessLevelID:  levelID,
			OrganizationID: orgID,
			AccessType:     AccessTypeReconstruct,
		})
		if err != nil {
			t.Fatalf("Authorize: %v", err)
		}
		return res
	}

	t.Run("no grant", func(t *testing.T) {
		res := authorize(uuid.New(), level.ID)
		if res.Granted || res.DenialReason != DenialNoGrant {
			t.Fatalf("granted=%v reason=%q", res.Granted, res.DenialReason)
		}
	})

	t.Run("revoked grant", func(t *testing.T) {
		userID := uuid.New()
		g := testutil.SeedGrant(t, ctx, dbc.Tx, userID, doc.ID, level.ID, orgID)
		now := time.Now().UTC()
		if err := dbc.Tx.Model(&types.AccessGrant{}).Where("id = ?", g.ID).Update("revoked_at", now).Error; err != nil {
			t.Fatalf("revoke: %v", err)
		}
		res := authorize(userID, level.ID)
		if res.Granted || res.DenialReason != DenialRevoked {
			t.Fatalf("granted=%v reason=%q", res.Granted, res.DenialReason)
		}
	})

	t.Run("expired grant", func(t *testing.T) {
		userID := uuid.New()
		g := testutil.SeedGrant(t, ctx, dbc.Tx, userID, doc.ID, level.ID, orgID)
		past := time.Now().UTC().Add(-time.Hour)
		if err := dbc.Tx.Model(&types.AccessGrant{}).Where("id = ?", g.ID).Update("expires_at", past).Error; err != nil {
			t.Fatalf("expire: %v", err)
		}
		res := authorize(userID, level.ID)
		if res.Granted || res.DenialReason != DenialExpired {
			t.Fatalf("granted=%v reason=%q", res.Granted, res.DenialReason)
		}
	})

	t.Run("inactive level", func(t *testing.T) {
		userID := uuid.New()
		inactive := testutil.SeedAccessLevel(t, ctx, dbc.Tx, orgID, "suspended", "CS-SECRET")
		if err := dbc.Tx.Model(&types.AccessLevel{}).Where("id = ?", inactive.ID).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate level: %v", err)
		}
		testutil.SeedGrant(t, ctx, dbc.Tx, userID, doc.ID, inactive.ID, orgID)
		res := authorize(userID, inactive.ID)
		if res.Granted || res.DenialReason != DenialLevelInactive {
			t.Fatalf("granted=%v reason=%q", res.Granted, res.DenialReason)
		}
	})

	t.Run("grant from another organization", func(t *testing.T) {
		userID := uuid.New()
		otherOrg := uuid.New()
		testutil.SeedGrant(t, ctx, dbc.Tx, userID, doc.ID, level.ID, otherOrg)
		res := authorize(userID, level.ID)
		if res.Granted || res.DenialReason != DenialNoGrant {
			t.Fatalf("granted=%v reason=%q", res.Granted, res.DenialReason)
		}
	})
}
