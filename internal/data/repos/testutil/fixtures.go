package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/tessera-backend/internal/domain"
)

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, organizationID uuid.UUID, status string) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Title:          "doc",
		Status:         status,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedApprovedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, documentID uuid.UUID) *types.MarkupSession {
	tb.Helper()
	now := time.Now().UTC()
	approver := uuid.New()
	s := &types.MarkupSession{
		ID:         uuid.New(),
		DocumentID: documentID,
		Status:     types.SessionStatusApproved,
		ApprovedBy: &approver,
		ApprovedAt: &now,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed markup session: %v", err)
	}
	return s
}

func SeedAssignment(tb testing.TB, ctx context.Context, tx *gorm.DB, sessionID, documentID uuid.UUID, setIdentifier, blockID string, start, end *int, text string) *types.ApprovedAssignment {
	tb.Helper()
	a := &types.ApprovedAssignment{
		ID:            uuid.New(),
		SessionID:     sessionID,
		DocumentID:    documentID,
		SetIdentifier: setIdentifier,
		BlockID:       blockID,
		StartOffset:   start,
		EndOffset:     end,
		SelectedText:  text,
		PageNumber:    1,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed assignment: %v", err)
	}
	return a
}

func SeedSecurityProfile(tb testing.TB, ctx context.Context, tx *gorm.DB, organizationID uuid.UUID, threshold, total int) *types.SecurityProfile {
	tb.Helper()
	p := &types.SecurityProfile{
		ID:                    uuid.New(),
		OrganizationID:        organizationID,
		ShamirThreshold:       threshold,
		ShamirTotalShares:     total,
		StorageTier:           types.TierOne,
		MarkerWidth:           3,
		AuthzProvider:         types.ProviderConventional,
		ShareHolderIDs:        datatypes.JSON([]byte(`[]`)),
		PersistShareData:      true,
		CachedAuthzTTLSeconds: 300,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed security profile: %v", err)
	}
	return p
}

func SeedAccessLevel(tb testing.TB, ctx context.Context, tx *gorm.DB, organizationID uuid.UUID, name string, setIdentifiers ...string) *types.AccessLevel {
	tb.Helper()
	l := &types.AccessLevel{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Name:           name,
		IsActive:       true,
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed access level: %v", err)
	}
	for _, set := range setIdentifiers {
		row := &types.AccessLevelContentSet{
			ID:            uuid.New(),
			AccessLevelID: l.ID,
			SetIdentifier: set,
		}
		if err := tx.WithContext(ctx).Create(row).Error; err != nil {
			tb.Fatalf("seed access level content set: %v", err)
		}
	}
	return l
}

func SeedGrant(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, documentID, accessLevelID, organizationID uuid.UUID) *types.AccessGrant {
	tb.Helper()
	g := &types.AccessGrant{
		ID:             uuid.New(),
		UserID:         userID,
		DocumentID:     documentID,
		AccessLevelID:  accessLevelID,
		OrganizationID: organizationID,
		GrantedAt:      time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed access grant: %v", err)
	}
	return g
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }

func PtrInt(v int) *int { return &v }
