package domain

import (
	"github.com/yungbote/tessera-backend/internal/domain/access"
	"github.com/yungbote/tessera-backend/internal/domain/audit"
	"github.com/yungbote/tessera-backend/internal/domain/contentsets"
	"github.com/yungbote/tessera-backend/internal/domain/custody"
	"github.com/yungbote/tessera-backend/internal/domain/documents"
	"github.com/yungbote/tessera-backend/internal/domain/views"
)

const (
	StatusIntake          = documents.StatusIntake
	StatusIntakeFlagged   = documents.StatusIntakeFlagged
	StatusIntakeCleared   = documents.StatusIntakeCleared
	StatusMarkup          = documents.StatusMarkup
	StatusMarkupSubmitted = documents.StatusMarkupSubmitted
	StatusReview          = documents.StatusReview
	StatusReviewEscalated = documents.StatusReviewEscalated
	StatusApproved        = documents.StatusApproved
	StatusDeconstructing  = documents.StatusDeconstructing
	StatusActive          = documents.StatusActive
	StatusDestroying      = documents.StatusDestroying
	StatusDestroyed       = documents.StatusDestroyed

	SessionStatusApproved = documents.SessionStatusApproved

	CategoryArrangement  = audit.CategoryArrangement
	CategoryAccrual      = audit.CategoryAccrual
	CategoryAnticipation = audit.CategoryAnticipation
	CategoryAction       = audit.CategoryAction

	AnchorStatusPending   = audit.AnchorStatusPending
	AnchorStatusSubmitted = audit.AnchorStatusSubmitted
	AnchorStatusFailed    = audit.AnchorStatusFailed

	TierOne   = access.TierOne
	TierTwo   = access.TierTwo
	TierThree = access.TierThree

	PolicyProceed = access.PolicyProceed
	PolicyHalt    = access.PolicyHalt

	ProviderConventional = access.ProviderConventional
	ProviderComposed     = access.ProviderComposed
)

var ErrInvalidTransition = documents.ErrInvalidTransition

func CanTransition(from, to string) bool { return documents.CanTransition(from, to) }

func ValidateTransition(from, to string) error { return documents.ValidateTransition(from, to) }

type Document = documents.Document
type MarkupSession = documents.MarkupSession
type ApprovedAssignment = documents.ApprovedAssignment
type BaseDocument = documents.BaseDocument

type EncryptionKey = custody.EncryptionKey
type KeyShare = custody.KeyShare

type EncryptedContentSet = contentsets.EncryptedContentSet

type AccessLevel = access.AccessLevel
type AccessLevelContentSet = access.AccessLevelContentSet
type AccessGrant = access.AccessGrant
type SecurityProfile = access.SecurityProfile

type AuditEvent = audit.AuditEvent
type AnchorSubmission = audit.AnchorSubmission

type ReconstructionEvent = views.ReconstructionEvent
