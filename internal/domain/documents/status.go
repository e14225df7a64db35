package documents

import (
	"errors"
	"fmt"
)

// Document lifecycle statuses. Intake through review belong to the
// intake and markup collaborators; the engine owns approved onward.
const (
	StatusIntake          = "intake"
	StatusIntakeFlagged   = "intake_flagged"
	StatusIntakeCleared   = "intake_cleared"
	StatusMarkup          = "markup"
	StatusMarkupSubmitted = "markup_submitted"
	StatusReview          = "review"
	StatusReviewEscalated = "review_escalated"
	StatusApproved        = "approved"
	StatusDeconstructing  = "deconstructing"
	StatusActive          = "active"
	StatusDestroying      = "destroying"
	StatusDestroyed       = "destroyed"
)

var ErrInvalidTransition = errors.New("documents: invalid status transition")

// engineTransitions enumerates the transitions the lifecycle engine may
// perform. destroyed is terminal; every status outside this table is
// owned by an upstream collaborator and never a valid engine source.
var engineTransitions = map[string]map[string]bool{
	StatusApproved: {
		StatusDeconstructing: true,
	},
	StatusDeconstructing: {
		StatusActive:   true,
		StatusApproved: true, // rollback
	},
	StatusActive: {
		StatusDestroying: true,
	},
	StatusDestroying: {
		StatusDestroyed: true,
		StatusActive:    true, // rollback
	},
}

// CanTransition reports whether the engine may move a document from one
// status to another.
func CanTransition(from, to string) bool {
	return engineTransitions[from][to]
}

// ValidateTransition returns ErrInvalidTransition (wrapped with the pair)
// when the move is not permitted.
func ValidateTransition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
