package documents

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"approved to deconstructing", StatusApproved, StatusDeconstructing, true},
		{"deconstructing to active", StatusDeconstructing, StatusActive, true},
		{"deconstructing rewinds to approved", StatusDeconstructing, StatusApproved, true},
		{"active to destroying", StatusActive, StatusDestroying, true},
		{"destroying to destroyed", StatusDestroying, StatusDestroyed, true},
		{"destroying rewinds to active", StatusDestroying, StatusActive, true},
		{"intake cannot deconstruct", StatusIntake, StatusDeconstructing, false},
		{"markup cannot deconstruct", StatusMarkup, StatusDeconstructing, false},
		{"review cannot deconstruct", StatusReview, StatusDeconstructing, false},
		{"active cannot re-deconstruct", StatusActive, StatusDeconstructing, false},
		{"approved cannot skip to active", StatusApproved, StatusActive, false},
		{"approved cannot destroy", StatusApproved, StatusDestroying, false},
		{"destroyed is terminal", StatusDestroyed, StatusActive, false},
		{"destroyed cannot destroy again", StatusDestroyed, StatusDestroying, false},
		{"no self transition", StatusActive, StatusActive, false},
		{"unknown source", "bogus", StatusActive, false},
		{"unknown target", StatusActive, "bogus", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestValidateTransition(t *testing.T) {
	if err := ValidateTransition(StatusApproved, StatusDeconstructing); err != nil {
		t.Fatalf("valid transition returned error: %v", err)
	}
	err := ValidateTransition(StatusDestroyed, StatusActive)
	if err == nil {
		t.Fatal("expected error for transition out of destroyed")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
}
