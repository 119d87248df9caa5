package policy

import (
	"errors"
	"testing"
)

func TestDecideAllowsWithoutError(t *testing.T) {
	for _, kind := range []ActionKind{ActionSettlement, ActionGovernanceWrite, ActionListingRead, ActionSignalRecord} {
		d := Decide(kind, nil)
		if !d.Allow {
			t.Fatalf("kind %s should allow when no infra error", kind)
		}
		if d.Reason != "" {
			t.Fatalf("kind %s unexpected reason %q", kind, d.Reason)
		}
	}
}

func TestDecideFailClosed(t *testing.T) {
	infra := errors.New("risk state unavailable")
	for _, kind := range []ActionKind{ActionSettlement, ActionGovernanceWrite} {
		d := Decide(kind, infra)
		if d.Allow {
			t.Fatalf("kind %s must fail closed", kind)
		}
		if d.Reason == "" {
			t.Fatalf("kind %s should carry a reason", kind)
		}
	}
}

func TestDecideFailOpen(t *testing.T) {
	infra := errors.New("counter store unavailable")
	for _, kind := range []ActionKind{ActionListingRead, ActionSignalRecord} {
		d := Decide(kind, infra)
		if !d.Allow {
			t.Fatalf("kind %s must fail open", kind)
		}
	}
}

func TestDecideUnknownKindFailsClosed(t *testing.T) {
	if d := Decide("something_else", errors.New("boom")); d.Allow {
		t.Fatal("unknown kinds must fail closed")
	}
}
