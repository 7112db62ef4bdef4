package webhooks

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCircuitBreakerSet_OpensAfterThreshold(t *testing.T) {
	id := uuid.New()
	cb := NewCircuitBreakerSet(3, time.Minute)

	for i := 0; i < 2; i++ {
		cb.RecordFailure(id)
		if state := cb.State(id); state != BreakerClosed {
			t.Fatalf("expected closed before threshold, got %s", state)
		}
	}
	cb.RecordFailure(id)
	if state := cb.State(id); state != BreakerOpen {
		t.Fatalf("expected open at threshold, got %s", state)
	}
	if cb.AllowRequest(id) {
		t.Fatal("expected request to be denied while open and within cooldown")
	}
}

func TestCircuitBreakerSet_HalfOpenAfterCooldownThenCloses(t *testing.T) {
	id := uuid.New()
	cb := NewCircuitBreakerSet(1, time.Millisecond)

	cb.RecordFailure(id)
	if state := cb.State(id); state != BreakerOpen {
		t.Fatalf("expected open after single failure at threshold 1, got %s", state)
	}

	time.Sleep(5 * time.Millisecond)
	if !cb.AllowRequest(id) {
		t.Fatal("expected probe to be allowed after cooldown elapses")
	}
	if state := cb.State(id); state != BreakerHalfOpen {
		t.Fatalf("expected half_open after cooldown probe, got %s", state)
	}

	cb.RecordSuccess(id)
	if state := cb.State(id); state != BreakerClosed {
		t.Fatalf("expected closed after successful probe, got %s", state)
	}
}

func TestCircuitBreakerSet_HalfOpenFailureReopens(t *testing.T) {
	id := uuid.New()
	cb := NewCircuitBreakerSet(1, time.Millisecond)

	cb.RecordFailure(id)
	time.Sleep(5 * time.Millisecond)
	cb.AllowRequest(id)
	if state := cb.State(id); state != BreakerHalfOpen {
		t.Fatalf("expected half_open before probe outcome, got %s", state)
	}

	cb.RecordFailure(id)
	if state := cb.State(id); state != BreakerOpen {
		t.Fatalf("expected re-open after failed probe, got %s", state)
	}
}

func TestCircuitBreakerSet_OnChangeCallback(t *testing.T) {
	id := uuid.New()
	cb := NewCircuitBreakerSet(1, time.Minute)

	var gotID uuid.UUID
	var gotState BreakerState
	cb.SetOnChange(func(subscriberID uuid.UUID, state BreakerState) {
		gotID = subscriberID
		gotState = state
	})

	cb.RecordFailure(id)
	if gotID != id || gotState != BreakerOpen {
		t.Fatalf("expected onChange(%s, open), got (%s, %s)", id, gotID, gotState)
	}
}

func TestCircuitBreakerSet_IndependentPerSubscriber(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	cb := NewCircuitBreakerSet(1, time.Minute)

	cb.RecordFailure(a)
	if state := cb.State(a); state != BreakerOpen {
		t.Fatalf("expected subscriber a open, got %s", state)
	}
	if state := cb.State(b); state != BreakerClosed {
		t.Fatalf("expected subscriber b unaffected, got %s", state)
	}
}

func TestCircuitBreakerSet_DefaultsAppliedForNonPositiveArgs(t *testing.T) {
	cb := NewCircuitBreakerSet(0, 0)
	if cb.threshold != breakerThreshold {
		t.Fatalf("expected default threshold %d, got %d", breakerThreshold, cb.threshold)
	}
	if cb.cooldown != breakerCooldown {
		t.Fatalf("expected default cooldown %s, got %s", breakerCooldown, cb.cooldown)
	}
}
