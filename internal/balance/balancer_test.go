package balance

import (
	"context"
	"testing"

	"github.com/zedaapi/instance-gateway/internal/rotation"
)

func TestNormalizeContact(t *testing.T) {
	if got := normalizeContact("+55 (11) 99999-9999"); got != "5511999999999" {
		t.Fatalf("normalizeContact() = %q, want 5511999999999", got)
	}
}

func TestNextIndex(t *testing.T) {
	candidates := []string{"a", "b", "c"}
	if got := nextIndex("", candidates); got != 0 {
		t.Fatalf("nextIndex with no prior use = %d, want 0", got)
	}
	if got := nextIndex("a", candidates); got != 1 {
		t.Fatalf("nextIndex(a) = %d, want 1", got)
	}
	if got := nextIndex("c", candidates); got != 0 {
		t.Fatalf("nextIndex(c) = %d, want 0 (wraps)", got)
	}
	if got := nextIndex("removed", candidates); got != 0 {
		t.Fatalf("nextIndex(absent) = %d, want 0", got)
	}
}

func TestBasicRotation_DistinctContactsRoundRobin(t *testing.T) {
	store := rotation.New(nil, 0, nil)
	b := &Balancer{rotation: store}
	ctx := context.Background()
	candidates := []string{"a", "b", "c"}

	contacts := []string{"5511999999991", "5511999999992", "5511999999993", "5511999999994", "5511999999995", "5511999999996"}
	want := []string{"a", "b", "c", "a", "b", "c"}

	for i, contact := range contacts {
		result, err := b.selectWithKeys(ctx, "g1", contact, candidates, "g")
		if err != nil {
			t.Fatalf("selectWithKeys(%d): %v", i, err)
		}
		if result.Instance != want[i] {
			t.Fatalf("pick %d = %q, want %q", i, result.Instance, want[i])
		}
	}
}

func TestContactAffinity_NoRepeatWithinCycleThenReset(t *testing.T) {
	store := rotation.New(nil, 0, nil)
	b := &Balancer{rotation: store}
	ctx := context.Background()
	candidates := []string{"a", "b", "c"}
	contact := "5511111111111"

	picks := make([]string, 4)
	for i := range picks {
		result, err := b.selectWithKeys(ctx, "g1", contact, candidates, "g")
		if err != nil {
			t.Fatalf("selectWithKeys(%d): %v", i, err)
		}
		picks[i] = result.Instance
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		if seen[picks[i]] {
			t.Fatalf("expected first 3 picks to be distinct, got %v", picks[:3])
		}
		seen[picks[i]] = true
	}
	if picks[3] == picks[2] {
		t.Fatalf("expected 4th pick to differ from 3rd (cycle reset), got %v", picks)
	}
}

func TestApplyContactPick_CycleReset(t *testing.T) {
	candidates := []string{"a", "b", "c"}
	d := rotation.Descriptor{UsedInstances: []string{"a", "b"}, RotationCount: 0}
	next := applyContactPick(d, "c", candidates)
	if next.RotationCount != 1 {
		t.Fatalf("expected rotation count to increment on cycle reset, got %d", next.RotationCount)
	}
	if len(next.UsedInstances) != 1 || next.UsedInstances[0] != "c" {
		t.Fatalf("expected used set to reset to {c}, got %v", next.UsedInstances)
	}
}
