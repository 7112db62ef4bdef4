package rotation_test

import (
	"context"
	"testing"

	"github.com/zedaapi/instance-gateway/internal/rotation"
)

func TestStore_GetSet_FallbackOnly(t *testing.T) {
	t.Parallel()
	store := rotation.New(nil, 0, nil)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "group_rotation:g1:global")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected absent descriptor before any Set")
	}

	d := rotation.Descriptor{UsedInstances: []string{"a"}, LastUsedInstance: "a", RotationCount: 0}
	if err := store.Set(ctx, "group_rotation:g1:global", d); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := store.Get(ctx, "group_rotation:g1:global")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected descriptor to be present after Set")
	}
	if got.LastUsedInstance != "a" || len(got.UsedInstances) != 1 {
		t.Fatalf("unexpected descriptor: %+v", got)
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()
	store := rotation.New(nil, 0, nil)
	ctx := context.Background()

	_ = store.Set(ctx, "k", rotation.Descriptor{LastUsedInstance: "a"})
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, ok, _ := store.Get(ctx, "k")
	if ok {
		t.Fatalf("expected descriptor to be gone after Delete")
	}
}

func TestDescriptor_HasUsed(t *testing.T) {
	t.Parallel()
	d := rotation.Descriptor{UsedInstances: []string{"a", "b"}}
	if !d.HasUsed("a") {
		t.Fatalf("expected HasUsed(a) to be true")
	}
	if d.HasUsed("c") {
		t.Fatalf("expected HasUsed(c) to be false")
	}
}
