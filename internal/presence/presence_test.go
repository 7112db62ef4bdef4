package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/zedaapi/instance-gateway/internal/presence"
)

func TestStaticRegistry_State(t *testing.T) {
	t.Parallel()
	reg := presence.NewStaticRegistry(map[string]string{"sales-1": presence.StateOpen})

	if got := reg.State("sales-1"); got != presence.StateOpen {
		t.Fatalf("expected open, got %q", got)
	}
	if got := reg.State("missing"); got != "" {
		t.Fatalf("expected empty state for unknown instance, got %q", got)
	}

	reg.SetState("sales-1", "closed")
	if got := reg.State("sales-1"); got != "closed" {
		t.Fatalf("expected closed after SetState, got %q", got)
	}
}

func TestPubSubRegistry_AppliesTransitions(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	reg := presence.NewPubSubRegistry(client, "instance:presence", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.Start(ctx)
	defer reg.Stop()

	if got := reg.State("sales-1"); got != "" {
		t.Fatalf("expected empty state before any transition, got %q", got)
	}

	if _, err := mr.Publish("instance:presence", `{"instance":"sales-1","state":"open"}`); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if reg.State("sales-1") == presence.StateOpen {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected sales-1 to become open, got %q", reg.State("sales-1"))
}

func TestPubSubRegistry_Snapshot(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	reg := presence.NewPubSubRegistry(client, "instance:presence", nil)
	reg.Snapshot(map[string]string{"sales-1": presence.StateOpen, "sales-2": "closed"})

	if got := reg.State("sales-1"); got != presence.StateOpen {
		t.Fatalf("expected open, got %q", got)
	}
	if got := reg.State("sales-2"); got != "closed" {
		t.Fatalf("expected closed, got %q", got)
	}
}
