package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/zedaapi/instance-gateway/internal/apierr"
)

type fakeBus struct {
	calls []string
	err   error
}

func (f *fakeBus) Publish(ctx context.Context, groupAlias, eventKind string, instanceName *string, data json.RawMessage) error {
	f.calls = append(f.calls, groupAlias+":"+eventKind)
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventPublisher_Dispatch_UsesGroupAliasResolver(t *testing.T) {
	bus := &fakeBus{}
	instance := "sales-1"
	resolver := func(instanceName *string) string {
		if instanceName != nil {
			return "sales-pool"
		}
		return ""
	}
	pub := NewEventPublisher(bus, resolver, discardLogger())

	if err := pub.Dispatch(context.Background(), "MESSAGES_UPSERT", &instance, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(bus.calls) != 1 || bus.calls[0] != "sales-pool:MESSAGES_UPSERT" {
		t.Fatalf("unexpected publish calls: %v", bus.calls)
	}
}

func TestEventPublisher_Dispatch_WrapsBusError(t *testing.T) {
	bus := &fakeBus{err: errors.New("nats unavailable")}
	pub := NewEventPublisher(bus, nil, discardLogger())

	err := pub.Dispatch(context.Background(), "APPLICATION_STARTUP", nil, json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.KindInternal {
		t.Fatalf("expected internal apierr, got %v", err)
	}
}

type fakeSender struct {
	result SendResult
	err    error
}

func (f *fakeSender) SendText(ctx context.Context, instance, contact, body string) (SendResult, error) {
	return f.result, f.err
}

func TestFakeSenderSatisfiesInterface(t *testing.T) {
	var _ TextSender = (*fakeSender)(nil)
}
