// Package eventbus decouples instance-originated events from the webhook
// dispatcher, publishing onto the shared instance-events JetStream stream
// and fanning consumed messages out to the dispatcher's in-process Dispatch
// call. Producers never depend on WebhookDispatcher directly.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/zedaapi/instance-gateway/internal/logging"
	"github.com/zedaapi/instance-gateway/internal/nats"
	"github.com/zedaapi/instance-gateway/internal/observability"
)

// Message is the payload carried on the bus: an event kind, the originating
// instance (if any), and the raw event body.
type Message struct {
	Event    string          `json:"event"`
	Instance *string         `json:"instance,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// Dispatchable is satisfied by webhooks.Dispatcher; kept as a narrow
// interface so eventbus never imports the webhooks package directly.
type Dispatchable interface {
	Dispatch(ctx context.Context, eventKind string, payload json.RawMessage, instanceName *string)
}

// Bus publishes and consumes instance events over JetStream.
type Bus struct {
	client *nats.Client
	stream string
	log    *slog.Logger
}

func New(client *nats.Client, streamName string, log *slog.Logger) *Bus {
	return &Bus{client: client, stream: streamName, log: log.With(slog.String("component", "eventbus"))}
}

// Subject builds the "events.<groupAlias>.<eventType>" subject for a
// published event. groupAlias is "_" when the event has no group
// association (e.g. application-level lifecycle events).
func Subject(groupAlias, eventKind string) string {
	if groupAlias == "" {
		groupAlias = "_"
	}
	return fmt.Sprintf("events.%s.%s", groupAlias, strings.ToLower(eventKind))
}

// Publish writes a message onto the stream. Producers call this instead of
// invoking the dispatcher directly.
func (b *Bus) Publish(ctx context.Context, groupAlias, eventKind string, instanceName *string, data json.RawMessage) error {
	msg := Message{Event: eventKind, Instance: instanceName, Data: data}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event message: %w", err)
	}

	subject := Subject(groupAlias, eventKind)
	_, err = b.client.Publish(ctx, subject, body)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Consume starts a durable pull consumer that hands every received message
// to dispatcher.Dispatch, then acknowledges it. It blocks until ctx is
// cancelled.
func (b *Bus) Consume(ctx context.Context, dispatcher Dispatchable) error {
	js := b.client.JetStream()
	if js == nil {
		return fmt.Errorf("eventbus: nats client not connected")
	}

	stream, err := js.Stream(ctx, b.stream)
	if err != nil {
		return fmt.Errorf("eventbus: resolve stream %s: %w", b.stream, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, nats.DispatcherConsumerConfig())
	if err != nil {
		return fmt.Errorf("eventbus: create consumer: %w", err)
	}

	consCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		b.handle(ctx, dispatcher, msg)
	})
	if err != nil {
		return fmt.Errorf("eventbus: start consume: %w", err)
	}
	defer consCtx.Stop()

	<-ctx.Done()
	return nil
}

func (b *Bus) handle(ctx context.Context, dispatcher Dispatchable, msg jetstream.Msg) {
	var m Message
	if err := json.Unmarshal(msg.Data(), &m); err != nil {
		b.log.Error("eventbus: failed to decode message, terminating redelivery",
			slog.String("subject", msg.Subject()), slog.String("error", err.Error()))
		observability.CaptureWorkerException(ctx, "eventbus", "dispatch-consumer", "", err)
		_ = msg.Term()
		return
	}

	instanceID := ""
	if m.Instance != nil {
		instanceID = *m.Instance
	}
	enrichedLogger, _ := logging.FromContext(observability.AsyncContext(observability.AsyncContextOptions{
		Logger:     b.log,
		Component:  "eventbus",
		Worker:     "dispatch-consumer",
		InstanceID: instanceID,
		Extra:      []slog.Attr{slog.String("event", m.Event), slog.String("subject", msg.Subject())},
	}))

	deliverCtx, cancel := context.WithTimeout(logging.WithLogger(ctx, enrichedLogger), 30*time.Second)
	defer cancel()

	dispatcher.Dispatch(deliverCtx, m.Event, m.Data, m.Instance)

	if err := msg.Ack(); err != nil {
		b.log.Warn("eventbus: failed to ack message",
			slog.String("subject", msg.Subject()), slog.String("error", err.Error()))
		observability.CaptureWorkerException(ctx, "eventbus", "dispatch-consumer", instanceID, err)
	}
}
