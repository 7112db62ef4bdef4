// Package api provides the thin PublicAPI adapters that wire the
// Instance-Group Load Balancer and the External Webhook Dispatcher into a
// single send/dispatch surface, matching spec.md §2's data-flow.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/zedaapi/instance-gateway/internal/apierr"
	"github.com/zedaapi/instance-gateway/internal/balance"
)

// SendResult is whatever the backend messaging protocol returns for a
// successful send; opaque to this package.
type SendResult struct {
	MessageID string `json:"messageId"`
	Instance  string `json:"instance"`
}

// TextSender is the out-of-scope messaging-protocol collaborator named in
// spec.md §1: "the actual messaging protocol to backend instances".
type TextSender interface {
	SendText(ctx context.Context, instance, contact, body string) (SendResult, error)
}

// BalancedSender picks an instance via the balancer then delegates the
// actual send to a TextSender.
type BalancedSender struct {
	balancer *balance.Balancer
	sender   TextSender
	log      *slog.Logger
}

func NewBalancedSender(balancer *balance.Balancer, sender TextSender, log *slog.Logger) *BalancedSender {
	return &BalancedSender{balancer: balancer, sender: sender, log: log.With(slog.String("component", "balanced_sender"))}
}

// SendTextWithGroupBalancing resolves the target instance for contact
// within the named group, then performs the send. The balancer's result is
// returned unconditionally, even if the downstream send fails, so callers
// can observe which instance was chosen.
func (s *BalancedSender) SendTextWithGroupBalancing(ctx context.Context, groupAlias, contact, body string) (*balance.Result, SendResult, error) {
	selection, err := s.balancer.SelectForContactInGroup(ctx, groupAlias, contact)
	if err != nil {
		return nil, SendResult{}, err
	}

	result, err := s.sender.SendText(ctx, selection.Instance, contact, body)
	if err != nil {
		s.log.Error("send failed after instance selection",
			slog.String("group", groupAlias),
			slog.String("instance", selection.Instance),
			slog.String("error", err.Error()))
		return selection, SendResult{}, apierr.Upstream(fmt.Errorf("send via %s: %w", selection.Instance, err))
	}
	return selection, result, nil
}

// EventPublisher is the entry point named "an event source" upstream of
// PublicAPI.Dispatch in spec.md §2's data-flow: producers call Dispatch,
// never WebhookDispatcher directly.
type EventPublisher struct {
	bus        Bus
	groupAlias func(instanceName *string) string
	log        *slog.Logger
}

// Bus is the narrow publish surface EventPublisher depends on; satisfied
// by *eventbus.Bus. Kept as an interface so this package never imports
// eventbus's NATS dependency directly.
type Bus interface {
	Publish(ctx context.Context, groupAlias, eventKind string, instanceName *string, data json.RawMessage) error
}

func NewEventPublisher(bus Bus, groupAlias func(instanceName *string) string, log *slog.Logger) *EventPublisher {
	return &EventPublisher{bus: bus, groupAlias: groupAlias, log: log.With(slog.String("component", "event_publisher"))}
}

// Dispatch publishes a domain event onto the bus for asynchronous fan-out
// by the webhook dispatcher's consumer, per spec.md §5's default
// fire-and-forget delivery model.
func (p *EventPublisher) Dispatch(ctx context.Context, eventKind string, instanceName *string, data json.RawMessage) error {
	alias := ""
	if p.groupAlias != nil {
		alias = p.groupAlias(instanceName)
	}
	if err := p.bus.Publish(ctx, alias, eventKind, instanceName, data); err != nil {
		p.log.Error("event publish failed",
			slog.String("event", eventKind), slog.String("error", err.Error()))
		return apierr.Internal(fmt.Errorf("publish event %s: %w", eventKind, err))
	}
	return nil
}
