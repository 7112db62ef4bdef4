package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// SubjectEventsAll matches every subject published on the instance events
// stream: "events.<groupAlias>.<eventType>".
const SubjectEventsAll = "events.>"

// InstanceEventsStreamConfig returns the JetStream config for the stream that
// carries outbound instance-group events to be fanned out to webhook
// subscribers.
func InstanceEventsStreamConfig(name string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              name,
		Subjects:          []string{SubjectEventsAll},
		Retention:         jetstream.LimitsPolicy,
		MaxAge:            168 * time.Hour, // 7 days
		MaxBytes:          5 * 1024 * 1024 * 1024,
		Storage:           jetstream.FileStorage,
		Discard:           jetstream.DiscardOld,
		Duplicates:        1 * time.Minute,
		MaxMsgSize:        4 * 1024 * 1024,
		NoAck:             false,
		MaxMsgsPerSubject: -1,
	}
}

// DispatcherConsumerConfig returns a consumer config for the webhook
// dispatcher. A single durable consumer spans all group subjects; ordering
// is not required across groups since delivery fan-out is per-subscriber.
func DispatcherConsumerConfig() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       "webhook-dispatcher",
		FilterSubject: SubjectEventsAll,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       60 * time.Second,
		MaxDeliver:    10,
		MaxAckPending: 50,
		BackOff:       []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second, 1 * time.Minute, 5 * time.Minute},
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
}

// EnsureStream creates or updates the instance events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg Config, log *slog.Logger) error {
	streamCfg := InstanceEventsStreamConfig(cfg.StreamName)
	stream, err := js.CreateOrUpdateStream(ctx, streamCfg)
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", streamCfg.Name, err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		if log != nil {
			log.Warn("failed to get stream info after create",
				slog.String("stream", streamCfg.Name),
				slog.String("error", err.Error()))
		}
		return nil
	}
	if log != nil {
		log.Info("stream ensured",
			slog.String("stream", streamCfg.Name),
			slog.Uint64("messages", info.State.Msgs),
			slog.Uint64("bytes", info.State.Bytes),
		)
	}
	return nil
}
