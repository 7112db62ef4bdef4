package nats_test

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natspkg "github.com/zedaapi/instance-gateway/internal/nats"
)

func TestInstanceEventsStreamConfig(t *testing.T) {
	cfg := natspkg.InstanceEventsStreamConfig("INSTANCE_EVENTS")

	assert.Equal(t, "INSTANCE_EVENTS", cfg.Name)
	assert.Equal(t, []string{"events.>"}, cfg.Subjects)
	assert.Equal(t, jetstream.LimitsPolicy, cfg.Retention)
	assert.Equal(t, 168*time.Hour, cfg.MaxAge)
	assert.Equal(t, int64(5*1024*1024*1024), cfg.MaxBytes)
	assert.Equal(t, jetstream.FileStorage, cfg.Storage)
	assert.Equal(t, jetstream.DiscardOld, cfg.Discard)
	assert.Equal(t, 1*time.Minute, cfg.Duplicates)
	assert.False(t, cfg.NoAck)
}

func TestDispatcherConsumerConfig(t *testing.T) {
	cfg := natspkg.DispatcherConsumerConfig()

	assert.Equal(t, "webhook-dispatcher", cfg.Durable)
	assert.Equal(t, "events.>", cfg.FilterSubject)
	assert.Equal(t, jetstream.AckExplicitPolicy, cfg.AckPolicy)
	assert.Equal(t, 60*time.Second, cfg.AckWait)
	assert.Equal(t, 10, cfg.MaxDeliver)
	assert.Equal(t, 50, cfg.MaxAckPending)
	assert.Len(t, cfg.BackOff, 5)
}

func TestEnsureStream(t *testing.T) {
	srv := startEmbeddedNATS(t)
	cfg := testConfig(srv)

	client := natspkg.NewClient(cfg, testLogger(), testMetrics(t))
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	// First call creates the stream
	err := natspkg.EnsureStream(context.Background(), client.JetStream(), cfg, testLogger())
	require.NoError(t, err)

	// Second call is idempotent (update)
	err = natspkg.EnsureStream(context.Background(), client.JetStream(), cfg, testLogger())
	require.NoError(t, err)

	js := client.JetStream()
	stream, err := js.Stream(context.Background(), cfg.StreamName)
	require.NoError(t, err)

	info, err := stream.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.StreamName, info.Config.Name)
}

func TestEnsureStream_Publish(t *testing.T) {
	srv := startEmbeddedNATS(t)
	cfg := testConfig(srv)

	client := natspkg.NewClient(cfg, testLogger(), testMetrics(t))
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	require.NoError(t, natspkg.EnsureStream(context.Background(), client.JetStream(), cfg, testLogger()))

	ack, err := client.Publish(context.Background(), "events.sales-pool.message.outbound", []byte(`{"test":true}`))
	require.NoError(t, err)
	assert.Equal(t, cfg.StreamName, ack.Stream)
}

func TestUpdateStreamMetrics(t *testing.T) {
	srv := startEmbeddedNATS(t)
	cfg := testConfig(srv)
	metrics := testMetrics(t)

	client := natspkg.NewClient(cfg, testLogger(), metrics)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	require.NoError(t, natspkg.EnsureStream(context.Background(), client.JetStream(), cfg, testLogger()))

	_, err := client.Publish(context.Background(), "events.sales-pool.message.outbound", []byte(`{"test":true}`))
	require.NoError(t, err)

	client.UpdateStreamMetrics(context.Background())
}
