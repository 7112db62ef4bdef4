// Package presence provides the read-only InstanceRegistry collaborator:
// given an instance name, report whether it is currently connected
// ("open"). The surrounding gateway (out of scope) owns connection
// lifecycle; this package only mirrors state locally.
package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	redis "github.com/redis/go-redis/v9"

	"github.com/zedaapi/instance-gateway/internal/logging"
)

const StateOpen = "open"

// Registry reports the connection state of a named instance.
type Registry interface {
	State(name string) string
}

// transition is the payload published on the presence channel whenever an
// instance's connection state changes.
type transition struct {
	Instance string `json:"instance"`
	State    string `json:"state"`
}

// PubSubRegistry is an atomic.Value-backed local cache of instance
// connection states, refreshed by subscribing to a Redis pub/sub channel.
// Grounded on the teacher's workers.Registry atomic.Value cache pattern.
type PubSubRegistry struct {
	client  *redis.Client
	channel string
	log     *slog.Logger

	cache atomic.Value // map[string]string

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPubSubRegistry builds a registry that refreshes from the given Redis
// pub/sub channel. Call Start to begin listening.
func NewPubSubRegistry(client *redis.Client, channel string, log *slog.Logger) *PubSubRegistry {
	r := &PubSubRegistry{
		client:  client,
		channel: channel,
		log:     log,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	r.cache.Store(map[string]string{})
	return r
}

// Start subscribes to the presence channel and applies transitions as they
// arrive until the context is cancelled or Stop is called.
func (r *PubSubRegistry) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop halts the background subscription loop.
func (r *PubSubRegistry) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	<-r.doneCh
}

// State reports the last known connection state for name, or "" if unknown.
func (r *PubSubRegistry) State(name string) string {
	states := r.cache.Load().(map[string]string)
	return states[name]
}

// Snapshot replaces the entire cached state map, used for an initial bulk
// load before pub/sub transitions start arriving.
func (r *PubSubRegistry) Snapshot(states map[string]string) {
	clone := make(map[string]string, len(states))
	for k, v := range states {
		clone[k] = v
	}
	r.cache.Store(clone)
}

func (r *PubSubRegistry) run(ctx context.Context) {
	defer close(r.doneCh)

	logger := logging.ContextLogger(ctx, r.log)
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var t transition
			if err := json.Unmarshal([]byte(msg.Payload), &t); err != nil {
				logger.Warn("presence: malformed transition payload",
					slog.String("error", err.Error()))
				continue
			}
			r.apply(t)
		}
	}
}

func (r *PubSubRegistry) apply(t transition) {
	current := r.cache.Load().(map[string]string)
	next := make(map[string]string, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[t.Instance] = t.State
	r.cache.Store(next)
}

// StaticRegistry is a map-backed implementation for tests.
type StaticRegistry struct {
	states map[string]string
}

// NewStaticRegistry builds a StaticRegistry from an initial state map.
func NewStaticRegistry(states map[string]string) *StaticRegistry {
	clone := make(map[string]string, len(states))
	for k, v := range states {
		clone[k] = v
	}
	return &StaticRegistry{states: clone}
}

func (r *StaticRegistry) State(name string) string {
	return r.states[name]
}

// SetState updates a single instance's state, used by tests to simulate
// connection transitions.
func (r *StaticRegistry) SetState(name, state string) {
	r.states[name] = state
}

var _ Registry = (*PubSubRegistry)(nil)
var _ Registry = (*StaticRegistry)(nil)
