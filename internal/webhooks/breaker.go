package webhooks

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// BreakerState is a per-subscriber circuit state.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	breakerThreshold = 5
	breakerCooldown  = 60 * time.Second
)

type breakerRecord struct {
	failures        int
	lastFailureTime time.Time
	state           BreakerState
}

// CircuitBreakerSet tracks one circuit per subscriber, in process memory
// only: lost on restart, which is acceptable because OPEN state is a pure
// delivery-skipping optimization, not a correctness requirement.
type CircuitBreakerSet struct {
	mu       sync.Mutex
	records  map[uuid.UUID]*breakerRecord
	onChange func(subscriberID uuid.UUID, state BreakerState)

	threshold int
	cooldown  time.Duration
}

// NewCircuitBreakerSet builds a set using the spec's THRESHOLD/COOLDOWN
// constants. threshold<=0 or cooldown<=0 fall back to those constants.
func NewCircuitBreakerSet(threshold int, cooldown time.Duration) *CircuitBreakerSet {
	if threshold <= 0 {
		threshold = breakerThreshold
	}
	if cooldown <= 0 {
		cooldown = breakerCooldown
	}
	return &CircuitBreakerSet{
		records:   make(map[uuid.UUID]*breakerRecord),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// SetOnChange installs a callback invoked whenever a subscriber's state
// transitions, used to drive the circuit-state Prometheus gauge.
func (c *CircuitBreakerSet) SetOnChange(fn func(subscriberID uuid.UUID, state BreakerState)) {
	c.onChange = fn
}

func (c *CircuitBreakerSet) recordFor(id uuid.UUID) *breakerRecord {
	r, ok := c.records[id]
	if !ok {
		r = &breakerRecord{state: BreakerClosed}
		c.records[id] = r
	}
	return r
}

// AllowRequest gates an outbound delivery attempt: CLOSED and HALF_OPEN
// allow; OPEN denies unless the cooldown has elapsed, in which case it
// transitions to HALF_OPEN and allows the request. HALF_OPEN keeps allowing
// requests until a success or failure is recorded; the number of concurrent
// probes is not limited.
func (c *CircuitBreakerSet) AllowRequest(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.recordFor(id)
	switch r.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if time.Since(r.lastFailureTime) > c.cooldown {
			c.transition(id, r, BreakerHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess reports a successful delivery.
func (c *CircuitBreakerSet) RecordSuccess(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.recordFor(id)
	switch r.state {
	case BreakerHalfOpen:
		r.failures = 0
		c.transition(id, r, BreakerClosed)
	case BreakerClosed:
		r.failures = 0
	}
}

// RecordFailure reports a failed delivery.
func (c *CircuitBreakerSet) RecordFailure(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.recordFor(id)
	switch r.state {
	case BreakerHalfOpen:
		r.lastFailureTime = time.Now()
		c.transition(id, r, BreakerOpen)
	case BreakerClosed:
		r.failures++
		if r.failures >= c.threshold {
			r.lastFailureTime = time.Now()
			c.transition(id, r, BreakerOpen)
		}
	}
}

// State reports a subscriber's current circuit state without mutating it.
func (c *CircuitBreakerSet) State(id uuid.UUID) BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordFor(id).state
}

func (c *CircuitBreakerSet) transition(id uuid.UUID, r *breakerRecord, next BreakerState) {
	r.state = next
	if c.onChange != nil {
		c.onChange(id, next)
	}
}
