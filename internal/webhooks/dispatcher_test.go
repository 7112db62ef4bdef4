package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSubscriber(url string) Subscriber {
	return Subscriber{
		ID:      uuid.New(),
		Name:    "test-subscriber",
		URL:     url,
		Enabled: true,
		Events:  nil,
		Timeout: 2000,
		RetryConfig: RetryConfig{
			MaxAttempts:           3,
			InitialDelaySeconds:   0,
			UseExponentialBackoff: false,
			MaxDelaySeconds:       1,
			JitterFactor:          0,
		},
	}
}

// scenario 6: a subscriber that fails twice then succeeds is retried and
// eventually recorded as a success.
func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := newTestSubscriber(server.URL)
	breaker := NewCircuitBreakerSet(5, time.Minute)
	d := &Dispatcher{breaker: breaker, client: newDeliveryClient(), log: discardLogger()}

	d.deliverOne(context.Background(), sub, "MESSAGES_UPSERT", json.RawMessage(`{}`), nil)

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if state := breaker.State(sub.ID); state != BreakerClosed {
		t.Fatalf("expected breaker closed after eventual success, got %s", state)
	}
}

// scenario 7: a non-retryable status code (e.g. 400) halts the retry loop
// after the first attempt.
func TestDispatcher_NonRetryableStatusStopsImmediately(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sub := newTestSubscriber(server.URL)
	sub.RetryConfig.NonRetryableStatusCodes = []int{http.StatusBadRequest}
	breaker := NewCircuitBreakerSet(5, time.Minute)
	d := &Dispatcher{breaker: breaker, client: newDeliveryClient(), log: discardLogger()}

	d.deliverOne(context.Background(), sub, "MESSAGES_UPSERT", json.RawMessage(`{}`), nil)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 attempt for non-retryable status, got %d", got)
	}
}

// scenario 8: five consecutive failures open the circuit; a sixth delivery
// is skipped without hitting the network.
func TestDispatcher_CircuitOpensAfterThreshold(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sub := newTestSubscriber(server.URL)
	sub.RetryConfig.MaxAttempts = 1
	breaker := NewCircuitBreakerSet(5, time.Minute)
	d := &Dispatcher{breaker: breaker, client: newDeliveryClient(), log: discardLogger()}

	for i := 0; i < 5; i++ {
		d.deliverOne(context.Background(), sub, "MESSAGES_UPSERT", json.RawMessage(`{}`), nil)
	}
	if state := breaker.State(sub.ID); state != BreakerOpen {
		t.Fatalf("expected breaker open after 5 failures, got %s", state)
	}

	callsBeforeSkip := atomic.LoadInt32(&calls)
	d.deliverOne(context.Background(), sub, "MESSAGES_UPSERT", json.RawMessage(`{}`), nil)
	if got := atomic.LoadInt32(&calls); got != callsBeforeSkip {
		t.Fatalf("expected delivery to be skipped while circuit is open, calls went from %d to %d", callsBeforeSkip, got)
	}
}

// scenario 9: HMAC-SHA256 signature value for a known secret and body.
func TestSignPayload_HMACSHA256(t *testing.T) {
	cfg := SecurityConfig{
		EnableSignatureValidation: true,
		Secret:                    "0123456789abcdef",
		Algorithm:                 "sha256",
	}
	got, err := signPayload(cfg, []byte(`{"ping":1}`))
	if err != nil {
		t.Fatalf("signPayload: %v", err)
	}
	const want = "sha256=1acecfd6f638847c06f9c08e39d2144b47e6dca87dedc1c6105d9ab48926da17"
	if got != want {
		t.Fatalf("signature mismatch:\ngot  %s\nwant %s", got, want)
	}
}

func TestMatchesFilters_EventAndInstanceScoping(t *testing.T) {
	instanceA := "sales-1"
	instanceB := "sales-2"

	sub := Subscriber{
		Events: []EventKind{EventMessagesUpsert},
		FilterConfig: FilterConfig{
			Instances: []string{"sales-1"},
		},
	}

	if !matchesFilters(sub, "MESSAGES_UPSERT", &instanceA) {
		t.Fatal("expected match for subscribed event and included instance")
	}
	if matchesFilters(sub, "MESSAGES_UPSERT", &instanceB) {
		t.Fatal("expected no match for instance outside filter")
	}
	if matchesFilters(sub, "CONNECTION_UPDATE", &instanceA) {
		t.Fatal("expected no match for unsubscribed event")
	}
}
