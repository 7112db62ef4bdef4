package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/zedaapi/instance-gateway/internal/logging"
	"github.com/zedaapi/instance-gateway/internal/observability"
)

// Envelope is the JSON body posted to every matching subscriber.
type Envelope struct {
	Event     string          `json:"event"`
	Instance  *string         `json:"instance"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	Webhook   EnvelopeWebhook `json:"webhook"`
}

type EnvelopeWebhook struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// statusError carries the HTTP status of a non-2xx/3xx response so RetryIf
// can consult the subscriber's nonRetryableStatusCodes list.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

// Dispatcher fans events out to every enabled, matching subscriber
// concurrently and waits for all attempts to settle, per spec.md §4.3.
type Dispatcher struct {
	repo    *Repository
	stats   *StatsRecorder
	breaker *CircuitBreakerSet
	client  *http.Client
	metrics *observability.Metrics
	log     *slog.Logger
}

func NewDispatcher(repo *Repository, stats *StatsRecorder, breaker *CircuitBreakerSet, metrics *observability.Metrics, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		stats:   stats,
		breaker: breaker,
		client:  newDeliveryClient(),
		metrics: metrics,
		log:     log,
	}
}

// Dispatch loads every enabled subscriber and fans the event out to the
// ones matching the event/instance filters. It never returns an error to
// the caller: webhook delivery failures are recorded in stats and the
// circuit breaker only.
func (d *Dispatcher) Dispatch(ctx context.Context, eventKind string, payload json.RawMessage, instanceName *string) {
	logger := logging.ContextLogger(ctx, d.log)

	subscribers, err := d.repo.ListEnabled(ctx)
	if err != nil {
		logger.Error("webhook dispatch: failed to load subscribers", slog.String("error", err.Error()))
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subscribers {
		if !matchesFilters(sub, eventKind, instanceName) {
			continue
		}
		wg.Add(1)
		go func(sub Subscriber) {
			defer wg.Done()
			d.deliverOne(ctx, sub, eventKind, payload, instanceName)
		}(sub)
	}
	wg.Wait()
}

func matchesFilters(sub Subscriber, eventKind string, instanceName *string) bool {
	if len(sub.Events) > 0 {
		found := false
		for _, e := range sub.Events {
			if string(e) == eventKind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if instanceName != nil {
		if len(sub.FilterConfig.Instances) > 0 && !containsStr(sub.FilterConfig.Instances, *instanceName) {
			return false
		}
		if containsStr(sub.FilterConfig.ExcludeInstances, *instanceName) {
			return false
		}
	}
	return true
}

func containsStr(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

func (d *Dispatcher) deliverOne(ctx context.Context, sub Subscriber, eventKind string, payload json.RawMessage, instanceName *string) {
	logger := logging.ContextLogger(ctx, d.log).With(slog.String("subscriber", sub.Name))

	if !d.breaker.AllowRequest(sub.ID) {
		logger.Warn("webhook dispatch: circuit open, skipping delivery")
		return
	}

	body, err := buildEnvelope(sub, eventKind, payload, instanceName)
	if err != nil {
		logger.Error("webhook dispatch: failed to build envelope", slog.String("error", err.Error()))
		return
	}

	start := time.Now()
	attempts := 0
	outcome := "failed"
	var lastErr error

	err = retry.Do(
		func() error {
			attempts++
			return d.attempt(ctx, sub, body)
		},
		retry.Context(ctx),
		retry.Attempts(uint(sub.RetryConfig.MaxAttempts)),
		retry.LastErrorOnly(true),
		retry.DelayType(backoffDelay(sub.RetryConfig)),
		retry.RetryIf(nonRetryable(sub.RetryConfig)),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("webhook dispatch: delivery attempt failed, retrying",
				slog.Uint64("attempt", uint64(n+1)), slog.String("error", err.Error()))
		}),
	)
	duration := time.Since(start)

	if err == nil {
		outcome = "success"
		d.breaker.RecordSuccess(sub.ID)
		if d.stats != nil {
			if statsErr := d.stats.RecordSuccess(ctx, sub.ID); statsErr != nil {
				logger.Warn("webhook dispatch: failed to record success stats", slog.String("error", statsErr.Error()))
			}
		}
	} else {
		lastErr = err
		d.breaker.RecordFailure(sub.ID)
		if d.stats != nil {
			if statsErr := d.stats.RecordFailure(ctx, sub.ID, lastErr.Error()); statsErr != nil {
				logger.Warn("webhook dispatch: failed to record failure stats", slog.String("error", statsErr.Error()))
			}
		}
		logger.Warn("webhook dispatch: delivery failed after retries",
			slog.Int("attempts", attempts), slog.String("error", lastErr.Error()))
	}

	if d.metrics != nil {
		d.metrics.WebhookDeliveries.WithLabelValues(sub.Name, outcome).Inc()
		d.metrics.WebhookAttempts.WithLabelValues(sub.Name).Observe(float64(attempts))
		d.metrics.WebhookDuration.WithLabelValues(sub.Name).Observe(duration.Seconds())
		d.metrics.CircuitState.WithLabelValues(sub.Name).Set(float64(d.breaker.State(sub.ID)))
	}
}

func buildEnvelope(sub Subscriber, eventKind string, payload json.RawMessage, instanceName *string) ([]byte, error) {
	env := Envelope{
		Event:     eventKind,
		Instance:  instanceName,
		Data:      payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Webhook:   EnvelopeWebhook{ID: sub.ID, Name: sub.Name},
	}
	return json.Marshal(env)
}

func (d *Dispatcher) attempt(ctx context.Context, sub Subscriber, body []byte) error {
	timeout := time.Duration(sub.Timeout) * time.Millisecond
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}
	if name, value, err := buildAuthHeader(sub.Authentication); err != nil {
		return fmt.Errorf("build auth header: %w", err)
	} else if name != "" {
		req.Header.Set(name, value)
	}
	if sub.SecurityConfig.EnableSignatureValidation {
		signature, err := signPayload(sub.SecurityConfig, body)
		if err != nil {
			return fmt.Errorf("sign payload: %w", err)
		}
		header := sub.SecurityConfig.HeaderName
		if header == "" {
			header = "X-Webhook-Signature"
		}
		req.Header.Set(header, signature)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &statusError{code: resp.StatusCode, body: string(respBody)}
}

// nonRetryable implements the non-retryable-status-code contract: a
// statusError whose code is listed halts the retry loop immediately.
func nonRetryable(cfg RetryConfig) retry.RetryIfFunc {
	nonRetryableCodes := make(map[int]struct{}, len(cfg.NonRetryableStatusCodes))
	for _, code := range cfg.NonRetryableStatusCodes {
		nonRetryableCodes[code] = struct{}{}
	}
	return func(err error) bool {
		se, ok := err.(*statusError)
		if !ok {
			return true
		}
		_, blocked := nonRetryableCodes[se.code]
		return !blocked
	}
}

// backoffDelay implements spec.md §4.3 step 8's exact formula: attempt n
// (0-indexed, the attempt that just failed) produces the delay before
// attempt n+2 (1-indexed k=n+1).
func backoffDelay(cfg RetryConfig) retry.DelayTypeFunc {
	initial := time.Duration(cfg.InitialDelaySeconds) * time.Second
	maxDelay := time.Duration(cfg.MaxDelaySeconds) * time.Second

	return func(n uint, _ error, _ *retry.Config) time.Duration {
		if !cfg.UseExponentialBackoff {
			return initial
		}
		k := n + 1
		base := initial * time.Duration(1<<k>>1)
		if base > maxDelay {
			base = maxDelay
		}
		jitterRange := float64(base) * cfg.JitterFactor
		jitter := time.Duration(jitterRange * (rand.Float64()*2 - 1))
		actual := base + jitter
		if actual < initial {
			actual = initial
		}
		return actual
	}
}
