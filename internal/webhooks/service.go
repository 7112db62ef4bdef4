package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zedaapi/instance-gateway/internal/apierr"
)

// Service applies validation and defaults around the Repository, and
// exposes the toggle/test operations named in spec.md §6.
type Service struct {
	repo                *Repository
	breaker             *CircuitBreakerSet
	allowPrivateTargets bool
}

func NewService(repo *Repository, breaker *CircuitBreakerSet, allowPrivateTargets bool) *Service {
	return &Service{repo: repo, breaker: breaker, allowPrivateTargets: allowPrivateTargets}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Subscriber, error) {
	events, err := validateEvents(in.Events)
	if err != nil {
		return nil, err
	}
	if err := validateURL(in.URL, s.allowPrivateTargets); err != nil {
		return nil, err
	}
	if err := validateAuthentication(in.Authentication); err != nil {
		return nil, err
	}
	if err := validateSecurityConfig(in.SecurityConfig); err != nil {
		return nil, err
	}

	retryConfig := DefaultRetryConfig()
	if in.RetryConfig != nil {
		retryConfig = *in.RetryConfig
	}
	if err := validateRetryConfig(retryConfig); err != nil {
		return nil, err
	}

	timeout := in.Timeout
	if timeout == 0 {
		timeout = 10000
	}
	if err := validateTimeout(timeout); err != nil {
		return nil, err
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}

	sub := &Subscriber{
		ID:             uuid.New(),
		Name:           in.Name,
		URL:            in.URL,
		Enabled:        enabled,
		Description:    in.Description,
		Events:         events,
		Headers:        in.Headers,
		Authentication: in.Authentication,
		RetryConfig:    retryConfig,
		FilterConfig:   in.FilterConfig,
		SecurityConfig: in.SecurityConfig,
		Timeout:        timeout,
		Stats:          Stats{LastExecutionStatus: StatusNeverExecuted},
	}
	if err := s.repo.Insert(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Subscriber, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		sub.Name = *in.Name
	}
	if in.URL != nil {
		if err := validateURL(*in.URL, s.allowPrivateTargets); err != nil {
			return nil, err
		}
		sub.URL = *in.URL
	}
	if in.Enabled != nil {
		sub.Enabled = *in.Enabled
	}
	if in.Description != nil {
		sub.Description = *in.Description
	}
	if in.Events != nil {
		events, err := validateEvents(in.Events)
		if err != nil {
			return nil, err
		}
		sub.Events = events
	}
	if in.Headers != nil {
		sub.Headers = in.Headers
	}
	if in.Authentication != nil {
		if err := validateAuthentication(*in.Authentication); err != nil {
			return nil, err
		}
		sub.Authentication = *in.Authentication
	}
	if in.RetryConfig != nil {
		if err := validateRetryConfig(*in.RetryConfig); err != nil {
			return nil, err
		}
		sub.RetryConfig = *in.RetryConfig
	}
	if in.FilterConfig != nil {
		sub.FilterConfig = *in.FilterConfig
	}
	if in.SecurityConfig != nil {
		if err := validateSecurityConfig(*in.SecurityConfig); err != nil {
			return nil, err
		}
		sub.SecurityConfig = *in.SecurityConfig
	}
	if in.Timeout != nil {
		if err := validateTimeout(*in.Timeout); err != nil {
			return nil, err
		}
		sub.Timeout = *in.Timeout
	}

	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Subscriber, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Subscriber, error) {
	return s.repo.List(ctx)
}

// Toggle flips the enabled flag without touching any other field.
func (s *Service) Toggle(ctx context.Context, id uuid.UUID) (*Subscriber, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sub.Enabled = !sub.Enabled
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Stats returns the subscriber's delivery counters alongside its current
// circuit-breaker state.
type StatsView struct {
	Stats
	CircuitState string `json:"circuitState"`
}

func (s *Service) Stats(ctx context.Context, id uuid.UUID) (*StatsView, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	state := BreakerClosed
	if s.breaker != nil {
		state = s.breaker.State(sub.ID)
	}
	return &StatsView{Stats: sub.Stats, CircuitState: state.String()}, nil
}

// TestDelivery performs a single, unretried delivery attempt against the
// subscriber's configured URL with a synthetic payload, bypassing the
// circuit breaker and retry loop, and reports the raw outcome without
// touching persisted stats.
func (s *Service) TestDelivery(ctx context.Context, id uuid.UUID) (*TestResult, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := buildEnvelope(*sub, "APPLICATION_STARTUP", json.RawMessage(`{"test":true}`), nil)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	client := newDeliveryClient()
	timeout := time.Duration(sub.Timeout) * time.Millisecond
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if name, value, err := buildAuthHeader(sub.Authentication); err == nil && name != "" {
		req.Header.Set(name, value)
	}
	if sub.SecurityConfig.EnableSignatureValidation {
		if signature, err := signPayload(sub.SecurityConfig, body); err == nil {
			header := sub.SecurityConfig.HeaderName
			if header == "" {
				header = "X-Webhook-Signature"
			}
			req.Header.Set(header, signature)
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return &TestResult{Success: false, Error: err.Error(), DurationMs: duration.Milliseconds()}, nil
	}
	defer resp.Body.Close()

	return &TestResult{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 400,
		StatusCode: resp.StatusCode,
		DurationMs: duration.Milliseconds(),
	}, nil
}

// TestResult is the outcome of a manual /test delivery probe.
type TestResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}
