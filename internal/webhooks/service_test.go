package webhooks

import (
	"context"
	"testing"
)

// Create/Update validate their input before touching the repository, so
// these rejection paths are exercised against a nil *Repository.

func TestService_Create_RejectsUnknownEvent(t *testing.T) {
	svc := NewService(nil, NewCircuitBreakerSet(5, 0), false)
	_, err := svc.Create(context.Background(), CreateInput{
		Name:   "billing-hook",
		URL:    "https://example.com/hook",
		Events: []string{"NOT_A_REAL_EVENT"},
	})
	if err == nil {
		t.Fatal("expected error for unknown event kind")
	}
}

func TestService_Create_RejectsPrivateURLByDefault(t *testing.T) {
	svc := NewService(nil, NewCircuitBreakerSet(5, 0), false)
	_, err := svc.Create(context.Background(), CreateInput{
		Name: "billing-hook",
		URL:  "http://127.0.0.1:9000/hook",
	})
	if err == nil {
		t.Fatal("expected error for loopback url")
	}
}

func TestService_Create_RejectsInvalidAuthentication(t *testing.T) {
	svc := NewService(nil, NewCircuitBreakerSet(5, 0), false)
	_, err := svc.Create(context.Background(), CreateInput{
		Name:           "billing-hook",
		URL:            "https://example.com/hook",
		Authentication: Authentication{Type: AuthBearer},
	})
	if err == nil {
		t.Fatal("expected error for bearer auth missing token")
	}
}

func TestService_Create_RejectsInvalidRetryConfig(t *testing.T) {
	svc := NewService(nil, NewCircuitBreakerSet(5, 0), false)
	bad := DefaultRetryConfig()
	bad.MaxAttempts = 0
	_, err := svc.Create(context.Background(), CreateInput{
		Name:        "billing-hook",
		URL:         "https://example.com/hook",
		RetryConfig: &bad,
	})
	if err == nil {
		t.Fatal("expected error for invalid retry config")
	}
}

func TestService_Create_RejectsInvalidTimeout(t *testing.T) {
	svc := NewService(nil, NewCircuitBreakerSet(5, 0), false)
	_, err := svc.Create(context.Background(), CreateInput{
		Name:    "billing-hook",
		URL:     "https://example.com/hook",
		Timeout: 100,
	})
	if err == nil {
		t.Fatal("expected error for timeout below minimum")
	}
}

func TestDefaultRetryConfig_Values(t *testing.T) {
	retry := DefaultRetryConfig()
	if retry.MaxAttempts != 3 || !retry.UseExponentialBackoff {
		t.Fatalf("unexpected default retry config: %+v", retry)
	}
}
