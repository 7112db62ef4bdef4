package webhooks

import (
	"testing"
)

func TestValidateURL_RejectsNonHTTPScheme(t *testing.T) {
	if err := validateURL("ftp://example.com/hook", false); err == nil {
		t.Fatal("expected error for non-http(s) scheme")
	}
}

func TestValidateURL_RejectsLoopbackByDefault(t *testing.T) {
	if err := validateURL("http://localhost:8080/hook", false); err == nil {
		t.Fatal("expected error for loopback host")
	}
}

func TestValidateURL_AllowsLoopbackWhenAllowPrivateTargets(t *testing.T) {
	if err := validateURL("http://localhost:8080/hook", true); err != nil {
		t.Fatalf("expected loopback to be allowed, got %v", err)
	}
}

func TestValidateURL_AllowsPublicHTTPS(t *testing.T) {
	if err := validateURL("https://example.com/hook", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateEvents_RejectsUnknownKind(t *testing.T) {
	if _, err := validateEvents([]string{"NOT_A_REAL_EVENT"}); err == nil {
		t.Fatal("expected error for unknown event kind")
	}
}

func TestValidateEvents_AcceptsKnownKinds(t *testing.T) {
	got, err := validateEvents([]string{"MESSAGES_UPSERT", "CONNECTION_UPDATE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != EventMessagesUpsert || got[1] != EventConnectionUpdate {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestValidateAuthentication(t *testing.T) {
	tests := []struct {
		name    string
		auth    Authentication
		wantErr bool
	}{
		{"none is always valid", Authentication{Type: AuthNone}, false},
		{"bearer requires token", Authentication{Type: AuthBearer}, true},
		{"bearer with token is valid", Authentication{Type: AuthBearer, Token: "tok"}, false},
		{"basic requires user and pass", Authentication{Type: AuthBasic, User: "u"}, true},
		{"basic with user and pass is valid", Authentication{Type: AuthBasic, User: "u", Pass: "p"}, false},
		{"apiKey requires token and header", Authentication{Type: AuthAPIKey, Token: "t"}, true},
		{"apiKey with token and header is valid", Authentication{Type: AuthAPIKey, Token: "t", Header: "X-Key"}, false},
		{"jwt requires secret", Authentication{Type: AuthJWT}, true},
		{"jwt with secret is valid", Authentication{Type: AuthJWT, JWTSecret: "s3cr3t"}, false},
		{"unknown type is rejected", Authentication{Type: "carrier-pigeon"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAuthentication(tt.auth)
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	if err := validateSecurityConfig(SecurityConfig{EnableSignatureValidation: false}); err != nil {
		t.Fatalf("disabled config should never error: %v", err)
	}
	if err := validateSecurityConfig(SecurityConfig{EnableSignatureValidation: true, Secret: "short"}); err == nil {
		t.Fatal("expected error for secret under 16 characters")
	}
	if err := validateSecurityConfig(SecurityConfig{
		EnableSignatureValidation: true, Secret: "0123456789abcdef", Algorithm: "sha512",
	}); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
	if err := validateSecurityConfig(SecurityConfig{
		EnableSignatureValidation: true, Secret: "0123456789abcdef", Algorithm: "sha256",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRetryConfig_Bounds(t *testing.T) {
	valid := DefaultRetryConfig()
	if err := validateRetryConfig(valid); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	tooFewAttempts := valid
	tooFewAttempts.MaxAttempts = 0
	if err := validateRetryConfig(tooFewAttempts); err == nil {
		t.Fatal("expected error for maxAttempts below range")
	}

	tooManyAttempts := valid
	tooManyAttempts.MaxAttempts = 21
	if err := validateRetryConfig(tooManyAttempts); err == nil {
		t.Fatal("expected error for maxAttempts above range")
	}

	badJitter := valid
	badJitter.JitterFactor = 1.5
	if err := validateRetryConfig(badJitter); err == nil {
		t.Fatal("expected error for jitterFactor above range")
	}
}

func TestValidateTimeout_Bounds(t *testing.T) {
	if err := validateTimeout(999); err == nil {
		t.Fatal("expected error below minimum timeout")
	}
	if err := validateTimeout(60001); err == nil {
		t.Fatal("expected error above maximum timeout")
	}
	if err := validateTimeout(10000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
