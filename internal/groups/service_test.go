package groups

import "testing"

func TestTransformToAlias(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already valid alias", "sales-pool", "sales-pool"},
		{"uppercase and spaces", "Sales Pool", "sales-pool"},
		{"punctuation collapsed", "Sales & Support!!", "sales-support"},
		{"leading/trailing junk", "--Sales--", "sales"},
		{"idempotent", transformToAlias("Sales & Support!!"), transformToAlias("Sales & Support!!")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transformToAlias(tt.input); got != tt.expected {
				t.Errorf("transformToAlias(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAliasPattern(t *testing.T) {
	if !aliasPattern.MatchString("sales-pool-1") {
		t.Fatalf("expected sales-pool-1 to match alias pattern")
	}
	if aliasPattern.MatchString("Sales Pool") {
		t.Fatalf("expected Sales Pool to not match alias pattern")
	}
	if aliasPattern.MatchString("") {
		t.Fatalf("expected empty string to not match alias pattern")
	}
}

func TestService_DedupeAndValidate_NoRegistrySkipsValidation(t *testing.T) {
	s := &Service{}
	_, err := s.dedupeAndValidate([]string{"sales-1"})
	if err != nil {
		t.Fatalf("expected no registry means no validation, got error: %v", err)
	}
}

func TestService_DedupeAndValidate_RejectsDuplicate(t *testing.T) {
	s := &Service{}
	_, err := s.dedupeAndValidate([]string{"sales-1", "sales-1"})
	if err == nil {
		t.Fatalf("expected duplicate instance to be rejected")
	}
}
