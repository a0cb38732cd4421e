package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"connection", &ConnectionError{Target: "mysql", Err: cause}, ErrConnection},
		{"provider", &ProviderError{Provider: "gemini", Err: cause}, ErrProvider},
		{"schema", &SchemaError{Table: "Customers", Step: "ensure column", Err: cause}, ErrSchema},
		{"mapping", &MappingError{Queue: EntityProduct, Field: "price", Err: cause}, ErrMapping},
		{"persistence", &PersistenceError{Store: "document", Op: "upsert", Err: cause}, ErrPersistence},
		{"encoding", &EncodingError{Index: -1, Reason: "empty"}, ErrEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
			if tt.name != "encoding" && !errors.Is(wrapped, cause) {
				t.Errorf("cause not reachable through %v", wrapped)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	retry := &ProviderError{Provider: "openai", Class: Retryable, Err: errors.New("timeout")}
	fatal := &ProviderError{Provider: "openai", Class: Fatal, Err: errors.New("bad key")}

	if !IsRetryable(fmt.Errorf("wrap: %w", retry)) {
		t.Error("retryable provider error not detected")
	}
	if IsRetryable(fatal) {
		t.Error("fatal provider error reported as retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain error reported as retryable")
	}
}

func TestParseEntity(t *testing.T) {
	tests := []struct {
		in      string
		want    Entity
		wantErr bool
	}{
		{"customer", EntityCustomer, false},
		{"Customers", EntityCustomer, false},
		{" product ", EntityProduct, false},
		{"reviews", EntityReview, false},
		{"orders", "", true},
	}
	for _, tt := range tests {
		got, err := ParseEntity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEntity(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseEntity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
