package config

import (
	"errors"
	"strings"
	"testing"
)

type testValidated struct {
	URL         string `validate:"required,url"`
	MaxAttempts int    `validate:"gte=0,lte=100"`
	Level       string `validate:"omitempty,oneof=debug info"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *testValidated
		wantErr string
	}{
		{name: "valid", cfg: &testValidated{URL: "ws://localhost", MaxAttempts: 3}},
		{name: "missing url", cfg: &testValidated{}, wantErr: "is required"},
		{name: "too many attempts", cfg: &testValidated{URL: "ws://a", MaxAttempts: 101}, wantErr: "at most 100"},
		{name: "bad level", cfg: &testValidated{URL: "ws://a", Level: "trace"}, wantErr: "one of [debug info]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("expected ErrValidationFailed, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	if err := NewValidator().Validate(nil); !errors.Is(err, ErrNilConfig) {
		t.Errorf("expected ErrNilConfig, got %v", err)
	}
}
