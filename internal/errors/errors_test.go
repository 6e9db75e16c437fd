package errors

import (
	"fmt"
	"testing"
)

func TestConfigErrorUnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("building detector: %w", NewConfigError("zone", "MinWindow", 40, "must be <= MaxWindow"))

	if !Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid in chain, got %v", err)
	}

	var ce *ConfigError
	if !As(err, &ce) {
		t.Fatalf("expected *ConfigError in chain")
	}
	if ce.Field != "MinWindow" {
		t.Errorf("expected field MinWindow, got %s", ce.Field)
	}
}

func TestDataErrorUnwrap(t *testing.T) {
	err := NewDataError("candle", "row 3", "high below low", ErrMalformedCandle)
	if !Is(err, ErrMalformedCandle) {
		t.Errorf("expected ErrMalformedCandle, got %v", err)
	}
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestValidationErrorUnwrapsToConfigInvalid(t *testing.T) {
	err := Wrap(NewValidationError("scan.workers", -1, "must be non-negative"), "validating config")
	if !Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid in chain, got %v", err)
	}
	var ve *ValidationError
	if !As(err, &ve) || ve.Field != "scan.workers" {
		t.Errorf("expected ValidationError on scan.workers, got %v", err)
	}
}
