package common

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	t.Run("with cause", func(t *testing.T) {
		err := New(ErrStore, "upsert failed", errors.New("connection refused"))
		want := "[store_error] upsert failed: connection refused"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("without cause", func(t *testing.T) {
		err := Newf(ErrNoSeriesData, "no rows for %s", "GPRK")
		want := "[no_series_data] no rows for GPRK"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})
}

func TestKindOf(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	wrapped := fmt.Errorf("stage fetch: %w", New(ErrTransport, "request failed", cause))

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), ""},
		{"direct", New(ErrRateLimited, "slow down", nil), ErrRateLimited},
		{"wrapped", wrapped, ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}

	if !errors.Is(wrapped, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if !Is(wrapped, ErrTransport) {
		t.Error("Is(wrapped, ErrTransport) = false, want true")
	}
	if Is(nil, ErrTransport) {
		t.Error("Is(nil, ...) should be false")
	}
	if !strings.Contains(wrapped.Error(), "transport_error") {
		t.Errorf("wrapped message %q lost the kind", wrapped.Error())
	}
}
