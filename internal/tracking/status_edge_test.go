package tracking_test

// ── Additional edge-case tests ────────────────────────────────────────────
//
// Parsing strictness for values that arrive from the database or the ops
// API. The transition matrix itself is covered in status_test.go.

import (
	"testing"

	"govwatch/discovery-service/internal/tracking"
)

// ParseStatus must be case-sensitive: lowercase variants must not be valid.
func TestParseStatus_CaseSensitive(t *testing.T) {
	for _, s := range []string{"pending", "sent", "cancelled", "Pending"} {
		if _, err := tracking.ParseStatus(s); err == nil {
			t.Errorf("ParseStatus(%q) should reject non-uppercase value, got nil error", s)
		}
	}
}

// ParseStatus must reject whitespace-padded strings.
func TestParseStatus_WithWhitespace(t *testing.T) {
	for _, s := range []string{" SENT", "SENT ", " PENDING "} {
		if _, err := tracking.ParseStatus(s); err == nil {
			t.Errorf("ParseStatus(%q) should reject padded value, got nil error", s)
		}
	}
}

// All constants must round-trip through ParseStatus without error.
func TestParseStatus_AllConstantsRoundTrip(t *testing.T) {
	for _, s := range allStatuses {
		got, err := tracking.ParseStatus(string(s))
		if err != nil || got != s {
			t.Errorf("ParseStatus(%q) = %q, %v", s, got, err)
		}
	}
}

// An unknown source status behaves like a terminal one.
func TestIsTransitionAllowed_UnknownFrom(t *testing.T) {
	if tracking.IsTransitionAllowed(tracking.Status("ARCHIVED"), tracking.StatusSent) {
		t.Error("IsTransitionAllowed(ARCHIVED → SENT) should be false")
	}
	if tracking.IsTerminal(tracking.StatusPending) {
		t.Error("IsTerminal(PENDING) should be false")
	}
}
