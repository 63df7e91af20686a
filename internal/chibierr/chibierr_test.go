package chibierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(NotFound, "no such context")
	if err.Error() != "not_found: no such context" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	wrapped := Wrap(InternalError, "append failed", fmt.Errorf("disk full"))
	if wrapped.Error() != "internal_error: append failed: disk full" {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
	if errors.Unwrap(wrapped).Error() != "disk full" {
		t.Errorf("expected unwrap to reach cause")
	}
}

func TestIsAndKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		want bool
	}{
		{"direct match", New(PermissionDenied, "denied"), PermissionDenied, true},
		{"direct mismatch", New(NotFound, "x"), PermissionDenied, false},
		{"wrapped match", fmt.Errorf("ctx: %w", New(Unavailable, "bridge down")), Unavailable, true},
		{"plain error", fmt.Errorf("boom"), NotFound, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Is(tc.err, tc.kind); got != tc.want {
				t.Errorf("Is(%v, %s) = %v, want %v", tc.err, tc.kind, got, tc.want)
			}
		})
	}

	if KindOf(fmt.Errorf("plain")) != InternalError {
		t.Error("expected KindOf to default to InternalError for plain errors")
	}
	if KindOf(New(AlreadyExists, "dup")) != AlreadyExists {
		t.Error("expected KindOf to extract the wrapped kind")
	}
}
