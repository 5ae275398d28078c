package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("move p1: %w", ErrUnknownRoom)
	if got := ErrorCode(wrapped); got != ErrCodeUnknownRoom {
		t.Fatalf("code = %q, want %q", got, ErrCodeUnknownRoom)
	}
	if !errors.Is(wrapped, ErrUnknownRoom) {
		t.Fatal("wrapped sentinel must match with errors.Is")
	}
	if got := ErrorCode(errors.New("boom")); got != ErrCodeInternal {
		t.Fatalf("code = %q, want %q", got, ErrCodeInternal)
	}
}
