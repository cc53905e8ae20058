package billingsync

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	if Retryable(nil) != nil {
		t.Errorf("wrapping nil must return nil")
	}

	base := errors.New("connection reset")
	wrapped := Retryable(base)
	if !IsRetryable(wrapped) {
		t.Errorf("wrapped error must be retryable")
	}
	if !errors.Is(wrapped, base) {
		t.Errorf("wrapping must preserve the cause")
	}

	// Retryability survives further wrapping up the call stack.
	outer := fmt.Errorf("handle event: %w", wrapped)
	if !IsRetryable(outer) {
		t.Errorf("retryability must survive fmt.Errorf wrapping")
	}
}

func TestIsRetryable_PlainErrors(t *testing.T) {
	if IsRetryable(nil) {
		t.Errorf("nil is not retryable")
	}
	if IsRetryable(ErrVersionConflict) {
		t.Errorf("sentinel errors are not retryable by themselves")
	}
}
