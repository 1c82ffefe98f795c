package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

// TestNewError tests creating an error without a cause.
func TestNewError(t *testing.T) {
	err := New(ErrSyncFailed, "push rejected")

	if err.Code != ErrSyncFailed {
		t.Errorf("Expected code %s, got %s", ErrSyncFailed, err.Code)
	}
	msg := err.Error()
	if !strings.Contains(msg, string(ErrSyncFailed)) {
		t.Errorf("Expected code in message, got %q", msg)
	}
	if !strings.Contains(msg, "push rejected") {
		t.Errorf("Expected message text, got %q", msg)
	}
	if err.Unwrap() != nil {
		t.Error("Expected no underlying error")
	}
}

// TestWrapError tests wrapping a cause with a code.
func TestWrapError(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrap(ErrStorage, "write failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("Expected wrapped error to match cause via errors.Is")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("Expected cause in message, got %q", err.Error())
	}
}

// TestCodeOf tests code extraction through wrapping layers.
func TestCodeOf(t *testing.T) {
	inner := New(ErrPathConflict, "object exists")
	outer := fmt.Errorf("uploading photo: %w", inner)

	if got := CodeOf(outer); got != ErrPathConflict {
		t.Errorf("Expected %s through fmt wrapping, got %s", ErrPathConflict, got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != ErrInternal {
		t.Errorf("Expected %s for uncoded errors, got %s", ErrInternal, got)
	}
	if got := CodeOf(nil); got != ErrInternal {
		t.Errorf("Expected %s for nil, got %s", ErrInternal, got)
	}
}

// TestHasCode tests code matching.
func TestHasCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(ErrCompression, "decode failed", fmt.Errorf("bad header")))

	if !HasCode(err, ErrCompression) {
		t.Error("Expected compression code to match")
	}
	if HasCode(err, ErrUploadFailed) {
		t.Error("Expected mismatched code to report false")
	}
	if HasCode(nil, ErrCompression) {
		t.Error("Expected nil to report false")
	}
}
