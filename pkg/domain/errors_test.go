package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundErrorDetection(t *testing.T) {
	err := fmt.Errorf("get latest: %w", NotFoundError{ID: "doc-404"})
	if !IsNotFound(err) {
		t.Fatalf("expected wrapped NotFoundError to be detected")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatalf("expected unrelated error to not match")
	}
	if got := err.Error(); got != "get latest: document doc-404 not found" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestConflictErrorDetection(t *testing.T) {
	err := ConflictError{ID: "doc-1", Version: 3}
	if !IsConflict(fmt.Errorf("update: %w", err)) {
		t.Fatalf("expected wrapped ConflictError to be detected")
	}
	if IsConflict(NotFoundError{ID: "doc-1"}) {
		t.Fatalf("expected NotFoundError to not match conflict")
	}
}

func TestUnavailableErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := UnavailableError{Op: "ListLatest", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable via errors.Is")
	}
	if got := err.Error(); got != "store backend unavailable during ListLatest: connection reset" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestInvalidTokenSentinel(t *testing.T) {
	err := fmt.Errorf("%w: bad base64", ErrInvalidToken)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected sentinel match for wrapped token error")
	}
}
