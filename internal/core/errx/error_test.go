package errx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestResolveAppError(t *testing.T) {
	base := errors.New("disk I/O error at /var/lib/db")
	err := fmt.Errorf("append: %w", New(base, http.StatusBadGateway, StoreWriteMessage))

	status, msg := Resolve(err)
	if status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	if msg != StoreWriteMessage {
		t.Fatalf("expected sanitized message, got %q", msg)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to remain reachable")
	}
}

func TestResolvePlainError(t *testing.T) {
	status, msg := Resolve(errors.New("boom"))
	if status != http.StatusInternalServerError || msg != SystemErrorMessage {
		t.Fatalf("unexpected resolution: %d %q", status, msg)
	}
}
