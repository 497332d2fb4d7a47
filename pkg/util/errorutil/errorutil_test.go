package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestToDomainError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"no rows", fmt.Errorf("get ticket: %w", pgx.ErrNoRows), "NOT_FOUND", http.StatusNotFound},
		{"domain passthrough", NewConflict("stale", nil), "CONFLICT", http.StatusConflict},
		{"wrapped domain", fmt.Errorf("svc: %w", NewForbidden("nope")), "FORBIDDEN", http.StatusForbidden},
		{"unknown", errors.New("boom"), "INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToDomainError(tc.err)
			if got.Code != tc.code || got.HTTPStatus != tc.status {
				t.Fatalf("expected %s/%d, got %s/%d", tc.code, tc.status, got.Code, got.HTTPStatus)
			}
		})
	}
	if ToDomainError(nil) != nil {
		t.Fatal("nil error must map to nil")
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewInvalidTransition("closed", "open"))
	if !IsCode(err, "INVALID_TRANSITION") {
		t.Fatal("expected INVALID_TRANSITION")
	}
	if IsCode(errors.New("x"), "INVALID_TRANSITION") {
		t.Fatal("plain error must not match")
	}
}
