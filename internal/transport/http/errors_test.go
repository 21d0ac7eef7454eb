package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"assessment-engine/internal/domain"
)

func TestStatusForTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", domain.Invalid("userId", "required"), http.StatusBadRequest, "validation"},
		{"not found", domain.NotFound("attempt", "a1", domain.ErrAttemptNotFound), http.StatusNotFound, "not_found"},
		{"storage", domain.Persistence("load test definition", errors.New("connection refused")), http.StatusServiceUnavailable, "unavailable"},
		{"wrapped storage", fmt.Errorf("start: %w", domain.Persistence("load outline", errors.New("timeout"))), http.StatusServiceUnavailable, "unavailable"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, body := statusFor(tc.err)
		if status != tc.status || body.Code != tc.code {
			t.Fatalf("%s: expected %d/%s, got %d/%s", tc.name, tc.status, tc.code, status, body.Code)
		}
	}
}
