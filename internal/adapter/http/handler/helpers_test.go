package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/iho/bankledger/internal/adapter/http/dto"
	"github.com/iho/bankledger/internal/domain"
)

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/accounts?limit=50", nil)
	if got := parseIntQuery(req, "limit", 10); got != 50 {
		t.Fatalf("expected limit=50, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/accounts?limit=invalid", nil)
	if got := parseIntQuery(req, "limit", 10); got != 10 {
		t.Fatalf("expected fallback to default, got %d", got)
	}

	req.URL = &url.URL{RawQuery: ""}
	if got := parseIntQuery(req, "limit", 25); got != 25 {
		t.Fatalf("expected default when missing, got %d", got)
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", domain.NewValidationError("amount", "must be positive"), http.StatusBadRequest},
		{"account not found", fmt.Errorf("%w: X", domain.ErrAccountNotFound), http.StatusNotFound},
		{"transaction not found", domain.ErrTransactionNotFound, http.StatusNotFound},
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusForbidden},
		{"busy", fmt.Errorf("%w: lock wait", domain.ErrBusy), http.StatusServiceUnavailable},
		{"store", domain.NewStoreError("commit", errors.New("disk")), http.StatusInternalServerError},
		{"account exists", domain.ErrAccountExists, http.StatusConflict},
		{"user exists", domain.ErrUserExists, http.StatusConflict},
		{"invalid credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{"weak password", fmt.Errorf("%w: short", domain.ErrPasswordTooWeak), http.StatusBadRequest},
		{"invalid role", domain.ErrInvalidRole, http.StatusBadRequest},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapDomainError(tt.err); got != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestWriteDomainError(t *testing.T) {
	t.Run("validation carries field", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeDomainError(rr, "invalid request", domain.NewValidationError("to_account_distributions[1].amount", "must be positive"))

		var resp dto.ErrorResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode error response: %v", err)
		}
		if rr.Code != http.StatusBadRequest || resp.Field != "to_account_distributions[1].amount" || resp.Message != "must be positive" {
			t.Fatalf("unexpected response %d %+v", rr.Code, resp)
		}
	})

	t.Run("busy sets retry-after", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeDomainError(rr, "failed", domain.ErrBusy)

		if rr.Code != http.StatusServiceUnavailable || rr.Header().Get("Retry-After") == "" {
			t.Fatalf("expected 503 with Retry-After, got %d %v", rr.Code, rr.Header())
		}
	})

	t.Run("store error hides cause", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeDomainError(rr, "failed", domain.NewStoreError("commit", errors.New("password=hunter2")))

		var resp dto.ErrorResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode error response: %v", err)
		}
		if rr.Code != http.StatusInternalServerError || resp.Message != "internal error" {
			t.Fatalf("unexpected response %d %+v", rr.Code, resp)
		}
	})
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	payload := map[string]string{"status": "ok"}

	writeJSON(rr, http.StatusCreated, payload)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	var decoded map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if decoded["status"] != "ok" {
		t.Fatalf("expected payload to round-trip, got %+v", decoded)
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()

	writeError(rr, http.StatusBadRequest, "bad request", "detail")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error != "bad request" || resp.Message != "detail" {
		t.Fatalf("expected error message to propagate, got %+v", resp)
	}
}
