package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iho/bankledger/internal/adapter/http/dto"
	"github.com/iho/bankledger/internal/adapter/http/middleware"
	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

type userServiceStub struct {
	registerFn func(ctx context.Context, input usecase.RegisterInput) (*domain.User, error)
	loginFn    func(ctx context.Context, input usecase.LoginInput) (string, error)
}

func (s *userServiceStub) Register(ctx context.Context, input usecase.RegisterInput) (*domain.User, error) {
	return s.registerFn(ctx, input)
}

func (s *userServiceStub) Login(ctx context.Context, input usecase.LoginInput) (string, error) {
	return s.loginFn(ctx, input)
}

func TestAuthHandler_Register(t *testing.T) {
	handler := NewAuthHandler(&userServiceStub{
		registerFn: func(ctx context.Context, input usecase.RegisterInput) (*domain.User, error) {
			if input.Username != "alice" || input.Role != domain.RoleTeller {
				t.Fatalf("unexpected input %+v", input)
			}
			return &domain.User{ID: "user-1", Username: input.Username, Role: input.Role}, nil
		},
	})

	body := `{"username":"alice","password":"long-enough","role":"teller"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	handler.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.RegisterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.UserID != "user-1" || resp.Message != "User registered successfully" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestAuthHandler_Register_PassesCallerRole(t *testing.T) {
	tests := []struct {
		name   string
		caller *domain.User
		want   domain.Role
	}{
		{"anonymous", nil, ""},
		{"admin", &domain.User{ID: "u-1", Role: domain.RoleAdmin}, domain.RoleAdmin},
		{"teller", &domain.User{ID: "u-2", Role: domain.RoleTeller}, domain.RoleTeller},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.Role
			handler := NewAuthHandler(&userServiceStub{
				registerFn: func(ctx context.Context, input usecase.RegisterInput) (*domain.User, error) {
					got = input.RequestedBy
					return &domain.User{ID: "user-1", Username: input.Username, Role: input.Role}, nil
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(`{"username":"bob","password":"long-enough","role":"auditor"}`))
			if tt.caller != nil {
				req = req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, tt.caller))
			}
			rec := httptest.NewRecorder()

			handler.Register(rec, req)

			if rec.Code != http.StatusCreated {
				t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
			}
			if got != tt.want {
				t.Fatalf("expected RequestedBy %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"duplicate", domain.ErrUserExists, http.StatusConflict},
		{"weak password", domain.ErrPasswordTooWeak, http.StatusBadRequest},
		{"bad role", domain.ErrInvalidRole, http.StatusBadRequest},
		{"privileged role", domain.ErrInsufficientRole, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthHandler(&userServiceStub{
				registerFn: func(ctx context.Context, input usecase.RegisterInput) (*domain.User, error) {
					return nil, tt.err
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(`{"username":"alice","password":"x"}`))
			rec := httptest.NewRecorder()

			handler.Register(rec, req)

			if rec.Code != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	handler := NewAuthHandler(&userServiceStub{
		loginFn: func(ctx context.Context, input usecase.LoginInput) (string, error) {
			if input.Username == "alice" && input.Password == "long-enough" {
				return "signed-token", nil
			}
			return "", domain.ErrInvalidCredentials
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"username":"alice","password":"long-enough"}`))
	rec := httptest.NewRecorder()

	handler.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp dto.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Token != "signed-token" {
		t.Fatalf("expected token, got %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"username":"alice","password":"wrong"}`))
	rec = httptest.NewRecorder()

	handler.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var errResp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if errResp.Error != "Invalid credentials" {
		t.Fatalf("unexpected error body %+v", errResp)
	}
}

func TestAuthHandler_InvalidJSON(t *testing.T) {
	handler := NewAuthHandler(&userServiceStub{})

	for _, h := range []http.HandlerFunc{handler.Register, handler.Login} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()

		h(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	}
}
