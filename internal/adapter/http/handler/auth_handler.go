package handler

import (
	"context"
	"net/http"

	"github.com/iho/bankledger/internal/adapter/http/dto"
	"github.com/iho/bankledger/internal/adapter/http/middleware"
	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

// UserService defines the behavior needed by AuthHandler.
type UserService interface {
	Register(ctx context.Context, input usecase.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, input usecase.LoginInput) (string, error)
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	userUC UserService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(userUC UserService) *AuthHandler {
	return &AuthHandler{userUC: userUC}
}

// Register creates a staff user. Anonymous callers may only create tellers.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input := req.ToUseCaseInput()
	if caller, ok := middleware.GetUserFromContext(r.Context()); ok {
		input.RequestedBy = caller.Role
	}

	user, err := h.userUC.Register(r.Context(), input)
	if err != nil {
		writeDomainError(w, "registration failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RegisterResponse{
		Message: "User registered successfully",
		UserID:  user.ID,
	})
}

// Login exchanges credentials for a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	token, err := h.userUC.Login(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "Invalid credentials", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoginResponse{Token: token})
}
