package dto

import (
	"encoding/json"

	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

// MovementRequest is the body of deposit, withdraw and transfer requests as
// a client builds it. Amounts are JSON numbers; the server never coerces
// strings. The server decodes the same body into domain.RawMovement.
type MovementRequest struct {
	AccountID     string                `json:"account_id,omitempty"`
	FromAccountID string                `json:"from_account_id,omitempty"`
	ToAccountID   string                `json:"to_account_id,omitempty"`
	Amount        json.Number           `json:"amount"`
	Distributions []DistributionRequest `json:"to_account_distributions,omitempty"`
}

// DistributionRequest is one share of a distributed deposit.
type DistributionRequest struct {
	AccountID string      `json:"account_id"`
	Amount    json.Number `json:"amount"`
}

// CreateAccountRequest represents a request to create an account.
type CreateAccountRequest struct {
	ID string `json:"id"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateAccountRequest) ToUseCaseInput() usecase.CreateAccountInput {
	return usecase.CreateAccountInput{ID: r.ID}
}

// RegisterRequest represents a request to register an API user.
type RegisterRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *RegisterRequest) ToUseCaseInput() usecase.RegisterInput {
	return usecase.RegisterInput{
		Username: r.Username,
		Password: r.Password,
		Role:     r.Role,
	}
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ToUseCaseInput converts to use case input.
func (r *LoginRequest) ToUseCaseInput() usecase.LoginInput {
	return usecase.LoginInput{
		Username: r.Username,
		Password: r.Password,
	}
}
