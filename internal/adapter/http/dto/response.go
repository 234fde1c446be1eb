package dto

import (
	"time"

	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID        string    `json:"id"`
	Balance   string    `json:"balance"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		ID:        a.ID,
		Balance:   a.Balance.StringFixed(domain.AmountScale),
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// ListAccountsResponse is a page of accounts.
type ListAccountsResponse struct {
	Accounts []*AccountResponse `json:"accounts"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// TransactionResponse represents a recorded transaction in API responses.
type TransactionResponse struct {
	ID             int64                       `json:"id"`
	Kind           domain.TransactionKind      `json:"kind"`
	Amount         string                      `json:"amount"`
	FromAccountID  string                      `json:"from_account_id,omitempty"`
	ToAccountID    string                      `json:"to_account_id,omitempty"`
	Distributions  []domain.DistributionRecord `json:"to_account_distributions,omitempty"`
	IdempotencyKey string                      `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
}

// TransactionFromDomain converts domain transaction to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	resp := &TransactionResponse{
		ID:             t.ID,
		Kind:           t.Kind,
		Amount:         t.Amount.StringFixed(domain.AmountScale),
		FromAccountID:  t.FromAccountID,
		ToAccountID:    t.ToAccountID,
		IdempotencyKey: t.IdempotencyKey,
		CreatedAt:      t.CreatedAt,
	}
	if len(t.Distributions) > 0 {
		resp.Distributions = domain.DistributionRecords(t.Distributions)
	}
	return resp
}

// TransactionsFromDomain converts domain transactions to responses.
func TransactionsFromDomain(txs []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(txs))
	for i, t := range txs {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// ListTransactionsResponse is a page of an account's history.
type ListTransactionsResponse struct {
	AccountID    string                 `json:"account_id"`
	Transactions []*TransactionResponse `json:"transactions"`
	Limit        int                    `json:"limit"`
	Offset       int                    `json:"offset"`
}

// Movement response messages.
const (
	MessageDeposit            = "Deposit successful"
	MessageDistributedDeposit = "Deposit distributed successfully"
	MessageWithdraw           = "Withdraw successful"
	MessageTransfer           = "Transfer successful"
)

// MovementResponse acknowledges a committed movement.
type MovementResponse struct {
	Message string `json:"message"`
	// Balance is the new balance for deposit and withdraw.
	Balance *string `json:"balance,omitempty"`
	// TransactionID is omitted when the movement was not recorded.
	TransactionID *int64 `json:"transaction_id,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

// MovementFromResult builds the response for a committed movement.
func MovementFromResult(kind domain.TransactionKind, res *usecase.MovementResult) *MovementResponse {
	resp := &MovementResponse{Message: movementMessage(kind)}

	if res.Balance != nil {
		b := res.Balance.StringFixed(domain.AmountScale)
		resp.Balance = &b
	}
	if res.Warning != nil {
		resp.Warning = res.Warning.Error()
	} else if res.Transaction != nil && res.Transaction.ID != 0 {
		id := res.Transaction.ID
		resp.TransactionID = &id
	}

	return resp
}

func movementMessage(kind domain.TransactionKind) string {
	switch kind {
	case domain.KindDeposit:
		return MessageDeposit
	case domain.KindDistributedDeposit:
		return MessageDistributedDeposit
	case domain.KindWithdraw:
		return MessageWithdraw
	case domain.KindTransfer:
		return MessageTransfer
	default:
		return string(kind)
	}
}

// RegisterResponse acknowledges a registered user.
type RegisterResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// LoginResponse carries the access token.
type LoginResponse struct {
	Token string `json:"token"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}
