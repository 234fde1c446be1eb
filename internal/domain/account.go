package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a ledger account holding a non-negative balance.
type Account struct {
	ID        string
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount creates an empty account with an externally assigned id.
func NewAccount(id string, now time.Time) *Account {
	return &Account{
		ID:        id,
		Balance:   decimal.Zero,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy that can be staged without touching the original.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}

// ValidateDebit checks if account can be debited by amount.
func (a *Account) ValidateDebit(amount decimal.Decimal) error {
	if a.Balance.LessThan(amount) {
		return fmt.Errorf("%w: account %s has %s, requested %s",
			ErrInsufficientFunds, a.ID, a.Balance.StringFixed(2), amount.StringFixed(2))
	}
	return nil
}

// ApplyDebit subtracts amount and bumps the version.
func (a *Account) ApplyDebit(amount decimal.Decimal, now time.Time) {
	a.Balance = a.Balance.Sub(amount)
	a.touch(now)
}

// ApplyCredit adds amount and bumps the version.
func (a *Account) ApplyCredit(amount decimal.Decimal, now time.Time) {
	a.Balance = a.Balance.Add(amount)
	a.touch(now)
}

func (a *Account) touch(now time.Time) {
	a.Version++
	a.UpdatedAt = now
}
