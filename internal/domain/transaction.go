package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind identifies the movement a transaction record describes.
type TransactionKind string

const (
	KindDeposit            TransactionKind = "deposit"
	KindWithdraw           TransactionKind = "withdraw"
	KindTransfer           TransactionKind = "transfer"
	KindDistributedDeposit TransactionKind = "distributed_deposit"
)

// IsValid reports whether k is one of the known kinds.
func (k TransactionKind) IsValid() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindTransfer, KindDistributedDeposit:
		return true
	}
	return false
}

// Distribution is one share of a distributed deposit.
type Distribution struct {
	AccountID string
	Amount    decimal.Decimal
}

// Transaction is the immutable record of a committed movement.
// ID is assigned by the recorder and is zero until recorded.
type Transaction struct {
	ID             int64
	Kind           TransactionKind
	Amount         decimal.Decimal
	FromAccountID  string
	ToAccountID    string
	Distributions  []Distribution
	IdempotencyKey string
	CreatedAt      time.Time
}

// AccountIDs returns every account the record references, in record order.
func (t *Transaction) AccountIDs() []string {
	var ids []string
	if t.FromAccountID != "" {
		ids = append(ids, t.FromAccountID)
	}
	if t.ToAccountID != "" {
		ids = append(ids, t.ToAccountID)
	}
	for _, d := range t.Distributions {
		ids = append(ids, d.AccountID)
	}
	return ids
}

// References reports whether accountID takes part in the transaction.
func (t *Transaction) References(accountID string) bool {
	for _, id := range t.AccountIDs() {
		if id == accountID {
			return true
		}
	}
	return false
}
