package domain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Movement is a normalized request to move money.
// Which fields are used depends on Kind.
type Movement struct {
	Kind           TransactionKind
	AccountID      string
	FromAccountID  string
	ToAccountID    string
	Amount         decimal.Decimal
	Distributions  []Distribution
	IdempotencyKey string
}

// Normalize validates m and returns a copy with trimmed identifiers.
func (m Movement) Normalize() (Movement, error) {
	var err error

	switch m.Kind {
	case KindDeposit, KindWithdraw:
		if m.FromAccountID != "" || m.ToAccountID != "" || len(m.Distributions) > 0 {
			return Movement{}, NewValidationError("account_id", fmt.Sprintf("conflicting targets for %s", m.Kind))
		}
		if m.AccountID, err = ValidateAccountID("account_id", m.AccountID); err != nil {
			return Movement{}, err
		}
		if err := ValidateAmount("amount", m.Amount); err != nil {
			return Movement{}, err
		}

	case KindTransfer:
		if m.AccountID != "" || len(m.Distributions) > 0 {
			return Movement{}, NewValidationError("account_id", "conflicting targets for transfer")
		}
		if m.FromAccountID, err = ValidateAccountID("from_account_id", m.FromAccountID); err != nil {
			return Movement{}, err
		}
		if m.ToAccountID, err = ValidateAccountID("to_account_id", m.ToAccountID); err != nil {
			return Movement{}, err
		}
		if m.FromAccountID == m.ToAccountID {
			return Movement{}, &ValidationError{Field: "to_account_id", Reason: ErrSameAccount.Error(), Err: ErrSameAccount}
		}
		if err := ValidateAmount("amount", m.Amount); err != nil {
			return Movement{}, err
		}

	case KindDistributedDeposit:
		if m.AccountID != "" || m.FromAccountID != "" || m.ToAccountID != "" {
			return Movement{}, NewValidationError("account_id", "conflicting targets for distributed deposit")
		}
		if err := ValidateAmount("amount", m.Amount); err != nil {
			return Movement{}, err
		}
		if m.Distributions, err = ValidateDistributions(m.Amount, m.Distributions); err != nil {
			return Movement{}, err
		}

	default:
		return Movement{}, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", m.Kind), Err: ErrUnknownMovement}
	}

	return m, nil
}

// InvolvedAccountIDs returns the deduplicated, sorted set of accounts the
// movement must lock.
func (m Movement) InvolvedAccountIDs() []string {
	var ids []string
	switch m.Kind {
	case KindDeposit, KindWithdraw:
		ids = []string{m.AccountID}
	case KindTransfer:
		ids = []string{m.FromAccountID, m.ToAccountID}
	case KindDistributedDeposit:
		ids = make([]string, 0, len(m.Distributions))
		for _, d := range m.Distributions {
			ids = append(ids, d.AccountID)
		}
	}
	return CanonicalIDs(ids)
}

// CanonicalIDs deduplicates ids and sorts them ascending. Every lock
// acquisition goes through this order.
func CanonicalIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
