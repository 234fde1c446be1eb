package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// RawMovement holds request fields exactly as they arrived. A nil field was
// absent; a field holding the JSON literal null was sent as null.
type RawMovement struct {
	AccountID     json.RawMessage `json:"account_id"`
	FromAccountID json.RawMessage `json:"from_account_id"`
	ToAccountID   json.RawMessage `json:"to_account_id"`
	Amount        json.RawMessage `json:"amount"`
	Distributions json.RawMessage `json:"to_account_distributions"`
}

type rawDistribution struct {
	AccountID json.RawMessage `json:"account_id"`
	Amount    json.RawMessage `json:"amount"`
}

// ParseMovement validates raw input for kind and returns a normalized
// movement. Deposits are routed to the single or distributed form based on
// which target is present.
func ParseMovement(kind TransactionKind, raw RawMovement) (Movement, error) {
	switch kind {
	case KindDeposit, KindDistributedDeposit:
		return ParseDeposit(raw)
	case KindWithdraw:
		return ParseWithdraw(raw)
	case KindTransfer:
		return ParseTransfer(raw)
	default:
		return Movement{}, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind), Err: ErrUnknownMovement}
	}
}

// ParseDeposit validates a single or distributed deposit.
func ParseDeposit(raw RawMovement) (Movement, error) {
	if present(raw.FromAccountID) || present(raw.ToAccountID) {
		return Movement{}, NewValidationError("from_account_id", "not allowed for deposit")
	}

	hasSingle := present(raw.AccountID)
	hasDist := present(raw.Distributions)

	switch {
	case hasSingle && hasDist:
		return Movement{}, NewValidationError("account_id", "conflicting targets: account_id cannot be combined with to_account_distributions")
	case !hasSingle && !hasDist:
		return Movement{}, NewValidationError("account_id", "either account_id or to_account_distributions is required")
	}

	amount, err := parseAmount("amount", raw.Amount)
	if err != nil {
		return Movement{}, err
	}

	if hasSingle {
		id, err := parseAccountID("account_id", raw.AccountID)
		if err != nil {
			return Movement{}, err
		}
		return Movement{Kind: KindDeposit, AccountID: id, Amount: amount}.Normalize()
	}

	dists, err := parseDistributions(raw.Distributions)
	if err != nil {
		return Movement{}, err
	}

	return Movement{Kind: KindDistributedDeposit, Amount: amount, Distributions: dists}.Normalize()
}

// ParseWithdraw validates a withdrawal.
func ParseWithdraw(raw RawMovement) (Movement, error) {
	if present(raw.Distributions) || present(raw.FromAccountID) || present(raw.ToAccountID) {
		return Movement{}, NewValidationError("account_id", "withdraw accepts only account_id and amount")
	}

	id, err := parseAccountID("account_id", raw.AccountID)
	if err != nil {
		return Movement{}, err
	}

	amount, err := parseAmount("amount", raw.Amount)
	if err != nil {
		return Movement{}, err
	}

	return Movement{Kind: KindWithdraw, AccountID: id, Amount: amount}.Normalize()
}

// ParseTransfer validates a transfer. Equal source and destination fail
// before the amount is looked at.
func ParseTransfer(raw RawMovement) (Movement, error) {
	if present(raw.AccountID) || present(raw.Distributions) {
		return Movement{}, NewValidationError("account_id", "transfer accepts only from_account_id, to_account_id and amount")
	}

	from, err := parseAccountID("from_account_id", raw.FromAccountID)
	if err != nil {
		return Movement{}, err
	}

	to, err := parseAccountID("to_account_id", raw.ToAccountID)
	if err != nil {
		return Movement{}, err
	}

	if from == to {
		return Movement{}, &ValidationError{Field: "to_account_id", Reason: ErrSameAccount.Error(), Err: ErrSameAccount}
	}

	amount, err := parseAmount("amount", raw.Amount)
	if err != nil {
		return Movement{}, err
	}

	return Movement{Kind: KindTransfer, FromAccountID: from, ToAccountID: to, Amount: amount}.Normalize()
}

func present(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

func parseAccountID(field string, raw json.RawMessage) (string, error) {
	if !present(raw) {
		return "", &ValidationError{Field: field, Reason: "is required", Err: ErrInvalidAccountID}
	}

	t := bytes.TrimSpace(raw)
	if t[0] != '"' {
		return "", &ValidationError{Field: field, Reason: "must be a string", Err: ErrInvalidAccountID}
	}

	var id string
	if err := json.Unmarshal(t, &id); err != nil {
		return "", &ValidationError{Field: field, Reason: "must be a string", Err: ErrInvalidAccountID}
	}

	return ValidateAccountID(field, id)
}

// parseAmount accepts only JSON numbers. Text such as "100" is rejected.
func parseAmount(field string, raw json.RawMessage) (decimal.Decimal, error) {
	if !present(raw) {
		return decimal.Zero, &ValidationError{Field: field, Reason: "is required", Err: ErrInvalidAmount}
	}

	t := bytes.TrimSpace(raw)
	if t[0] == '"' {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must be a number, not text", Err: ErrInvalidAmount}
	}

	dec := json.NewDecoder(bytes.NewReader(t))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must be a number", Err: ErrInvalidAmount}
	}

	n, ok := v.(json.Number)
	if !ok {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must be a number", Err: ErrInvalidAmount}
	}

	amount, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: "must be a number", Err: ErrInvalidAmount}
	}

	if err := ValidateAmount(field, amount); err != nil {
		return decimal.Zero, err
	}

	return amount, nil
}

func parseDistributions(raw json.RawMessage) ([]Distribution, error) {
	const field = "to_account_distributions"

	t := bytes.TrimSpace(raw)
	if t[0] != '[' {
		return nil, NewValidationError(field, "must be a list")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(t, &entries); err != nil {
		return nil, NewValidationError(field, "must be a list")
	}

	if len(entries) == 0 {
		return nil, NewValidationError(field, "must be a non-empty list")
	}

	out := make([]Distribution, 0, len(entries))
	for i, entry := range entries {
		prefix := fmt.Sprintf("%s[%d]", field, i)

		e := bytes.TrimSpace(entry)
		if len(e) == 0 || e[0] != '{' {
			return nil, NewValidationError(prefix, "must be an object")
		}

		var rd rawDistribution
		if err := json.Unmarshal(e, &rd); err != nil {
			return nil, NewValidationError(prefix, "must be an object")
		}

		id, err := parseAccountID(prefix+".account_id", rd.AccountID)
		if err != nil {
			return nil, err
		}

		amount, err := parseAmount(prefix+".amount", rd.Amount)
		if err != nil {
			return nil, err
		}

		out = append(out, Distribution{AccountID: id, Amount: amount})
	}

	return out, nil
}
