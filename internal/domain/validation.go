package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrAmountTooLarge   = errors.New("amount exceeds maximum allowed")
	ErrAmountPrecision  = errors.New("amount has too many decimal places")
	ErrInvalidAccountID = errors.New("invalid account id")
	ErrInvalidUsername  = errors.New("invalid username")
	ErrPasswordTooWeak  = errors.New("password does not meet requirements")
)

// Validation constants
const (
	MaxAmount         = "1000000000000" // 1 trillion
	AmountScale       = 2
	MinUsernameLength = 3
	MaxUsernameLength = 64
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var (
	maxAmount     = decimal.RequireFromString(MaxAmount)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ValidateAccountID trims id and rejects empty values.
func ValidateAccountID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", &ValidationError{Field: field, Reason: "must be a non-empty string", Err: ErrInvalidAccountID}
	}
	return id, nil
}

// ValidateAmount checks that amount is positive, within bounds and
// representable in minor units.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: field, Reason: "must be a positive number", Err: ErrInvalidAmount}
	}

	if !amount.Equal(amount.Truncate(AmountScale)) {
		return &ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("must have at most %d decimal places", AmountScale),
			Err:    ErrAmountPrecision,
		}
	}

	if amount.GreaterThan(maxAmount) {
		return &ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("maximum amount is %s", MaxAmount),
			Err:    ErrAmountTooLarge,
		}
	}

	return nil
}

// ValidateDistributions checks every share and that the shares add up to
// total exactly. It returns the shares with trimmed account ids.
func ValidateDistributions(total decimal.Decimal, distributions []Distribution) ([]Distribution, error) {
	const field = "to_account_distributions"

	if len(distributions) == 0 {
		return nil, NewValidationError(field, "must be a non-empty list")
	}

	out := make([]Distribution, len(distributions))
	sum := decimal.Zero
	for i, d := range distributions {
		id, err := ValidateAccountID(fmt.Sprintf("%s[%d].account_id", field, i), d.AccountID)
		if err != nil {
			return nil, err
		}
		if err := ValidateAmount(fmt.Sprintf("%s[%d].amount", field, i), d.Amount); err != nil {
			return nil, err
		}
		out[i] = Distribution{AccountID: id, Amount: d.Amount}
		sum = sum.Add(d.Amount)
	}

	if !sum.Equal(total) {
		return nil, &ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("distributions sum to %s, expected %s", sum.String(), total.String()),
			Err:    ErrDistributionSum,
		}
	}

	return out, nil
}

// ValidateUsername validates username format
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)

	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return fmt.Errorf("%w: must be %d-%d characters", ErrInvalidUsername, MinUsernameLength, MaxUsernameLength)
	}

	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: only letters, digits, dot, dash and underscore are allowed", ErrInvalidUsername)
	}

	return nil
}

// ValidatePassword validates password strength
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordTooWeak, MinPasswordLength)
	}

	if len(password) > MaxPasswordLength {
		return fmt.Errorf("%w: must not exceed %d characters", ErrPasswordTooWeak, MaxPasswordLength)
	}

	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
