package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/bankledger/internal/domain"
)

// PostgreSQL error codes the repositories react to.
const (
	pgErrUniqueViolation  = "23505"
	pgErrCheckViolation   = "23514"
	pgErrLockNotAvailable = "55P03"
	pgErrQueryCanceled    = "57014"
)

const idempotencyKeyIndex = "idx_transactions_idempotency_key"

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgErrUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// lockError maps a failure while taking row locks. Lock timeouts and an
// expired caller deadline both mean the accounts are busy.
func lockError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrStore), errors.Is(err, domain.ErrAccountNotFound):
		return err
	case pgErrorCode(err) == pgErrLockNotAvailable,
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrBusy, err)
	case errors.Is(err, context.Canceled):
		return err
	case pgErrorCode(err) == pgErrQueryCanceled && ctx.Err() != nil:
		return ctx.Err()
	}
	return domain.NewStoreError(op, err)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
