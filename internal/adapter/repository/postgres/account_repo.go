package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

var _ usecase.AccountRepository = (*AccountRepository)(nil)

const (
	insertAccountSQL = `
		INSERT INTO accounts (id, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	selectAccountSQL = `
		SELECT id, balance, version, created_at, updated_at
		FROM accounts
		WHERE id = $1`

	listAccountsSQL = `
		SELECT id, balance, version, created_at, updated_at
		FROM accounts
		ORDER BY id COLLATE "C"
		LIMIT $1 OFFSET $2`
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	pool pgxPool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return newAccountRepositoryWithPool(pool)
}

func newAccountRepositoryWithPool(pool pgxPool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create creates a new account.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.pool.Exec(ctx, insertAccountSQL,
		account.ID,
		decimalToNumeric(account.Balance),
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("%w: %s", domain.ErrAccountExists, account.ID)
		}
		return domain.NewStoreError("create account", err)
	}
	return nil
}

// GetByID retrieves the committed state of an account.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx, selectAccountSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
		}
		return nil, domain.NewStoreError("get account", err)
	}
	return acc, nil
}

// List lists accounts ordered by id.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	rows, err := r.pool.Query(ctx, listAccountsSQL, limit, offset)
	if err != nil {
		return nil, domain.NewStoreError("list accounts", err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0, limit)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, domain.NewStoreError("scan account", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("list accounts", err)
	}

	return accounts, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		acc     domain.Account
		balance pgtype.Numeric
	)
	if err := row.Scan(&acc.ID, &balance, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return nil, err
	}
	acc.Balance = numericToDecimal(balance)
	return &acc, nil
}
