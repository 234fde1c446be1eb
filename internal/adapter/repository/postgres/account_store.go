package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

var (
	_ usecase.AccountStore = (*AccountStore)(nil)
	_ usecase.AccountGroup = (*accountGroup)(nil)
)

const (
	setLockTimeoutSQL = `SELECT set_config('lock_timeout', $1, true)`

	// Rows are locked in the order they are emitted, so ORDER BY fixes the
	// lock order. COLLATE "C" matches the byte order used by CanonicalIDs.
	lockAccountsSQL = `
		SELECT id, balance, version, created_at, updated_at
		FROM accounts
		WHERE id = ANY($1)
		ORDER BY id COLLATE "C"
		FOR UPDATE`

	updateAccountSQL = `
		UPDATE accounts
		SET balance = $2, version = $3, updated_at = $4
		WHERE id = $1 AND version = $5`
)

// AccountStore takes row locks on accounts inside a database transaction.
// The transaction lives as long as the AccountGroup it backs.
type AccountStore struct {
	pool    pgxPool
	retrier *Retrier
	logger  zerolog.Logger
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *pgxpool.Pool, retrier *Retrier, logger zerolog.Logger) *AccountStore {
	return newAccountStoreWithPool(pool, retrier, logger)
}

func newAccountStoreWithPool(pool pgxPool, retrier *Retrier, logger zerolog.Logger) *AccountStore {
	if retrier == nil {
		retrier = NewRetrier()
	}
	return &AccountStore{pool: pool, retrier: retrier, logger: logger}
}

// Acquire begins a transaction and locks every account in ids with
// SELECT ... FOR UPDATE. The wait is bounded by the deadline of ctx.
func (s *AccountStore) Acquire(ctx context.Context, ids []string) (usecase.AccountGroup, error) {
	ids = domain.CanonicalIDs(ids)
	if len(ids) == 0 {
		return nil, domain.NewValidationError("account_id", "no accounts to lock")
	}

	var group *accountGroup
	err := s.retrier.Retry(ctx, func() error {
		g, err := s.acquire(ctx, ids)
		if err != nil {
			return err
		}
		group = g
		return nil
	})
	if err != nil {
		return nil, lockError(ctx, "acquire", err)
	}

	return group, nil
}

func (s *AccountStore) acquire(ctx context.Context, ids []string) (*accountGroup, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, lockError(ctx, "begin", err)
	}

	accounts, err := lockAccounts(ctx, tx, ids)
	if err != nil {
		// The caller's context may already be done.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn().Err(rbErr).Strs("accounts", ids).Msg("rollback after failed acquire")
		}
		return nil, err
	}

	return &accountGroup{
		tx:       tx,
		accounts: accounts,
		staged:   make(map[string]*domain.Account, len(ids)),
		logger:   s.logger,
	}, nil
}

func lockAccounts(ctx context.Context, tx pgx.Tx, ids []string) (map[string]*domain.Account, error) {
	if deadline, ok := ctx.Deadline(); ok {
		ms := time.Until(deadline).Milliseconds()
		if ms < 1 {
			ms = 1
		}
		if _, err := tx.Exec(ctx, setLockTimeoutSQL, strconv.FormatInt(ms, 10)); err != nil {
			return nil, lockError(ctx, "set lock timeout", err)
		}
	}

	rows, err := tx.Query(ctx, lockAccountsSQL, ids)
	if err != nil {
		return nil, lockError(ctx, "lock accounts", err)
	}
	defer rows.Close()

	accounts := make(map[string]*domain.Account, len(ids))
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, domain.NewStoreError("scan account", err)
		}
		accounts[acc.ID] = acc
	}
	if err := rows.Err(); err != nil {
		return nil, lockError(ctx, "lock accounts", err)
	}

	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
		}
	}

	return accounts, nil
}

// accountGroup is not safe for concurrent use.
type accountGroup struct {
	tx       pgx.Tx
	accounts map[string]*domain.Account
	staged   map[string]*domain.Account
	done     bool
	logger   zerolog.Logger
}

func (g *accountGroup) Get(id string) (*domain.Account, error) {
	if g.done {
		return nil, domain.ErrGroupDone
	}
	if acc, ok := g.staged[id]; ok {
		return acc.Clone(), nil
	}
	acc, ok := g.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotLocked, id)
	}
	return acc.Clone(), nil
}

func (g *accountGroup) Put(account *domain.Account) error {
	if g.done {
		return domain.ErrGroupDone
	}
	if _, ok := g.accounts[account.ID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountNotLocked, account.ID)
	}
	g.staged[account.ID] = account.Clone()
	return nil
}

// Commit writes staged accounts in lock order and commits the transaction.
// Each update is guarded by the version read under the lock.
func (g *accountGroup) Commit(ctx context.Context) error {
	if g.done {
		return domain.ErrGroupDone
	}
	g.done = true

	for _, id := range domain.CanonicalIDs(stagedIDs(g.staged)) {
		acc := g.staged[id]
		tag, err := g.tx.Exec(ctx, updateAccountSQL,
			acc.ID,
			decimalToNumeric(acc.Balance),
			acc.Version,
			acc.UpdatedAt,
			g.accounts[id].Version,
		)
		if err == nil && tag.RowsAffected() != 1 {
			err = fmt.Errorf("account %s changed outside its lock", id)
		}
		if err != nil {
			if rbErr := g.tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				g.logger.Warn().Err(rbErr).Str("account", id).Msg("rollback after failed update")
			}
			if pgErrorCode(err) == pgErrCheckViolation {
				return domain.NewStoreError("update account", fmt.Errorf("account %s: balance constraint: %w", id, err))
			}
			return domain.NewStoreError("update account", err)
		}
	}

	if err := g.tx.Commit(ctx); err != nil {
		return domain.NewStoreError("commit", err)
	}
	return nil
}

// Abort rolls the transaction back. It is a no-op once the group has finished.
func (g *accountGroup) Abort(ctx context.Context) error {
	if g.done {
		return nil
	}
	g.done = true

	if err := g.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return domain.NewStoreError("rollback", err)
	}
	return nil
}

func stagedIDs(staged map[string]*domain.Account) []string {
	ids := make([]string, 0, len(staged))
	for id := range staged {
		ids = append(ids, id)
	}
	return ids
}
