package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

var (
	_ usecase.TransactionRecorder   = (*TransactionRepository)(nil)
	_ usecase.TransactionRepository = (*TransactionRepository)(nil)
)

const (
	insertTransactionSQL = `
		INSERT INTO transactions (kind, amount, from_account_id, to_account_id, distributions, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	reserveKeySQL = `
		INSERT INTO movement_keys (key)
		VALUES ($1)
		ON CONFLICT (key) DO NOTHING`

	releaseKeySQL = `
		DELETE FROM movement_keys
		WHERE key = $1 AND transaction_id IS NULL`

	// Callers that skipped ReserveKey still leave the key taken.
	bindKeySQL = `
		INSERT INTO movement_keys (key, transaction_id)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET transaction_id = EXCLUDED.transaction_id
		WHERE movement_keys.transaction_id IS NULL`

	transactionColumns = `id, kind, amount, from_account_id, to_account_id, distributions, idempotency_key, created_at`

	selectTransactionSQL = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1`

	listTransactionsByAccountSQL = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE from_account_id = $1
		   OR to_account_id = $1
		   OR distributions @> jsonb_build_array(jsonb_build_object('account_id', $1::text))
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`
)

// TransactionRepository records committed movements and serves the history.
// Each record and its outbox event are written in one database transaction.
type TransactionRepository struct {
	pool  pgxPool
	txm   *TxManager
	idGen usecase.IDGenerator
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool, idGen usecase.IDGenerator) *TransactionRepository {
	return newTransactionRepositoryWithPool(pool, idGen)
}

func newTransactionRepositoryWithPool(pool pgxPool, idGen usecase.IDGenerator) *TransactionRepository {
	return &TransactionRepository{
		pool:  pool,
		txm:   newTxManagerWithPool(pool),
		idGen: idGen,
	}
}

// ReserveKey claims key in movement_keys. The row outlives the movement and
// is bound to the transaction by Record.
func (r *TransactionRepository) ReserveKey(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, reserveKeySQL, key)
	if err != nil {
		return domain.NewStoreError("reserve idempotency key", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateIdempotencyKey, key)
	}
	return nil
}

// ReleaseKey deletes a reservation that was never bound to a transaction.
func (r *TransactionRepository) ReleaseKey(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, releaseKeySQL, key); err != nil {
		return domain.NewStoreError("release idempotency key", err)
	}
	return nil
}

// Record appends tx to the history and sets tx.ID.
func (r *TransactionRepository) Record(ctx context.Context, tx *domain.Transaction) error {
	distributions, err := marshalDistributions(tx.Distributions)
	if err != nil {
		return domain.NewStoreError("encode distributions", err)
	}

	var id int64
	err = r.txm.WithinTx(ctx, func(dbtx pgx.Tx) error {
		err := dbtx.QueryRow(ctx, insertTransactionSQL,
			string(tx.Kind),
			decimalToNumeric(tx.Amount),
			textOrNull(tx.FromAccountID),
			textOrNull(tx.ToAccountID),
			distributions,
			textOrNull(tx.IdempotencyKey),
			tx.CreatedAt,
		).Scan(&id)
		if err != nil {
			return err
		}

		if tx.IdempotencyKey != "" {
			if _, err := dbtx.Exec(ctx, bindKeySQL, tx.IdempotencyKey, id); err != nil {
				return err
			}
		}

		recorded := *tx
		recorded.ID = id
		return insertOutboxEvent(ctx, dbtx, domain.NewTransactionRecordedEvent(r.idGen.Generate(), &recorded))
	})
	if err != nil {
		if isUniqueViolation(err, idempotencyKeyIndex) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateIdempotencyKey, tx.IdempotencyKey)
		}
		return domain.NewStoreError("record transaction", err)
	}

	tx.ID = id
	return nil
}

// GetByID retrieves a transaction by id.
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.pool.QueryRow(ctx, selectTransactionSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", domain.ErrTransactionNotFound, id)
		}
		return nil, domain.NewStoreError("get transaction", err)
	}
	return tx, nil
}

// ListByAccount lists transactions referencing accountID, newest first.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, listTransactionsByAccountSQL, accountID, limit, offset)
	if err != nil {
		return nil, domain.NewStoreError("list transactions", err)
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.NewStoreError("scan transaction", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("list transactions", err)
	}

	return txs, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx            domain.Transaction
		kind          string
		amount        pgtype.Numeric
		from, to, key pgtype.Text
		distributions []byte
		createdAt     time.Time
	)
	if err := row.Scan(&tx.ID, &kind, &amount, &from, &to, &distributions, &key, &createdAt); err != nil {
		return nil, err
	}

	ds, err := unmarshalDistributions(distributions)
	if err != nil {
		return nil, err
	}

	tx.Kind = domain.TransactionKind(kind)
	tx.Amount = numericToDecimal(amount)
	tx.FromAccountID = from.String
	tx.ToAccountID = to.String
	tx.Distributions = ds
	tx.IdempotencyKey = key.String
	tx.CreatedAt = createdAt
	return &tx, nil
}

func marshalDistributions(ds []domain.Distribution) ([]byte, error) {
	if len(ds) == 0 {
		return nil, nil
	}
	return json.Marshal(domain.DistributionRecords(ds))
}

func unmarshalDistributions(b []byte) ([]domain.Distribution, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var records []domain.DistributionRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode distributions: %w", err)
	}

	ds := make([]domain.Distribution, 0, len(records))
	for _, rec := range records {
		amount, err := decimal.NewFromString(rec.Amount)
		if err != nil {
			return nil, fmt.Errorf("decode distribution amount: %w", err)
		}
		ds = append(ds, domain.Distribution{AccountID: rec.AccountID, Amount: amount})
	}
	return ds, nil
}
