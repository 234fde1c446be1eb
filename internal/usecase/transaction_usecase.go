package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/bankledger/internal/domain"
)

// TransactionUseCase reads the transaction history. Records never change
// once written, so single lookups are served read-through from the cache.
type TransactionUseCase struct {
	txRepo   TransactionRepository
	cache    Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewTransactionUseCase creates a new TransactionUseCase. cache may be nil.
func NewTransactionUseCase(txRepo TransactionRepository, cache Cache, cacheTTL time.Duration, logger zerolog.Logger) *TransactionUseCase {
	if cacheTTL <= 0 {
		cacheTTL = DefaultTransactionCacheTTL
	}
	return &TransactionUseCase{
		txRepo:   txRepo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// GetTransaction retrieves a transaction by ID.
func (uc *TransactionUseCase) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	key := transactionCacheKey(id)

	if uc.cache != nil {
		cached, err := uc.cache.Get(ctx, key)
		switch {
		case err == nil:
			if tx, decodeErr := decodeCachedTransaction(cached); decodeErr == nil {
				return tx, nil
			}
			uc.logger.Warn().Int64("transaction_id", id).Msg("dropping undecodable cached transaction")
			_ = uc.cache.Delete(ctx, key)
		case !errors.Is(err, ErrCacheMiss):
			uc.logger.Warn().Err(err).Int64("transaction_id", id).Msg("transaction cache read failed")
		}
	}

	tx, err := uc.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if encoded, err := encodeCachedTransaction(tx); err == nil {
			if err := uc.cache.Set(ctx, key, encoded, uc.cacheTTL); err != nil {
				uc.logger.Warn().Err(err).Int64("transaction_id", id).Msg("transaction cache write failed")
			}
		}
	}

	return tx, nil
}

// ListByAccountInput represents input for listing an account's history.
type ListByAccountInput struct {
	AccountID string
	Limit     int
	Offset    int
}

// ListByAccount lists an account's transactions, newest first.
func (uc *TransactionUseCase) ListByAccount(ctx context.Context, input ListByAccountInput) ([]*domain.Transaction, error) {
	id, err := domain.ValidateAccountID("account_id", input.AccountID)
	if err != nil {
		return nil, err
	}
	limit, offset := domain.ValidatePagination(input.Limit, input.Offset)
	return uc.txRepo.ListByAccount(ctx, id, limit, offset)
}

func transactionCacheKey(id int64) string {
	return "transaction:" + strconv.FormatInt(id, 10)
}

type cachedTransaction struct {
	ID             int64                       `json:"id"`
	Kind           string                      `json:"kind"`
	Amount         string                      `json:"amount"`
	FromAccountID  string                      `json:"from_account_id,omitempty"`
	ToAccountID    string                      `json:"to_account_id,omitempty"`
	Distributions  []domain.DistributionRecord `json:"distributions,omitempty"`
	IdempotencyKey string                      `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
}

func encodeCachedTransaction(tx *domain.Transaction) (string, error) {
	b, err := json.Marshal(cachedTransaction{
		ID:             tx.ID,
		Kind:           string(tx.Kind),
		Amount:         tx.Amount.String(),
		FromAccountID:  tx.FromAccountID,
		ToAccountID:    tx.ToAccountID,
		Distributions:  domain.DistributionRecords(tx.Distributions),
		IdempotencyKey: tx.IdempotencyKey,
		CreatedAt:      tx.CreatedAt,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCachedTransaction(s string) (*domain.Transaction, error) {
	var c cachedTransaction
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(c.Amount)
	if err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		ID:             c.ID,
		Kind:           domain.TransactionKind(c.Kind),
		Amount:         amount,
		FromAccountID:  c.FromAccountID,
		ToAccountID:    c.ToAccountID,
		IdempotencyKey: c.IdempotencyKey,
		CreatedAt:      c.CreatedAt,
	}

	for _, d := range c.Distributions {
		a, err := decimal.NewFromString(d.Amount)
		if err != nil {
			return nil, err
		}
		tx.Distributions = append(tx.Distributions, domain.Distribution{AccountID: d.AccountID, Amount: a})
	}

	return tx, nil
}
