package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/iho/bankledger/internal/domain"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// AccountStore hands out exclusive access to groups of accounts.
type AccountStore interface {
	// Acquire locks every account in ids, in sorted order, as one group.
	// It returns domain.ErrAccountNotFound if any id is unknown and
	// domain.ErrBusy if ctx expires while waiting.
	Acquire(ctx context.Context, ids []string) (AccountGroup, error)
}

// AccountGroup is a set of locked accounts with staged mutations.
// A group is owned by one goroutine and must end with Commit or Abort.
type AccountGroup interface {
	Get(id string) (*domain.Account, error)
	Put(account *domain.Account) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// AccountRepository defines read and provisioning access to accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Account, error)
}

// TransactionRecorder appends committed movements to the history.
type TransactionRecorder interface {
	// ReserveKey claims an idempotency key before any account is touched.
	// It returns domain.ErrDuplicateIdempotencyKey if the key is already
	// reserved or recorded.
	ReserveKey(ctx context.Context, key string) error
	// ReleaseKey drops a reservation whose movement did not commit.
	// Recorded keys are never released.
	ReleaseKey(ctx context.Context, key string) error
	Record(ctx context.Context, tx *domain.Transaction) error
}

// TransactionRepository reads the transaction history.
type TransactionRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Transaction, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error)
}

// OutboxRepository defines persistence operations for outbox events.
type OutboxRepository interface {
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
}

// UserRepository defines persistence operations for API users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency keys.
type IdempotencyStore interface {
	// CheckAndSet reserves key. It reports whether the key already existed
	// and, if so, the stored response.
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// LedgerMetrics receives engine observations.
type LedgerMetrics interface {
	ObserveMovement(kind domain.TransactionKind, outcome string, duration time.Duration)
	ObserveLockWait(kind domain.TransactionKind, duration time.Duration)
	ObserveRecordingWarning(kind domain.TransactionKind)
}

type noopMetrics struct{}

func (noopMetrics) ObserveMovement(domain.TransactionKind, string, time.Duration) {}
func (noopMetrics) ObserveLockWait(domain.TransactionKind, time.Duration)         {}
func (noopMetrics) ObserveRecordingWarning(domain.TransactionKind)                {}
