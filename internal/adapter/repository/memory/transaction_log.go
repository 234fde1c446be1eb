package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

var (
	_ usecase.TransactionRecorder   = (*TransactionLog)(nil)
	_ usecase.TransactionRepository = (*TransactionLog)(nil)
	_ usecase.OutboxRepository      = (*TransactionLog)(nil)
)

// TransactionLog is an append-only in-memory transaction history. Every
// record also queues a transaction.recorded outbox event.
type TransactionLog struct {
	mu      sync.RWMutex
	records []*domain.Transaction
	keys    map[string]int64
	outbox  []*domain.OutboxEvent
	idGen   usecase.IDGenerator
	nowFunc func() time.Time
}

// NewTransactionLog creates an empty TransactionLog.
func NewTransactionLog(idGen usecase.IDGenerator) *TransactionLog {
	return &TransactionLog{
		keys:    make(map[string]int64),
		idGen:   idGen,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// reservedKey marks a key claimed by a movement that has not been recorded yet.
const reservedKey int64 = 0

// ReserveKey claims key for one movement.
func (l *TransactionLog) ReserveKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := l.keys[key]; ok {
		if id == reservedKey {
			return fmt.Errorf("%w: %s is held by a movement in progress", domain.ErrDuplicateIdempotencyKey, key)
		}
		return fmt.Errorf("%w: %s already recorded as transaction %d", domain.ErrDuplicateIdempotencyKey, key, id)
	}

	l.keys[key] = reservedKey
	return nil
}

// ReleaseKey drops an unrecorded reservation.
func (l *TransactionLog) ReleaseKey(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := l.keys[key]; ok && id == reservedKey {
		delete(l.keys, key)
	}
	return nil
}

// Record appends tx and assigns the next id.
func (l *TransactionLog) Record(ctx context.Context, tx *domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if tx.IdempotencyKey != "" {
		if id := l.keys[tx.IdempotencyKey]; id != reservedKey {
			return fmt.Errorf("%w: %s already recorded as transaction %d", domain.ErrDuplicateIdempotencyKey, tx.IdempotencyKey, id)
		}
	}

	tx.ID = int64(len(l.records)) + 1
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.nowFunc()
	}

	stored := *tx
	stored.Distributions = append([]domain.Distribution(nil), tx.Distributions...)
	l.records = append(l.records, &stored)

	if tx.IdempotencyKey != "" {
		l.keys[tx.IdempotencyKey] = tx.ID
	}

	l.outbox = append(l.outbox, domain.NewTransactionRecordedEvent(l.idGen.Generate(), &stored))

	return nil
}

// GetByID retrieves a transaction by id.
func (l *TransactionLog) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if id < 1 || id > int64(len(l.records)) {
		return nil, fmt.Errorf("%w: %d", domain.ErrTransactionNotFound, id)
	}
	return copyTransaction(l.records[id-1]), nil
}

// ListByAccount lists transactions referencing accountID, newest first.
func (l *TransactionLog) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.Transaction, 0, limit)
	skipped := 0
	for i := len(l.records) - 1; i >= 0 && len(out) < limit; i-- {
		tx := l.records[i]
		if !tx.References(accountID) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, copyTransaction(tx))
	}
	return out, nil
}

// GetUnpublished returns up to limit unpublished outbox events, oldest first.
func (l *TransactionLog) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := make([]*domain.OutboxEvent, 0, limit)
	for _, e := range l.outbox {
		if len(events) == limit {
			break
		}
		if !e.Published {
			c := *e
			events = append(events, &c)
		}
	}
	return events, nil
}

// MarkPublished marks an outbox event as published.
func (l *TransactionLog) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.outbox {
		if e.ID == id {
			e.Published = true
			at := publishedAt
			e.PublishedAt = &at
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", id)
}

// Len returns the number of recorded transactions.
func (l *TransactionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func copyTransaction(tx *domain.Transaction) *domain.Transaction {
	c := *tx
	c.Distributions = append([]domain.Distribution(nil), tx.Distributions...)
	return &c
}
