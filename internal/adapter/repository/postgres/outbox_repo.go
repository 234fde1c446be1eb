package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/bankledger/internal/domain"
	"github.com/iho/bankledger/internal/usecase"
)

var _ usecase.OutboxRepository = (*OutboxRepository)(nil)

const (
	insertOutboxEventSQL = `
		INSERT INTO outbox_events (id, event_type, aggregate_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	selectUnpublishedEventsSQL = `
		SELECT id, event_type, aggregate_type, aggregate_id, payload, created_at, published_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1`

	markEventPublishedSQL = `
		UPDATE outbox_events
		SET published_at = $2
		WHERE id = $1`
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	pool pgxPool
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return newOutboxRepositoryWithPool(pool)
}

func newOutboxRepositoryWithPool(pool pgxPool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func insertOutboxEvent(ctx context.Context, q execer, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}

	_, err = q.Exec(ctx, insertOutboxEventSQL,
		event.ID,
		event.EventType,
		event.AggregateType,
		event.AggregateID,
		payload,
		event.CreatedAt,
	)
	return err
}

// GetUnpublished retrieves unpublished events, oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, selectUnpublishedEventsSQL, limit)
	if err != nil {
		return nil, domain.NewStoreError("get unpublished events", err)
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0, limit)
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, domain.NewStoreError("scan outbox event", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("get unpublished events", err)
	}

	return events, nil
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, markEventPublishedSQL, id, publishedAt)
	if err != nil {
		return domain.NewStoreError("mark event published", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %s not found", id)
	}
	return nil
}

func scanOutboxEvent(row pgx.Row) (*domain.OutboxEvent, error) {
	var (
		event       domain.OutboxEvent
		payload     []byte
		publishedAt pgtype.Timestamptz
	)
	if err := row.Scan(&event.ID, &event.EventType, &event.AggregateType, &event.AggregateID, &payload, &event.CreatedAt, &publishedAt); err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			return nil, fmt.Errorf("decode outbox payload: %w", err)
		}
	}

	if publishedAt.Valid {
		t := publishedAt.Time
		event.PublishedAt = &t
		event.Published = true
	}

	return &event, nil
}
