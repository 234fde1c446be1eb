package domain

import (
	"strconv"
	"time"
)

// Event types
const (
	EventTypeTransactionRecorded = "transaction.recorded"
)

// Aggregate types
const (
	AggregateTypeTransaction = "transaction"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// DistributionRecord is the serialized form of a Distribution.
type DistributionRecord struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
}

// NewTransactionRecordedEvent builds the outbox event for a recorded transaction.
func NewTransactionRecordedEvent(id string, tx *Transaction) *OutboxEvent {
	payload := map[string]any{
		"transaction_id": tx.ID,
		"kind":           string(tx.Kind),
		"amount":         tx.Amount.StringFixed(AmountScale),
		"event_at":       tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if tx.FromAccountID != "" {
		payload["from_account_id"] = tx.FromAccountID
	}
	if tx.ToAccountID != "" {
		payload["to_account_id"] = tx.ToAccountID
	}
	if len(tx.Distributions) > 0 {
		payload["distributions"] = DistributionRecords(tx.Distributions)
	}

	return &OutboxEvent{
		ID:            id,
		AggregateID:   strconv.FormatInt(tx.ID, 10),
		AggregateType: AggregateTypeTransaction,
		EventType:     EventTypeTransactionRecorded,
		Payload:       payload,
		CreatedAt:     tx.CreatedAt,
	}
}

// DistributionRecords converts shares into their serialized form.
func DistributionRecords(ds []Distribution) []DistributionRecord {
	out := make([]DistributionRecord, len(ds))
	for i, d := range ds {
		out[i] = DistributionRecord{AccountID: d.AccountID, Amount: d.Amount.StringFixed(AmountScale)}
	}
	return out
}
