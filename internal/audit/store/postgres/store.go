package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"subport/internal/audit"
	id "subport/pkg/domain"
	txcontext "subport/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table inside the same transaction as the
// order mutation, so a committed mutation always has its audit record; the
// Kafka publisher drains the outbox downstream.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) executor(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event for deserialization by downstream consumers.
type outboxPayload struct {
	ID        string `json:"ID"`
	Timestamp string `json:"Timestamp"`
	ActorID   string `json:"ActorID,omitempty"`
	OrderID   string `json:"OrderID"`
	LineID    string `json:"LineID,omitempty"`
	Action    string `json:"Action"`
	Source    string `json:"Source,omitempty"`
	Reason    string `json:"Reason,omitempty"`
	RequestID string `json:"RequestID,omitempty"`
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	payload := outboxPayload{
		ID:        eventID,
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		OrderID:   event.OrderID.String(),
		Action:    string(event.Action),
		Source:    string(event.Source),
		Reason:    event.Reason,
		RequestID: event.RequestID,
	}
	if !event.ActorID.IsNil() {
		payload.ActorID = event.ActorID.String()
	}
	if !event.LineID.IsNil() {
		payload.LineID = event.LineID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_outbox (id, order_id, action, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.executor(ctx).ExecContext(ctx, query,
		eventID, uuid.UUID(event.OrderID), string(event.Action), payloadBytes, event.Timestamp,
	); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByOrder(ctx context.Context, orderID id.OrderID) ([]audit.Event, error) {
	query := `
		SELECT payload FROM audit_outbox
		WHERE order_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.executor(ctx).QueryContext(ctx, query, uuid.UUID(orderID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event, err := decodePayload(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func decodePayload(raw []byte) (audit.Event, error) {
	var payload outboxPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return audit.Event{}, fmt.Errorf("decode audit payload: %w", err)
	}

	event := audit.Event{
		ID:        payload.ID,
		Action:    audit.Action(payload.Action),
		Source:    id.ChangeSource(payload.Source),
		Reason:    payload.Reason,
		RequestID: payload.RequestID,
	}
	if payload.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, payload.Timestamp)
		if err != nil {
			return audit.Event{}, fmt.Errorf("decode audit timestamp: %w", err)
		}
		event.Timestamp = ts
	}
	if payload.ActorID != "" {
		if parsed, err := uuid.Parse(payload.ActorID); err == nil {
			event.ActorID = id.UserID(parsed)
		}
	}
	if parsed, err := uuid.Parse(payload.OrderID); err == nil {
		event.OrderID = id.OrderID(parsed)
	}
	if payload.LineID != "" {
		if parsed, err := uuid.Parse(payload.LineID); err == nil {
			event.LineID = id.LineID(parsed)
		}
	}
	return event, nil
}

// FetchUnpublished returns up to limit outbox events that have not been
// shipped to Kafka yet, oldest first.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT payload FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`
	rows, err := s.executor(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event, err := decodePayload(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// MarkPublished stamps outbox rows as shipped.
func (s *Store) MarkPublished(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(eventIDs))
	for _, eventID := range eventIDs {
		parsed, err := uuid.Parse(eventID)
		if err != nil {
			return fmt.Errorf("mark published: %w", err)
		}
		ids = append(ids, parsed)
	}
	query := `
		UPDATE audit_outbox SET published_at = now()
		WHERE id = ANY($1)
	`
	if _, err := s.executor(ctx).ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// Schema is the outbox DDL. Integration tests and the dev server apply it;
// production deployments manage it with their migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_outbox (
	id           UUID PRIMARY KEY,
	order_id     UUID NOT NULL,
	action       TEXT NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS audit_outbox_order_idx ON audit_outbox (order_id, created_at);
CREATE INDEX IF NOT EXISTS audit_outbox_unpublished_idx ON audit_outbox (created_at) WHERE published_at IS NULL;
`
