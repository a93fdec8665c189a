// Package audit provides the append-only ledger that records every action
// performed on tenant data. Writes are best-effort: a failed audit append
// is logged and reported to the caller, but callers are expected to ignore
// the outcome for control flow so the primary pipeline never blocks on the
// ledger.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
)

// Action vocabulary for audit events.
const (
	ActionIngest = "INGEST"
	ActionAccess = "ACCESS"
	ActionExport = "EXPORT"
	ActionDelete = "DELETE"
)

// DefaultActor is recorded when the caller supplies no actor.
const DefaultActor = "system"

// Event is one append-only audit row. Rows are never updated or deleted by
// this package.
type Event struct {
	ID        int64          `db:"id" json:"id"`
	TenantID  string         `db:"tenant_id" json:"tenant_id"`
	SignalID  string         `db:"signal_id" json:"signal_id,omitempty"`
	Action    string         `db:"action" json:"action"`
	Actor     string         `db:"actor" json:"actor"`
	Details   map[string]any `db:"-" json:"details,omitempty"`
	Timestamp time.Time      `db:"timestamp" json:"timestamp"`
}

// Query filters ledger retrieval. Results are ordered most recent first.
type Query struct {
	TenantID string
	SignalID string
	Action   string
	Limit    int
	Offset   int
}

// Store is the durable append-only backend.
type Store interface {
	InsertEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, q Query) ([]Event, int, error)
}

// Ledger records audit events with server-side timestamps.
type Ledger struct {
	store  Store
	logger *logger.Logger
}

// New creates a ledger.
func New(store Store, log *logger.Logger) *Ledger {
	return &Ledger{store: store, logger: log}
}

// Record appends one audit event. The timestamp is always assigned here;
// an empty actor defaults to "system". The returned error exists for
// observability only; callers must not fail their own operation on it.
func (l *Ledger) Record(ctx context.Context, e Event) error {
	e.Timestamp = time.Now().UTC()
	if e.Actor == "" {
		e.Actor = DefaultActor
	}

	if err := l.store.InsertEvent(ctx, &e); err != nil {
		l.logger.Error("Failed to append audit event",
			zap.String("tenant_id", e.TenantID),
			zap.String("action", e.Action),
			zap.String("signal_id", e.SignalID),
			zap.Error(err),
		)
		return fmt.Errorf("appending audit event: %w", err)
	}

	l.logger.Debug("Audit event recorded",
		zap.String("tenant_id", e.TenantID),
		zap.String("action", e.Action),
		zap.String("signal_id", e.SignalID),
	)
	return nil
}

// List returns audit events for a tenant, most recent first, plus the total
// count matching the filters.
func (l *Ledger) List(ctx context.Context, q Query) ([]Event, int, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	events, total, err := l.store.ListEvents(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit events: %w", err)
	}
	return events, total, nil
}
