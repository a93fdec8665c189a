package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gbechtold/clawbot-dsgvo/internal/audit"
)

// InsertEvent appends one audit row. The ledger never updates or deletes
// rows; there is deliberately no corresponding mutation here.
func (d *DB) InsertEvent(ctx context.Context, e *audit.Event) error {
	var details []byte
	if e.Details != nil {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encoding audit details: %w", err)
		}
	}

	const query = `
		INSERT INTO audit_log (tenant_id, signal_id, action, actor, details, timestamp)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)`

	if _, err := d.db.ExecContext(ctx, query,
		e.TenantID, e.SignalID, e.Action, e.Actor, details, e.Timestamp); err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// ListEvents returns audit rows for a tenant, most recent first, and the
// total number of rows matching the filters.
func (d *DB) ListEvents(ctx context.Context, q audit.Query) ([]audit.Event, int, error) {
	where := "WHERE tenant_id = $1"
	args := []any{q.TenantID}

	if q.SignalID != "" {
		args = append(args, q.SignalID)
		where += fmt.Sprintf(" AND signal_id = $%d", len(args))
	}
	if q.Action != "" {
		args = append(args, q.Action)
		where += fmt.Sprintf(" AND action = $%d", len(args))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_log " + where
	if err := d.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("counting audit events: %w", err)
	}

	args = append(args, q.Limit, q.Offset)
	listQuery := fmt.Sprintf(`
		SELECT id, tenant_id, COALESCE(signal_id, '') AS signal_id, action, actor, details, timestamp
		FROM audit_log %s
		ORDER BY timestamp DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := d.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e       audit.Event
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SignalID, &e.Action, &e.Actor, &details, &e.Timestamp); err != nil {
			return nil, 0, fmt.Errorf("scanning audit event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("decoding audit details: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit events: %w", err)
	}

	return events, total, nil
}
