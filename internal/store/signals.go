package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Signal is one persisted, anonymized, classified feedback item.
type Signal struct {
	ID                int64          `db:"id" json:"-"`
	TenantID          string         `db:"tenant_id" json:"tenant_id"`
	SignalID          string         `db:"signal_id" json:"signal_id"`
	Category          string         `db:"category" json:"category"`
	Urgency           string         `db:"urgency" json:"urgency"`
	Sentiment         float64        `db:"sentiment" json:"sentiment"`
	AnonymizedContent string         `db:"anonymized_content" json:"anonymized_content"`
	Metadata          map[string]any `db:"-" json:"metadata,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// SignalQuery filters signal listing. Results are ordered newest first.
type SignalQuery struct {
	TenantID string
	Category string
	Urgency  string
	Limit    int
	Offset   int
}

// ComplianceReport aggregates per-tenant privacy statistics.
type ComplianceReport struct {
	TenantID         string         `json:"tenant_id"`
	ReportDate       time.Time      `json:"report_date"`
	TotalSignals     int            `json:"total_signals"`
	PIIAnonymized    int            `json:"pii_anonymized"`
	AuditEntries     int            `json:"audit_entries"`
	ComplianceStatus string         `json:"compliance_status"`
	Details          map[string]any `json:"details"`
}

// InsertSignal stores one signal row.
func (d *DB) InsertSignal(ctx context.Context, s *Signal) error {
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("encoding signal metadata: %w", err)
	}

	const query = `
		INSERT INTO signals
			(tenant_id, signal_id, category, urgency, sentiment, anonymized_content, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id`

	now := time.Now().UTC()
	if err := d.db.QueryRowContext(ctx, query,
		s.TenantID, s.SignalID, s.Category, s.Urgency, s.Sentiment,
		s.AnonymizedContent, metadata, now,
	).Scan(&s.ID); err != nil {
		return fmt.Errorf("inserting signal: %w", err)
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// GetSignal returns one signal by its public ID, or (nil, nil) when absent.
func (d *DB) GetSignal(ctx context.Context, tenantID, signalID string) (*Signal, error) {
	const query = `
		SELECT id, tenant_id, signal_id, category, urgency, sentiment, anonymized_content, metadata, created_at, updated_at
		FROM signals
		WHERE tenant_id = $1 AND signal_id = $2`

	s, err := scanSignal(d.db.QueryRowContext(ctx, query, tenantID, signalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying signal: %w", err)
	}
	return s, nil
}

// ListSignals returns signals for a tenant, newest first, plus the total
// count matching the filters.
func (d *DB) ListSignals(ctx context.Context, q SignalQuery) ([]Signal, int, error) {
	where := "WHERE tenant_id = $1"
	args := []any{q.TenantID}

	if q.Category != "" {
		args = append(args, q.Category)
		where += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if q.Urgency != "" {
		args = append(args, q.Urgency)
		where += fmt.Sprintf(" AND urgency = $%d", len(args))
	}

	var total int
	if err := d.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM signals "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("counting signals: %w", err)
	}

	args = append(args, q.Limit, q.Offset)
	listQuery := fmt.Sprintf(`
		SELECT id, tenant_id, signal_id, category, urgency, sentiment, anonymized_content, metadata, created_at, updated_at
		FROM signals %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := d.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing signals: %w", err)
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning signal: %w", err)
		}
		signals = append(signals, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating signals: %w", err)
	}

	return signals, total, nil
}

// ListSignalsForExport returns every signal of a tenant, oldest first, for
// full exports.
func (d *DB) ListSignalsForExport(ctx context.Context, tenantID string) ([]Signal, error) {
	const query = `
		SELECT id, tenant_id, signal_id, category, urgency, sentiment, anonymized_content, metadata, created_at, updated_at
		FROM signals
		WHERE tenant_id = $1
		ORDER BY created_at ASC`

	rows, err := d.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing signals for export: %w", err)
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning signal: %w", err)
		}
		signals = append(signals, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating signals: %w", err)
	}

	return signals, nil
}

// Compliance builds the privacy statistics report for a tenant.
func (d *DB) Compliance(ctx context.Context, tenantID string) (*ComplianceReport, error) {
	report := &ComplianceReport{
		TenantID:   tenantID,
		ReportDate: time.Now().UTC(),
	}

	if err := d.db.GetContext(ctx, &report.TotalSignals,
		"SELECT COUNT(*) FROM signals WHERE tenant_id = $1", tenantID); err != nil {
		return nil, fmt.Errorf("counting signals: %w", err)
	}
	if err := d.db.GetContext(ctx, &report.PIIAnonymized,
		"SELECT COUNT(*) FROM pseudonym_mapping WHERE tenant_id = $1", tenantID); err != nil {
		return nil, fmt.Errorf("counting mappings: %w", err)
	}
	if err := d.db.GetContext(ctx, &report.AuditEntries,
		"SELECT COUNT(*) FROM audit_log WHERE tenant_id = $1", tenantID); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	categories, err := d.groupCount(ctx, "SELECT COALESCE(category, '') AS k, COUNT(*) FROM signals WHERE tenant_id = $1 GROUP BY category", tenantID)
	if err != nil {
		return nil, fmt.Errorf("grouping categories: %w", err)
	}
	urgencies, err := d.groupCount(ctx, "SELECT COALESCE(urgency, '') AS k, COUNT(*) FROM signals WHERE tenant_id = $1 GROUP BY urgency", tenantID)
	if err != nil {
		return nil, fmt.Errorf("grouping urgencies: %w", err)
	}
	piiKinds, err := d.groupCount(ctx, "SELECT pii_kind AS k, COUNT(*) FROM pseudonym_mapping WHERE tenant_id = $1 GROUP BY pii_kind", tenantID)
	if err != nil {
		return nil, fmt.Errorf("grouping pii kinds: %w", err)
	}

	switch {
	case report.TotalSignals == 0:
		report.ComplianceStatus = "no_data"
	case report.AuditEntries == 0:
		report.ComplianceStatus = "warning"
	default:
		report.ComplianceStatus = "compliant"
	}

	denominator := report.TotalSignals
	if denominator == 0 {
		denominator = 1
	}
	report.Details = map[string]any{
		"categories":         categories,
		"urgency_levels":     urgencies,
		"pii_kinds":          piiKinds,
		"anonymization_rate": round2(float64(report.PIIAnonymized) / float64(denominator)),
		"audit_coverage":     round2(float64(report.AuditEntries) / float64(denominator)),
	}

	return report, nil
}

func (d *DB) groupCount(ctx context.Context, query, tenantID string) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (*Signal, error) {
	var (
		s        Signal
		metadata []byte
	)
	if err := row.Scan(&s.ID, &s.TenantID, &s.SignalID, &s.Category, &s.Urgency,
		&s.Sentiment, &s.AnonymizedContent, &metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decoding signal metadata: %w", err)
		}
	}
	return &s, nil
}
