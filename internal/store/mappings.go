package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gbechtold/clawbot-dsgvo/internal/vault"
)

// GetMapping returns the mapping for (tenant, hash), or (nil, nil) when no
// row exists.
func (d *DB) GetMapping(ctx context.Context, tenantID, originalHash string) (*vault.Mapping, error) {
	const query = `
		SELECT tenant_id, original_hash, pseudonym, pii_kind, encrypted_original, created_at
		FROM pseudonym_mapping
		WHERE tenant_id = $1 AND original_hash = $2`

	var m vault.Mapping
	err := d.db.GetContext(ctx, &m, query, tenantID, originalHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying mapping: %w", err)
	}
	return &m, nil
}

// InsertMapping inserts a mapping row. A concurrent insert of the same
// (tenant_id, original_hash) is not an error: the conflict is skipped and
// false is returned so the caller re-reads the winning row.
func (d *DB) InsertMapping(ctx context.Context, m *vault.Mapping) (bool, error) {
	const query = `
		INSERT INTO pseudonym_mapping
			(tenant_id, original_hash, pseudonym, pii_kind, encrypted_original, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, original_hash) DO NOTHING`

	res, err := d.db.ExecContext(ctx, query,
		m.TenantID, m.OriginalHash, m.Pseudonym, m.Kind, m.EncryptedOriginal, m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("inserting mapping: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking insert result: %w", err)
	}
	return affected > 0, nil
}

// DeleteMapping removes a mapping row and reports whether one existed.
func (d *DB) DeleteMapping(ctx context.Context, tenantID, originalHash string) (bool, error) {
	const query = `DELETE FROM pseudonym_mapping WHERE tenant_id = $1 AND original_hash = $2`

	res, err := d.db.ExecContext(ctx, query, tenantID, originalHash)
	if err != nil {
		return false, fmt.Errorf("deleting mapping: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking delete result: %w", err)
	}
	return affected > 0, nil
}
