// Package store implements the durable Postgres backend for signals,
// pseudonym mappings, and the audit ledger.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/gbechtold/clawbot-dsgvo/internal/config"
	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
)

// DB wraps the Postgres connection pool.
type DB struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// New connects to Postgres and configures the connection pool.
func New(cfg config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	d := &DB{db: db, logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("Store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.URL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return d, nil
}

// EnsureSchema creates the tables and indexes this service owns. The
// uniqueness constraint on (tenant_id, original_hash) backs the vault's
// conflict-safe get-or-create.
func (d *DB) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS signals (
		id BIGSERIAL PRIMARY KEY,
		tenant_id VARCHAR(255) NOT NULL,
		signal_id VARCHAR(255) UNIQUE NOT NULL,
		category VARCHAR(100),
		urgency VARCHAR(50),
		sentiment DOUBLE PRECISION,
		anonymized_content TEXT,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id BIGSERIAL PRIMARY KEY,
		tenant_id VARCHAR(255) NOT NULL,
		signal_id VARCHAR(255),
		action VARCHAR(100) NOT NULL,
		actor VARCHAR(255),
		details JSONB,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS pseudonym_mapping (
		id BIGSERIAL PRIMARY KEY,
		tenant_id VARCHAR(255) NOT NULL,
		original_hash VARCHAR(255) NOT NULL,
		pseudonym VARCHAR(255) NOT NULL,
		pii_kind VARCHAR(50) NOT NULL,
		encrypted_original TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE(tenant_id, original_hash)
	);

	CREATE INDEX IF NOT EXISTS idx_signals_tenant ON signals(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_signals_created ON signals(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_log(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_audit_signal ON audit_log(signal_id);
	CREATE INDEX IF NOT EXISTS idx_pseudonym_tenant ON pseudonym_mapping(tenant_id);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	d.logger.Info("Database schema ensured")
	return nil
}

// Ping checks database connectivity, for health reporting.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the connection pool.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password in a database URL for logging.
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
