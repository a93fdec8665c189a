// Package export produces Parquet datasets of anonymized signals for
// downstream analytics. Exports are audited per tenant.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/gbechtold/clawbot-dsgvo/internal/audit"
	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
	"github.com/gbechtold/clawbot-dsgvo/internal/store"
)

const batchSize = 500

// signalRow is the Parquet schema for one exported signal. Only
// anonymized fields are included.
type signalRow struct {
	TenantID          string  `parquet:"tenant_id,dict"`
	SignalID          string  `parquet:"signal_id"`
	Category          string  `parquet:"category,dict"`
	Urgency           string  `parquet:"urgency,dict"`
	Sentiment         float64 `parquet:"sentiment"`
	AnonymizedContent string  `parquet:"anonymized_content"`
	CreatedAtMS       int64   `parquet:"created_at_ms"`
}

// SignalSource lists the signals of one tenant, oldest first.
type SignalSource interface {
	ListSignalsForExport(ctx context.Context, tenantID string) ([]store.Signal, error)
}

// Exporter writes tenant signal exports.
type Exporter struct {
	signals SignalSource
	ledger  *audit.Ledger
	logger  *logger.Logger
}

// New creates an Exporter.
func New(signals SignalSource, ledger *audit.Ledger, log *logger.Logger) *Exporter {
	return &Exporter{
		signals: signals,
		ledger:  ledger,
		logger:  log.WithComponent("export"),
	}
}

// WriteParquet writes all signals of a tenant to w as a Parquet file and
// returns the number of exported rows. The export is recorded in the
// audit ledger; a ledger failure does not fail the export.
func (e *Exporter) WriteParquet(ctx context.Context, w io.Writer, tenantID, actor string) (int, error) {
	signals, err := e.signals.ListSignalsForExport(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("listing signals for export: %w", err)
	}

	writer := parquet.NewGenericWriter[signalRow](w)

	rows := make([]signalRow, 0, batchSize)
	written := 0
	for _, s := range signals {
		rows = append(rows, signalRow{
			TenantID:          s.TenantID,
			SignalID:          s.SignalID,
			Category:          s.Category,
			Urgency:           s.Urgency,
			Sentiment:         s.Sentiment,
			AnonymizedContent: s.AnonymizedContent,
			CreatedAtMS:       s.CreatedAt.UnixMilli(),
		})
		if len(rows) == batchSize {
			n, err := writer.Write(rows)
			written += n
			if err != nil {
				return written, fmt.Errorf("writing Parquet rows: %w", err)
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		n, err := writer.Write(rows)
		written += n
		if err != nil {
			return written, fmt.Errorf("writing Parquet rows: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return written, fmt.Errorf("closing Parquet writer: %w", err)
	}

	e.ledger.Record(ctx, audit.Event{
		TenantID: tenantID,
		Action:   audit.ActionExport,
		Actor:    actor,
		Details: map[string]any{
			"format": "parquet",
			"rows":   written,
		},
	})

	e.logger.Info("Signals exported",
		zap.String("tenant_id", tenantID),
		zap.Int("rows", written))

	return written, nil
}
