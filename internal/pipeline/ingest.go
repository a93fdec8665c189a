// Package pipeline orchestrates the ingestion flow: detect PII, anonymize,
// analyze, persist, audit. Raw content never leaves this package; only the
// anonymized form is stored, broadcast, or returned.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gbechtold/clawbot-dsgvo/internal/analyzer"
	"github.com/gbechtold/clawbot-dsgvo/internal/anonymizer"
	"github.com/gbechtold/clawbot-dsgvo/internal/audit"
	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
	"github.com/gbechtold/clawbot-dsgvo/internal/privacy"
	"github.com/gbechtold/clawbot-dsgvo/internal/store"
)

// Processing states, in pipeline order.
const (
	StateReceived   = "RECEIVED"
	StateDetected   = "DETECTED"
	StateAnonymized = "ANONYMIZED"
	StateAnalyzed   = "ANALYZED"
	StatePersisted  = "PERSISTED"
	StateAudited    = "AUDITED"
	StateDone       = "DONE"
)

var (
	// ErrEmptyContent is returned when a request carries no content.
	ErrEmptyContent = errors.New("content must not be empty")
	// ErrMissingTenant is returned when a request carries no tenant ID.
	ErrMissingTenant = errors.New("tenant_id must not be empty")
	// ErrPersistence is returned when the signal row cannot be written.
	ErrPersistence = errors.New("failed to persist signal")
)

const previewLimit = 200

// Request is one piece of inbound feedback.
type Request struct {
	TenantID string         `json:"tenant_id"`
	Content  string         `json:"content"`
	Source   string         `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result summarizes a processed signal. It never contains raw content.
type Result struct {
	SignalID          string  `json:"signal_id"`
	Status            string  `json:"status"`
	PIIDetected       int     `json:"pii_detected"`
	Category          string  `json:"category"`
	Urgency           string  `json:"urgency"`
	Sentiment         float64 `json:"sentiment"`
	AnonymizedPreview string  `json:"anonymized_preview"`
}

// SignalStore persists processed signals.
type SignalStore interface {
	InsertSignal(ctx context.Context, s *store.Signal) error
}

// Analyzer classifies anonymized content.
type Analyzer interface {
	Analyze(ctx context.Context, anonymized string) analyzer.Result
}

// IngestNotice is broadcast to live subscribers after a signal completes.
type IngestNotice struct {
	TenantID    string  `json:"tenant_id"`
	SignalID    string  `json:"signal_id"`
	PIIDetected int     `json:"pii_detected"`
	Category    string  `json:"category"`
	Urgency     string  `json:"urgency"`
	Sentiment   float64 `json:"sentiment"`
}

// Notifier publishes ingest notices. Implementations must not block.
type Notifier interface {
	SignalProcessed(notice IngestNotice)
}

// Orchestrator runs requests through the processing states in order.
// Failures before PERSISTED abort the request; afterwards they are
// logged and the signal still counts as processed.
type Orchestrator struct {
	detector   *privacy.Detector
	anonymizer *anonymizer.Anonymizer
	analyzer   Analyzer
	signals    SignalStore
	ledger     *audit.Ledger
	notifier   Notifier
	logger     *logger.Logger
}

// New creates an Orchestrator. notifier may be nil.
func New(
	detector *privacy.Detector,
	anon *anonymizer.Anonymizer,
	an Analyzer,
	signals SignalStore,
	ledger *audit.Ledger,
	notifier Notifier,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		detector:   detector,
		anonymizer: anon,
		analyzer:   an,
		signals:    signals,
		ledger:     ledger,
		notifier:   notifier,
		logger:     log.WithComponent("pipeline"),
	}
}

// Ingest processes one feedback request end to end.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, ErrMissingTenant
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}

	signalID := newSignalID()
	log := o.logger.WithTenant(req.TenantID).WithSignal(signalID)
	log.Debug("Signal received", zap.String("state", StateReceived), zap.String("source", req.Source))

	detections := o.detector.Detect(req.Content)
	log.Debug("PII detection complete",
		zap.String("state", StateDetected),
		zap.Int("detections", len(detections)))

	anonymized, subs, err := o.anonymizer.Anonymize(ctx, req.Content, detections, req.TenantID)
	if err != nil {
		log.Error("Anonymization failed", zap.Error(err))
		return nil, fmt.Errorf("anonymizing signal %s: %w", signalID, err)
	}
	log.Debug("Anonymization complete",
		zap.String("state", StateAnonymized),
		zap.Int("substitutions", len(subs)))

	analysis := o.analyzer.Analyze(ctx, anonymized)
	log.Debug("Analysis complete",
		zap.String("state", StateAnalyzed),
		zap.String("category", analysis.Category),
		zap.String("urgency", analysis.Urgency),
		zap.Bool("fallback", analysis.Fallback))

	signal := &store.Signal{
		TenantID:          req.TenantID,
		SignalID:          signalID,
		Category:          analysis.Category,
		Urgency:           analysis.Urgency,
		Sentiment:         analysis.Sentiment,
		AnonymizedContent: anonymized,
		Metadata:          signalMetadata(req, analysis, detections),
	}
	if err := o.signals.InsertSignal(ctx, signal); err != nil {
		log.Error("Signal persistence failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	log.Debug("Signal persisted", zap.String("state", StatePersisted))

	// Past this point the signal is durable; audit and broadcast failures
	// must not fail the request.
	auditErr := o.ledger.Record(ctx, audit.Event{
		TenantID: req.TenantID,
		SignalID: signalID,
		Action:   audit.ActionIngest,
		Details: map[string]any{
			"source":       req.Source,
			"pii_detected": len(detections),
			"pii_kinds":    privacy.Kinds(detections),
			"category":     analysis.Category,
			"urgency":      analysis.Urgency,
		},
	})
	if auditErr == nil {
		log.Debug("Audit recorded", zap.String("state", StateAudited))
	}

	if o.notifier != nil {
		o.notifier.SignalProcessed(IngestNotice{
			TenantID:    req.TenantID,
			SignalID:    signalID,
			PIIDetected: len(detections),
			Category:    analysis.Category,
			Urgency:     analysis.Urgency,
			Sentiment:   analysis.Sentiment,
		})
	}

	log.Info("Signal processed",
		zap.String("state", StateDone),
		zap.Int("pii_detected", len(detections)),
		zap.String("category", analysis.Category),
		zap.String("urgency", analysis.Urgency),
		zap.Float64("sentiment", analysis.Sentiment))

	return &Result{
		SignalID:          signalID,
		Status:            "processed",
		PIIDetected:       len(detections),
		Category:          analysis.Category,
		Urgency:           analysis.Urgency,
		Sentiment:         analysis.Sentiment,
		AnonymizedPreview: preview(anonymized),
	}, nil
}

func signalMetadata(req Request, analysis analyzer.Result, detections []privacy.Detection) map[string]any {
	meta := make(map[string]any, len(req.Metadata)+4)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.Source != "" {
		meta["source"] = req.Source
	}
	meta["summary"] = analysis.Summary
	meta["analysis_fallback"] = analysis.Fallback
	meta["pii_count"] = len(detections)
	return meta
}

func newSignalID() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "sig_" + id[:12]
}

func preview(anonymized string) string {
	runes := []rune(anonymized)
	if len(runes) <= previewLimit {
		return anonymized
	}
	return string(runes[:previewLimit]) + "…"
}
