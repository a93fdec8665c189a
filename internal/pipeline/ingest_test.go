package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gbechtold/clawbot-dsgvo/internal/analyzer"
	"github.com/gbechtold/clawbot-dsgvo/internal/anonymizer"
	"github.com/gbechtold/clawbot-dsgvo/internal/audit"
	"github.com/gbechtold/clawbot-dsgvo/internal/config"
	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
	"github.com/gbechtold/clawbot-dsgvo/internal/privacy"
	"github.com/gbechtold/clawbot-dsgvo/internal/store"
	"github.com/gbechtold/clawbot-dsgvo/internal/vault"
)

type fakePseudonyms struct {
	fail bool
}

func (f *fakePseudonyms) GetOrCreate(_ context.Context, _, original string, kind privacy.Kind) (string, error) {
	if f.fail {
		return "", vault.ErrUnavailable
	}
	return vault.Pseudonym(original, kind), nil
}

type fakeSignals struct {
	inserted []*store.Signal
	fail     bool
}

func (f *fakeSignals) InsertSignal(_ context.Context, s *store.Signal) error {
	if f.fail {
		return errors.New("connection refused")
	}
	f.inserted = append(f.inserted, s)
	return nil
}

type fakeAuditStore struct {
	events []audit.Event
	fail   bool
}

func (f *fakeAuditStore) InsertEvent(_ context.Context, e *audit.Event) error {
	if f.fail {
		return errors.New("connection refused")
	}
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeAuditStore) ListEvents(_ context.Context, _ audit.Query) ([]audit.Event, int, error) {
	return f.events, len(f.events), nil
}

type fakeAnalyzer struct {
	result analyzer.Result
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string) analyzer.Result {
	return f.result
}

type fakeNotifier struct {
	notices []IngestNotice
}

func (f *fakeNotifier) SignalProcessed(n IngestNotice) {
	f.notices = append(f.notices, n)
}

type fixture struct {
	orchestrator *Orchestrator
	vaultSource  *fakePseudonyms
	signals      *fakeSignals
	auditStore   *fakeAuditStore
	notifier     *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	detector, err := privacy.New(config.PrivacyConfig{Locale: "de-AT", Detectors: []string{"all"}}, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	f := &fixture{
		vaultSource: &fakePseudonyms{},
		signals:     &fakeSignals{},
		auditStore:  &fakeAuditStore{},
		notifier:    &fakeNotifier{},
	}
	f.orchestrator = New(
		detector,
		anonymizer.New(f.vaultSource, logger.NewNop()),
		&fakeAnalyzer{result: analyzer.Result{
			Category:  analyzer.CategoryComplaint,
			Urgency:   analyzer.UrgencyHigh,
			Sentiment: -0.6,
			Summary:   "Beschwerde über Lieferung",
		}},
		f.signals,
		audit.New(f.auditStore, logger.NewNop()),
		f.notifier,
		logger.NewNop(),
	)
	return f
}

// TestIngest tests the end-to-end pipeline flow
func TestIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.orchestrator.Ingest(ctx, Request{
			TenantID: "tenant-a",
			Content:  "Contact me at max.mustermann@example.com now.",
			Source:   "web",
		})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}

		if result.Status != "processed" {
			t.Errorf("Expected status processed, got %q", result.Status)
		}
		if !strings.HasPrefix(result.SignalID, "sig_") || len(result.SignalID) != 16 {
			t.Errorf("Unexpected signal ID format: %q", result.SignalID)
		}
		if result.PIIDetected != 1 {
			t.Errorf("Expected 1 PII detection, got %d", result.PIIDetected)
		}
		if result.Category != analyzer.CategoryComplaint || result.Urgency != analyzer.UrgencyHigh {
			t.Errorf("Analysis result not propagated: %+v", result)
		}
		if strings.Contains(result.AnonymizedPreview, "max.mustermann") {
			t.Error("Raw PII leaked into the preview")
		}

		if len(f.signals.inserted) != 1 {
			t.Fatalf("Expected one persisted signal, got %d", len(f.signals.inserted))
		}
		signal := f.signals.inserted[0]
		if strings.Contains(signal.AnonymizedContent, "max.mustermann") {
			t.Error("Raw PII leaked into the stored signal")
		}
		if signal.Metadata["pii_count"] != 1 {
			t.Errorf("Metadata pii_count missing: %+v", signal.Metadata)
		}

		if len(f.auditStore.events) != 1 {
			t.Fatalf("Expected one audit event, got %d", len(f.auditStore.events))
		}
		event := f.auditStore.events[0]
		if event.Action != audit.ActionIngest || event.SignalID != result.SignalID {
			t.Errorf("Unexpected audit event: %+v", event)
		}
		if event.Details["pii_detected"] != 1 {
			t.Errorf("Audit details missing pii_detected: %+v", event.Details)
		}

		if len(f.notifier.notices) != 1 || f.notifier.notices[0].SignalID != result.SignalID {
			t.Errorf("Ingest notice not broadcast: %+v", f.notifier.notices)
		}
	})

	t.Run("Validation", func(t *testing.T) {
		f := newFixture(t)

		if _, err := f.orchestrator.Ingest(ctx, Request{TenantID: "tenant-a", Content: "  "}); !errors.Is(err, ErrEmptyContent) {
			t.Errorf("Expected ErrEmptyContent, got %v", err)
		}
		if _, err := f.orchestrator.Ingest(ctx, Request{Content: "Hallo"}); !errors.Is(err, ErrMissingTenant) {
			t.Errorf("Expected ErrMissingTenant, got %v", err)
		}
		if len(f.signals.inserted) != 0 {
			t.Error("Invalid requests must not persist anything")
		}
	})

	t.Run("VaultDownIsFatal", func(t *testing.T) {
		f := newFixture(t)
		f.vaultSource.fail = true

		_, err := f.orchestrator.Ingest(ctx, Request{
			TenantID: "tenant-a",
			Content:  "Meldung von max@example.com",
		})
		if !errors.Is(err, vault.ErrUnavailable) {
			t.Fatalf("Expected ErrUnavailable, got %v", err)
		}
		if len(f.signals.inserted) != 0 {
			t.Error("Nothing may be persisted when anonymization fails")
		}
		if len(f.auditStore.events) != 0 {
			t.Error("No audit event for a failed request")
		}
	})

	t.Run("PersistenceFailureIsFatal", func(t *testing.T) {
		f := newFixture(t)
		f.signals.fail = true

		_, err := f.orchestrator.Ingest(ctx, Request{TenantID: "tenant-a", Content: "Alles kaputt."})
		if !errors.Is(err, ErrPersistence) {
			t.Fatalf("Expected ErrPersistence, got %v", err)
		}
		if len(f.notifier.notices) != 0 {
			t.Error("No broadcast for a failed request")
		}
	})

	t.Run("AuditFailureNotFatal", func(t *testing.T) {
		f := newFixture(t)
		f.auditStore.fail = true

		result, err := f.orchestrator.Ingest(ctx, Request{TenantID: "tenant-a", Content: "Alles gut."})
		if err != nil {
			t.Fatalf("Audit failure must not fail the request: %v", err)
		}
		if result.Status != "processed" {
			t.Errorf("Expected status processed, got %q", result.Status)
		}
		if len(f.signals.inserted) != 1 {
			t.Error("Signal must still be persisted")
		}
	})

	t.Run("CleanContentSkipsVault", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.orchestrator.Ingest(ctx, Request{
			TenantID: "tenant-a",
			Content:  "Die Filiale war heute sauber und gut sortiert.",
		})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if result.PIIDetected != 0 {
			t.Errorf("Expected no detections, got %d", result.PIIDetected)
		}
		if result.AnonymizedPreview != "Die Filiale war heute sauber und gut sortiert." {
			t.Errorf("Clean content must pass through unchanged: %q", result.AnonymizedPreview)
		}
	})

	t.Run("PreviewTruncated", func(t *testing.T) {
		f := newFixture(t)

		long := strings.Repeat("Die Lieferung war in Ordnung. ", 20)
		result, err := f.orchestrator.Ingest(ctx, Request{TenantID: "tenant-a", Content: long})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if got := len([]rune(result.AnonymizedPreview)); got != previewLimit+1 {
			t.Errorf("Preview length %d runes, want %d", got, previewLimit+1)
		}
		if !strings.HasSuffix(result.AnonymizedPreview, "…") {
			t.Error("Truncated preview should end with an ellipsis")
		}
	})
}
