package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gbechtold/clawbot-dsgvo/internal/audit"
	"github.com/gbechtold/clawbot-dsgvo/internal/config"
	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
	"github.com/gbechtold/clawbot-dsgvo/internal/pipeline"
	"github.com/gbechtold/clawbot-dsgvo/internal/store"
	"github.com/gbechtold/clawbot-dsgvo/internal/vault"
)

type fakeIngester struct {
	err error
}

func (f *fakeIngester) Ingest(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, pipeline.ErrMissingTenant
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, pipeline.ErrEmptyContent
	}
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{
		SignalID:          "sig_abc123def456",
		Status:            "processed",
		PIIDetected:       1,
		Category:          "complaint",
		Urgency:           "high",
		Sentiment:         -0.6,
		AnonymizedPreview: "Contact me at [alpine-marmot] now.",
	}, nil
}

type fakeReader struct {
	signals map[string]*store.Signal
}

func (f *fakeReader) GetSignal(_ context.Context, tenantID, signalID string) (*store.Signal, error) {
	s, ok := f.signals[tenantID+"/"+signalID]
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (f *fakeReader) ListSignals(_ context.Context, q store.SignalQuery) ([]store.Signal, int, error) {
	var out []store.Signal
	for _, s := range f.signals {
		if s.TenantID == q.TenantID {
			out = append(out, *s)
		}
	}
	return out, len(out), nil
}

func (f *fakeReader) Compliance(_ context.Context, tenantID string) (*store.ComplianceReport, error) {
	return &store.ComplianceReport{TenantID: tenantID, ComplianceStatus: "compliant"}, nil
}

type fakeEraser struct {
	deleted []string
	err     error
}

func (f *fakeEraser) Delete(_ context.Context, tenantID, hash string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, tenantID+"/"+hash)
	return nil
}

type fakeExporter struct{}

func (f *fakeExporter) WriteParquet(_ context.Context, w io.Writer, _, _ string) (int, error) {
	w.Write([]byte("PAR1"))
	return 2, nil
}

type fakeLedgerStore struct {
	events []audit.Event
}

func (f *fakeLedgerStore) InsertEvent(_ context.Context, e *audit.Event) error {
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeLedgerStore) ListEvents(_ context.Context, _ audit.Query) ([]audit.Event, int, error) {
	return f.events, len(f.events), nil
}

func newTestServer(t *testing.T, ingester Ingester, eraser MappingEraser) (*Server, *fakeLedgerStore) {
	t.Helper()

	cfg := config.GetDefaults()
	cfg.Server.RateLimit.Enabled = false
	cfg.Events.Enabled = false

	ledgerStore := &fakeLedgerStore{}
	reader := &fakeReader{signals: map[string]*store.Signal{
		"tenant-a/sig_abc123def456": {
			TenantID:          "tenant-a",
			SignalID:          "sig_abc123def456",
			Category:          "complaint",
			Urgency:           "high",
			Sentiment:         -0.6,
			AnonymizedContent: "Contact me at [alpine-marmot] now.",
		},
	}}

	s := New(cfg, Deps{
		Ingester: ingester,
		Signals:  reader,
		Ledger:   audit.New(ledgerStore, logger.NewNop()),
		Eraser:   eraser,
		Exporter: &fakeExporter{},
	}, logger.NewNop())
	return s, ledgerStore
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// TestHandleIngest tests the ingest endpoint
func TestHandleIngest(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeIngester{}, &fakeEraser{})

		rec := doJSON(t, s.Router(), "POST", "/api/v1/ingest",
			`{"tenant_id":"tenant-a","content":"Contact me at max@example.com now.","source":"web"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var result pipeline.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("Invalid response body: %v", err)
		}
		if result.Status != "processed" || result.SignalID == "" {
			t.Errorf("Unexpected result: %+v", result)
		}
		if strings.Contains(rec.Body.String(), "max@example.com") {
			t.Error("Raw PII leaked into the response")
		}
	})

	t.Run("EmptyContent", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeIngester{}, &fakeEraser{})
		rec := doJSON(t, s.Router(), "POST", "/api/v1/ingest", `{"tenant_id":"tenant-a","content":""}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeIngester{}, &fakeEraser{})
		rec := doJSON(t, s.Router(), "POST", "/api/v1/ingest", `{not json`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("VaultUnavailable", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeIngester{err: vault.ErrUnavailable}, &fakeEraser{})
		rec := doJSON(t, s.Router(), "POST", "/api/v1/ingest", `{"tenant_id":"tenant-a","content":"Hallo"}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", rec.Code)
		}
	})

	t.Run("PersistenceFailure", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeIngester{err: pipeline.ErrPersistence}, &fakeEraser{})
		rec := doJSON(t, s.Router(), "POST", "/api/v1/ingest", `{"tenant_id":"tenant-a","content":"Hallo"}`)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d", rec.Code)
		}
	})
}

// TestHandleSignals tests signal retrieval endpoints
func TestHandleSignals(t *testing.T) {
	t.Run("ListRequiresTenant", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeIngester{}, &fakeEraser{})
		rec := doJSON(t, s.Router(), "GET", "/api/v1/signals", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeIngester{}, &fakeEraser{})
		rec := doJSON(t, s.Router(), "GET", "/api/v1/signals?tenant_id=tenant-a&limit=10", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var body struct {
			Signals []store.Signal `json:"signals"`
			Total   int            `json:"total"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Invalid response body: %v", err)
		}
		if body.Total != 1 || len(body.Signals) != 1 {
			t.Errorf("Unexpected listing: %+v", body)
		}
	})

	t.Run("GetRecordsAccess", func(t *testing.T) {
		s, ledgerStore := newTestServer(t, &fakeIngester{}, &fakeEraser{})
		rec := doJSON(t, s.Router(), "GET", "/api/v1/signals/sig_abc123def456?tenant_id=tenant-a", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if len(ledgerStore.events) != 1 || ledgerStore.events[0].Action != audit.ActionAccess {
			t.Errorf("ACCESS audit event missing: %+v", ledgerStore.events)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeIngester{}, &fakeEraser{})
		rec := doJSON(t, s.Router(), "GET", "/api/v1/signals/sig_missing?tenant_id=tenant-a", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("Export", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeIngester{}, &fakeEraser{})
		rec := doJSON(t, s.Router(), "GET", "/api/v1/signals/export?tenant_id=tenant-a", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Header().Get("Content-Disposition"), "attachment") {
			t.Errorf("Missing attachment disposition: %q", rec.Header().Get("Content-Disposition"))
		}
	})
}

// TestHandleCompliance tests the compliance report endpoint
func TestHandleCompliance(t *testing.T) {
	s, _ := newTestServer(t, &fakeIngester{}, &fakeEraser{})

	rec := doJSON(t, s.Router(), "GET", "/api/v1/compliance/report?tenant_id=tenant-a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var report store.ComplianceReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if report.TenantID != "tenant-a" || report.ComplianceStatus != "compliant" {
		t.Errorf("Unexpected report: %+v", report)
	}
}

// TestHandleDeleteMapping tests the erasure endpoint
func TestHandleDeleteMapping(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		eraser := &fakeEraser{}
		s, ledgerStore := newTestServer(t, &fakeIngester{}, eraser)

		rec := doJSON(t, s.Router(), "DELETE", "/api/v1/mappings/deadbeef?tenant_id=tenant-a", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(eraser.deleted) != 1 || eraser.deleted[0] != "tenant-a/deadbeef" {
			t.Errorf("Unexpected deletions: %v", eraser.deleted)
		}
		if len(ledgerStore.events) != 1 || ledgerStore.events[0].Action != audit.ActionDelete {
			t.Errorf("DELETE audit event missing: %+v", ledgerStore.events)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeIngester{}, &fakeEraser{err: vault.ErrMappingNotFound})
		rec := doJSON(t, s.Router(), "DELETE", "/api/v1/mappings/deadbeef?tenant_id=tenant-a", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("RequiresTenant", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeIngester{}, &fakeEraser{})
		rec := doJSON(t, s.Router(), "DELETE", "/api/v1/mappings/deadbeef", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

// TestHandleHealth tests the health endpoint without backing services
func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeIngester{}, &fakeEraser{})

	rec := doJSON(t, s.Router(), "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy with no checks wired, got %v", body["status"])
	}
}

// TestRateLimit tests the per-client limiter
func TestRateLimit(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Server.RateLimit.Enabled = true
	cfg.Server.RateLimit.Rate = 1
	cfg.Server.RateLimit.Burst = 2
	cfg.Events.Enabled = false

	s := New(cfg, Deps{
		Ingester: &fakeIngester{},
		Signals:  &fakeReader{},
		Ledger:   audit.New(&fakeLedgerStore{}, logger.NewNop()),
		Eraser:   &fakeEraser{},
		Exporter: &fakeExporter{},
	}, logger.NewNop())

	var limited bool
	for i := 0; i < 5; i++ {
		rec := doJSON(t, s.Router(), "GET", "/api/v1/signals?tenant_id=tenant-a", "")
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("Burst exceeded without a 429 response")
	}
}
