package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/gbechtold/clawbot-dsgvo/internal/audit"
	"github.com/gbechtold/clawbot-dsgvo/internal/pipeline"
	"github.com/gbechtold/clawbot-dsgvo/internal/store"
	"github.com/gbechtold/clawbot-dsgvo/internal/vault"
)

const maxIngestBody = 1 << 20 // 1 MiB

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.ingester.Ingest(r.Context(), req)
	switch {
	case errors.Is(err, pipeline.ErrEmptyContent), errors.Is(err, pipeline.ErrMissingTenant):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, vault.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "pseudonym vault unavailable")
		return
	case errors.Is(err, pipeline.ErrPersistence):
		writeError(w, http.StatusInternalServerError, "failed to persist signal")
		return
	case err != nil:
		s.logger.WithRequestID(requestID(r.Context())).Error("Ingest failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	q := store.SignalQuery{
		TenantID: tenantID,
		Category: r.URL.Query().Get("category"),
		Urgency:  r.URL.Query().Get("urgency"),
		Limit:    queryInt(r, "limit", 20, 1, 100),
		Offset:   queryInt(r, "offset", 0, 0, 1<<30),
	}

	signals, total, err := s.signals.ListSignals(r.Context(), q)
	if err != nil {
		s.logger.WithRequestID(requestID(r.Context())).Error("Listing signals failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"signals": signals,
		"total":   total,
		"limit":   q.Limit,
		"offset":  q.Offset,
	})
}

func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	signalID := mux.Vars(r)["id"]

	signal, err := s.signals.GetSignal(r.Context(), tenantID, signalID)
	if err != nil {
		s.logger.WithRequestID(requestID(r.Context())).Error("Loading signal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load signal")
		return
	}
	if signal == nil {
		writeError(w, http.StatusNotFound, "signal not found")
		return
	}

	s.ledger.Record(r.Context(), audit.Event{
		TenantID: tenantID,
		SignalID: signalID,
		Action:   audit.ActionAccess,
		Details:  map[string]any{"via": "api"},
	})

	writeJSON(w, http.StatusOK, signal)
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	q := audit.Query{
		TenantID: tenantID,
		SignalID: r.URL.Query().Get("signal_id"),
		Action:   r.URL.Query().Get("action"),
		Limit:    queryInt(r, "limit", 50, 1, 500),
		Offset:   queryInt(r, "offset", 0, 0, 1<<30),
	}

	entries, total, err := s.ledger.List(r.Context(), q)
	if err != nil {
		s.logger.WithRequestID(requestID(r.Context())).Error("Listing audit log failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"limit":   q.Limit,
		"offset":  q.Offset,
	})
}

func (s *Server) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	report, err := s.signals.Compliance(r.Context(), tenantID)
	if err != nil {
		s.logger.WithRequestID(requestID(r.Context())).Error("Compliance report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate compliance report")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExportSignals(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="signals-%s-%s.parquet"`, tenantID, time.Now().UTC().Format("20060102")))

	rows, err := s.exporter.WriteParquet(r.Context(), w, tenantID, "api")
	if err != nil {
		// Headers are already out; all we can do is log.
		s.logger.WithRequestID(requestID(r.Context())).Error("Signal export failed",
			zap.Int("rows_written", rows),
			zap.Error(err))
	}
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	hash := mux.Vars(r)["hash"]

	err := s.eraser.Delete(r.Context(), tenantID, hash)
	switch {
	case errors.Is(err, vault.ErrMappingNotFound):
		writeError(w, http.StatusNotFound, "mapping not found")
		return
	case errors.Is(err, vault.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "pseudonym vault unavailable")
		return
	case err != nil:
		s.logger.WithRequestID(requestID(r.Context())).Error("Mapping deletion failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete mapping")
		return
	}

	s.ledger.Record(r.Context(), audit.Event{
		TenantID: tenantID,
		Action:   audit.ActionDelete,
		Details:  map[string]any{"original_hash": hash},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "deleted",
		"original_hash": hash,
	})
}

func queryInt(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
