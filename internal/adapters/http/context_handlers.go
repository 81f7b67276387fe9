package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

func (rt *Router) buildContext(w http.ResponseWriter, r *http.Request) {
	var req domain.ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.Message = strings.TrimSpace(req.Message)
	if req.SessionID == "" || req.TenantID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "session_id, tenant_id and message are required")
		return
	}

	start := time.Now()
	payload, err := rt.contexts.BuildContext(r.Context(), req)
	if err != nil {
		rt.recordContextBuild("failed", 0, time.Since(start))
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	rt.recordContextBuild(contextOutcome(payload), len(payload.Passages), time.Since(start))
	if rt.metrics != nil {
		if payload.Flags.DegradedFusion {
			rt.metrics.RecordFusionDegraded(rt.service)
		}
		if payload.Flags.RerankFallback {
			rt.metrics.RecordRerankFallback(rt.service)
		}
		if payload.Flags.BudgetTrimmed {
			rt.metrics.RecordBudgetTrim(rt.service)
		}
	}

	writeJSON(w, http.StatusOK, payload)
}

func contextOutcome(payload *domain.ContextPayload) string {
	switch {
	case payload.Flags.FromCache:
		return "cached"
	case payload.Flags.DegradedContext || payload.Flags.DegradedFusion:
		return "degraded"
	default:
		return "ok"
	}
}

func (rt *Router) recordContextBuild(outcome string, passages int, elapsed time.Duration) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordContextBuild(rt.service, outcome, passages, elapsed)
}

type retrievalSearchRequest struct {
	TenantID string   `json:"tenant_id"`
	BotID    string   `json:"bot_id"`
	Query    string   `json:"query"`
	Tags     []string `json:"tags"`
	K        int      `json:"k"`
}

func (rt *Router) searchRetrieval(w http.ResponseWriter, r *http.Request) {
	var req retrievalSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.Query = strings.TrimSpace(req.Query)
	if req.TenantID == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and query are required")
		return
	}

	filters := domain.SearchFilters{
		TenantID: req.TenantID,
		BotID:    strings.TrimSpace(req.BotID),
		Tags:     req.Tags,
	}
	fused, err := rt.retrieval.Retrieve(r.Context(), req.Query, filters, req.K)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		if fused.Degraded {
			rt.metrics.RecordFusionDegraded(rt.service)
		}
		if fused.RerankFallback {
			rt.metrics.RecordRerankFallback(rt.service)
		}
	}

	writeJSON(w, http.StatusOK, fused)
}

func (rt *Router) closeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	if err := rt.contexts.CloseSession(r.Context(), sessionID); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "closed",
		"session_id": sessionID,
	})
}
