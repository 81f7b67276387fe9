package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/dialogiq/context-engine/internal/config"
	"github.com/dialogiq/context-engine/internal/core/ports"
	"github.com/dialogiq/context-engine/internal/observability/metrics"
)

type Router struct {
	service   string
	cfg       config.Config
	contexts  ports.ContextBuilder
	retrieval ports.RetrievalService
	profiles  ports.ProfileDirectory
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	service string,
	cfg config.Config,
	contexts ports.ContextBuilder,
	retrieval ports.RetrievalService,
	profiles ports.ProfileDirectory,
	serverMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		service:   service,
		cfg:       cfg,
		contexts:  contexts,
		retrieval: retrieval,
		profiles:  profiles,
		metrics:   serverMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/context", rt.buildContext)
	mux.HandleFunc("POST /v1/retrieval/search", rt.searchRetrieval)
	mux.HandleFunc("POST /v1/sessions/{id}/close", rt.closeSession)
	mux.HandleFunc("GET /v1/profiles/search", rt.searchProfiles)
	mux.HandleFunc("POST /v1/profiles/merge", rt.mergeProfiles)
	mux.HandleFunc("GET /v1/profiles/export", rt.exportProfile)
	mux.HandleFunc("DELETE /v1/profiles", rt.eraseProfile)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWaitTimeout)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	handler = recoverMiddleware(handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
