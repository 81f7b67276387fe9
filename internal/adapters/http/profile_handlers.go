package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

func (rt *Router) searchProfiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	tenantID := strings.TrimSpace(query.Get("tenant_id"))
	term := strings.TrimSpace(query.Get("q"))
	if tenantID == "" || term == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and q are required")
		return
	}

	profiles, err := rt.profiles.Search(r.Context(), tenantID, strings.TrimSpace(query.Get("bot_id")), term)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if profiles == nil {
		profiles = []domain.UserProfile{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func (rt *Router) mergeProfiles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WinnerID string `json:"winner_id"`
		LoserID  string `json:"loser_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.WinnerID = strings.TrimSpace(req.WinnerID)
	req.LoserID = strings.TrimSpace(req.LoserID)
	if req.WinnerID == "" || req.LoserID == "" {
		writeError(w, http.StatusBadRequest, "winner_id and loser_id are required")
		return
	}

	merged, err := rt.profiles.Merge(r.Context(), req.WinnerID, req.LoserID)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, merged)
}

func (rt *Router) exportProfile(w http.ResponseWriter, r *http.Request) {
	tenantID, botID, identity, err := identityFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	export, err := rt.profiles.Export(r.Context(), tenantID, botID, identity)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, export)
}

func (rt *Router) eraseProfile(w http.ResponseWriter, r *http.Request) {
	tenantID, botID, identity, err := identityFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := rt.profiles.Erase(r.Context(), tenantID, botID, identity); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "erased"})
}

func identityFromQuery(values url.Values) (string, string, domain.Identity, error) {
	tenantID := strings.TrimSpace(values.Get("tenant_id"))
	if tenantID == "" {
		return "", "", domain.Identity{}, errors.New("tenant_id is required")
	}

	identity := domain.Identity{
		Email: strings.TrimSpace(values.Get("email")),
		Phone: strings.TrimSpace(values.Get("phone")),
	}
	if identity.Empty() {
		return "", "", domain.Identity{}, errors.New("email or phone is required")
	}

	return tenantID, strings.TrimSpace(values.Get("bot_id")), identity, nil
}
