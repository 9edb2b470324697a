// Package api exposes read-only admin endpoints over the sync journal.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"deployhook/pkg/storage"
)

// SyncRecordsHandler lists recent sync outcomes.
type SyncRecordsHandler struct {
	Store  storage.Store
	Logger *log.Logger
}

func (h *SyncRecordsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Store == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}

	filter := storage.RecordFilter{
		Provider:     strings.TrimSpace(r.URL.Query().Get("provider")),
		Organization: strings.TrimSpace(r.URL.Query().Get("org")),
		RepoName:     strings.TrimSpace(r.URL.Query().Get("repo")),
		Outcome:      strings.TrimSpace(r.URL.Query().Get("outcome")),
		Limit:        100,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	records, err := h.Store.ListRecords(r.Context(), filter)
	if err != nil {
		http.Error(w, "list sync records failed", http.StatusInternalServerError)
		if h.Logger != nil {
			h.Logger.Printf("list sync records failed: %v", err)
		}
		return
	}

	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "encode response failed", http.StatusInternalServerError)
	}
}
