package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/phishguard/phishguard-go/internal/store"
)

// AdminHandler exposes the audit log. Mounted only behind auth.RequireAPIKey.
type AdminHandler struct {
	store  store.Store
	logger *slog.Logger
}

func NewAdminHandler(s store.Store, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{store: s, logger: logger}
}

// Predictions handles GET /api/predictions?limit=N
func (ah *AdminHandler) Predictions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := ah.store.Recent(r.Context(), limit)
	if err != nil {
		ah.logger.Error("fetch predictions failed", "err", err)
		jsonError(w, "failed to fetch predictions", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, records)
}

// Stats handles GET /api/stats
func (ah *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := ah.store.Stats(r.Context())
	if err != nil {
		ah.logger.Error("fetch stats failed", "err", err)
		jsonError(w, "failed to fetch stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}
