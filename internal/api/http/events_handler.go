package http

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	syncx "github.com/mind-engage/ieltsprep/internal/sync"
)

// GET /api/events?after=<offset>&limit=<n> pages through the session event log.
func ListEventsHandler(repo *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
		list, err := repo.Since(r.Context(), after, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

// Readyz pings the database.
func Readyz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
