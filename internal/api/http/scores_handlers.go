package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	auth "github.com/mind-engage/ieltsprep/internal/auth/middleware"
	"github.com/mind-engage/ieltsprep/internal/rbac"
	"github.com/mind-engage/ieltsprep/internal/scores"
)

// POST /api/scores. Students can only save under their own identity; the
// name, email and role in the body are replaced with the caller's claims.
func SaveScoreHandler(store scores.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec scores.Record
		if !decodeJSON(w, r, &rec) {
			return
		}
		if c := auth.ClaimsFromContext(r.Context()); c != nil && c.Role != rbac.RoleAdmin {
			rec.Name, rec.Email, rec.Role = c.Name, c.Email, c.Role
		}
		rec.ID = 0
		saved, err := store.Insert(r.Context(), rec)
		if errors.Is(err, scores.ErrInvalidRecord) {
			writeJSON(w, http.StatusBadRequest, scores.SaveResponse{Success: false, Message: err.Error()})
			return
		}
		if err != nil {
			logger.Error("score insert failed", zap.String("email", rec.Email), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, scores.SaveResponse{Success: false, Message: "score could not be saved"})
			return
		}
		writeJSON(w, http.StatusCreated, scores.SaveResponse{
			Success: true,
			Message: fmt.Sprintf("Score %.1f saved for %s", saved.Score, saved.TestName),
		})
	}
}

// GET /api/scores/me
func MyScoresHandler(store scores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.ClaimsFromContext(r.Context())
		if c == nil || c.Email == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		list, err := store.ListByEmail(r.Context(), c.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /api/scores/export streams every record as an xlsx workbook.
func ExportScoresHandler(store scores.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		var buf bytes.Buffer
		if err := scores.WriteXLSX(&buf, list); err != nil {
			writeError(w, err)
			return
		}
		name := "scores-" + time.Now().UTC().Format("20060102") + ".xlsx"
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		_, _ = buf.WriteTo(w)
	}
}
