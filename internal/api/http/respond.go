package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/ieltsprep/internal/exam"
	"github.com/mind-engage/ieltsprep/internal/report"
	"github.com/mind-engage/ieltsprep/internal/scores"
	"github.com/mind-engage/ieltsprep/internal/session"
)

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var incomplete *session.IncompleteError
	switch {
	case errors.As(err, &incomplete):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:   err.Error(),
			Details: map[string][]int{"missing": incomplete.Missing},
		})
		return
	case errors.Is(err, exam.ErrTestNotFound), errors.Is(err, session.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, exam.ErrInvalidTest):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, session.ErrUnknownQuestion),
		errors.Is(err, session.ErrUnknownOption),
		errors.Is(err, session.ErrAnswerKind),
		errors.Is(err, session.ErrUnknownPassage),
		errors.Is(err, scores.ErrInvalidRecord):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, session.ErrAlreadySubmitted),
		errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, session.ErrNotGraded),
		errors.Is(err, report.ErrAlreadyAttempted):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json"})
		return false
	}
	return true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid " + name})
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
