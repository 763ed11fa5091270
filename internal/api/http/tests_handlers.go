package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/ieltsprep/internal/exam"
)

// GetTestBySlugHandler serves the full definition (answers included) in the
// shape HTTPLoader expects.
func GetTestBySlugHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := store.GetTest(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// GET /api/tests?type=reading|listening
func ListTestsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typ := exam.TestType(strings.TrimSpace(r.URL.Query().Get("type")))
		if typ != "" && typ != exam.TypeReading && typ != exam.TypeListening {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "type must be reading or listening"})
			return
		}
		list, err := store.ListTests(r.Context(), typ)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// PUT /api/tests/{slug} validates and upserts a definition.
func PutTestHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var t exam.Test
		if !decodeJSON(w, r, &t) {
			return
		}
		slug := chi.URLParam(r, "slug")
		if t.Slug == "" {
			t.Slug = slug
		}
		if t.Slug != slug {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "slug in body does not match path"})
			return
		}
		if err := exam.Validate(&t); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		if err := store.PutTest(r.Context(), t); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t.Summary())
	}
}
