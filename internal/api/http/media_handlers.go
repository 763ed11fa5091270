package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/ieltsprep/internal/storage"
)

const maxMediaBytes = 64 << 20

// UploadMediaHandler stores the raw request body under the wildcard key.
func UploadMediaHandler(store storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := storage.CleanKey(chi.URLParam(r, "*"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		ct := r.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}
		body := http.MaxBytesReader(w, r.Body, maxMediaBytes)
		if err := store.Put(r.Context(), key, body, r.ContentLength, ct); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "media too large"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"key": key, "url": "/media/" + key})
	}
}

func GetMediaHandler(store storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, err := store.Get(r.Context(), chi.URLParam(r, "*"))
		switch {
		case errors.Is(err, storage.ErrInvalidKey):
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		case errors.Is(err, storage.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
			return
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		defer obj.Body.Close()
		w.Header().Set("Content-Type", obj.ContentType)
		if obj.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = io.Copy(w, obj.Body)
	}
}
