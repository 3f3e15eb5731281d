// Package blob stores player photos under flat keys such as
// "players/<uuid>.jpg", on local disk or in an S3-compatible bucket.
package blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/passapraela/fantasy-engine/internal/httpx"
)

var (
	ErrNotFound   = errors.New("blob: not found")
	ErrInvalidKey = errors.New("blob: invalid key")
)

// Store is a flat key/value object store.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// Get returns the object body and its content type. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// CleanKey rejects keys that are empty, absolute or escape the namespace.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// Handler serves objects at GET /images/*.
func Handler(st Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := CleanKey(chi.URLParam(r, "*"))
		if err != nil {
			httpx.WriteError(w, "invalid image path", http.StatusBadRequest)
			return
		}

		body, contentType, err := st.Get(r.Context(), key)
		if errors.Is(err, ErrNotFound) {
			httpx.WriteError(w, "image not found", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("blob get failed", "key", key, "err", err)
			httpx.WriteError(w, "failed to read image", http.StatusInternalServerError)
			return
		}
		defer body.Close()

		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=86400")
		if _, err := io.Copy(w, body); err != nil {
			slog.Warn("blob write aborted", "key", key, "err", err)
		}
	}
}
