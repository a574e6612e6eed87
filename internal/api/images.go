package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/quillhq/quill/internal/image"
)

// imageStore persists uploaded images.
// Satisfied by *image.Store.
type imageStore interface {
	Save(r io.Reader) (string, error)
	Open(name string) (io.ReadCloser, string, error)
	Delete(name string) error
}

// imageHandler serves image upload and retrieval.
type imageHandler struct {
	store  imageStore
	logger *slog.Logger
}

type uploadResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// upload handles POST /api/v1/images (authenticated). The image bytes are
// the raw request body; the store sniffs the content type and enforces the
// size cap.
func (h *imageHandler) upload(w http.ResponseWriter, r *http.Request) {
	name, err := h.store.Save(r.Body)
	if err != nil {
		switch {
		case errors.Is(err, image.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds the size limit", h.logger)
		case errors.Is(err, image.ErrUnsupportedType):
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_type", "only JPEG, PNG, GIF, and WebP images are accepted", h.logger)
		default:
			h.logger.Error("saving image", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		}
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{Name: name, URL: "/images/" + name}, h.logger)
}

// serve handles GET /images/{name}.
func (h *imageHandler) serve(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := h.store.Open(r.PathValue("name"))
	if err != nil {
		if errors.Is(err, image.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "image not found", h.logger)
			return
		}
		h.logger.Error("opening image", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	defer func() {
		if err := rc.Close(); err != nil {
			h.logger.Debug("closing image", "error", err)
		}
	}()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Debug("writing image body", "error", err)
	}
}

// remove handles DELETE /api/v1/images/{name} (authenticated).
func (h *imageHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.PathValue("name")); err != nil {
		if errors.Is(err, image.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "image not found", h.logger)
			return
		}
		h.logger.Error("deleting image", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
