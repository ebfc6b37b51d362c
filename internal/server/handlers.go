package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"photopool/internal/pool"
)

// Pool is the part of pool.Service the HTTP surface needs.
type Pool interface {
	Draw(ctx context.Context) (*pool.Draw, error)
	Ready(ctx context.Context) error
}

// PhotoOpener reads stored photo bytes. It is only wired for stores whose URLs
// point back at this server.
type PhotoOpener interface {
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}

// Handler serves the distribution endpoint and operational probes.
type Handler struct {
	pool   Pool
	photos PhotoOpener
	secret string
	logger pool.Logger
}

// NewHandler creates a Handler. An empty secret leaves /random open; a nil
// photos disables /photos/{id}.
func NewHandler(p Pool, photos PhotoOpener, secret string, logger pool.Logger) *Handler {
	if logger == nil {
		logger = pool.NewNopLogger()
	}
	return &Handler{pool: p, photos: photos, secret: secret, logger: logger}
}

type drawResponse struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	got := r.URL.Query().Get("secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

// Random draws one unused photo. Unauthorized requests are rejected before the
// pool is touched.
func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, pool.ErrUnauthorized.Error())
		return
	}

	d, err := h.pool.Draw(r.Context())
	switch {
	case errors.Is(err, pool.ErrPoolExhausted):
		writeError(w, http.StatusNotFound, pool.ErrPoolExhausted.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, drawResponse{URL: d.URL, Caption: d.Caption})
	}
}

// Photo streams a stored photo. Used when the store has no public endpoint
// of its own.
func (h *Handler) Photo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || strings.HasPrefix(id, ".") {
		writeError(w, http.StatusNotFound, pool.ErrPhotoNotFound.Error())
		return
	}

	rc, err := h.photos.Open(r.Context(), id)
	if errors.Is(err, pool.ErrPhotoNotFound) {
		writeError(w, http.StatusNotFound, pool.ErrPhotoNotFound.Error())
		return
	}
	if err != nil {
		h.logger.Error("opening photo", "op", "serve_photo", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read photo")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("streaming photo", "op", "serve_photo", "id", id, "error", err)
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// Live reports that the process is up.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready reports whether the tracker database is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := h.pool.Ready(r.Context()); err != nil {
		resp.Status = "fail"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
