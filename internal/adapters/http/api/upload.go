package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	service "github.com/okian/trialstats/internal/app"
)

// IdempotencyHeader carries an optional client key for safe retries.
const IdempotencyHeader = "Idempotency-Key"

// retryAfterSeconds is sent with 409 while the first upload for a key runs.
const retryAfterSeconds = "1"

// UploadDependencies defines the write path used by the upload handler.
type UploadDependencies interface {
	Upload(ctx context.Context, raw map[string]any, idemKey string) (UploadResult, error)
}

// UploadHandler handles telemetry uploads.
type UploadHandler struct {
	deps     UploadDependencies
	maxBytes int64
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(deps UploadDependencies, maxBytes int64) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &UploadHandler{deps: deps, maxBytes: maxBytes}
}

// HandleUpload handles POST /upload requests. The body is one flat JSON object.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "api.upload"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	raw, err := h.decode(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", WrapKind(op, ErrPayloadTooLarge, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.Upload(r.Context(), raw, r.Header.Get(IdempotencyHeader))
	switch {
	case errors.Is(err, service.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, service.ErrInFlight):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusConflict, "upload_in_progress", WrapKind(op, ErrConflict, err))
		return
	case errors.Is(err, service.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", WrapKind(op, ErrUnavailable, err))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
		return
	}

	switch res.Status {
	case service.StatusDuplicate:
		writeJSON(w, http.StatusOK, statusResponse{Status: res.Status, Message: "upload already received"})
	case service.StatusPartial:
		writeJSON(w, http.StatusOK, statusResponse{
			Status:       res.Status,
			Message:      "upload received; mirror write failed",
			MirrorErrors: res.MirrorErrors,
		})
	default:
		writeJSON(w, http.StatusOK, statusResponse{Status: service.StatusOK, Message: "upload received"})
	}
}

func (h *UploadHandler) decode(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBytes))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("body must hold a single JSON object")
	}
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return nil, service.ErrInvalidRecord
	}
	return obj, nil
}
