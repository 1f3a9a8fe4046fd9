package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/trialstats/internal/app"
)

// AggregateDependencies defines the read path used by the aggregate handler.
type AggregateDependencies interface {
	Aggregate(ctx context.Context) (Document, error)
}

// AggregateHandler serves per-family summaries.
type AggregateHandler struct {
	deps AggregateDependencies
}

// NewAggregateHandler creates a new aggregate handler.
func NewAggregateHandler(deps AggregateDependencies) *AggregateHandler {
	return &AggregateHandler{deps: deps}
}

// HandleAggregate handles GET /aggregate requests.
func (h *AggregateHandler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	const op = "api.aggregate"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	doc, err := h.deps.Aggregate(r.Context())
	switch {
	case errors.Is(err, service.ErrEmpty):
		writeJSON(w, http.StatusOK, statusResponse{Status: "empty", Message: "no telemetry recorded"})
	case errors.Is(err, service.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", WrapKind(op, ErrUnavailable, err))
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
	default:
		writeJSON(w, http.StatusOK, doc)
	}
}
