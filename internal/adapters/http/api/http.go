// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/trialstats/internal/app"
	"github.com/okian/trialstats/internal/domain/report"
	"github.com/okian/trialstats/pkg/logger"
)

// defaultMaxUploadBytes caps POST /upload bodies when no limit is configured.
const defaultMaxUploadBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	UploadDependencies
	AggregateDependencies
}

// UploadResult mirrors the write outcome returned by the service.
type UploadResult = service.UploadResult

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	uploadHandler    *UploadHandler
	aggregateHandler *AggregateHandler
	log              logger.Logger
}

// ServerOption configures NewServer.
type ServerOption func(*serverOptions)

type serverOptions struct {
	maxUploadBytes int64
	log            logger.Logger
}

// WithMaxUploadBytes caps the size of an upload body.
func WithMaxUploadBytes(n int64) ServerOption {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxUploadBytes = n
		}
	}
}

// WithLogger sets the logger used for request failures.
func WithLogger(l logger.Logger) ServerOption {
	return func(o *serverOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	o := serverOptions{maxUploadBytes: defaultMaxUploadBytes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get()
	}
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		uploadHandler:    NewUploadHandler(deps, o.maxUploadBytes),
		aggregateHandler: NewAggregateHandler(deps),
		log:              o.log,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.route(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", s.route(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/upload", s.route(s.uploadHandler.HandleUpload, "upload"))
	mux.HandleFunc("/aggregate", s.route(s.aggregateHandler.HandleAggregate, "aggregate"))
}

// route applies the common middleware stack: request id, metrics, panic recovery.
func (s *Server) route(h http.HandlerFunc, endpoint string) http.HandlerFunc {
	return RequestIDMiddleware(MetricsMiddleware(RecoverMiddleware(h, s.log), endpoint))
}

type statusResponse struct {
	Status       string   `json:"status"`
	Message      string   `json:"message,omitempty"`
	MirrorErrors []string `json:"mirror_errors,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v before touching the response so an encoding failure
// can still be reported as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Code: "internal_error", Message: Wrap("api.encode", err).Error()})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// Document is the body of a successful GET /aggregate.
type Document = report.Document
