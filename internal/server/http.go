package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/koscakluka/ema-livebridge/core/audio"
	"github.com/koscakluka/ema-livebridge/core/bridge"
	"github.com/koscakluka/ema-livebridge/internal/config"
	"github.com/koscakluka/ema-livebridge/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPServer exposes the stream and ingestion endpoints of the bridge
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	registry *bridge.Registry
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	encoding           audio.EncodingInfo
	maxFragmentBytes   int
	streamWriteTimeout time.Duration

	startTime time.Time
}

// NewHTTPServer creates the HTTP server. Metrics are served from gatherer.
func NewHTTPServer(cfg *config.Config, logger *slog.Logger,
	registry *bridge.Registry, m *metrics.Metrics, gatherer prometheus.Gatherer) (*HTTPServer, error) {

	encoding, err := cfg.Speech.EncodingInfo()
	if err != nil {
		return nil, fmt.Errorf("invalid speech encoding: %w", err)
	}

	h := &HTTPServer{
		logger:             logger,
		registry:           registry,
		metrics:            m,
		gatherer:           gatherer,
		encoding:           encoding,
		maxFragmentBytes:   cfg.Ingestion.MaxFragmentBytes,
		streamWriteTimeout: cfg.Server.StreamWriteTimeout,
		startTime:          time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           otelhttp.NewHandler(mux, "livebridge"),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		// Streams stay open for the whole call; frame writes carry their
		// own deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return h, nil
}

// Handler returns the root handler of the server.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/transcribe/stream", h.withMetrics("/api/transcribe/stream", h.handleStream))
	mux.HandleFunc("POST /api/transcribe/audio", h.withMetrics("/api/transcribe/audio", h.handleAudio))

	mux.HandleFunc("GET /api/transcribe/sessions", h.withMetrics("/api/transcribe/sessions", h.handleSessions))
	mux.HandleFunc("DELETE /api/transcribe/sessions/{id}", h.withMetrics("/api/transcribe/sessions/{id}", h.handleCloseSession))
	mux.HandleFunc("GET /api/transcribe/schema", h.withMetrics("/api/transcribe/schema", h.handleSchema))

	mux.HandleFunc("GET /healthz", h.withMetrics("/healthz", h.handleHealth))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// ListenAndServe serves until Shutdown is called.
func (h *HTTPServer) ListenAndServe() error {
	listener, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}
	return h.Serve(listener)
}

// Serve serves on listener until Shutdown is called.
func (h *HTTPServer) Serve(listener net.Listener) error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", listener.Addr().String()),
	)

	if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server. Open streams end once their
// sessions close.
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /healthz endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"timestamp":       time.Now().UTC(),
		"uptime":          time.Since(h.startTime).String(),
		"active_sessions": h.registry.Len(),
	})
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
