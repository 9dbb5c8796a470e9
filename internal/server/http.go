package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/takikomiudon/limbus-realtime-translation/internal/audio"
	"github.com/takikomiudon/limbus-realtime-translation/internal/delivery"
	"github.com/takikomiudon/limbus-realtime-translation/internal/dispatch"
	"github.com/takikomiudon/limbus-realtime-translation/internal/session"
)

// HTTPServer provides HTTP endpoints for monitoring the running session.
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	sess       *session.Session
	queue      *audio.FrameQueue
	dispatcher *dispatch.Dispatcher
	deliverer  *delivery.Client

	startTime time.Time
}

// NewHTTPServer creates a monitoring server. deliverer may be nil when
// delivery is disabled.
func NewHTTPServer(address string, logger *slog.Logger, registry *prometheus.Registry,
	sess *session.Session, queue *audio.FrameQueue, dispatcher *dispatch.Dispatcher,
	deliverer *delivery.Client) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		sess:       sess,
		queue:      queue,
		dispatcher: dispatcher,
		deliverer:  deliverer,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/status", h.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	h.server = &http.Server{
		Addr:         address,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Start starts the HTTP server in the background.
func (h *HTTPServer) Start() {
	h.logger.Info("Starting monitoring server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Monitoring server error", slog.String("error", err.Error()))
		}
	}()
}

// Stop gracefully stops the HTTP server.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping monitoring server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint.
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "healthy"
	if h.sess.Closed() {
		status = "stopped"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "limbus-realtime-translation",
			"version": "1.0.0",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStatus implements the /status endpoint.
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]interface{}{
		"timestamp":      time.Now().UTC(),
		"session":        h.sess.GetStats(),
		"frame_queue":    map[string]interface{}{"depth": h.queue.Len()},
		"finalize_queue": map[string]interface{}{"depth": h.dispatcher.Depth()},
	}
	if h.deliverer != nil {
		status["delivery"] = h.deliverer.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
