// Package httpserver hosts the Telegram webhook endpoint, the health probe and
// the Prometheus scrape endpoint.
package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tg_roster_bot/internal/logging"
)

const (
	storePingTimeout  = 2 * time.Second
	readHeaderTimeout = 2 * time.Second
	listenPrefix      = ":"

	// SecretHeader carries the webhook secret token set with setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	maxUpdateBytes = 1 << 20
)

// StoreChecker is the subset of the store needed by /healthz.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

// UpdateHandler consumes decoded webhook updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *models.Update)
}

// Config selects the routes the server mounts. The webhook route is mounted
// only when Updates is set; /metrics only when Gatherer is set.
type Config struct {
	Port          int
	WebhookPath   string
	WebhookSecret string
	Updates       UpdateHandler
	Store         StoreChecker
	Gatherer      prometheus.Gatherer
}

// Server owns the underlying HTTP server.
type Server struct {
	server *http.Server
	logger *logrus.Entry
	cfg    Config
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

type ackResponse struct {
	OK string `json:"ok"`
}

// NewServer builds the router and the HTTP server listening on cfg.Port.
func NewServer(cfg Config, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger: logger,
		cfg:    cfg,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", listenPrefix, cfg.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.cfg.Updates != nil && s.cfg.WebhookPath != "" {
		r.Post(s.cfg.WebhookPath, s.handleWebhook)
	}

	return r
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event":   "http_listen",
		"addr":    s.server.Addr,
		"webhook": s.cfg.Updates != nil,
	}).Info("starting http server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "http_stopped").Info("http server stopped")
			return nil
		}

		return fmt.Errorf("http server listen: %w", err)
	}

	s.logger.WithField("event", "http_stopped").Info("http server stopped")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

// handleWebhook acknowledges every authenticated delivery with the same body,
// whatever the dispatch outcome.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if secret := s.cfg.WebhookSecret; secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			s.logger.WithFields(logging.Fields{
				"event":     "webhook_unauthorized",
				"remote_ip": r.RemoteAddr,
			}).Warn("webhook secret mismatch")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
	}

	var update models.Update
	body := io.LimitReader(r.Body, maxUpdateBytes)
	if err := json.NewDecoder(body).Decode(&update); err != nil {
		s.logger.WithField("event", "webhook_decode_failed").WithError(err).Warn("could not decode webhook update")
	} else {
		s.cfg.Updates.HandleUpdate(r.Context(), &update)
	}

	writeJSON(w, s.logger, ackResponse{OK: "POST request processed"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	ctx := r.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if s.cfg.Store == nil {
		resp.Status, resp.Store = "degraded", "error"
		s.logger.WithField("event", "health_store_missing").Warn("store checker is not configured for health endpoint")
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, storePingTimeout)
		err := s.cfg.Store.Ping(pingCtx)
		cancel()

		if err != nil {
			resp.Status, resp.Store = "degraded", "error"
			s.logger.WithField("event", "health_store_error").WithError(err).Warn("store ping failed during health check")
		}
	}

	writeJSON(w, s.logger, resp)
}

func writeJSON(w http.ResponseWriter, logger *logrus.Entry, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithField("event", "http_write_error").WithError(err).Error("failed to encode response")
	}
}
