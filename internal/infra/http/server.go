package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"sms-hunter/internal/config"
	"sms-hunter/internal/infra/logging"
	"sms-hunter/internal/infra/worker"
)

// WebhookPathPrefix is followed by the webhook secret.
const WebhookPathPrefix = "/telegram/webhook/"

// UpdateHandler is the Telegram side of the bot.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
	SetWebhook(ctx context.Context, url string) error
}

// Submitter queues work without blocking.
type Submitter interface {
	Submit(task worker.Task) error
}

// Server is the public front door: Telegram webhook, health and metrics. The
// admin API is mounted on it when enabled.
type Server struct {
	cfg    *config.Config
	bot    UpdateHandler
	pool   Submitter
	log    *zerolog.Logger
	router chi.Router
	server *http.Server
}

func NewServer(cfg *config.Config, bot UpdateHandler, pool Submitter, logger *zerolog.Logger) *Server {
	s := &Server{
		cfg:  cfg,
		bot:  bot,
		pool: pool,
		log:  logging.Component(logger, "HTTPServer"),
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/set_webhook", s.handleSetWebhook)
	r.Post(WebhookPathPrefix+"{secret}", s.handleTelegramWebhook)
	s.router = r
	return s
}

// Mount attaches a sub-router, e.g. the admin API under /api/v1.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Mount(pattern, h)
}

func (s *Server) Handler() http.Handler { return s.router }

// WebhookURL is the public URL Telegram should post updates to.
func (s *Server) WebhookURL() string {
	base := strings.TrimRight(s.cfg.Bot.WebhookURL, "/")
	if base == "" {
		return ""
	}
	return base + WebhookPathPrefix + s.cfg.Bot.WebhookSecret
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.HTTP.Port).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.cfg.Bot.Mode == config.ModeWebhook {
		fmt.Fprint(w, "Bot is running via Webhook.")
		return
	}
	fmt.Fprintf(w, "Bot is running (%s).", s.cfg.Bot.Mode)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *Server) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	url := s.WebhookURL()
	if url == "" {
		writeJSON(w, http.StatusInternalServerError, statusBody{"error", "WEBHOOK_URL_BASE is not set."})
		return
	}
	if err := s.bot.SetWebhook(r.Context(), url); err != nil {
		s.log.Error().Err(err).Msg("webhook setup failed")
		writeJSON(w, http.StatusInternalServerError, statusBody{"error", "Webhook setup failed"})
		return
	}
	writeJSON(w, http.StatusOK, statusBody{"ok", "Webhook set"})
}

// handleTelegramWebhook queues the update and answers at once; Telegram
// redelivers when it gets anything but 200.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	secret := chi.URLParam(r, "secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.Bot.WebhookSecret)) != 1 {
		http.NotFound(w, r)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&update); err != nil {
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}

	err := s.pool.Submit(func(ctx context.Context) error {
		s.bot.HandleUpdate(ctx, update)
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Int("update_id", update.UpdateID).Msg("update not queued")
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}
	fmt.Fprint(w, "ok")
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if strings.HasPrefix(path, WebhookPathPrefix) {
			path = WebhookPathPrefix + "***"
		}
		s.log.Debug().
			Str("method", r.Method).
			Str("path", path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
