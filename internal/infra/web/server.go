package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"sms-hunter/internal/application"
	"sms-hunter/internal/infra/logging"
)

// Server is the operator API. It is mounted under /api/v1 by the public HTTP
// server when an API key is configured.
type Server struct {
	facade *application.BotFacade
	auth   *AuthManager
	log    *zerolog.Logger
}

func NewServer(facade *application.BotFacade, auth *AuthManager, logger *zerolog.Logger) *Server {
	return &Server{
		facade: facade,
		auth:   auth,
		log:    logging.Component(logger, "AdminAPI"),
	}
}

// Routes returns the API router, relative to its mount point.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/status", s.handleStatus)
		r.Post("/hunter/start", s.handleHunterStart)
		r.Post("/hunter/stop", s.handleHunterStop)
	})
	return r
}

// authMiddleware accepts a session cookie or a bearer JWT minted by /login.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("admin api auth failed")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
