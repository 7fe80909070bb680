package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/infra/metrics"
)

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleLogin exchanges "Authorization: Bearer <api key>" for a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	key, _ := bearer(r)
	if !s.auth.CheckAPIKey(key) {
		metrics.IncAdminAction("api_login", "unauthorized")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	token, exp, err := s.auth.Mint(w)
	if err != nil {
		s.log.Error().Err(err).Msg("mint session failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	metrics.IncAdminAction("api_login", "authorized")
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp.UTC()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.auth != nil {
		s.auth.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.facade.Status(r.Context()))
}

func (s *Server) handleHunterStart(w http.ResponseWriter, r *http.Request) {
	launched, err := s.facade.Admin.StartHunting(r.Context())
	switch {
	case errors.Is(err, domain.ErrMissingAPIKey):
		writeError(w, http.StatusConflict, "missing_api_key")
		return
	case errors.Is(err, domain.ErrNoCountries):
		writeError(w, http.StatusConflict, "no_countries")
		return
	case err != nil:
		s.log.Error().Err(err).Msg("start hunting failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Launched bool `json:"launched"`
	}{launched})
}

func (s *Server) handleHunterStop(w http.ResponseWriter, r *http.Request) {
	requested, err := s.facade.Admin.StopHunting(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("stop hunting failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Requested bool `json:"requested"`
	}{requested})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
