package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/wricardo/webpad/pad/session"
	"golang.org/x/time/rate"
)

// Options configures the server.
type Options struct {
	// Directory served at "/". Empty disables static files.
	PublicDir string

	// Driver is reported by the health endpoint.
	Driver string

	// New connections accepted per second. Zero disables the limit.
	ConnectRate float64

	// Connections allowed in a burst above ConnectRate.
	ConnectBurst int
}

// Server represents the REST API server
type Server struct {
	registry *session.Registry
	ws       http.Handler
	opts     Options
	limiter  *rate.Limiter
	started  time.Time
	router   *mux.Router
	log      logrus.FieldLogger
}

// NewServer creates a new API server. ws serves controller connections at
// /ws.
func NewServer(registry *session.Registry, ws http.Handler, opts Options, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		registry: registry,
		ws:       ws,
		opts:     opts,
		started:  time.Now(),
		router:   mux.NewRouter(),
		log:      logger.WithField("component", "api"),
	}
	if opts.ConnectRate > 0 {
		burst := opts.ConnectBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.ConnectRate), burst)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{player:[0-9]+}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{player:[0-9]+}", s.handleDisconnectSession).Methods("DELETE")

	// WebSocket
	if s.ws != nil {
		s.router.Handle("/ws", s.throttle(s.ws))
	}

	if s.opts.PublicDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.opts.PublicDir)))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// throttle rejects connection attempts above the configured accept rate.
func (s *Server) throttle(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.log.WithField("remote", r.RemoteAddr).Warn("Connection rate exceeded")
			respondError(w, http.StatusTooManyRequests, "too many connection attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func playerParam(r *http.Request) (int, error) {
	player, err := strconv.Atoi(mux.Vars(r)["player"])
	if err != nil || player < 1 {
		return 0, fmt.Errorf("invalid player %q", mux.Vars(r)["player"])
	}
	return player, nil
}

// Session Handlers

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	player, err := playerParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.registry.GetByPlayer(player)
	if err != nil {
		respondError(w, sessionStatus(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleDisconnectSession(w http.ResponseWriter, r *http.Request) {
	player, err := playerParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.registry.Disconnect(player); err != nil {
		respondError(w, sessionStatus(err), err.Error())
		return
	}

	s.log.WithField("player", player).Info("Session disconnected by admin")
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Player %d disconnected", player),
	})
}

func sessionStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"driver":      s.opts.Driver,
		"sessions":    s.registry.Count(),
		"last_player": s.registry.LastPlayer(),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
	})
}
