// Package httpapi exposes typed commands, delivery scheduling and the speech
// engine websocket over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mealvoice/internal/application"
	"mealvoice/internal/domain"
	"mealvoice/internal/infra/speech"
)

type Config struct {
	Addr      string
	AuthToken string
	// RateLimit requests per RateWindow per client IP on command endpoints.
	RateLimit  int
	RateWindow time.Duration
	// AllowedOrigins for the engine websocket. Empty means same origin only.
	AllowedOrigins []string
	DefaultLocale  string
	Speech         speech.Config
	Session        application.VoiceSessionConfig
}

type Server struct {
	cfg        Config
	dispatcher *application.Dispatcher
	scheduler  *application.DeliveryScheduler
	logger     *slog.Logger

	router      *mux.Router
	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter

	mu         sync.Mutex
	server     *http.Server
	running    bool
	sessionCtx context.Context
	sessions   sync.WaitGroup
}

func NewServer(cfg Config, dispatcher *application.Dispatcher, scheduler *application.DeliveryScheduler, logger *slog.Logger) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en-US"
	}
	if cfg.Speech.DefaultLocale == "" {
		cfg.Speech.DefaultLocale = cfg.DefaultLocale
	}

	s := &Server{
		cfg:         cfg,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		logger:      logger,
		router:      mux.NewRouter(),
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		sessionCtx:  context.Background(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(cfg.AllowedOrigins) > 0 {
		s.upgrader.CheckOrigin = s.checkOrigin
	}

	// Rate limiting applies to command endpoints only
	s.router.HandleFunc("/text", s.rateLimiter.Middleware(s.authorized(s.handleText))).Methods(http.MethodPost)
	s.router.HandleFunc("/schedule", s.rateLimiter.Middleware(s.authorized(s.handleSchedule))).Methods(http.MethodPost)
	s.router.HandleFunc("/send-now", s.rateLimiter.Middleware(s.authorized(s.handleSendNow))).Methods(http.MethodPost)
	s.router.HandleFunc("/ws/engine", s.authorized(s.handleEngine)).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background. Voice sessions live until ctx is done or
// their page disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.sessionCtx = ctx
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Info("HTTP server starting", "addr", s.cfg.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := s.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	s.running = false
	return nil
}

// Wait blocks until every voice session has ended.
func (s *Server) Wait() {
	s.sessions.Wait()
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next(w, r)
			return
		}
		// Browsers cannot set headers on websocket upgrades
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.cfg.AuthToken {
			s.logger.Warn("unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

type outcomeResponse struct {
	OK      bool   `json:"ok"`
	Intent  string `json:"intent"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	text := strings.TrimSpace(string(data))
	if text == "" {
		http.Error(w, "empty text", http.StatusBadRequest)
		return
	}

	locale := r.URL.Query().Get("locale")
	if locale == "" {
		locale = s.cfg.DefaultLocale
	}

	s.logger.Info("received text command via HTTP", "text", text, "locale", locale)
	out := application.ExecuteText(r.Context(), s.dispatcher, text, locale)

	resp := outcomeResponse{OK: out.Err == nil, Intent: string(out.Intent.Kind), Message: out.Message}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	writeJSON(w, statusFor(out.Err), resp)
}

type scheduleRequest struct {
	domain.ScheduleRequest
	Submit      bool                `json:"submit"`
	Ingredients []domain.Ingredient `json:"ingredients"`
}

type scheduleResponse struct {
	domain.ScheduleDecision
	Result *domain.DeliveryRunResult `json:"result,omitempty"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Timezone == "" {
		req.Timezone = s.dispatcher.Timezone()
	}

	var (
		resp scheduleResponse
		err  error
	)
	if req.Submit {
		resp.ScheduleDecision, resp.Result, err = s.scheduler.Submit(r.Context(), req.ScheduleRequest, req.Ingredients)
	} else {
		resp.ScheduleDecision, err = s.scheduler.Decide(req.ScheduleRequest)
	}
	if err != nil {
		s.logger.Warn("schedule request failed", "date", req.Date, "time", req.Time, "timezone", req.Timezone, "error", err)
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSendNow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SelectedTime string `json:"selected_time"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	result, err := s.scheduler.SendNow(r.Context(), req.SelectedTime)
	if err != nil {
		s.logger.Warn("send now failed", "selected_time", req.SelectedTime, "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEngine(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	logger := s.logger.With("conn_id", uuid.NewString())
	conn := speech.NewConn(ws, s.cfg.Speech, logger)
	if err := conn.Handshake(); err != nil {
		logger.Warn("engine handshake failed", "error", err)
		ws.Close()
		return
	}
	conn.Serve()
	defer conn.Close()

	s.mu.Lock()
	ctx := s.sessionCtx
	s.mu.Unlock()

	s.sessions.Add(1)
	defer s.sessions.Done()

	session := application.NewVoiceSession(conn, conn, s.dispatcher, s.cfg.Session, logger)
	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("voice session ended", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"running":  running,
		"timezone": s.dispatcher.Timezone(),
	})
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrStaleSchedule), errors.Is(err, domain.ErrUnknownIntent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidTimezone), errors.Is(err, domain.ErrInvalidSchedule):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBackendRejection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
