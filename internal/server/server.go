// Package server provides the dashboard HTTP server: live job progress over
// Server-Sent Events plus dashboard and ad listings, proxied to the ad
// generation API with the caller's token.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ad-dashboard/internal/client"
	"github.com/jonathan/ad-dashboard/internal/config"
	"github.com/jonathan/ad-dashboard/internal/ratelimit"
	"github.com/jonathan/ad-dashboard/internal/server/middleware"
	"github.com/jonathan/ad-dashboard/internal/session"
	"github.com/sirupsen/logrus"
)

// DefaultHeartbeat is the interval between keep-alive comments on idle
// progress streams.
const DefaultHeartbeat = 15 * time.Second

// Config holds server configuration
type Config struct {
	Port           int
	APIBaseURL     string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Heartbeat      time.Duration
	CORSOrigins    []string          // empty allows any origin
	JWT            *config.JWTConfig // nil checks expiry only
	RateLimit      *ratelimit.Config // nil loads RATE_LIMIT_* from the environment
	History        HistoryStore      // nil disables progress history
	ClientOptions  []client.Option
	Logger         *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer   *http.Server
	api          *client.Client
	rateLimiter  *ratelimit.Limiter
	jwtService   *JWTService
	log          *logrus.Entry
	pollInterval time.Duration
	heartbeat    time.Duration
	corsOrigins  map[string]bool
	history      HistoryStore
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "server")

	opts := []client.Option{client.WithLogger(log.WithField("component", "api-client"))}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, client.WithTimeout(cfg.RequestTimeout))
	}
	api, err := client.New(cfg.APIBaseURL, nil, append(opts, cfg.ClientOptions...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	rlConfig := cfg.RateLimit
	if rlConfig == nil {
		rlConfig = ratelimit.LoadConfig(ratelimit.ServerEnvPrefix, ratelimit.DashboardEndpointConfigs())
	}

	s := &Server{
		api:          api,
		rateLimiter:  ratelimit.NewLimiter(rlConfig),
		jwtService:   NewJWTService(cfg.JWT),
		log:          log,
		pollInterval: cfg.PollInterval,
		heartbeat:    cfg.Heartbeat,
		corsOrigins:  make(map[string]bool),
		history:      cfg.History,
	}
	if s.heartbeat <= 0 {
		s.heartbeat = DefaultHeartbeat
	}
	for _, origin := range cfg.CORSOrigins {
		s.corsOrigins[strings.TrimRight(origin, "/")] = true
	}

	// Setup router
	authed := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /api/dashboard", authed(http.HandlerFunc(s.handleDashboard)))
	mux.Handle("GET /api/ads", authed(http.HandlerFunc(s.handleListAds)))
	mux.Handle("GET /api/ads/{run_id}/progress", authed(http.HandlerFunc(s.handleProgress)))
	mux.Handle("GET /api/ads/{run_id}/progress/snapshot", authed(http.HandlerFunc(s.handleSnapshot)))
	if s.history != nil {
		mux.Handle("GET /api/ads/{run_id}/history", authed(http.HandlerFunc(s.handleHistory)))
		mux.Handle("GET /api/history", authed(http.HandlerFunc(s.handleListHistory)))
	}

	// Create HTTP server. Progress streams stay open until the job ends, so
	// there is no write timeout.
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens for requests until ctx is cancelled, then shuts down
// gracefully, waiting up to 30 seconds for open requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.Close()

	// Cancelling the base context ends open progress streams on shutdown.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	s.httpServer.BaseContext = func(net.Listener) context.Context { return baseCtx }

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("server starting")
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	cancelStreams()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// Close releases the rate limiter and API client.
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.api.Close()
}

// apiFor returns an API client acting with the request's bearer token.
func (s *Server) apiFor(r *http.Request) (*client.Client, error) {
	token, err := middleware.GetToken(r)
	if err != nil {
		return nil, client.ErrNotAuthenticated
	}
	return s.api.WithTokens(session.NewMemoryStore(token)), nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.corsOrigins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case s.corsOrigins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Last-Event-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Flush keeps SSE streaming working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(client.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(client.RequestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote":      r.RemoteAddr,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  requestID,
		}).Info("request completed")
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Warn("failed to encode JSON response")
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// handleError maps err to a status code and writes it.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	entry := s.log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path, "status": status})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	var rateErr *client.RateLimitError
	if errors.As(err, &rateErr) && rateErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(rateErr.RetryAfter)))
	}
	s.errorResponse(w, status, errorMessage(err))
}

// extractClientID identifies the caller for rate limiting: the token subject
// when a readable bearer token is present, otherwise the remote IP.
func (s *Server) extractClientID(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if parts := strings.Fields(auth); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if claims, err := session.ParseClaims(parts[1]); err == nil && claims.Subject != "" {
				return "user:" + claims.Subject
			}
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := retrySeconds(info.RetryAfter)
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.log.WithFields(logrus.Fields{
		"path":  r.URL.Path,
		"limit": info.Limit,
		"reset": info.ResetTime.Format(time.RFC3339),
	}).Warn("rate limit exceeded")

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

// retrySeconds rounds d up to whole seconds, at least one.
func retrySeconds(d time.Duration) int {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
