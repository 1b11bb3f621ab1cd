// Package health reports the reachability of the reconciliation service's
// collaborators: Temporal, the Order Store, the Notification service, Redis
// and the local journal.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Version is reported by /health
var Version = "1.0.0"

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response is the body of /health
type Response struct {
	Status     Status                     `json:"status"`
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// Checker probes one collaborator
type Checker interface {
	Check(ctx context.Context) ComponentHealth
	Name() string
}

// Server serves the health endpoints, either on its own port or mounted on
// another router.
type Server struct {
	port     int
	logger   log.Logger
	checkers []Checker
	mu       sync.RWMutex
	server   *http.Server
}

// NewServer creates a health server for the given port
func NewServer(port int, logger log.Logger) *Server {
	return &Server{
		port:     port,
		logger:   logger,
		checkers: make([]Checker, 0),
	}
}

// RegisterChecker adds a checker
func (s *Server) RegisterChecker(checker Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, checker)
}

// Routes mounts /health, /health/live and /health/ready on r
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.healthHandler)
	r.Get("/health/live", s.livenessHandler)
	r.Get("/health/ready", s.readinessHandler)
}

// Start serves the health endpoints on the server's own port
func (s *Server) Start() error {
	r := chi.NewRouter()
	s.Routes(r)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Health check server error", "error", err)
		}
	}()

	s.logger.Info("Health check server started", "port", s.port)
	return nil
}

// Shutdown gracefully stops the standalone server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Check runs every checker and folds the results
func (s *Server) Check(ctx context.Context) Response {
	s.mu.RLock()
	checkers := s.checkers
	s.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(checkers))
	overall := StatusHealthy
	for _, checker := range checkers {
		h := checker.Check(ctx)
		components[checker.Name()] = h

		if h.Status == StatusUnhealthy {
			overall = StatusUnhealthy
		} else if h.Status == StatusDegraded && overall == StatusHealthy {
			overall = StatusDegraded
		}
	}

	return Response{
		Status:     overall,
		Version:    Version,
		Timestamp:  time.Now(),
		Components: components,
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := s.Check(ctx)

	// degraded still answers 200
	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.Check(ctx).Status == StatusUnhealthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// TemporalChecker checks Temporal server connectivity
type TemporalChecker struct {
	client client.Client
}

// NewTemporalChecker creates a Temporal checker
func NewTemporalChecker(c client.Client) *TemporalChecker {
	return &TemporalChecker{client: c}
}

func (t *TemporalChecker) Name() string { return "temporal" }

func (t *TemporalChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	_, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("Temporal connection failed: %v", err),
			Latency: latency.String(),
		}
	}
	return ComponentHealth{
		Status:  StatusHealthy,
		Message: "Connected to Temporal server",
		Latency: latency.String(),
	}
}

// HTTPChecker probes an HTTP collaborator. A non-2xx answer is degraded:
// the webhook path absorbs collaborator failures, so it is not a reason to
// stop taking traffic.
type HTTPChecker struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPChecker creates an HTTP checker
func NewHTTPChecker(name, url string) *HTTPChecker {
	return &HTTPChecker{
		name: name,
		url:  url,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

func (h *HTTPChecker) Name() string { return h.name }

func (h *HTTPChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("Failed to create request: %v", err),
		}
	}

	resp, err := h.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("Request failed: %v", err),
			Latency: latency.String(),
		}
	}
	defer resp.Body.Close()

	status := StatusDegraded
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		status = StatusHealthy
	}
	return ComponentHealth{
		Status:  status,
		Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
		Latency: latency.String(),
	}
}

// RedisChecker pings the receipt cache. The cache is optional, so failure
// is degraded.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a Redis checker
func NewRedisChecker(c *redis.Client) *RedisChecker {
	return &RedisChecker{client: c}
}

func (r *RedisChecker) Name() string { return "redis" }

func (r *RedisChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := r.client.Ping(ctx).Err()
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("Redis ping failed: %v", err),
			Latency: latency.String(),
		}
	}
	return ComponentHealth{Status: StatusHealthy, Message: "PONG", Latency: latency.String()}
}

// FuncChecker adapts a ping function, such as the journal's
type FuncChecker struct {
	name     string
	ping     func() error
	severity Status
}

// NewFuncChecker reports severity when ping fails
func NewFuncChecker(name string, severity Status, ping func() error) *FuncChecker {
	return &FuncChecker{name: name, ping: ping, severity: severity}
}

func (f *FuncChecker) Name() string { return f.name }

func (f *FuncChecker) Check(_ context.Context) ComponentHealth {
	if err := f.ping(); err != nil {
		return ComponentHealth{Status: f.severity, Message: err.Error()}
	}
	return ComponentHealth{Status: StatusHealthy}
}
