package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/storefrontops/layoutsvc/internal/layout"
)

const (
	scopeLayoutRead  = "layout:read"
	scopeLayoutWrite = "layout:write"
)

type ServerConfig struct {
	JWTSecret       string
	WriteDeadline   time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
	Logger          layout.Logger
}

// Server exposes the layout editor core over HTTP: read, save, reset, and a
// WebSocket snapshot stream per platform target.
type Server struct {
	store       layout.DocumentStore
	validator   *layout.Validator
	planner     *layout.WritePlanner
	resetc      *layout.ResetCoordinator
	cfg         ServerConfig
	logger      layout.Logger
	rateLimiter *rateLimiter
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(store layout.DocumentStore) *Server {
	return NewServerWithConfig(store, ServerConfig{})
}

func NewServerWithConfig(store layout.DocumentStore, cfg ServerConfig) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	var logger layout.Logger = cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	planner := layout.NewWritePlanner(store, layout.PlannerOptions{
		WriteDeadline: cfg.WriteDeadline,
		Logger:        logger,
	})
	return &Server{
		store:       store,
		validator:   layout.NewValidator(logger),
		planner:     planner,
		resetc:      layout.NewResetCoordinator(planner, logger),
		cfg:         cfg,
		logger:      logger,
		rateLimiter: limiter,
	}
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if r.URL.Path == "/dashboard" && r.Method == http.MethodGet {
		s.handleDashboard(w, r)
		return
	}

	correlationID := getCorrelationID(r)
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" || parts[1] != "layouts" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
		return
	}
	target, err := layout.ParsePlatformTarget(parts[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_target", err.Error(), correlationID)
		return
	}

	switch {
	case len(parts) == 3 && r.Method == http.MethodGet:
		s.withAuth(w, r, scopeLayoutRead, correlationID, func(claims operatorClaims) {
			s.handleGetLayout(w, r, target, correlationID)
		})
	case len(parts) == 3 && r.Method == http.MethodPut:
		s.withAuth(w, r, scopeLayoutWrite, correlationID, func(claims operatorClaims) {
			s.handleSaveLayout(w, r, target, claims, correlationID)
		})
	case len(parts) == 4 && parts[3] == "reset" && r.Method == http.MethodPost:
		s.withAuth(w, r, scopeLayoutWrite, correlationID, func(claims operatorClaims) {
			s.handleResetLayout(w, r, target, claims, correlationID)
		})
	case len(parts) == 4 && parts[3] == "stream" && r.Method == http.MethodGet:
		s.withAuth(w, r, scopeLayoutRead, correlationID, func(claims operatorClaims) {
			s.handleStreamLayout(w, r, target)
		})
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
	}
}

func (s *Server) withAuth(w http.ResponseWriter, r *http.Request, scope, correlationID string, next func(operatorClaims)) {
	claims, authErr := authorizeBearer(r.Header.Get("Authorization"), s.cfg.JWTSecret, scope, time.Now())
	if authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, correlationID)
		return
	}
	if s.rateLimiter != nil && scope == scopeLayoutWrite {
		if !s.rateLimiter.allow(claims.OperatorID, time.Now()) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many write requests", correlationID)
			return
		}
	}
	next(claims)
}

type layoutResponse struct {
	Target    layout.PlatformTarget `json:"target"`
	Widgets   []layout.Widget       `json:"widgets"`
	UpdatedAt *time.Time            `json:"updatedAt,omitempty"`
	UpdatedBy string                `json:"updatedBy,omitempty"`
	Version   int64                 `json:"version,omitempty"`
}

func (s *Server) handleGetLayout(w http.ResponseWriter, r *http.Request, target layout.PlatformTarget, correlationID string) {
	resp := layoutResponse{Target: target}
	payload, err := s.store.Get(r.Context(), target.DocumentName())
	switch {
	case errors.Is(err, layout.ErrNotFound):
		resp.Widgets = layout.DefaultWidgets()
	case err != nil:
		writeError(w, http.StatusBadGateway, "store_unavailable", err.Error(), correlationID)
		return
	default:
		resp.Widgets = s.validator.ValidateJSON(payload)
		var doc layout.Document
		if json.Unmarshal(payload, &doc) == nil {
			if !doc.UpdatedAt.IsZero() {
				resp.UpdatedAt = &doc.UpdatedAt
			}
			resp.UpdatedBy = doc.UpdatedBy
			resp.Version = doc.Version
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveLayout(w http.ResponseWriter, r *http.Request, target layout.PlatformTarget, claims operatorClaims, correlationID string) {
	var body struct {
		Widgets []layout.Widget `json:"widgets"`
	}
	if !s.decodeJSONBody(w, r, correlationID, &body) {
		return
	}
	if err := s.planner.Write(r.Context(), target, body.Widgets, claims.OperatorID); err != nil {
		s.writePlannerError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": s.planner.Plan(target),
	})
}

func (s *Server) handleResetLayout(w http.ResponseWriter, r *http.Request, target layout.PlatformTarget, claims operatorClaims, correlationID string) {
	var body struct {
		Reason string `json:"reason"`
	}
	if !s.decodeJSONBody(w, r, correlationID, &body) {
		return
	}
	widgets, err := s.resetc.Reset(r.Context(), target, claims.OperatorID, body.Reason)
	if err != nil {
		s.writePlannerError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"widgets": widgets,
	})
}

func (s *Server) writePlannerError(w http.ResponseWriter, err error, correlationID string) {
	var fanout *layout.PartialFanoutError
	switch {
	case errors.Is(err, layout.ErrNoValidWidgets):
		writeError(w, http.StatusBadRequest, "no_valid_widgets", "refusing to persist an empty widget list", correlationID)
	case errors.Is(err, layout.ErrWriteTimeout):
		// Outcome unknown: the store may still complete the writes.
		writeError(w, http.StatusGatewayTimeout, "write_timeout", err.Error(), correlationID)
	case errors.As(err, &fanout):
		failed := make([]string, 0, len(fanout.Failed))
		for name := range fanout.Failed {
			failed = append(failed, name)
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"code":          "partial_fanout_failure",
			"message":       err.Error(),
			"succeeded":     fanout.Succeeded,
			"failed":        failed,
			"correlationId": correlationID,
		})
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
	}
}

func (s *Server) handleStreamLayout(w http.ResponseWriter, r *http.Request, target layout.PlatformTarget) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// CloseRead discards inbound frames and cancels the context when the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	snapshots := make(chan []layout.Widget, 8)
	manager := layout.NewSubscriptionManager(s.store, layout.SubscriptionOptions{Logger: s.logger})
	unsub, err := manager.Subscribe(target, func(widgets []layout.Widget) {
		select {
		case snapshots <- widgets:
		default:
		}
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case widgets := <-snapshots:
			payload, err := json.Marshal(map[string]any{
				"target":  target,
				"widgets": widgets,
			})
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			writeErr := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if writeErr != nil {
				return
			}
		}
	}
}

func getCorrelationID(r *http.Request) string {
	if id := r.Header.Get("X-Correlation-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, correlationID string, dst any) bool {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.resetAt) {
		r.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(r.window),
		}
		return true
	}
	if entry.count >= r.max {
		return false
	}
	entry.count++
	r.entries[key] = entry
	return true
}
