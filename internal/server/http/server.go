// Package httpserver exposes the configuration and metrics REST surface.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/petrosa/realtime-strategies/errs"
	"github.com/petrosa/realtime-strategies/internal/configstore"
	"github.com/petrosa/realtime-strategies/internal/depth"
	"github.com/petrosa/realtime-strategies/internal/observability"
	"github.com/petrosa/realtime-strategies/internal/strategy"
)

const (
	maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

	strategiesPath       = "/strategies"
	strategyDetailPrefix = strategiesPath + "/"

	metricsDepthPrefix    = "/metrics/depth/"
	metricsPressurePrefix = "/metrics/pressure/"
	metricsSummaryPath    = "/metrics/summary"
	metricsAllPath        = "/metrics/all"

	healthzPath = "/healthz"
	readyzPath  = "/readyz"
	livePath    = "/live"
)

type handlerFunc func(http.ResponseWriter, *http.Request)

// Health reports runtime liveness details for the health endpoints.
type Health struct {
	Ready     func() bool
	Breakers  func() map[string]string
	StartedAt time.Time
}

type httpServer struct {
	configs  *configstore.Manager
	analyzer *depth.Analyzer
	stats    *observability.EngineStats
	health   Health
}

type configPayload struct {
	Parameters   map[string]any `json:"parameters"`
	ChangedBy    string         `json:"changed_by"`
	Reason       string         `json:"reason,omitempty"`
	ValidateOnly bool           `json:"validate_only,omitempty"`
}

// NewHandler builds the REST handler over the config manager and the depth
// analyzer.
func NewHandler(configs *configstore.Manager, analyzer *depth.Analyzer, stats *observability.EngineStats, health Health) http.Handler {
	server := &httpServer{configs: configs, analyzer: analyzer, stats: stats, health: health}
	mux := http.NewServeMux()

	mux.Handle(strategiesPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listStrategies,
	}))
	mux.Handle(strategyDetailPrefix, http.HandlerFunc(server.handleStrategy))

	mux.Handle(metricsDepthPrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getDepthMetrics,
	}))
	mux.Handle(metricsPressurePrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getPressureHistory,
	}))
	mux.Handle(metricsSummaryPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getMetricsSummary,
	}))
	mux.Handle(metricsAllPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getAllMetrics,
	}))

	mux.Handle(healthzPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getHealthz,
	}))
	mux.Handle(readyzPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getReadyz,
	}))
	mux.Handle(livePath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getLive,
	}))

	return withCORS(mux)
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

func (s *httpServer) listStrategies(w http.ResponseWriter, r *http.Request) {
	infos := s.configs.ListStrategies(r.Context())
	writeData(w, http.StatusOK, map[string]any{"strategies": infos})
}

// handleStrategy routes /strategies/{id}/{action}[/{symbol}].
func (s *httpServer) handleStrategy(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, strategyDetailPrefix), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "strategy id required")
		return
	}

	id, action, hasAction := strings.Cut(rest, "/")
	id = strings.TrimSpace(id)
	if id == "" {
		writeError(w, http.StatusNotFound, "strategy id required")
		return
	}

	if id == "cache" && action == "refresh" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.configs.Refresh()
		writeData(w, http.StatusOK, map[string]string{"status": "refreshed"})
		return
	}

	if !knownStrategy(id) {
		writeError(w, http.StatusNotFound, "unknown strategy")
		return
	}
	if !hasAction {
		writeError(w, http.StatusNotFound, "action required")
		return
	}

	action, symbol, _ := strings.Cut(action, "/")
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	switch action {
	case "schema":
		s.getSchema(w, r, id)
	case "defaults":
		s.getDefaults(w, r, id)
	case "audit":
		s.getAudit(w, r, id, symbol)
	case "config":
		s.handleConfig(w, r, id, symbol)
	default:
		writeError(w, http.StatusNotFound, "unsupported action")
	}
}

func (s *httpServer) getSchema(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	schema, _ := strategy.Schema(id)
	writeData(w, http.StatusOK, map[string]any{"strategy_id": id, "schema": schema})
}

func (s *httpServer) getDefaults(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	defaults, _ := strategy.Defaults(id)
	writeData(w, http.StatusOK, map[string]any{"strategy_id": id, "defaults": defaults})
}

func (s *httpServer) getAudit(w http.ResponseWriter, r *http.Request, id, symbol string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := s.configs.Audit(r.Context(), id, symbol, limit)
	if err != nil {
		writeErrs(w, err)
		return
	}
	if records == nil {
		records = []configstore.AuditRecord{}
	}
	writeData(w, http.StatusOK, map[string]any{"strategy_id": id, "audit": records})
}

func (s *httpServer) handleConfig(w http.ResponseWriter, r *http.Request, id, symbol string) {
	switch r.Method {
	case http.MethodGet:
		resolved := s.configs.Get(r.Context(), id, symbol)
		writeData(w, http.StatusOK, resolved)
	case http.MethodPost:
		limitRequestBody(w, r)
		payload, err := decodeConfigPayload(r)
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		if len(payload.Parameters) == 0 {
			writeError(w, http.StatusBadRequest, "parameters required")
			return
		}
		stored, err := s.configs.Set(r.Context(), id, symbol, payload.Parameters, payload.ChangedBy, payload.Reason, payload.ValidateOnly)
		if err != nil {
			writeErrs(w, err)
			return
		}
		if payload.ValidateOnly {
			writeData(w, http.StatusOK, map[string]string{"status": "valid"})
			return
		}
		writeData(w, http.StatusOK, stored)
	case http.MethodDelete:
		changedBy := strings.TrimSpace(r.URL.Query().Get("changed_by"))
		reason := strings.TrimSpace(r.URL.Query().Get("reason"))
		if err := s.configs.Delete(r.Context(), id, symbol, changedBy, reason); err != nil {
			writeErrs(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w, http.MethodDelete, http.MethodGet, http.MethodPost)
	}
}

func (s *httpServer) getDepthMetrics(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.Trim(strings.TrimPrefix(r.URL.Path, metricsDepthPrefix), "/"))
	if symbol == "" {
		writeError(w, http.StatusNotFound, "symbol required")
		return
	}
	metrics, ok := s.analyzer.Current(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "no depth metrics for symbol")
		return
	}
	writeData(w, http.StatusOK, metrics)
}

func (s *httpServer) getPressureHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.Trim(strings.TrimPrefix(r.URL.Path, metricsPressurePrefix), "/"))
	if symbol == "" {
		writeError(w, http.StatusNotFound, "symbol required")
		return
	}
	window, err := parseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	points := s.analyzer.PressureHistory(symbol, window)
	if points == nil {
		points = []depth.PressurePoint{}
	}
	writeData(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"timeframe": window.String(),
		"points":    points,
	})
}

func (s *httpServer) getMetricsSummary(w http.ResponseWriter, _ *http.Request) {
	summary := s.analyzer.Summary()
	if summary == nil {
		summary = []depth.TrendReport{}
	}
	writeData(w, http.StatusOK, map[string]any{"trends": summary})
}

func (s *httpServer) getAllMetrics(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"depth":  s.analyzer.All(),
		"engine": s.stats.Snapshot(),
	})
}

func (s *httpServer) getHealthz(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{"status": "ok"}
	if !s.health.StartedAt.IsZero() {
		payload["uptime_seconds"] = int64(time.Since(s.health.StartedAt).Seconds())
	}
	if s.health.Breakers != nil {
		payload["breakers"] = s.health.Breakers()
	}
	writeData(w, http.StatusOK, payload)
}

func (s *httpServer) getReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.health.Ready != nil && !s.health.Ready() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *httpServer) getLive(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "alive"})
}

func knownStrategy(id string) bool {
	for _, known := range strategy.KnownIDs() {
		if known == id {
			return true
		}
	}
	return false
}

func parseTimeframe(raw string) (time.Duration, error) {
	switch strings.TrimSpace(raw) {
	case "", "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	default:
		return 0, fmt.Errorf("timeframe must be one of 1m, 5m, 15m")
	}
}

func decodeConfigPayload(r *http.Request) (configPayload, error) {
	defer func() {
		_ = r.Body.Close()
	}()
	var payload configPayload
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	payload.ChangedBy = strings.TrimSpace(payload.ChangedBy)
	payload.Reason = strings.TrimSpace(payload.Reason)
	return payload, nil
}

func limitRequestBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if isRequestTooLarge(err) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func isRequestTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// writeErrs maps an error envelope onto an HTTP status.
func writeErrs(w http.ResponseWriter, err error) {
	var envelope *errs.E
	if !errors.As(err, &envelope) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusInternalServerError
	if envelope.HTTP > 0 {
		status = envelope.HTTP
	} else {
		switch envelope.Code {
		case errs.CodeInvalid, errs.CodeValidation:
			status = http.StatusBadRequest
		case errs.CodeNotFound:
			status = http.StatusNotFound
		case errs.CodeConflict:
			status = http.StatusConflict
		case errs.CodeUnavailable, errs.CodeNetwork:
			status = http.StatusServiceUnavailable
		case errs.CodeTimeout:
			status = http.StatusGatewayTimeout
		}
	}
	message := envelope.Message
	if message == "" {
		message = string(envelope.Code)
	}
	if len(envelope.Fields) > 0 {
		writeJSON(w, status, map[string]any{"success": false, "error": message, "fields": envelope.Fields})
		return
	}
	writeError(w, status, message)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

// Server wraps the stdlib server with start and graceful stop.
type Server struct {
	srv *http.Server
}

// NewServer binds the handler to the given address.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
	}
}

// Start serves until the listener closes. It returns nil on graceful shutdown.
func (s *Server) Start() error {
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
