package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
	"github.com/ravikumar582002/API-TRACKER/internal/repository"
	"github.com/ravikumar582002/API-TRACKER/internal/service/analytics"
	"github.com/ravikumar582002/API-TRACKER/internal/service/catalog"
	"github.com/ravikumar582002/API-TRACKER/internal/service/metrics"
	"github.com/ravikumar582002/API-TRACKER/internal/service/probe"
	"github.com/ravikumar582002/API-TRACKER/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	catalog   *catalog.Service
	executor  *probe.Executor
	recorder  *metrics.Recorder
	analytics *analytics.Service
	hub       *ws.Hub
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	dbHealth  func(context.Context) error

	executeRateLimit int
	streamHeartbeat  time.Duration

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	probesTotal        *prometheus.CounterVec
	probeDuration      prometheus.Histogram
}

const (
	rateWindowDefault      = time.Minute
	rateLimitIngest        = 600
	healthCheckTimeout     = 2 * time.Second
	defaultStreamHeartbeat = 25 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, catalogSvc *catalog.Service, executor *probe.Executor, recorder *metrics.Recorder, analyticsSvc *analytics.Service, hub *ws.Hub, limiter RateLimiter, executeRateLimit int, streamHeartbeat time.Duration, dbHealth func(context.Context) error) *Router {
	if streamHeartbeat <= 0 {
		streamHeartbeat = defaultStreamHeartbeat
	}
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		catalog:   catalogSvc,
		executor:  executor,
		recorder:  recorder,
		analytics: analyticsSvc,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:          limiter,
		dbHealth:         dbHealth,
		executeRateLimit: executeRateLimit,
		streamHeartbeat:  streamHeartbeat,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/v1/products", r.audit(r.handleProducts))
	r.mux.HandleFunc("/api/v1/products/", r.audit(r.handleProductSubroutes))
	r.mux.HandleFunc("/api/v1/endpoints/", r.audit(r.handleEndpointSubroutes))
	r.mux.HandleFunc("/api/v1/telemetry/records", r.audit(r.withRateLimit("telemetry_ingest", rateLimitIngest, rateWindowDefault, r.handleIngestRecord)))
	r.mux.HandleFunc("/api/v1/analytics/buckets", r.audit(r.handleBuckets))
	r.mux.HandleFunc("/api/v1/analytics/distribution", r.audit(r.handleDistribution))
	r.mux.HandleFunc("/api/v1/analytics/top", r.audit(r.handleTopN))
	r.mux.HandleFunc("/api/v1/stream", r.audit(r.handleStreamWS))
	r.mux.HandleFunc("/api/v1/stream/sse", r.handleStreamSSE)
}

func (r *Router) handleProducts(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		product, err := r.catalog.CreateProduct(req.Context(), payload.Name, payload.Description)
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, product)
	case http.MethodGet:
		products, err := r.catalog.ListProducts(req.Context())
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, products)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProductSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/v1/products/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	productID := parts[0]
	switch {
	case len(parts) == 1:
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		product, err := r.catalog.GetProduct(req.Context(), productID)
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case len(parts) == 2 && parts[1] == "endpoints":
		r.handleProductEndpoints(w, req, productID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProductEndpoints(w http.ResponseWriter, req *http.Request, productID string) {
	switch req.Method {
	case http.MethodPost:
		var payload catalog.CreateEndpointInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		payload.ProductID = productID
		endpoint, err := r.catalog.CreateEndpoint(req.Context(), payload)
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, endpoint)
	case http.MethodGet:
		endpoints, err := r.catalog.ListEndpoints(req.Context(), productID)
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, endpoints)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleEndpointSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/v1/endpoints/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	endpointID := parts[0]
	switch {
	case len(parts) == 1:
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		endpoint, err := r.catalog.GetEndpoint(req.Context(), endpointID)
		if err != nil {
			r.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, endpoint)
	case len(parts) == 2 && parts[1] == "execute":
		r.withRateLimit("probe_execute", r.executeRateLimit, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleExecute(w, req, endpointID)
		})(w, req)
	case len(parts) == 2 && parts[1] == "status":
		r.handleEndpointStatus(w, req, endpointID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleExecute(w http.ResponseWriter, req *http.Request, endpointID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var overrides probe.Overrides
	if req.Body != nil && req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&overrides); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	record, result, err := r.executor.Execute(req.Context(), endpointID, overrides)
	if err != nil {
		r.respondError(w, err)
		return
	}
	r.recordProbeMetrics(record.Response.StatusCode, record.Timing.DurationMS)

	// The caller-visible payload reflects the already-updated endpoint metrics.
	endpoint, err := r.catalog.GetEndpoint(req.Context(), endpointID)
	if err != nil {
		r.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record":  record,
		"result":  result,
		"metrics": endpoint.Metrics,
	})
}

func (r *Router) handleEndpointStatus(w http.ResponseWriter, req *http.Request, endpointID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.catalog.UpdateEndpointStatus(req.Context(), endpointID, payload.Status); err != nil {
		r.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": payload.Status})
}

// handleIngestRecord accepts externally produced telemetry records, e.g.
// from automated monitors. Deduplication is the caller's responsibility.
func (r *Router) handleIngestRecord(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var record domain.TelemetryRecord
	if err := json.NewDecoder(req.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.recorder.Record(req.Context(), &record); err != nil {
		r.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": record.ID})
}

func (r *Router) handleBuckets(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	filter, err := parseRecordFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	granularity, err := domain.ParseGranularity(req.URL.Query().Get("granularity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	buckets, err := r.analytics.QueryBuckets(req.Context(), filter, granularity)
	if err != nil {
		r.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (r *Router) handleDistribution(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	filter, err := parseRecordFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dist, err := r.analytics.QueryDistribution(req.Context(), filter)
	if err != nil {
		r.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

func (r *Router) handleTopN(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	filter, err := parseRecordFilter(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := req.URL.Query()
	rankBy := domain.RankByVolume
	if raw := query.Get("rank_by"); raw != "" {
		rankBy, err = domain.ParseRankBy(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	entity := domain.RankEntityEndpoint
	if raw := query.Get("entity"); raw != "" {
		entity, err = domain.ParseRankEntity(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	n := 0
	if raw := query.Get("n"); raw != "" {
		n, err = strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
	}
	ranked, err := r.analytics.QueryTopN(req.Context(), filter, rankBy, entity, n)
	if err != nil {
		r.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (r *Router) handleStreamWS(w http.ResponseWriter, req *http.Request) {
	productID := req.URL.Query().Get("product_id")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "product_id query parameter required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(productID, client)
	go func() {
		defer func() {
			r.hub.Unregister(productID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleStreamSSE(w http.ResponseWriter, req *http.Request) {
	productID := req.URL.Query().Get("product_id")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "product_id query parameter required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(productID, client)
	defer func() {
		r.hub.Unregister(productID, client)
		client.Close()
	}()

	ticker := time.NewTicker(r.streamHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// parseRecordFilter reads the shared time-range and filter query parameters.
// A missing end defaults to now; start is required.
func parseRecordFilter(req *http.Request) (repository.RecordFilter, error) {
	query := req.URL.Query()
	rawStart := query.Get("start")
	if rawStart == "" {
		return repository.RecordFilter{}, fmt.Errorf("start query parameter required")
	}
	start, err := time.Parse(time.RFC3339, rawStart)
	if err != nil {
		return repository.RecordFilter{}, fmt.Errorf("invalid start: %v", err)
	}
	end := time.Now().UTC()
	if rawEnd := query.Get("end"); rawEnd != "" {
		end, err = time.Parse(time.RFC3339, rawEnd)
		if err != nil {
			return repository.RecordFilter{}, fmt.Errorf("invalid end: %v", err)
		}
	}
	if env := query.Get("environment"); env != "" && !domain.IsValidEnvironment(env) {
		return repository.RecordFilter{}, fmt.Errorf("unknown environment %q", env)
	}
	return repository.RecordFilter{
		Start:       start,
		End:         end,
		ProductID:   query.Get("product_id"),
		EndpointID:  query.Get("endpoint_id"),
		Environment: query.Get("environment"),
	}, nil
}

func (r *Router) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, req.URL.Path, status, duration)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not support hijacking")
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func clientIP(req *http.Request) string {
	if fwd := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
