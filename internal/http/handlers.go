package http

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	ierr "snowtrack/internal/errors"
	"snowtrack/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady reports whether sessions can be served
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.sessions == nil || s.tracker == nil {
		checks["sessions"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["sessions"] = map[string]any{
			"active": s.sessions.Count(),
			"status": "ok",
		}
	}

	checks["cache"] = map[string]any{
		"mom_entries": s.momCache.Size(),
		"status":      "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	cacheStats := s.momCache.Stats()

	sessions := 0
	if s.sessions != nil {
		sessions = s.sessions.Count()
	}

	w.WriteHeader(http.StatusOK)

	// Prometheus-like text format
	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_server_errors_total", "Total number of 5xx responses", traceMetrics.ServerErrors)
	gauge("http_request_duration_avg_ms", "Average request duration in milliseconds", traceMetrics.AverageResponseTime().Milliseconds())
	counter("records_inserted_total", "Total records inserted", atomic.LoadInt64(&s.appMetrics.recordsInserted))
	counter("records_deleted_total", "Total records deleted", atomic.LoadInt64(&s.appMetrics.recordsDeleted))
	counter("records_archived_total", "Total records archived", atomic.LoadInt64(&s.appMetrics.recordsArchived))
	counter("mom_computations_total", "Total MoM views computed", atomic.LoadInt64(&s.appMetrics.momComputed))
	counter("cache_hits_total", "Total MoM cache hits", cacheStats.Hits)
	counter("cache_misses_total", "Total MoM cache misses", cacheStats.Misses)
	gauge("cache_entries", "Current MoM cache entries", int64(cacheStats.Size))
	gauge("active_sessions", "Currently tracked sessions", int64(sessions))
	counter("rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	gauge("uptime_seconds", "Application uptime in seconds", int64(time.Since(s.appMetrics.uptime).Seconds()))
}

// writeError logs the failure and answers with the error's status and hint.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, component, operation string) {
	ctx := r.Context()
	status := ierr.HTTPStatusFromErr(err)
	if status >= http.StatusInternalServerError {
		s.audit.LogError(ctx, "Request failed", err, component, operation,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()))
	} else {
		log.FromContext(ctx).WithComponent(component).WarnContext(ctx, "Request rejected",
			log.FieldOperation, operation,
			log.FieldStatusCode, status,
			log.FieldError, err.Error())
	}
	ErrorFromErr(err).Write(w)
}
