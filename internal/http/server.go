// Package http exposes the tracker over a JSON API. Every caller is bound to
// its own session through a signed cookie.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"snowtrack/internal/cache"
	"snowtrack/internal/log"
	"snowtrack/internal/middleware/ratelimit"
	"snowtrack/internal/middleware/security"
	"snowtrack/internal/middleware/trace"
	"snowtrack/internal/services"
	"snowtrack/internal/session"
)

const (
	cookieName     = "snowtrack-session"
	cookieIDKey    = "sid"
	momCacheTTL    = 5 * time.Minute
	cacheSweepTick = time.Minute
)

// Options carries the server settings taken from configuration.
type Options struct {
	SessionSecret      string
	RateLimitPerMinute int
	MoMCacheSize       int
	Logger             *log.Logger
}

// Server wires routes, middleware and the per-session tracker.
type Server struct {
	http.Server

	tracker  *services.TrackerService
	sessions *session.Manager
	cookies  *sessions.CookieStore
	validate *validator.Validate

	momCache     *cache.LRUCache[[]momRowResponse]
	cacheManager *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityHeaders  *security.HeadersMiddleware
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	logger     *log.Logger
	audit      *log.StructuredLogger
	appMetrics *appMetrics

	shutdownOnce sync.Once
}

// appMetrics holds application-level counters
type appMetrics struct {
	uptime          time.Time
	recordsInserted int64
	recordsDeleted  int64
	recordsArchived int64
	momComputed     int64
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, tracker *services.TrackerService, manager *session.Manager, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}
	rlConfig.Methods = ratelimit.MutatingMethods()

	cacheSize := opts.MoMCacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}

	s := &Server{
		tracker:          tracker,
		sessions:         manager,
		cookies:          newCookieStore(opts.SessionSecret, logger),
		validate:         newValidator(),
		momCache:         cache.NewLRUCache[[]momRowResponse](cacheSize, momCacheTTL),
		cacheManager:     cache.NewManager(logger.Logger),
		rateLimiter:      ratelimit.NewLimiter(rlConfig),
		securityHeaders:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		securityDetector: security.NewDetector(),
		logger:           logger,
		audit:            log.NewStructuredLogger(logger),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP)

	s.cacheManager.Register(s.momCache)
	s.cacheManager.StartCleanup(cacheSweepTick)

	// Cached MoM views of an ended session can never be read again
	manager.OnEnd(func(id string) {
		if n := s.momCache.DeletePrefix(cache.Key(id, "")); n > 0 {
			s.logger.Debug("Dropped cached MoM views", log.FieldSessionID, id, log.FieldCount, n)
		}
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.traceMiddleware.Middleware)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(trace.RequestIDFromRequest))
	r.Use(s.securityHeaders.Middleware)
	r.Use(s.securityDetector.Middleware)
	r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Resource not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewJSONResponse().Status(http.StatusMethodNotAllowed).
			JSON(errorBody{Error: errorDetail{Message: "Method not allowed"}}).
			Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Use(security.NoStoreMiddleware)
		r.Use(log.ComponentMiddleware(log.ComponentTracker))
		r.Use(s.withSession)

		r.Get("/records", s.handleListRecords)
		r.Post("/records", s.handleInsertRecord)
		r.Delete("/records", s.handleDeleteRecords)
		r.Delete("/records/{id}", s.handleDeleteRecordByID)

		r.Get("/customers", s.handleListCustomers)
		r.Post("/customers/{customer}/complete", s.handleCompleteCustomer)
		r.Get("/archive", s.handleListArchive)

		r.Get("/mom", s.handleMoM)
		r.Get("/mom/series", s.handleMoMSeries)

		r.Get("/options", s.handleOptions)
		r.Delete("/session", s.handleEndSession)
	})

	return r
}

func newCookieStore(secret string, logger *log.Logger) *sessions.CookieStore {
	key := []byte(secret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
		logger.Warn("SESSION_SECRET not set, using a random key; sessions end on restart")
	}
	store := sessions.NewCookieStore(key)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	// Browser-session cookie; idle expiry is enforced server side
	store.Options.MaxAge = 0
	return store
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Header("Retry-After", "60").
		JSON(errorBody{Error: errorDetail{Message: "Rate limit exceeded. Please try again later."}}).
		Write(w)
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) countInserted() {
	atomic.AddInt64(&s.appMetrics.recordsInserted, 1)
}

func (s *Server) countDeleted(n int) {
	atomic.AddInt64(&s.appMetrics.recordsDeleted, int64(n))
}

func (s *Server) countArchived(n int) {
	atomic.AddInt64(&s.appMetrics.recordsArchived, int64(n))
}
