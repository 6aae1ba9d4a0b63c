package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"finanzas/internal/app"
	applog "finanzas/internal/log"
	"finanzas/internal/middleware/ratelimit"
	"finanzas/internal/middleware/security"
	"finanzas/internal/middleware/trace"
)

// Server is the JSON intent/read surface over an app.App.
type Server struct {
	http.Server
	app    *app.App
	ready  func(context.Context) error
	logger *applog.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	heartbeat time.Duration

	// baseCtx parents every request context; Shutdown cancels it so that
	// event streams end instead of holding the server open.
	baseCtx      context.Context
	cancelBase   context.CancelFunc
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime         time.Time
	writesAccepted int64
	openStreams    int64
}

type Options struct {
	// Ready reports whether the record backend is reachable. Nil means always.
	Ready     func(context.Context) error
	Logger    *applog.Logger
	RateLimit ratelimit.Config
	// Heartbeat is the interval of keep-alive comments on event streams.
	Heartbeat time.Duration
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, a *app.App, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.Discard()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		app:              a,
		ready:            opts.Ready,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},
		heartbeat:        opts.Heartbeat,
		baseCtx:          baseCtx,
		cancelBase:       cancel,
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/session/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/session/signout", s.handleSignOut)
	mux.HandleFunc("GET /api/ledger", s.handleLedger)
	mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	mux.HandleFunc("POST /api/calendar/month", s.handleChangeMonth)
	mux.HandleFunc("POST /api/view", s.handleSwitchView)
	mux.HandleFunc("POST /api/records", s.handleAddRecord)
	mux.HandleFunc("DELETE /api/records/{id}", s.handleDeleteRecord)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, ratelimit.WritesOnly,
		func(w http.ResponseWriter, r *http.Request) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
		})

	var h http.Handler = mux
	h = limit(h)
	h = s.securityDetector.Middleware(logger)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.RequestIDMiddleware(trace.RequestID)(h)
	h = applog.Middleware(logger)(h)
	h = s.traceMiddleware.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	return s
}

// Shutdown ends open event streams, stops the rate limiter and shuts the
// server down.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cancelBase()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
