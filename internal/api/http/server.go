package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/GriffinCanCode/notchkit/internal/api/middleware"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/config"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/tracing"
)

// RouterOptions selects the middleware stack. Token is the bearer
// credential every route except /health and /metrics requires; an empty
// token locks those routes entirely.
type RouterOptions struct {
	Control config.ControlConfig
	Token   string
	Metrics *monitoring.Metrics
	Tracer  *tracing.Tracer
}

// NewRouter builds the control API engine.
func NewRouter(h *Handlers, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Tracer != nil {
		router.Use(tracing.HTTPMiddleware(opts.Tracer))
	}
	router.Use(monitoring.Middleware(opts.Metrics))
	if len(opts.Control.AllowOrigins) > 0 {
		router.Use(middleware.CORS(middleware.CORSConfigFrom(opts.Control)))
	}
	if opts.Control.RequestsPerSecond > 0 {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: opts.Control.RequestsPerSecond,
			Burst:             opts.Control.Burst,
		}))
	}

	router.GET("/health", h.Health)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	authed := router.Group("/", middleware.BearerAuth(opts.Token))

	authed.GET("/extensions", h.ListExtensions)
	authed.POST("/extensions/:identity/authorize", h.AuthorizeExtension)
	authed.POST("/extensions/:identity/revoke", h.RevokeExtension)
	authed.DELETE("/extensions/:identity", h.ResetExtension)

	authed.GET("/settings", h.GetSettings)
	authed.PUT("/settings", h.UpdateSettings)

	authed.GET("/presentations/:kind", h.GetPresentation)
	authed.PUT("/presentations/:kind/native", h.SetNative)
	authed.DELETE("/presentations/:kind/:identity/:id", h.DismissPresentation)

	return router
}

// Server runs the control API on loopback TCP.
type Server struct {
	router  http.Handler
	maxConn int
	logger  *zap.Logger

	mu   sync.Mutex
	srv  *http.Server
	addr net.Addr
	done chan struct{}
}

// NewServer wraps router. maxConn caps concurrent TCP connections.
func NewServer(router http.Handler, maxConn int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{router: router, maxConn: maxConn, logger: logger}
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln in the background.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		ln.Close()
		return errors.New("control server already running")
	}

	if s.maxConn > 0 {
		ln = netutil.LimitListener(ln, s.maxConn)
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.addr = ln.Addr()
	s.done = make(chan struct{})

	srv, done := s.srv, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("control API listening", zap.String("addr", s.addr.String()))
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}
