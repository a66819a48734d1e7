package server

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	controlapi "github.com/GriffinCanCode/notchkit/internal/api/http"
	"github.com/GriffinCanCode/notchkit/internal/api/middleware"
	"github.com/GriffinCanCode/notchkit/internal/api/ws"
	"github.com/GriffinCanCode/notchkit/internal/domain/host"
	"github.com/GriffinCanCode/notchkit/internal/domain/identity"
	"github.com/GriffinCanCode/notchkit/internal/grpc"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/config"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/storage"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/tracing"
)

// Server wires the host core to its listeners.
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	store    *storage.LedgerStore
	core     *host.Core
	listener *ws.Listener
	control  *controlapi.Server
	token    string
	health   *grpc.HealthServer
}

// Option customizes a Server before it starts.
type Option func(*options)

type options struct {
	logger   *logging.Logger
	resolver identity.Resolver
}

// WithLogger replaces the logger built from configuration.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithResolver replaces the manifest-backed peer resolver.
func WithResolver(r identity.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing notchkit host",
		zap.String("socket", cfg.Socket.Path),
		zap.String("control_addr", cfg.Control.Addr),
		zap.Bool("extensions_enabled", cfg.Extensions.Enabled),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("notchkit", logger.Named("trace").Logger)

	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}

	coreOpts := host.Options{
		Version: cfg.Extensions.HostVersion,
		Settings: host.Settings{
			ExtensionsEnabled: cfg.Extensions.Enabled,
			Diagnostics:       cfg.Extensions.Diagnostics,
		},
		WidgetSlots: cfg.Presentation.WidgetSlots,
		Logger:      logger.Named("host").Logger,
		Tracer:      tracer,
		Metrics:     metrics,
	}
	if cfg.Ledger.Path != "" {
		store, err := storage.OpenLedgerStore(cfg.Ledger.Path)
		if err != nil {
			tracer.Close()
			return nil, err
		}
		s.store = store
		coreOpts.Store = store
		logger.Info("Ledger persistence enabled", zap.String("path", cfg.Ledger.Path))
	}

	resolver := o.resolver
	if resolver == nil {
		catalog, err := identity.LoadCatalog(cfg.Identity.ManifestDir)
		if err != nil {
			s.closeResources()
			return nil, fmt.Errorf("failed to load extension manifests: %w", err)
		}
		logger.Info("Extension manifests loaded",
			zap.String("dir", cfg.Identity.ManifestDir),
			zap.Int("count", catalog.Len()))
		resolver = identity.NewPeerResolver(catalog)
	}

	s.core = host.New(coreOpts)
	s.listener = ws.NewListener(s.core, resolver, ws.OptionsFromConfig(cfg), logger.Named("listener").Logger, metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	token, err := middleware.NewToken()
	if err != nil {
		s.core.Close()
		s.closeResources()
		return nil, err
	}
	s.token = token
	handlers := controlapi.NewHandlers(s.core, s.listener, logger.Named("control").Logger)
	router := controlapi.NewRouter(handlers, controlapi.RouterOptions{
		Control: cfg.Control,
		Token:   token,
		Metrics: metrics,
		Tracer:  tracer,
	})
	s.control = controlapi.NewServer(router, cfg.Control.MaxConnections, logger.Named("control").Logger)

	if cfg.Health.Enabled {
		s.health = grpc.NewHealthServer(tracer, logger.Named("health").Logger)
		s.health.SetExtensionsEnabled(cfg.Extensions.Enabled)
		s.core.OnSettingsChange(func(st host.Settings) {
			s.health.SetExtensionsEnabled(st.ExtensionsEnabled)
		})
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// Core returns the host core.
func (s *Server) Core() *host.Core { return s.core }

// Listener returns the extension listener.
func (s *Server) Listener() *ws.Listener { return s.listener }

// ControlToken returns the bearer credential of the control API.
func (s *Server) ControlToken() string { return s.token }

// Start brings up the extension socket, the control API and the health
// service. On failure everything already started is stopped again.
func (s *Server) Start(ctx context.Context) error {
	if err := s.listener.Start(); err != nil {
		return fmt.Errorf("failed to start extension listener: %w", err)
	}
	s.logger.Info("Extension socket listening", zap.String("path", s.listener.Path()))

	if err := middleware.WriteTokenFile(s.config.Control.TokenPath, s.token); err != nil {
		s.listener.Stop(ctx)
		return err
	}
	if err := s.control.Start(s.config.Control.Addr); err != nil {
		s.removeToken()
		s.listener.Stop(ctx)
		return fmt.Errorf("failed to start control API: %w", err)
	}
	s.logger.Info("Control API listening",
		zap.Stringer("addr", s.control.Addr()),
		zap.String("token_path", s.config.Control.TokenPath))

	if s.health != nil {
		if err := s.health.Start(s.config.Health.Addr); err != nil {
			s.control.Shutdown(ctx)
			s.removeToken()
			s.listener.Stop(ctx)
			return fmt.Errorf("failed to start health service: %w", err)
		}
		s.health.SetListenerRunning(true)
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.health != nil {
		s.health.SetListenerRunning(false)
	}
	if err := s.listener.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("extension listener: %w", err))
	}
	if err := s.control.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("control API: %w", err))
	}
	s.removeToken()
	if s.health != nil {
		if err := s.health.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("health service: %w", err))
		}
	}
	s.core.Close()
	s.closeResources()

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("Shutdown finished with errors", zap.Error(err))
	}
	s.logger.Sync()
	return err
}

func (s *Server) removeToken() {
	if err := os.Remove(s.config.Control.TokenPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove control token", zap.Error(err))
	}
}

func (s *Server) closeResources() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Failed to close ledger store", zap.Error(err))
		}
		s.store = nil
	}
	s.tracer.Close()
}
