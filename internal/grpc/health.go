package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/GriffinCanCode/notchkit/internal/infrastructure/tracing"
)

// ServiceName is the health service name for the extension surface.
const ServiceName = "notchkit.extensions"

// HealthServer reports extension availability over gRPC.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	logger *zap.Logger

	mu       sync.Mutex
	running  bool
	enabled  bool
	serving  bool
	stopped  bool
	serveErr chan error
}

// NewHealthServer creates a stopped health server. tracer may be nil.
func NewHealthServer(tracer *tracing.Tracer, logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(64 * 1024),
	}
	if tracer != nil {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
			grpc.ChainStreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
		)
	}

	hs := &HealthServer{
		srv:    grpc.NewServer(opts...),
		health: health.NewServer(),
		logger: logger,
	}
	healthgrpc.RegisterHealthServer(hs.srv, hs.health)
	hs.publish()
	return hs
}

// SetListenerRunning records whether the extension socket accepts connections.
func (h *HealthServer) SetListenerRunning(running bool) {
	h.mu.Lock()
	h.running = running
	h.mu.Unlock()
	h.publish()
}

// SetExtensionsEnabled records the feature switch.
func (h *HealthServer) SetExtensionsEnabled(enabled bool) {
	h.mu.Lock()
	h.enabled = enabled
	h.mu.Unlock()
	h.publish()
}

// Serving reports the current status of ServiceName.
func (h *HealthServer) Serving() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.serving
}

func (h *HealthServer) publish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}

	serving := h.running && h.enabled
	status := healthgrpc.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthgrpc.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", healthgrpc.HealthCheckResponse_SERVING)
	h.health.SetServingStatus(ServiceName, status)

	if serving != h.serving {
		h.logger.Info("extension health changed", zap.String("status", status.String()))
	}
	h.serving = serving
}

// Start listens on addr and serves in the background.
func (h *HealthServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return h.Serve(ln)
}

// Serve serves on ln in the background.
func (h *HealthServer) Serve(ln net.Listener) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		ln.Close()
		return errors.New("health server stopped")
	}
	if h.serveErr != nil {
		ln.Close()
		return errors.New("health server already running")
	}

	h.serveErr = make(chan error, 1)
	errCh := h.serveErr
	go func() {
		errCh <- h.srv.Serve(ln)
	}()
	h.logger.Info("health service listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop marks everything NOT_SERVING and drains in-flight RPCs. Watch
// streams are cut when ctx expires.
func (h *HealthServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.serving = false
	errCh := h.serveErr
	h.mu.Unlock()

	h.health.Shutdown()

	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.srv.Stop()
		<-done
	}

	if errCh == nil {
		return nil
	}
	if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
