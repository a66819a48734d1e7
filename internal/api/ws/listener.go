package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/notchkit/internal/domain/host"
	"github.com/GriffinCanCode/notchkit/internal/domain/identity"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/config"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/notchkit/internal/shared/id"
)

// ConnectPath is the websocket route on the extension socket.
const ConnectPath = "/v1/connect"

// instanceHeader mirrors client.InstanceHeader.
const instanceHeader = "X-Notchkit-Instance"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type connKey struct{}

// Options configures the listener.
type Options struct {
	Path           string
	MaxConnections int
	SendQueue      int
	ReadLimit      int64
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	RateLimit      config.RateLimitConfig
}

// OptionsFromConfig maps host configuration onto listener options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Path:           cfg.Socket.Path,
		MaxConnections: cfg.Socket.MaxConnections,
		SendQueue:      cfg.Socket.SendQueue,
		ReadLimit:      cfg.Socket.ReadLimit,
		WriteTimeout:   cfg.Socket.WriteTimeout,
		PingInterval:   cfg.Socket.PingInterval,
		RateLimit:      cfg.RateLimit,
	}
}

// Listener accepts extension connections on a unix socket.
type Listener struct {
	core     *host.Core
	resolver identity.Resolver
	opts     Options
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu      sync.Mutex
	running bool
	ln      net.Listener
	srv     *http.Server
	conns   map[id.ConnectionID]*conn
	wg      sync.WaitGroup
}

// NewListener creates a stopped listener.
func NewListener(core *host.Core, resolver identity.Resolver, opts Options, logger *zap.Logger, metrics *monitoring.Metrics) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	return &Listener{
		core:     core,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		conns:    make(map[id.ConnectionID]*conn),
	}
}

// Start opens the socket and begins accepting. Calling it again while
// running is a no-op.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.opts.Path), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := removeStaleSocket(l.opts.Path); err != nil {
		return err
	}

	ln, err := net.Listen("unix", l.opts.Path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.opts.Path, err)
	}
	if err := os.Chmod(l.opts.Path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("restrict socket permissions: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET(ConnectPath, l.handleConnect)

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			return context.WithValue(ctx, connKey{}, c)
		},
	}

	l.ln = ln
	l.srv = srv
	l.running = true

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("extension listener stopped", zap.Error(err))
		}
	}()

	l.logger.Info("extension listener started", zap.String("socket", l.opts.Path))
	return nil
}

// Stop closes the socket, invalidates every connection and drops all
// connection contexts. Replies still in flight are lost.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	srv := l.srv
	conns := make([]*conn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	err := srv.Shutdown(ctx)
	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "host stopping")
	}
	if dropErr := l.core.DropConnections(ctx); dropErr != nil && !errors.Is(dropErr, host.ErrStopped) {
		err = errors.Join(err, dropErr)
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}

	l.logger.Info("extension listener stopped", zap.Int("connections_closed", len(conns)))
	return err
}

// Running reports whether the listener is accepting.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Path returns the socket path.
func (l *Listener) Path() string { return l.opts.Path }

// Connections returns the number of live connections.
func (l *Listener) Connections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

func (l *Listener) handleConnect(c *gin.Context) {
	raw, _ := c.Request.Context().Value(connKey{}).(net.Conn)
	ident, err := l.resolver.Resolve(raw)
	if err != nil {
		l.metrics.RecordRejectedConnection("identity")
		l.logger.Warn("rejected extension connection", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "identity could not be verified"})
		return
	}

	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		l.metrics.RecordRejectedConnection("stopping")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "host is stopping"})
		return
	}
	if l.opts.MaxConnections > 0 && len(l.conns) >= l.opts.MaxConnections {
		l.mu.Unlock()
		l.metrics.RecordRejectedConnection("capacity")
		l.logger.Warn("extension connection limit reached",
			zap.String("identity", ident.BundleID),
			zap.Int("limit", l.opts.MaxConnections))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "too many connections"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.mu.Unlock()
		l.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cn := newConn(ws, l.opts, l.logger.With(
		zap.String("identity", ident.BundleID),
		zap.String("instance", c.GetHeader(instanceHeader)),
	))
	l.conns[cn.id] = cn
	l.wg.Add(1)
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.conns, cn.id)
		l.mu.Unlock()
		l.wg.Done()
	}()

	inst, err := l.core.Attach(c.Request.Context(), ident, cn)
	if err != nil {
		l.logger.Warn("failed to attach extension", zap.String("identity", ident.BundleID), zap.Error(err))
		cn.close(websocket.CloseTryAgainLater, "host unavailable")
		return
	}
	defer l.core.Detach(inst)

	go cn.writePump()
	cn.readPump(inst)
}

// removeStaleSocket deletes a leftover socket file, refusing if another
// process is still listening on it.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect socket path: %w", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	if c, err := net.DialTimeout("unix", path, 200*time.Millisecond); err == nil {
		c.Close()
		return fmt.Errorf("%s is in use by another process", path)
	}
	return os.Remove(path)
}
