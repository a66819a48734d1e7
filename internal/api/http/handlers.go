package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/notchkit/internal/domain/host"
	"github.com/GriffinCanCode/notchkit/pkg/descriptor"
)

// ListenerStatus reports on the extension socket.
type ListenerStatus interface {
	Running() bool
	Connections() int
}

// Handlers contains all control API handlers.
type Handlers struct {
	core     *host.Core
	listener ListenerStatus
	logger   *zap.Logger
	timeout  time.Duration
}

// NewHandlers creates a handler set. listener may be nil.
func NewHandlers(core *host.Core, listener ListenerStatus, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		core:     core,
		listener: listener,
		logger:   logger,
		timeout:  5 * time.Second,
	}
}

func (h *Handlers) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// Health reports host liveness.
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	s, err := h.core.Settings(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	listener := gin.H{"running": false, "connections": 0}
	if h.listener != nil {
		listener = gin.H{"running": h.listener.Running(), "connections": h.listener.Connections()}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"version":           h.core.Version(),
		"extensionsEnabled": s.ExtensionsEnabled,
		"diagnostics":       s.Diagnostics,
		"listener":          listener,
	})
}

// ListExtensions lists every extension the ledger knows about.
func (h *Handlers) ListExtensions(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	exts, err := h.core.Extensions(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"extensions": exts})
}

// AuthorizeExtension grants an extension.
func (h *Handlers) AuthorizeExtension(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	entry, err := h.core.Authorize(ctx, c.Param("identity"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "extension": entry})
}

// RevokeExtension withdraws an extension's grant and dismisses its content.
func (h *Handlers) RevokeExtension(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	entry, err := h.core.Revoke(ctx, c.Param("identity"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "extension": entry})
}

// ResetExtension forgets an extension entirely.
func (h *Handlers) ResetExtension(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	identity := c.Param("identity")
	if err := h.core.Reset(ctx, identity); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "identity": identity})
}

// GetSettings returns the runtime switches.
func (h *Handlers) GetSettings(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	s, err := h.core.Settings(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// SettingsRequest is a partial update of the runtime switches.
type SettingsRequest struct {
	ExtensionsEnabled *bool `json:"extensionsEnabled"`
	Diagnostics       *bool `json:"diagnostics"`
}

// UpdateSettings applies a partial settings update.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if req.ExtensionsEnabled == nil && req.Diagnostics == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "no settings given"})
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	s, err := h.core.UpdateSettings(ctx, func(s *host.Settings) {
		if req.ExtensionsEnabled != nil {
			s.ExtensionsEnabled = *req.ExtensionsEnabled
		}
		if req.Diagnostics != nil {
			s.Diagnostics = *req.Diagnostics
		}
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": s})
}

// GetPresentation returns the render state of one region.
func (h *Handlers) GetPresentation(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	v, err := h.core.View(ctx, descriptor.Kind(c.Param("kind")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// NativeRequest reports whether host content occupies a region.
type NativeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetNative records the host's own activity in a region.
func (h *Handlers) SetNative(c *gin.Context) {
	var req NativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	kind := descriptor.Kind(c.Param("kind"))
	if err := h.core.SetNativeActive(ctx, kind, *req.Active); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "kind": kind, "nativeActive": *req.Active})
}

// DismissPresentation removes one item on the host's behalf.
func (h *Handlers) DismissPresentation(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	kind := descriptor.Kind(c.Param("kind"))
	removed, err := h.core.Dismiss(ctx, kind, c.Param("identity"), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no such presentation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("control request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, host.ErrNotFound), errors.Is(err, host.ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, host.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
