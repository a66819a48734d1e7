package host

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/notchkit/internal/domain/identity"
	"github.com/GriffinCanCode/notchkit/internal/domain/ledger"
	"github.com/GriffinCanCode/notchkit/internal/domain/presentation"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/notchkit/pkg/descriptor"
	"github.com/GriffinCanCode/notchkit/pkg/protocol"
)

var (
	ErrUnknownKind = errors.New("unknown presentation kind")
	ErrNotFound    = errors.New("not found")
)

// Settings are the runtime switches of the extension surface.
type Settings struct {
	ExtensionsEnabled bool `json:"extensionsEnabled"`
	Diagnostics       bool `json:"diagnostics"`
}

// Options configures a Core.
type Options struct {
	Version     string
	Settings    Settings
	WidgetSlots int
	QueueSize   int
	Store       ledger.Store
	Logger      *zap.Logger
	Tracer      *tracing.Tracer
	Metrics     *monitoring.Metrics
}

// Core owns every piece of mutable extension state. Exported methods are
// safe for concurrent use; they hop onto the coordinator.
type Core struct {
	coord     *Coordinator
	ledger    *ledger.Ledger
	regions   map[descriptor.Kind]presentation.Region
	registry  *Registry
	validator *descriptor.Validator
	settings  Settings
	version   string

	logger  *zap.Logger
	tracer  *tracing.Tracer
	metrics *monitoring.Metrics

	observers []func(Settings)
	deferred  []func()
}

// New creates a core and starts its coordinator.
func New(opts Options) *Core {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.WidgetSlots <= 0 {
		opts.WidgetSlots = 3
	}

	c := &Core{
		coord:     NewCoordinator(opts.QueueSize, logger.Named("coordinator")),
		ledger:    ledger.New(opts.Store, logger.Named("ledger")),
		regions:   presentation.NewRegions(opts.WidgetSlots),
		registry:  NewRegistry(logger.Named("registry"), opts.Metrics),
		validator: descriptor.NewValidator(),
		settings:  opts.Settings,
		version:   opts.Version,
		logger:    logger,
		tracer:    opts.Tracer,
		metrics:   opts.Metrics,
	}
	for kind, r := range c.regions {
		c.metrics.SetDescriptorsActive(string(kind), r.Len())
	}
	return c
}

// Close stops the coordinator after draining queued work.
func (c *Core) Close() {
	c.coord.Stop()
}

// Version returns the host version string.
func (c *Core) Version() string { return c.version }

// OnSettingsChange registers fn to run, on the coordinator, after every
// settings change. Register before serving traffic.
func (c *Core) OnSettingsChange(fn func(Settings)) {
	c.observers = append(c.observers, fn)
}

// Attach registers a new connection and returns its service instance.
// When it returns an error the connection is not left registered, even if
// ctx ended after the registration was queued.
func (c *Core) Attach(ctx context.Context, ident identity.Identity, h Handle) (*Instance, error) {
	inst := &Instance{core: c, ident: ident, connID: h.ID()}
	// 0 queued, 1 registered, 2 caller gave up before registration
	var state atomic.Int32
	err := c.coord.Do(ctx, func() {
		if !state.CompareAndSwap(0, 1) {
			return
		}
		c.registry.Register(ident.BundleID, h)
		if c.settings.ExtensionsEnabled {
			c.ledger.EnsureEntry(ident.BundleID, ident.DisplayName)
		}
		c.metrics.ConnectionOpened()
		c.logger.Info("extension connected",
			zap.String("identity", ident.BundleID),
			zap.String("conn_id", h.ID().String()),
			zap.Int32("pid", ident.PID))
	})
	if err != nil {
		if !state.CompareAndSwap(0, 2) {
			c.Detach(inst)
		}
		return nil, err
	}
	return inst, nil
}

// Detach deregisters a connection. When it was the identity's last live
// connection, everything the identity presented is removed.
func (c *Core) Detach(inst *Instance) {
	err := c.coord.Submit(func() {
		c.metrics.ConnectionClosed()
		last := c.registry.Deregister(inst.ident.BundleID, inst.connID)
		c.logger.Info("extension disconnected",
			zap.String("identity", inst.ident.BundleID),
			zap.String("conn_id", inst.connID.String()),
			zap.Bool("last", last))
		if last {
			c.removeOwner(inst.ident.BundleID, false)
		}
	})
	if err != nil {
		c.logger.Debug("detach after stop", zap.String("conn_id", inst.connID.String()))
	}
}

// DropConnections forgets every connection context.
func (c *Core) DropConnections(ctx context.Context) error {
	return c.coord.Do(ctx, func() {
		c.registry.Clear()
	})
}

// Settings returns the current runtime switches.
func (c *Core) Settings(ctx context.Context) (Settings, error) {
	var s Settings
	err := c.coord.Do(ctx, func() { s = c.settings })
	return s, err
}

// SetSettings replaces the runtime switches. Turning the feature off keeps
// ledger entries and active sets; connected extensions are told their
// effective authorization changed.
func (c *Core) SetSettings(ctx context.Context, s Settings) error {
	return c.coord.Do(ctx, func() { c.applySettings(s) })
}

// UpdateSettings applies patch to the current switches in a single step
// and returns the result. Concurrent partial updates never overwrite each
// other's fields.
func (c *Core) UpdateSettings(ctx context.Context, patch func(*Settings)) (Settings, error) {
	var out Settings
	err := c.coord.Do(ctx, func() {
		next := c.settings
		patch(&next)
		c.applySettings(next)
		out = next
	})
	return out, err
}

// applySettings runs on the coordinator.
func (c *Core) applySettings(s Settings) {
	prev := c.settings
	c.settings = s
	c.logger.Info("extension settings changed",
		zap.Bool("enabled", s.ExtensionsEnabled),
		zap.Bool("diagnostics", s.Diagnostics))

	if prev.ExtensionsEnabled != s.ExtensionsEnabled {
		for _, identity := range c.registry.Identities() {
			if s.ExtensionsEnabled {
				c.ledger.EnsureEntry(identity, "")
			}
			if c.ledger.IsAuthorized(identity) {
				c.registry.Broadcast(identity, protocol.AuthorizationChanged(s.ExtensionsEnabled))
			}
		}
	}
	for _, fn := range c.observers {
		fn(s)
	}
}

// ExtensionStatus is one ledger entry plus its live connection count.
type ExtensionStatus struct {
	ledger.Entry
	Connections int `json:"connections"`
}

// Extensions lists every ledger entry.
func (c *Core) Extensions(ctx context.Context) ([]ExtensionStatus, error) {
	var out []ExtensionStatus
	err := c.coord.Do(ctx, func() {
		entries := c.ledger.List()
		out = make([]ExtensionStatus, 0, len(entries))
		for _, e := range entries {
			out = append(out, ExtensionStatus{Entry: e, Connections: c.registry.Count(e.Identity)})
		}
	})
	return out, err
}

// Authorize grants identity, creating its entry if needed.
func (c *Core) Authorize(ctx context.Context, identity string) (ledger.Entry, error) {
	var entry ledger.Entry
	err := c.coord.Do(ctx, func() {
		var changed bool
		entry, changed = c.ledger.Authorize(identity, "")
		if changed {
			c.metrics.RecordAuthorizationChange(string(ledger.StatusAuthorized))
			if c.settings.ExtensionsEnabled {
				c.registry.Broadcast(identity, protocol.AuthorizationChanged(true))
			}
		}
	})
	return entry, err
}

// Revoke marks identity unauthorized, dismisses everything it presented
// and tells its connections.
func (c *Core) Revoke(ctx context.Context, identity string) (ledger.Entry, error) {
	var entry ledger.Entry
	err := c.coord.Do(ctx, func() {
		var changed bool
		entry, changed = c.ledger.Revoke(identity)
		c.removeOwner(identity, true)
		if changed {
			c.metrics.RecordAuthorizationChange(string(ledger.StatusUnauthorized))
			c.registry.Broadcast(identity, protocol.AuthorizationChanged(false))
		}
		c.logger.Info("extension revoked", zap.String("identity", identity))
	})
	return entry, err
}

// Reset forgets identity. Its next contact starts again as pending.
func (c *Core) Reset(ctx context.Context, identity string) error {
	var found bool
	err := c.coord.Do(ctx, func() {
		wasAuthorized := c.ledger.IsAuthorized(identity)
		found = c.ledger.Reset(identity)
		if !found {
			return
		}
		c.removeOwner(identity, true)
		if wasAuthorized {
			c.registry.Broadcast(identity, protocol.AuthorizationChanged(false))
		}
		if c.settings.ExtensionsEnabled && c.registry.Count(identity) > 0 {
			c.ledger.EnsureEntry(identity, "")
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("extension %s: %w", identity, ErrNotFound)
	}
	return nil
}

// Dismiss removes an item on the host's behalf and notifies its owner.
func (c *Core) Dismiss(ctx context.Context, kind descriptor.Kind, owner, id string) (bool, error) {
	if _, ok := c.regions[kind]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	var removed bool
	err := c.coord.Do(ctx, func() {
		removed = c.dismiss(kind, owner, id)
	})
	return removed, err
}

// SetNativeActive records whether the host's own content occupies a region.
func (c *Core) SetNativeActive(ctx context.Context, kind descriptor.Kind, active bool) error {
	r, ok := c.regions[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return c.coord.Do(ctx, func() { r.SetNativeActive(active) })
}

// View returns the render state of one region.
func (c *Core) View(ctx context.Context, kind descriptor.Kind) (presentation.View, error) {
	r, ok := c.regions[kind]
	if !ok {
		return presentation.View{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	var v presentation.View
	err := c.coord.Do(ctx, func() {
		v = r.View()
		v.Enabled = c.settings.ExtensionsEnabled
	})
	return v, err
}

// dismiss runs on the coordinator.
func (c *Core) dismiss(kind descriptor.Kind, owner, id string) bool {
	if !c.regions[kind].Dismiss(owner, id) {
		return false
	}
	c.metrics.SetDescriptorsActive(string(kind), c.regions[kind].Len())
	c.registry.Broadcast(owner, protocol.Dismissed(protocol.DismissEvent(kind), id))
	return true
}

// removeOwner runs on the coordinator.
func (c *Core) removeOwner(owner string, notify bool) {
	for _, kind := range descriptor.Kinds() {
		r := c.regions[kind]
		ids := r.RemoveOwner(owner)
		if len(ids) == 0 {
			continue
		}
		c.metrics.SetDescriptorsActive(string(kind), r.Len())
		c.logger.Info("removed extension content",
			zap.String("identity", owner),
			zap.String("kind", string(kind)),
			zap.Strings("ids", ids))
		if !notify {
			continue
		}
		ev := protocol.DismissEvent(kind)
		for _, id := range ids {
			c.registry.Broadcast(owner, protocol.Dismissed(ev, id))
		}
	}
}

// later queues fn to run after the current request's reply is delivered.
func (c *Core) later(fn func()) {
	c.deferred = append(c.deferred, fn)
}

func (c *Core) flushDeferred() {
	pending := c.deferred
	c.deferred = nil
	for _, fn := range pending {
		fn()
	}
}
