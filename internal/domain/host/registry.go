package host

import (
	"sort"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/notchkit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/notchkit/internal/shared/id"
	"github.com/GriffinCanCode/notchkit/pkg/protocol"
)

// Handle is the registry's non-owning view of a live connection. The
// transport decides when a connection dies; the registry only asks.
type Handle interface {
	ID() id.ConnectionID
	Alive() bool
	Notify(protocol.Notification) error
}

// Registry maps identities to their live connections. Not safe for
// concurrent use.
type Registry struct {
	conns   map[string]map[id.ConnectionID]Handle
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger, metrics *monitoring.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		conns:   make(map[string]map[id.ConnectionID]Handle),
		logger:  logger,
		metrics: metrics,
	}
}

// Register adds a connection for identity.
func (r *Registry) Register(identity string, h Handle) {
	set, ok := r.conns[identity]
	if !ok {
		set = make(map[id.ConnectionID]Handle)
		r.conns[identity] = set
	}
	set[h.ID()] = h
}

// Deregister removes a connection and reports whether identity has no live
// connection left.
func (r *Registry) Deregister(identity string, connID id.ConnectionID) (last bool) {
	set, ok := r.conns[identity]
	if !ok {
		return true
	}
	delete(set, connID)
	r.prune(identity, set)
	return len(set) == 0
}

// Broadcast sends n to every live connection of identity and returns how
// many accepted it. Delivery failures are logged and otherwise ignored.
func (r *Registry) Broadcast(identity string, n protocol.Notification) int {
	set, ok := r.conns[identity]
	if !ok {
		return 0
	}

	delivered := 0
	for connID, h := range set {
		if !h.Alive() {
			delete(set, connID)
			continue
		}
		if err := h.Notify(n); err != nil {
			r.logger.Warn("notification not delivered",
				zap.String("identity", identity),
				zap.String("conn_id", connID.String()),
				zap.String("event", string(n.Event)),
				zap.Error(err))
			r.metrics.RecordNotification(string(n.Event), "failed")
			continue
		}
		r.metrics.RecordNotification(string(n.Event), "queued")
		delivered++
	}
	if len(set) == 0 {
		delete(r.conns, identity)
	}
	return delivered
}

// Count returns the number of live connections for identity.
func (r *Registry) Count(identity string) int {
	set, ok := r.conns[identity]
	if !ok {
		return 0
	}
	r.prune(identity, set)
	return len(set)
}

// Identities lists identities with at least one live connection, sorted.
func (r *Registry) Identities() []string {
	out := make([]string, 0, len(r.conns))
	for identity, set := range r.conns {
		r.prune(identity, set)
		if len(set) > 0 {
			out = append(out, identity)
		}
	}
	sort.Strings(out)
	return out
}

// Clear drops every connection context.
func (r *Registry) Clear() {
	r.conns = make(map[string]map[id.ConnectionID]Handle)
}

func (r *Registry) prune(identity string, set map[id.ConnectionID]Handle) {
	for connID, h := range set {
		if !h.Alive() {
			delete(set, connID)
		}
	}
	if len(set) == 0 {
		delete(r.conns, identity)
	}
}
