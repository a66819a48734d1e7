package host

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/notchkit/internal/domain/identity"
	"github.com/GriffinCanCode/notchkit/internal/domain/ledger"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/notchkit/internal/shared/id"
	"github.com/GriffinCanCode/notchkit/pkg/descriptor"
	"github.com/GriffinCanCode/notchkit/pkg/protocol"
)

// Instance serves one connection. Every request is authorized against the
// identity resolved when the connection was accepted, never against what
// the client claims.
type Instance struct {
	core   *Core
	ident  identity.Identity
	connID id.ConnectionID
}

// Identity returns the verified identity of the connection.
func (i *Instance) Identity() identity.Identity { return i.ident }

// ConnID returns the connection id.
func (i *Instance) ConnID() id.ConnectionID { return i.connID }

// Serve queues req on the coordinator. deliver is called there with the
// reply and must not block. An error means the request was never queued.
func (i *Instance) Serve(req protocol.Request, deliver func(protocol.Reply)) error {
	return i.core.coord.Submit(func() {
		deliver(i.handle(req))
		i.core.flushDeferred()
	})
}

// callInfo collects what the diagnostics lines report. For present and
// update it also carries the decoded descriptor so the payload is parsed
// once per call.
type callInfo struct {
	kind     descriptor.Kind
	id       string
	priority descriptor.Priority
	coexists *bool

	decoded  bool
	parsed   descriptor.Descriptor
	parseErr error
}

func (c *callInfo) decode(v *descriptor.Validator, raw []byte) {
	if c.decoded {
		return
	}
	c.decoded = true
	c.parsed, c.parseErr = v.Parse(c.kind, raw)
	if c.parseErr != nil {
		return
	}
	coexists := c.parsed.AllowsCoexistence()
	c.id = c.parsed.Identifier()
	c.priority = c.parsed.Priority()
	c.coexists = &coexists
}

func (c callInfo) fields() []zap.Field {
	fields := make([]zap.Field, 0, 4)
	if c.kind != "" {
		fields = append(fields, zap.String("kind", string(c.kind)))
	}
	if c.id != "" {
		fields = append(fields, zap.String("id", c.id))
	}
	if c.priority != "" {
		fields = append(fields, zap.String("priority", string(c.priority)))
	}
	if c.coexists != nil {
		fields = append(fields, zap.Bool("coexistence", *c.coexists))
	}
	return fields
}

// handle runs on the coordinator.
func (i *Instance) handle(req protocol.Request) protocol.Reply {
	op, kind, ok := protocol.Lookup(req.Method)
	if !ok {
		i.core.metrics.RecordCall("unknown", string(protocol.CodeUnknownMethod), 0)
		return protocol.Failure(req.Seq, protocol.Errorf(protocol.CodeUnknownMethod, "unknown method %q", req.Method))
	}

	timer := monitoring.NewTimer(i.core.metrics, string(req.Method))
	info := callInfo{kind: kind, id: req.Params.ID}
	diagnostics := i.core.settings.Diagnostics && op.Mutating()

	base := []zap.Field{
		zap.String("identity", i.ident.BundleID),
		zap.String("conn_id", i.connID.String()),
		zap.String("method", string(req.Method)),
		zap.Uint64("seq", req.Seq),
	}
	if diagnostics {
		if op == protocol.OpPresent || op == protocol.OpUpdate {
			info.decode(i.core.validator, req.Params.Descriptor)
		}
		i.core.logger.Info("extension call", append(base, info.fields()...)...)
	}

	reply := i.dispatch(op, kind, req, &info)

	outcome := "ok"
	if reply.Error != nil {
		outcome = string(reply.Error.Code)
	}
	elapsed := timer.Stop(outcome)

	if diagnostics {
		fields := append(base, info.fields()...)
		fields = append(fields, zap.String("outcome", outcome), zap.Duration("duration", elapsed))
		if reply.Error != nil {
			fields = append(fields, zap.String("error", reply.Error.Message), zap.String("field", reply.Error.Field))
		}
		i.core.logger.Info("extension call completed", fields...)
		i.trace(req, info, reply)
	}
	return reply
}

func (i *Instance) trace(req protocol.Request, info callInfo, reply protocol.Reply) {
	if i.core.tracer == nil {
		return
	}
	span, _ := i.core.tracer.StartSpan(context.Background(), "extension."+string(req.Method))
	span.SetTag("identity", i.ident.BundleID)
	span.SetTag("conn_id", i.connID.String())
	if info.id != "" {
		span.SetTag("descriptor_id", info.id)
	}
	if info.priority != "" {
		span.SetTag("priority", string(info.priority))
	}
	if info.coexists != nil {
		span.SetTag("coexistence", strconv.FormatBool(*info.coexists))
	}
	if reply.Error != nil {
		span.SetError(reply.Error)
	}
	span.Finish()
	i.core.tracer.Submit(span)
}

func (i *Instance) dispatch(op protocol.Op, kind descriptor.Kind, req protocol.Request, info *callInfo) protocol.Reply {
	seq := req.Seq
	switch op {
	case protocol.OpGetVersion:
		return protocol.Version(seq, i.core.version)

	case protocol.OpCheckAuthorization:
		return protocol.Granted(seq, i.checkAuthorization(req.Params.Identity))

	case protocol.OpRequestAuthorization:
		if err := i.requestAuthorization(req.Params.Identity); err != nil {
			return protocol.Failure(seq, err)
		}
		return protocol.Granted(seq, true)

	case protocol.OpPresent, protocol.OpUpdate:
		if err := i.present(kind, req.Params, info); err != nil {
			return protocol.Failure(seq, err)
		}
		return protocol.Success(seq)

	case protocol.OpDismiss:
		if err := i.dismiss(kind, req.Params); err != nil {
			return protocol.Failure(seq, err)
		}
		return protocol.Success(seq)
	}
	return protocol.Failure(seq, protocol.ErrUnknownMethod)
}

func (i *Instance) checkAuthorization(claimed string) bool {
	if claimed != i.ident.BundleID || !i.core.settings.ExtensionsEnabled {
		return false
	}
	return i.core.ledger.IsAuthorized(i.ident.BundleID)
}

func (i *Instance) requestAuthorization(claimed string) error {
	if claimed != i.ident.BundleID {
		return protocol.ErrIdentityMismatch
	}
	if !i.core.settings.ExtensionsEnabled {
		return protocol.ErrFeatureDisabled
	}

	entry := i.core.ledger.EnsureEntry(i.ident.BundleID, i.ident.DisplayName)
	if entry.Status == ledger.StatusUnauthorized {
		return protocol.ErrUnauthorized
	}
	if _, changed := i.core.ledger.Authorize(i.ident.BundleID, i.ident.DisplayName); changed {
		i.core.metrics.RecordAuthorizationChange(string(ledger.StatusAuthorized))
		owner := i.ident.BundleID
		i.core.later(func() {
			i.core.registry.Broadcast(owner, protocol.AuthorizationChanged(true))
		})
	}
	return nil
}

// gate applies the checks shared by presentation calls. An empty claimed
// identity is allowed for present and update, whose wire form carries none.
func (i *Instance) gate(claimed string, required bool) error {
	if (required || claimed != "") && claimed != i.ident.BundleID {
		return protocol.ErrIdentityMismatch
	}
	if !i.core.settings.ExtensionsEnabled {
		return protocol.ErrFeatureDisabled
	}
	if !i.core.ledger.IsAuthorized(i.ident.BundleID) {
		return protocol.ErrUnauthorized
	}
	return nil
}

func (i *Instance) present(kind descriptor.Kind, p protocol.Params, info *callInfo) error {
	if err := i.gate(p.Identity, false); err != nil {
		return err
	}

	info.decode(i.core.validator, p.Descriptor)
	if info.parseErr != nil {
		return info.parseErr
	}

	r := i.core.regions[kind]
	if err := r.Accept(i.ident.BundleID, info.parsed); err != nil {
		return protocol.Errorf(protocol.CodeMalformedDescriptor, "%v", err)
	}
	i.core.metrics.SetDescriptorsActive(string(kind), r.Len())
	return nil
}

func (i *Instance) dismiss(kind descriptor.Kind, p protocol.Params) error {
	if err := i.gate(p.Identity, true); err != nil {
		return err
	}
	// The owner hears about its own dismiss after the reply.
	owner := i.ident.BundleID
	r := i.core.regions[kind]
	if r.Dismiss(owner, p.ID) {
		i.core.metrics.SetDescriptorsActive(string(kind), r.Len())
		n := protocol.Dismissed(protocol.DismissEvent(kind), p.ID)
		i.core.later(func() { i.core.registry.Broadcast(owner, n) })
	}
	return nil
}
