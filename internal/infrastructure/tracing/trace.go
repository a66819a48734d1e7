package tracing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/notchkit/internal/shared/id"
)

// Propagation headers. gRPC metadata uses the lower-cased form.
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// TraceID identifies one trace.
type TraceID string

// SpanID identifies one span within a trace.
type SpanID string

// Span is one timed operation.
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	Service   string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string
	Error     error
}

// SetTag attaches a string tag.
func (s *Span) SetTag(key, value string) { s.Tags[key] = value }

// SetError marks the span failed.
func (s *Span) SetError(err error) { s.Error = err }

// Finish fixes the span's duration.
func (s *Span) Finish() { s.Duration = time.Since(s.StartTime) }

type ctxKey int

const (
	traceKey ctxKey = iota
	spanKey
)

// TraceIDFrom returns the trace carried by ctx, if any.
func TraceIDFrom(ctx context.Context) TraceID {
	v, _ := ctx.Value(traceKey).(TraceID)
	return v
}

// withRemote seeds ctx with a trace received from a caller.
func withRemote(ctx context.Context, get func(string) string) context.Context {
	if v := get(HeaderTraceID); v != "" {
		ctx = context.WithValue(ctx, traceKey, TraceID(v))
	}
	if v := get(HeaderSpanID); v != "" {
		ctx = context.WithValue(ctx, spanKey, SpanID(v))
	}
	return ctx
}

// Tracer hands finished spans to a collector goroutine that logs them.
type Tracer struct {
	service string
	logger  *zap.Logger
	queue   chan *Span
	stopped chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// New creates a tracer and starts its collector.
func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger,
		queue:   make(chan *Span, 1024),
		stopped: make(chan struct{}),
	}
	go t.run()
	return t
}

// StartSpan opens a span, as a child of the span in ctx when there is one.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	trace := TraceIDFrom(ctx)
	if trace == "" {
		trace = TraceID(id.NewRequestID())
	}
	parent, _ := ctx.Value(spanKey).(SpanID)

	span := &Span{
		TraceID:   trace,
		SpanID:    SpanID(id.NewSpanID()),
		ParentID:  parent,
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		Tags:      make(map[string]string, 4),
	}
	ctx = context.WithValue(ctx, traceKey, trace)
	ctx = context.WithValue(ctx, spanKey, span.SpanID)
	return span, ctx
}

// Submit queues a finished span. It never blocks; a full queue drops it.
func (t *Tracer) Submit(span *Span) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- span:
	default:
		t.dropped.Add(1)
	}
}

// Close flushes queued spans and stops the collector. Safe to call twice.
func (t *Tracer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	<-t.stopped
	if n := t.dropped.Load(); n > 0 {
		t.logger.Warn("spans dropped on full buffer", zap.Uint64("count", n))
	}
}

func (t *Tracer) run() {
	defer close(t.stopped)
	for span := range t.queue {
		t.log(span)
	}
}

func (t *Tracer) log(span *Span) {
	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.String("service", span.Service),
		zap.Duration("duration", span.Duration),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if span.Error != nil {
		t.logger.Warn("span completed with error", append(fields, zap.Error(span.Error))...)
		return
	}
	t.logger.Info("span completed", fields...)
}
