package tracing

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// HTTPMiddleware traces each control API request and echoes the trace
// headers on the response.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := withRemote(c.Request.Context(), c.GetHeader)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.path", c.Request.URL.Path)
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, string(span.TraceID))
		c.Header(HeaderSpanID, string(span.SpanID))

		c.Next()

		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if err := c.Errors.Last(); err != nil {
			span.SetError(err)
		}
		span.Finish()
		tracer.Submit(span)
	}
}

// GRPCUnaryInterceptor traces unary RPCs.
func GRPCUnaryInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		span, ctx := tracer.StartSpan(fromMetadata(ctx), info.FullMethod)
		span.SetTag("rpc.system", "grpc")

		resp, err := handler(ctx, req)
		finishRPC(tracer, span, err)
		return resp, err
	}
}

// GRPCStreamInterceptor traces streaming RPCs for their whole lifetime.
func GRPCStreamInterceptor(tracer *Tracer) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		span, ctx := tracer.StartSpan(fromMetadata(ss.Context()), info.FullMethod)
		span.SetTag("rpc.system", "grpc")
		span.SetTag("rpc.streaming", "true")

		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
		finishRPC(tracer, span, err)
		return err
	}
}

func finishRPC(tracer *Tracer, span *Span, err error) {
	if err != nil {
		span.SetError(err)
	}
	span.Finish()
	tracer.Submit(span)
}

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context { return s.ctx }

func fromMetadata(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	return withRemote(ctx, func(key string) string {
		if vals := md.Get(strings.ToLower(key)); len(vals) > 0 {
			return vals[0]
		}
		return ""
	})
}
