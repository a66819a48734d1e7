/*
Package tracing provides lightweight spans for diagnosing extension traffic.

# Overview

Spans are collected on a buffered channel and written through zap by a
single collector goroutine, so recording a span never blocks the caller.
When the buffer is full the span is dropped with a warning.

The extension host uses spans for its diagnostics mode: every mutating
extension call gets a span tagged with the caller identity, descriptor
kind, id, priority and coexistence flag, and the span's completion line is
the "after" half of the diagnostics log pair.

# Usage

	tracer := tracing.New("extension-host", logger)
	defer tracer.Close()

	span, ctx := tracer.StartSpan(ctx, "presentLiveActivity")
	span.SetTag("identity", "com.example.ext")
	// ...
	span.Finish()
	tracer.Submit(span)

	// Control API and gRPC health server
	router.Use(tracing.HTTPMiddleware(tracer))
	grpc.NewServer(grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)))
*/
package tracing
