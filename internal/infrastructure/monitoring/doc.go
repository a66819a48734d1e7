/*
Package monitoring provides Prometheus metrics for the extension host.

# Overview

Metrics are registered on a private registry owned by each Metrics value so
several hosts (or tests) can live in one process without duplicate
registration panics.

# Tracked

- Extension calls by method and outcome, with latency
- Live and rejected extension connections
- Active descriptors per presentation kind
- Outbound notifications by event and delivery outcome
- Authorization status transitions
- Control API requests (via Gin middleware)

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.RecordCall("presentLiveActivity", "ok", time.Since(start))

All recording methods are safe to call on a nil *Metrics.
*/
package monitoring
