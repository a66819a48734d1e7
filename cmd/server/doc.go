// Package main is the entry point for the notchkit extension host.
//
// The host lets third-party extensions put live activities, lock screen
// widgets and notch experiences on screen. Extensions connect over a
// per-user unix socket; the host identifies each one from its peer
// credentials, asks the user before granting it, and arbitrates what is
// shown in each region.
//
// Listeners:
//   - Extension socket ($XDG_RUNTIME_DIR/notchkit/extensions.sock)
//   - Control API on loopback TCP for the settings pane and renderer,
//     authenticated with the bearer token written to
//     $XDG_RUNTIME_DIR/notchkit/control.token
//   - gRPC health service for supervisors
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server -socket /run/user/1000/notchkit/extensions.sock
//
//	# Development mode (colored logs, debug level)
//	./server -dev
package main
