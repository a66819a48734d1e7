// Package grpc serves the standard gRPC health protocol for the host.
//
// Supervisors query ServiceName to learn whether extensions can currently
// reach the host: it reports SERVING only while the extension socket is
// accepting connections and the extensions feature is switched on. The
// empty service name reports the process itself.
//
// Example:
//
//	hs := grpc.NewHealthServer(tracer, logger)
//	core.OnSettingsChange(func(s host.Settings) { hs.SetExtensionsEnabled(s.ExtensionsEnabled) })
//	if err := hs.Start("127.0.0.1:8766"); err != nil { ... }
//	hs.SetListenerRunning(true)
package grpc
