// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output (LOG_DEV=true)
//
// Components take a named child logger so every line carries its origin:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	listener := ws.NewListener(cfg, logger.Named("listener"), ...)
//	logger.Info("listener started", zap.String("socket", path))
package logging
