// Package logging provides structured logging for stripgate.
//
// It wraps log/slog so every component logs through the same handler with
// the same default fields (service, version).
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("outlet switched", "address", addr, "outlet", 2)
//
// Never log the API key. Log the request path and remote address instead.
package logging
