// Package logging provides structured logging for Flora Core.
//
// It wraps log/slog so the server, the MQTT bridge and the dashboard all emit
// the same shape of entry: JSON in production, text for development, with
// service and version attached.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("ingest accepted", "device_id", id)
//
// Never log MQTT credentials.
package logging
