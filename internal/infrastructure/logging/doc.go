// Package logging provides structured logging for Boardflow Core.
//
// It wraps log/slog with JSON output for production, text output for
// development, level filtering, and default service/version fields.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("rule matched", "rule_id", rule.ID, "event_id", ev.EventID)
//
// Card names and descriptions are user content; log ids, not text.
package logging
