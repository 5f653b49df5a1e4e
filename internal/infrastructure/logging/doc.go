// Package logging provides structured logging for the hub.
//
// It wraps log/slog with a JSON or text handler, a level filter and default
// service/version attributes. Packages that log take a small Logger
// interface, so a component logger from Component satisfies them:
//
//	log := logging.New(cfg.Logging, version)
//	store.SetLogger(log.Component("entity"))
//
// Configured from config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log the Home Assistant token or the JWT secret.
package logging
