// Package logging builds the gateway's structured logger on log/slog.
//
// Every entry carries service and version attributes. The handler is JSON
// or text, and the level and output stream come from the logging section
// of the config:
//
//	logging:
//	  level: info     # debug, info, warn, error
//	  format: json    # json, text
//	  output: stdout  # stdout, stderr
//
// Components take a logger through a narrow interface and get a component
// attribute from With:
//
//	log := logging.New(cfg.Logging, version)
//	mqttLog := log.With("component", "mqtt")
//
// Discard returns a logger for tests. Secrets such as tokens and broker
// passwords are never logged.
package logging
