// Package logging provides structured logging with per-module log levels.
//
// Every record goes to stdout (text or JSON), to the systemd journal when
// journald is reachable, and to an in-memory ring buffer that backs
// /api/logs and the log event stream.
//
// Initialize once at startup, then ask for a module logger:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"capture":    "debug",
//			"processing": "warn",
//		},
//	})
//
//	logger := logging.GetLogger(logging.ModuleCapture)
//	logger.Info("Streaming started", "devices", 2)
//
// Loggers obtained before Initialize are rebuilt by it. Levels can be
// changed at runtime with SetLevel.
//
// Journal entries carry SYSLOG_IDENTIFIER=depthrig and one upper-case
// field per attribute:
//
//	journalctl -t depthrig MODULE=capture
//	journalctl -t depthrig SERIAL=000000000001 -p warning
//
// TOML form:
//
//	[logging]
//	level = "info"
//	format = "text"
//	capture = "debug"
package logging
