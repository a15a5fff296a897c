// Package log provides protocol capture for the ntbridge topic protocol.
//
// This is separate from operational logging (slog). Protocol capture
// produces a machine-readable trace of every frame, decoded message, state
// change and error seen on a connection, for debugging sessions with a
// robot after the fact.
//
// # Basic Usage
//
//	// Console, at debug level
//	capture := log.NewSlogAdapter(slog.Default())
//
//	// Binary file, read back with `ntbridge capture <file>`
//	capture, _ := log.NewFileLogger("/var/log/ntbridge/session.ntcap")
//
//	// Both
//	capture := log.NewMultiLogger(console, file)
//
// # Event Types
//
// Events are captured at three layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded frames (MessageEvent, ControlMsgEvent)
//   - Session: connection and router state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Capture files are a concatenation of CBOR-encoded Events with integer
// keys.
package log
