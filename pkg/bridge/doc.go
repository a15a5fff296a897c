// Package bridge exposes a session to browser UIs over WebSocket.
//
// Every UI client connected to /ws receives each session event as a JSON
// text message:
//
//	{"event": "Connect-client", "payload": true}
//	{"event": "/SmartDashboard/x", "payload": {"timestamp": 12, "data": 1.5, "topic_name": "/SmartDashboard/x", "type": "double"}}
//
// and may send commands:
//
//	{"id": "1", "command": "start_client", "ip": "10.0.0.2:5810"}
//	{"id": "2", "command": "subscribe", "topic": "/SmartDashboard/x"}
//	{"id": "3", "command": "unsubscribe", "topic": "/SmartDashboard/x"}
//	{"id": "4", "command": "write", "topic": "/SmartDashboard/y", "value": 4}
//
// Each command is answered with {"id", "command", "error"} where error is
// null on success. Events are broadcast without blocking: a client whose
// send queue is full misses the event.
//
// The HTTP server also serves Prometheus metrics on /metrics and the
// session status on /healthz.
package bridge
