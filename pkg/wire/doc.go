// Package wire defines the CBOR wire format of the ntbridge topic protocol.
//
// Every frame is a CBOR map with integer keys:
//
//	{
//	  1: kind,   // uint8, see Kind
//	  2: body    // kind-specific map, absent for bodiless frames
//	}
//
// Frames are length-prefixed by the transport layer.
//
// # Client to server
//
//   - Subscribe / Unsubscribe: topic interest by pattern, identified by a
//     client-chosen subscription UID
//   - Publish / Unpublish: announce intent to write a topic, identified by a
//     client-chosen publisher UID
//   - Value: a new value, addressed by publisher UID
//
// # Server to client
//
//   - Announce / Unannounce: a topic matching a subscription appeared or
//     went away, with the server-assigned topic ID
//   - Value: a topic update, addressed by topic ID
//
// Ping, Pong and Close are control frames usable in both directions.
//
// Encoding is deterministic (canonical key order, definite lengths).
package wire
