// Package ntclient implements protocol.Client over the ntbridge wire
// protocol.
//
// A Client owns one transport connection. A single read goroutine decodes
// server frames: Announce and Unannounce maintain the topic table that maps
// server topic IDs to names and types, and Value frames are delivered to
// every local subscription whose patterns select the topic.
//
// Each subscription buffers messages in its own queue so a slow consumer
// never stalls the read goroutine. When a queue reaches MaxQueuedMessages
// the oldest message is discarded.
//
// Publishers are identified by client-assigned UIDs. A value must match the
// type the topic was published with.
package ntclient
