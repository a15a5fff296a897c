// Package discovery finds ntbridge servers on the local network with
// mDNS/DNS-SD and lets a server advertise itself.
//
// Servers register the _networktables._tcp service. The instance name is
// the server name, truncated to 63 bytes. TXT records carry:
//
//	name     human readable server name
//	version  server software version (optional)
//	proto    wire protocol revision (optional)
//
// A Browser aggregates entries by instance name, merging the addresses seen
// on different interfaces, and drops a server once every address is gone.
package discovery
