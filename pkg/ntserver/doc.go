// Package ntserver is a simulated ntbridge topic server.
//
// The server keeps a topic store keyed by name. Clients publish topics with
// Publish frames and write values with Value frames; every value is retained
// as the topic's last value and relayed to the other clients whose
// subscriptions select the topic. Before a client receives a topic's values
// it receives an Announce that binds the server topic ID to the name and type.
//
// A new subscription is answered with announcements for every matching
// topic and, unless TopicsOnly is set, the retained values. Topics outlive
// their publishers.
//
// The server can also publish topics itself (Set), which cmd/ntbridge-sim
// uses to generate demo traffic.
package ntserver
