// Package app is the application layer of the live chat relay.
//
// Relay receives events from any transport, applies them to the shared stream
// registry and fans the resulting events out to connected sessions.
package app
