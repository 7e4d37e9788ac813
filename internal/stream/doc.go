// Package stream tracks connected sessions and the single active broadcaster.
//
// Registry is safe for concurrent use. It enforces that at most one session
// streams at a time and that a streamer's disconnect ends the stream.
package stream
