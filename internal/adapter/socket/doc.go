// Package socket serves the native JSON-envelope websocket transport.
//
// Each connection gets a writer goroutine with a bounded send buffer, ping/pong
// keepalive and write deadlines. Inbound frames are {"event","data","ack"}
// envelopes; replies to acked events are {"event":"ack","ack":n,"data":{...}}.
package socket
