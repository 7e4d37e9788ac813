// Package mediarelay covers the server's side of RTMP ingest: issuing stream
// keys and URLs, launching the external RTMP/HLS relay process on local
// deployments, and probing whether that relay accepts RTMP connections.
//
// No media passes through this process.
package mediarelay
