package domain

// StreamState is the process-wide record of who is currently broadcasting.
// The zero value is the idle state.
type StreamState struct {
	Active       bool   `json:"active"`
	StreamerID   string `json:"streamer_id"`
	StreamerName string `json:"streamer_name"`
	StreamKey    string `json:"stream_key"`
}

// IsStreamer reports whether sessionID is the active streamer.
func (s StreamState) IsStreamer(sessionID string) bool {
	return s.Active && s.StreamerID == sessionID
}

// StreamURLs describes where an external encoder publishes and where viewers play back.
type StreamURLs struct {
	RTMPURL      string       `json:"rtmp_url"`
	StreamKey    string       `json:"stream_key"`
	HLSPlayback  string       `json:"hls_playback"`
	Instructions Instructions `json:"instructions"`
}

type Instructions struct {
	OBS      string `json:"obs"`
	Software string `json:"software"`
}
