package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

type EventName string

// Inbound events.
const (
	EventChatMessage        EventName = "chat_message"
	EventConnect            EventName = "connect"
	EventDisconnect         EventName = "disconnect"
	EventStartBroadcast     EventName = "start_broadcast"
	EventStopBroadcast      EventName = "stop_broadcast"
	EventWebRTCOffer        EventName = "webrtc_offer"
	EventWebRTCAnswer       EventName = "webrtc_answer"
	EventWebRTCICECandidate EventName = "webrtc_ice_candidate"
)

// Outbound events.
const (
	EventViewerCount   EventName = "viewer_count"
	EventStreamStarted EventName = "stream_started"
	EventStreamStopped EventName = "stream_stopped"
	EventStreamInfo    EventName = "stream_info"
	EventStatus        EventName = "status"
	EventAck           EventName = "ack"
)

const (
	DefaultChatUser     = "anonymous"
	DefaultStreamerName = "Anonymous"
)

// Event is an outbound message. Data is one of the payload types below.
type Event struct {
	Name EventName `json:"event"`
	Data any       `json:"data"`
}

// Envelope is an inbound message. Ack is set when the client expects a reply.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *uint64         `json:"ack,omitempty"`
}

// AckReply is the reply to an inbound event that requested one.
type AckReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ChatMessage struct {
	User string `json:"user"`
	Msg  string `json:"msg"`
}

type StartBroadcast struct {
	UserName  string `json:"user_name"`
	StreamKey string `json:"stream_key"`
}

type WebRTCOffer struct {
	Offer        webrtc.SessionDescription `json:"offer"`
	StreamerName string                    `json:"streamer_name"`
}

type WebRTCAnswer struct {
	Answer     webrtc.SessionDescription `json:"answer"`
	StreamerID string                    `json:"streamer_id"`
}

type WebRTCICECandidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	TargetID  string                  `json:"target_id"`
}

type ViewerCount struct {
	Count int `json:"count"`
}

type Status struct {
	Msg string `json:"msg"`
}

type StreamStarted struct {
	StreamerName string `json:"streamer_name"`
	StreamKey    string `json:"stream_key"`
	Message      string `json:"message"`
}

type StreamStopped struct {
	Message string `json:"message"`
}

type RelayedOffer struct {
	Offer        webrtc.SessionDescription `json:"offer"`
	StreamerID   string                    `json:"streamer_id"`
	StreamerName string                    `json:"streamer_name"`
}

type RelayedAnswer struct {
	Answer   webrtc.SessionDescription `json:"answer"`
	ViewerID string                    `json:"viewer_id"`
}

type RelayedICECandidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	FromID    string                  `json:"from_id"`
}

// Decode unmarshals an inbound payload. Missing data decodes to the zero value.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return v, nil
}

// Normalize trims the message, fills the default user and enforces maxLen runes.
func (m ChatMessage) Normalize(maxLen int) (ChatMessage, error) {
	m.User = strings.TrimSpace(m.User)
	if m.User == "" {
		m.User = DefaultChatUser
	}
	m.Msg = strings.TrimSpace(m.Msg)
	if m.Msg == "" {
		return m, fmt.Errorf("%w: empty message", ErrInvalidPayload)
	}
	if len([]rune(m.Msg)) > maxLen {
		return m, fmt.Errorf("%w: message longer than %d characters", ErrInvalidPayload, maxLen)
	}
	return m, nil
}

func (s StartBroadcast) Normalize() StartBroadcast {
	s.UserName = strings.TrimSpace(s.UserName)
	if s.UserName == "" {
		s.UserName = DefaultStreamerName
	}
	return s
}

func (o WebRTCOffer) Validate() error {
	return validateDescription(o.Offer, webrtc.SDPTypeOffer)
}

func (a WebRTCAnswer) Validate() error {
	if a.StreamerID == "" {
		return fmt.Errorf("%w: missing streamer_id", ErrInvalidPayload)
	}
	return validateDescription(a.Answer, webrtc.SDPTypeAnswer)
}

func validateDescription(desc webrtc.SessionDescription, want webrtc.SDPType) error {
	if desc.Type != want {
		return fmt.Errorf("%w: expected %s description, got %s", ErrInvalidPayload, want, desc.Type)
	}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("%w: malformed sdp: %w", ErrInvalidPayload, err)
	}
	return nil
}
