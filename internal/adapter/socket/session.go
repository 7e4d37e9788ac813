package socket

import (
	"encoding/json"
	"fmt"

	"github.com/pscheid92/livechat/internal/domain"
)

// session adapts one websocket connection to domain.Session.
type session struct {
	id     string
	writer *clientWriter
	onDrop func()
}

type ackFrame struct {
	Event domain.EventName `json:"event"`
	Ack   uint64           `json:"ack"`
	Data  domain.AckReply  `json:"data"`
}

func (s *session) ID() string { return s.id }

// Send queues ev for delivery. A full buffer marks the client as too slow; the
// connection is closed and the read loop performs the disconnect.
func (s *session) Send(ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Name, err)
	}
	return s.enqueue(data)
}

func (s *session) sendAck(id uint64, reply domain.AckReply) error {
	data, err := json.Marshal(ackFrame{Event: domain.EventAck, Ack: id, Data: reply})
	if err != nil {
		return fmt.Errorf("marshal ack: %w", err)
	}
	return s.enqueue(data)
}

func (s *session) enqueue(data []byte) error {
	if s.writer.enqueue(data) {
		return nil
	}
	if s.onDrop != nil {
		s.onDrop()
	}
	// Close without waiting on the writer: Send may run under the relay lock.
	_ = s.writer.connection.Close()
	return domain.ErrSessionClosed
}
