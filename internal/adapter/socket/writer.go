package socket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 32
)

type clientWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	onSent      func()
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock, onSent func()) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
		onSent:      onSent,
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				// Closing unblocks the reader, which tears the session down.
				_ = cw.connection.Close()
				return
			}
			if cw.onSent != nil {
				cw.onSent()
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = cw.connection.Close()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// enqueue hands msg to the writer without blocking. It reports false when the
// buffer is full or the writer has stopped.
func (cw *clientWriter) enqueue(msg []byte) bool {
	select {
	case <-cw.doneChannel:
		return false
	default:
	}

	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

// stopGraceful sends a close frame with reason before closing.
func (cw *clientWriter) stopGraceful(code int, reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		// The run goroutine must exit before we write the close frame.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(code, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
