package domain

// Session is one real-time connection. Implementations are provided by the
// transports; Send must not block on a slow peer.
type Session interface {
	ID() string
	Send(event Event) error
}
