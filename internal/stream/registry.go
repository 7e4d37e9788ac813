package stream

import (
	"sync"

	"github.com/pscheid92/livechat/internal/domain"
)

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]struct{}
	state    domain.StreamState
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]struct{})}
}

// Connect adds a session and returns the new viewer count.
func (r *Registry) Connect(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sessionID] = struct{}{}
	return len(r.sessions)
}

// Disconnect removes a session. If it was the active streamer the stream is
// reset and the ended state is returned.
func (r *Registry) Disconnect(sessionID string) (int, *domain.StreamState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)

	var ended *domain.StreamState
	if r.state.IsStreamer(sessionID) {
		prev := r.state
		ended = &prev
		r.state = domain.StreamState{}
	}
	return len(r.sessions), ended
}

// Start makes sessionID the streamer. Fails with ErrStreamBusy while any
// stream is active, including one owned by the same session.
func (r *Registry) Start(sessionID, name, key string) (domain.StreamState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Active {
		return r.state, domain.ErrStreamBusy
	}
	if _, ok := r.sessions[sessionID]; !ok {
		return r.state, domain.ErrSessionNotFound
	}

	r.state = domain.StreamState{
		Active:       true,
		StreamerID:   sessionID,
		StreamerName: name,
		StreamKey:    key,
	}
	return r.state, nil
}

// Stop ends the stream owned by sessionID and returns the state it had.
func (r *Registry) Stop(sessionID string) (domain.StreamState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.IsStreamer(sessionID) {
		return domain.StreamState{}, domain.ErrNotStreamer
	}

	prev := r.state
	r.state = domain.StreamState{}
	return prev, nil
}

func (r *Registry) Snapshot() domain.StreamState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Registry) ViewerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
