package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livechat/internal/adapter/metrics"
	"github.com/pscheid92/livechat/internal/domain"
	"github.com/pscheid92/livechat/internal/platform/logging"
	"github.com/pscheid92/livechat/internal/stream"
	"golang.org/x/time/rate"
)

type RelayOptions struct {
	ChatRatePerSecond float64
	ChatBurst         int
	ChatMaxLength     int
}

// Relay maps inbound session events onto fan-out to the connected sessions.
// Event handling is serialized by mu so that each handler, including its
// fan-out, runs to completion before the next one starts.
type Relay struct {
	mu       sync.Mutex
	registry *stream.Registry
	sessions map[string]domain.Session
	limiters map[string]*rate.Limiter
	opts     RelayOptions
	clock    clockwork.Clock
	metrics  *metrics.RelayMetrics
}

// NewRelay creates a relay over registry. m may be nil.
func NewRelay(registry *stream.Registry, opts RelayOptions, clock clockwork.Clock, m *metrics.RelayMetrics) *Relay {
	return &Relay{
		registry: registry,
		sessions: make(map[string]domain.Session),
		limiters: make(map[string]*rate.Limiter),
		opts:     opts,
		clock:    clock,
		metrics:  m,
	}
}

// Connect registers a session, announces the new viewer count to everyone and
// greets the new session with a status line and the current stream info.
func (r *Relay) Connect(ctx context.Context, sess domain.Session) {
	id := sess.ID()
	ctx = logging.WithSessionID(ctx, id)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[id] = sess
	r.limiters[id] = rate.NewLimiter(rate.Limit(r.opts.ChatRatePerSecond), r.opts.ChatBurst)
	count := r.registry.Connect(id)
	slog.InfoContext(ctx, "Client connected", "viewers", count)

	r.broadcastLocked(ctx, domain.Event{Name: domain.EventViewerCount, Data: domain.ViewerCount{Count: count}}, "")
	_ = r.sendLocked(ctx, id, domain.Event{Name: domain.EventStatus, Data: domain.Status{Msg: fmt.Sprintf("Client %s has connected", shortID(id))}})
	_ = r.sendLocked(ctx, id, domain.Event{Name: domain.EventStreamInfo, Data: r.registry.Snapshot()})

	r.observeLocked()
}

// Disconnect unregisters a session. A streamer leaving ends the stream exactly
// as an explicit stop would. Unknown sessions are ignored.
func (r *Relay) Disconnect(ctx context.Context, sessionID string) {
	ctx = logging.WithSessionID(ctx, sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	delete(r.sessions, sessionID)
	delete(r.limiters, sessionID)

	count, ended := r.registry.Disconnect(sessionID)
	slog.InfoContext(ctx, "Client disconnected", "viewers", count)

	if ended != nil {
		slog.InfoContext(ctx, "Streamer disconnected, stream ended", "streamer_name", ended.StreamerName)
		r.broadcastLocked(ctx, domain.Event{
			Name: domain.EventStreamStopped,
			Data: domain.StreamStopped{Message: ended.StreamerName + " disconnected (stream ended)"},
		}, "")
	}

	r.broadcastLocked(ctx, domain.Event{Name: domain.EventViewerCount, Data: domain.ViewerCount{Count: count}}, "")
	r.observeLocked()
}

// Dispatch decodes and handles one inbound event and returns the reply to
// send if the client asked for one.
func (r *Relay) Dispatch(ctx context.Context, sessionID string, env domain.Envelope) domain.AckReply {
	ctx = logging.WithSessionID(ctx, sessionID)

	err := r.dispatch(ctx, sessionID, env)
	r.countEvent(env.Event, err)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrStreamBusy) || errors.Is(err, domain.ErrNotStreamer) {
			level = slog.LevelInfo
		}
		slog.Log(ctx, level, "Event rejected", "event", env.Event, "error", err)
	}
	return AckFor(env.Event, err)
}

func (r *Relay) dispatch(ctx context.Context, sessionID string, env domain.Envelope) error {
	switch env.Event {
	case domain.EventChatMessage:
		msg, err := domain.Decode[domain.ChatMessage](env.Data)
		if err != nil {
			return err
		}
		return r.Chat(ctx, sessionID, msg)
	case domain.EventStartBroadcast:
		req, err := domain.Decode[domain.StartBroadcast](env.Data)
		if err != nil {
			return err
		}
		return r.StartBroadcast(ctx, sessionID, req)
	case domain.EventStopBroadcast:
		return r.StopBroadcast(ctx, sessionID)
	case domain.EventWebRTCOffer:
		offer, err := domain.Decode[domain.WebRTCOffer](env.Data)
		if err != nil {
			return err
		}
		return r.Offer(ctx, sessionID, offer)
	case domain.EventWebRTCAnswer:
		answer, err := domain.Decode[domain.WebRTCAnswer](env.Data)
		if err != nil {
			return err
		}
		return r.Answer(ctx, sessionID, answer)
	case domain.EventWebRTCICECandidate:
		cand, err := domain.Decode[domain.WebRTCICECandidate](env.Data)
		if err != nil {
			return err
		}
		return r.ICECandidate(ctx, sessionID, cand)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownEvent, env.Event)
	}
}

// Chat relays a message to every session, the sender included.
func (r *Relay) Chat(ctx context.Context, sessionID string, msg domain.ChatMessage) error {
	msg, err := msg.Normalize(r.opts.ChatMaxLength)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lim, ok := r.limiters[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if !lim.AllowN(r.clock.Now(), 1) {
		if r.metrics != nil {
			r.metrics.ChatRateLimited.Inc()
		}
		return domain.ErrRateLimited
	}

	slog.DebugContext(ctx, "Chat message received", "user", msg.User)
	r.broadcastLocked(ctx, domain.Event{Name: domain.EventChatMessage, Data: msg}, "")
	if r.metrics != nil {
		r.metrics.ChatMessages.Inc()
	}
	return nil
}

// StartBroadcast makes the session the streamer and announces it to everyone.
func (r *Relay) StartBroadcast(ctx context.Context, sessionID string, req domain.StartBroadcast) error {
	req = req.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.registry.Start(sessionID, req.UserName, req.StreamKey)
	if err != nil {
		if errors.Is(err, domain.ErrStreamBusy) && r.metrics != nil {
			r.metrics.BroadcastsRejected.Inc()
		}
		return err
	}

	slog.InfoContext(ctx, "Broadcast started", "streamer_name", state.StreamerName)
	r.broadcastLocked(ctx, domain.Event{
		Name: domain.EventStreamStarted,
		Data: domain.StreamStarted{
			StreamerName: state.StreamerName,
			StreamKey:    state.StreamKey,
			Message:      state.StreamerName + " started broadcasting!",
		},
	}, "")

	if r.metrics != nil {
		r.metrics.BroadcastsStarted.Inc()
	}
	r.observeLocked()
	return nil
}

// StopBroadcast ends the stream if the session owns it and notifies everyone.
func (r *Relay) StopBroadcast(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, err := r.registry.Stop(sessionID)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Broadcast stopped", "streamer_name", prev.StreamerName)
	r.broadcastLocked(ctx, domain.Event{
		Name: domain.EventStreamStopped,
		Data: domain.StreamStopped{Message: prev.StreamerName + " stopped broadcasting"},
	}, "")
	r.observeLocked()
	return nil
}

// Offer forwards a streamer's WebRTC offer to every other session.
func (r *Relay) Offer(ctx context.Context, sessionID string, offer domain.WebRTCOffer) error {
	if err := offer.Validate(); err != nil {
		return err
	}
	name := offer.StreamerName
	if name == "" {
		name = domain.DefaultStreamerName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.broadcastLocked(ctx, domain.Event{
		Name: domain.EventWebRTCOffer,
		Data: domain.RelayedOffer{Offer: offer.Offer, StreamerID: sessionID, StreamerName: name},
	}, sessionID)
	r.countSignaling("offer")
	return nil
}

// Answer forwards a viewer's answer to the streamer it names.
func (r *Relay) Answer(ctx context.Context, sessionID string, answer domain.WebRTCAnswer) error {
	if err := answer.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.sendLocked(ctx, answer.StreamerID, domain.Event{
		Name: domain.EventWebRTCAnswer,
		Data: domain.RelayedAnswer{Answer: answer.Answer, ViewerID: sessionID},
	}); err != nil {
		return err
	}
	r.countSignaling("answer")
	return nil
}

// ICECandidate forwards a candidate to its target. Candidates without a target are dropped.
func (r *Relay) ICECandidate(ctx context.Context, sessionID string, cand domain.WebRTCICECandidate) error {
	if cand.TargetID == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.sendLocked(ctx, cand.TargetID, domain.Event{
		Name: domain.EventWebRTCICECandidate,
		Data: domain.RelayedICECandidate{Candidate: cand.Candidate, FromID: sessionID},
	}); err != nil {
		return err
	}
	r.countSignaling("ice_candidate")
	return nil
}

func (r *Relay) StreamInfo() domain.StreamState {
	return r.registry.Snapshot()
}

func (r *Relay) ViewerCount() int {
	return r.registry.ViewerCount()
}

func (r *Relay) broadcastLocked(ctx context.Context, ev domain.Event, exclude string) {
	for id, sess := range r.sessions {
		if id == exclude {
			continue
		}
		if err := sess.Send(ev); err != nil {
			slog.WarnContext(ctx, "Failed to deliver event", "event", ev.Name, "target_id", id, "error", err)
		}
	}
}

func (r *Relay) sendLocked(ctx context.Context, targetID string, ev domain.Event) error {
	sess, ok := r.sessions[targetID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, targetID)
	}
	if err := sess.Send(ev); err != nil {
		slog.WarnContext(ctx, "Failed to deliver event", "event", ev.Name, "target_id", targetID, "error", err)
		return fmt.Errorf("deliver %s: %w", ev.Name, err)
	}
	return nil
}

func (r *Relay) observeLocked() {
	if r.metrics == nil {
		return
	}
	r.metrics.ConnectedSessions.Set(float64(len(r.sessions)))
	if r.registry.Snapshot().Active {
		r.metrics.StreamActive.Set(1)
	} else {
		r.metrics.StreamActive.Set(0)
	}
}

func (r *Relay) countEvent(event domain.EventName, err error) {
	if r.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	if errors.Is(err, domain.ErrUnknownEvent) {
		event = "unknown"
	}
	r.metrics.EventsHandled.WithLabelValues(string(event), result).Inc()
}

func (r *Relay) countSignaling(kind string) {
	if r.metrics != nil {
		r.metrics.SignalingMessages.WithLabelValues(kind).Inc()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
