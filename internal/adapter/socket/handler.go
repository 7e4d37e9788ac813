package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livechat/internal/adapter/connlimit"
	"github.com/pscheid92/livechat/internal/adapter/metrics"
	"github.com/pscheid92/livechat/internal/domain"
	"github.com/pscheid92/livechat/internal/platform/logging"
)

const (
	transportName  = "socket"
	maxMessageSize = 64 * 1024
)

type eventRelay interface {
	Connect(ctx context.Context, sess domain.Session)
	Disconnect(ctx context.Context, sessionID string)
	Dispatch(ctx context.Context, sessionID string, env domain.Envelope) domain.AckReply
}

type Handler struct {
	relay     eventRelay
	limits    *connlimit.Limits
	upgrader  websocket.Upgrader
	clock     clockwork.Clock
	wsMetrics *metrics.WebSocketMetrics
}

// NewHandler creates the websocket handler. limits and wsMetrics may be nil.
func NewHandler(relay eventRelay, limits *connlimit.Limits, checkOrigin func(*http.Request) bool, clock clockwork.Clock, wsMetrics *metrics.WebSocketMetrics) *Handler {
	return &Handler{
		relay:  relay,
		limits: limits,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		clock:     clock,
		wsMetrics: wsMetrics,
	}
}

// ServeHTTP upgrades the request and blocks for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := connlimit.ClientIP(r)
	if h.limits != nil {
		ok, reason := h.limits.Acquire(ip)
		if !ok {
			slog.WarnContext(r.Context(), "WebSocket connection rejected", "remote_ip", ip, "reason", reason)
			if h.wsMetrics != nil {
				h.wsMetrics.ConnectionsRejected.WithLabelValues(string(reason)).Inc()
			}
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
		defer h.limits.Release(ip)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		slog.DebugContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	sess := &session{
		id:     uuid.NewString(),
		writer: newClientWriter(conn, h.clock, h.onSent),
		onDrop: h.onDrop,
	}
	ctx := logging.WithSessionID(context.WithoutCancel(r.Context()), sess.id)
	h.serve(ctx, conn, sess)
}

// serve runs a connected session until its read side ends, then removes it from the relay.
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, sess *session) {
	h.trackActive(1)
	defer h.trackActive(-1)

	h.relay.Connect(ctx, sess)
	defer func() {
		h.relay.Disconnect(ctx, sess.id)
		sess.writer.stopGraceful(websocket.CloseNormalClosure, "bye")
	}()

	h.readLoop(ctx, conn, sess)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, net.ErrClosed) {
				slog.DebugContext(ctx, "WebSocket read ended", "error", err)
			}
			return
		}
		sess.writer.updateReadDeadline()

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.DebugContext(ctx, "Ignoring malformed frame", "error", err)
			continue
		}

		reply := h.relay.Dispatch(ctx, sess.id, env)
		if env.Ack != nil {
			if err := sess.sendAck(*env.Ack, reply); err != nil {
				return
			}
		}
	}
}

func (h *Handler) onSent() {
	if h.wsMetrics != nil {
		h.wsMetrics.MessagesSent.WithLabelValues(transportName).Inc()
	}
}

func (h *Handler) onDrop() {
	if h.wsMetrics != nil {
		h.wsMetrics.SlowClientsDropped.WithLabelValues(transportName).Inc()
	}
}

func (h *Handler) trackActive(delta float64) {
	if h.wsMetrics != nil {
		h.wsMetrics.ActiveConnections.WithLabelValues(transportName).Add(delta)
	}
}
