package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/centrifugal/centrifuge"
	"github.com/google/uuid"
	"github.com/pscheid92/livechat/internal/adapter/connlimit"
	"github.com/pscheid92/livechat/internal/adapter/metrics"
	"github.com/pscheid92/livechat/internal/domain"
	"github.com/pscheid92/livechat/internal/platform/logging"
)

const transportName = "centrifuge"

type eventRelay interface {
	Connect(ctx context.Context, sess domain.Session)
	Disconnect(ctx context.Context, sessionID string)
	Dispatch(ctx context.Context, sessionID string, env domain.Envelope) domain.AckReply
}

type clientIPKey struct{}

// WithClientIP stores the remote address the connection limits are keyed by.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address stored by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// Transport attaches the relay to a centrifuge node. Each centrifuge client is
// one relay session; inbound events arrive as RPC calls named after the event.
type Transport struct {
	relay     eventRelay
	limits    *connlimit.Limits
	wsMetrics *metrics.WebSocketMetrics

	// client ID -> IP the connection slot was acquired for
	slots sync.Map
}

// NewNode creates a centrifuge node wired to relay. limits and wsMetrics may be nil.
func NewNode(relay eventRelay, limits *connlimit.Limits, wsMetrics *metrics.WebSocketMetrics, logLevel string) (*centrifuge.Node, error) {
	conf := centrifuge.Config{LogLevel: parseCentrifugeLogLevel(logLevel), LogHandler: slogHandler}
	node, err := centrifuge.New(conf)
	if err != nil {
		return nil, fmt.Errorf("create centrifuge node: %w", err)
	}

	t := &Transport{relay: relay, limits: limits, wsMetrics: wsMetrics}
	node.OnConnecting(t.onConnecting)
	node.OnConnect(t.onConnect)

	return node, nil
}

func (t *Transport) onConnecting(ctx context.Context, e centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
	ip := ClientIPFromContext(ctx)
	if t.limits != nil {
		ok, reason := t.limits.Acquire(ip)
		if !ok {
			slog.WarnContext(ctx, "WebSocket connection rejected", "transport", transportName, "remote_ip", ip, "reason", reason)
			if t.wsMetrics != nil {
				t.wsMetrics.ConnectionsRejected.WithLabelValues(string(reason)).Inc()
			}
			return centrifuge.ConnectReply{}, centrifuge.ErrorLimitExceeded
		}
		t.slots.Store(e.ClientID, ip)
	}

	reply := centrifuge.ConnectReply{}
	if cred, ok := centrifuge.GetCredentials(ctx); !ok || cred.UserID == "" {
		reply.Credentials = &centrifuge.Credentials{UserID: uuid.NewString()}
	}
	return reply, nil
}

func (t *Transport) onConnect(client *centrifuge.Client) {
	sess := &clientSession{client: client, onSent: t.onSent}
	ctx := logging.WithSessionID(context.WithoutCancel(client.Context()), sess.ID())

	t.trackActive(1)
	t.relay.Connect(ctx, sess)

	client.OnRPC(func(e centrifuge.RPCEvent, cb centrifuge.RPCCallback) {
		cb(t.handleRPC(ctx, sess.ID(), e), nil)
	})

	client.OnDisconnect(func(e centrifuge.DisconnectEvent) {
		slog.DebugContext(ctx, "Client disconnected", "transport", transportName, "reason", e.Reason)
		t.relay.Disconnect(ctx, sess.ID())
		t.releaseSlot(client.ID())
		t.trackActive(-1)
	})
}

// handleRPC turns one RPC call into a relay event and replies with its ack.
func (t *Transport) handleRPC(ctx context.Context, sessionID string, e centrifuge.RPCEvent) centrifuge.RPCReply {
	env := domain.Envelope{Event: domain.EventName(e.Method), Data: e.Data}
	reply := t.relay.Dispatch(ctx, sessionID, env)

	data, err := json.Marshal(reply)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode RPC reply", "event", e.Method, "error", err)
		return centrifuge.RPCReply{}
	}
	return centrifuge.RPCReply{Data: data}
}

func (t *Transport) releaseSlot(clientID string) {
	if t.limits == nil {
		return
	}
	if ip, ok := t.slots.LoadAndDelete(clientID); ok {
		t.limits.Release(ip.(string))
	}
}

func (t *Transport) onSent() {
	if t.wsMetrics != nil {
		t.wsMetrics.MessagesSent.WithLabelValues(transportName).Inc()
	}
}

func (t *Transport) trackActive(delta float64) {
	if t.wsMetrics != nil {
		t.wsMetrics.ActiveConnections.WithLabelValues(transportName).Add(delta)
	}
}

// clientSession adapts a centrifuge client to domain.Session. Pushes go out as
// async messages carrying the same {"event","data"} envelope as the plain socket.
type clientSession struct {
	client interface {
		ID() string
		Send(data []byte) error
	}
	onSent func()
}

func (s *clientSession) ID() string {
	return s.client.ID()
}

func (s *clientSession) Send(ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Name, err)
	}
	if err := s.client.Send(data); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSessionClosed, err)
	}
	if s.onSent != nil {
		s.onSent()
	}
	return nil
}

func slogHandler(entry centrifuge.LogEntry) {
	attrs := make([]any, 0, len(entry.Fields)*2)
	for k, v := range entry.Fields {
		attrs = append(attrs, k, v)
	}
	switch entry.Level {
	case centrifuge.LogLevelDebug, centrifuge.LogLevelTrace:
		slog.Debug(entry.Message, attrs...)
	case centrifuge.LogLevelInfo:
		slog.Info(entry.Message, attrs...)
	case centrifuge.LogLevelWarn:
		slog.Warn(entry.Message, attrs...)
	case centrifuge.LogLevelError:
		slog.Error(entry.Message, attrs...)
	case centrifuge.LogLevelNone:
		// EMPTY
	}
}

func parseCentrifugeLogLevel(level string) centrifuge.LogLevel {
	switch level {
	case "debug":
		return centrifuge.LogLevelDebug
	case "warn":
		return centrifuge.LogLevelWarn
	case "error":
		return centrifuge.LogLevelError
	default:
		return centrifuge.LogLevelInfo
	}
}
