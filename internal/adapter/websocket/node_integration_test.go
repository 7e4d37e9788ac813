package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/centrifugal/centrifuge"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/livechat/internal/adapter/connlimit"
	"github.com/pscheid92/livechat/internal/adapter/metrics"
	"github.com/pscheid92/livechat/internal/app"
	"github.com/pscheid92/livechat/internal/domain"
	"github.com/pscheid92/livechat/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientIPHeader = "X-Test-Client-IP"

type nodeEnv struct {
	url       string
	relay     *app.Relay
	limits    *connlimit.Limits
	wsMetrics *metrics.WebSocketMetrics
}

func newNodeEnv(t *testing.T) *nodeEnv {
	t.Helper()

	clock := clockwork.NewRealClock()
	relay := app.NewRelay(stream.NewRegistry(), app.RelayOptions{ChatRatePerSecond: 10, ChatBurst: 10, ChatMaxLength: 100}, clock, nil)
	limits := connlimit.New(10, 1, 100, 100, clock)
	wsMetrics := metrics.NewWebSocketMetrics(prometheus.NewRegistry())

	node, err := NewNode(relay, limits, wsMetrics, "error")
	require.NoError(t, err)
	require.NoError(t, node.Run())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = node.Shutdown(ctx)
	})

	wsHandler := centrifuge.NewWebsocketHandler(node, centrifuge.WebsocketConfig{
		CheckOrigin: func(*http.Request) bool { return true },
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClientIP(r.Context(), r.Header.Get(testClientIPHeader))
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)

	return &nodeEnv{
		url:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		relay:     relay,
		limits:    limits,
		wsMetrics: wsMetrics,
	}
}

// centrifugeClient speaks the JSON client protocol: one command per frame out,
// newline-separated replies in.
type centrifugeClient struct {
	t       *testing.T
	conn    *ws.Conn
	nextID  uint32
	pending [][]byte
}

type centrifugeReply struct {
	ID    uint32 `json:"id"`
	Error *struct {
		Code    uint32 `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Connect json.RawMessage `json:"connect"`
	RPC     *struct {
		Data json.RawMessage `json:"data"`
	} `json:"rpc"`
	Push *struct {
		Message *struct {
			Data json.RawMessage `json:"data"`
		} `json:"message"`
	} `json:"push"`
}

func (e *nodeEnv) dial(t *testing.T, ip string) *centrifugeClient {
	t.Helper()

	header := http.Header{}
	header.Set(testClientIPHeader, ip)
	conn, resp, err := ws.DefaultDialer.Dial(e.url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	c := &centrifugeClient{t: t, conn: conn}
	id := c.send(`"connect":{}`)
	reply := c.readUntil(func(r centrifugeReply) bool { return r.ID == id })
	require.Nil(t, reply.Error, "connect rejected")
	require.NotEmpty(t, reply.Connect)
	return c
}

func (c *centrifugeClient) send(body string) uint32 {
	c.t.Helper()
	c.nextID++
	frame := fmt.Sprintf(`{"id":%d,%s}`, c.nextID, body)
	require.NoError(c.t, c.conn.WriteMessage(ws.TextMessage, []byte(frame)))
	return c.nextID
}

func (c *centrifugeClient) next() centrifugeReply {
	c.t.Helper()
	for len(c.pending) == 0 {
		require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err)
		for _, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) > 0 {
				c.pending = append(c.pending, line)
			}
		}
	}
	line := c.pending[0]
	c.pending = c.pending[1:]

	var reply centrifugeReply
	require.NoError(c.t, json.Unmarshal(line, &reply), string(line))
	return reply
}

func (c *centrifugeClient) readUntil(match func(centrifugeReply) bool) centrifugeReply {
	c.t.Helper()
	for {
		if reply := c.next(); match(reply) {
			return reply
		}
	}
}

// rpc sends an event as an RPC call and decodes the ack carried in the reply.
func (c *centrifugeClient) rpc(event domain.EventName, data any) domain.AckReply {
	c.t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(c.t, err)

	id := c.send(fmt.Sprintf(`"rpc":{"method":%q,"data":%s}`, event, payload))
	reply := c.readUntil(func(r centrifugeReply) bool { return r.ID == id })
	require.Nil(c.t, reply.Error)
	require.NotNil(c.t, reply.RPC)

	var ack domain.AckReply
	require.NoError(c.t, json.Unmarshal(reply.RPC.Data, &ack))
	return ack
}

// waitEvent reads pushes until one carries the named relay event.
func (c *centrifugeClient) waitEvent(name domain.EventName) json.RawMessage {
	c.t.Helper()
	var ev struct {
		Event domain.EventName `json:"event"`
		Data  json.RawMessage  `json:"data"`
	}
	c.readUntil(func(r centrifugeReply) bool {
		if r.Push == nil || r.Push.Message == nil {
			return false
		}
		if err := json.Unmarshal(r.Push.Message.Data, &ev); err != nil {
			return false
		}
		return ev.Event == name
	})
	return ev.Data
}

func TestNode_StreamerDropEndsStreamAndFreesSlot(t *testing.T) {
	env := newNodeEnv(t)

	streamer := env.dial(t, "192.0.2.10")
	streamer.waitEvent(domain.EventStreamInfo)
	viewer := env.dial(t, "192.0.2.20")
	viewer.waitEvent(domain.EventStreamInfo)

	active := env.wsMetrics.ActiveConnections.WithLabelValues(transportName)
	assert.InDelta(t, 2, testutil.ToFloat64(active), 0)

	ack := streamer.rpc(domain.EventStartBroadcast, domain.StartBroadcast{UserName: "alice"})
	require.True(t, ack.Success, ack.Message)

	var started domain.StreamStarted
	require.NoError(t, json.Unmarshal(viewer.waitEvent(domain.EventStreamStarted), &started))
	assert.Equal(t, "alice", started.StreamerName)
	assert.True(t, env.relay.StreamInfo().Active)

	// Drop without a disconnect command.
	require.NoError(t, streamer.conn.Close())

	viewer.waitEvent(domain.EventStreamStopped)
	assert.False(t, env.relay.StreamInfo().Active)
	assert.Eventually(t, func() bool { return env.relay.ViewerCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return testutil.ToFloat64(active) == 1 }, 2*time.Second, 10*time.Millisecond)

	// Per-IP cap is 1, so a fresh slot for the streamer's address proves release.
	assert.Eventually(t, func() bool {
		ok, _ := env.limits.Acquire("192.0.2.10")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNode_RejectsOverPerIPLimit(t *testing.T) {
	env := newNodeEnv(t)

	first := env.dial(t, "192.0.2.30")
	first.waitEvent(domain.EventStreamInfo)

	header := http.Header{}
	header.Set(testClientIPHeader, "192.0.2.30")
	conn, resp, err := ws.DefaultDialer.Dial(env.url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	second := &centrifugeClient{t: t, conn: conn}
	id := second.send(`"connect":{}`)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		var reply centrifugeReply
		require.NoError(t, json.Unmarshal(bytes.Split(data, []byte("\n"))[0], &reply))
		assert.Equal(t, id, reply.ID)
		require.NotNil(t, reply.Error)
		assert.Equal(t, centrifuge.ErrorLimitExceeded.Code, reply.Error.Code)
	}
	assert.InDelta(t, 1, testutil.ToFloat64(env.wsMetrics.ConnectionsRejected.WithLabelValues(string(connlimit.ReasonPerIP))), 0)
	assert.Equal(t, 1, env.relay.ViewerCount())
}
