package ntbridge_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntbridge/ntbridge-go/pkg/bridge"
	"github.com/ntbridge/ntbridge-go/pkg/connection"
	"github.com/ntbridge/ntbridge-go/pkg/metrics"
	"github.com/ntbridge/ntbridge-go/pkg/ntclient"
	"github.com/ntbridge/ntbridge-go/pkg/ntserver"
	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/router"
	"github.com/ntbridge/ntbridge-go/pkg/session"
	"github.com/ntbridge/ntbridge-go/pkg/transport"
	"github.com/ntbridge/ntbridge-go/pkg/value"
)

// eventLog is a session.EventSink that records every event.
type eventLog struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	name    string
	payload any
}

func (l *eventLog) Emit(event string, payload any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedEvent{event, payload})
	return nil
}

// find returns the first event matching pred.
func (l *eventLog) find(pred func(recordedEvent) bool) (recordedEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if pred(e) {
			return e, true
		}
	}
	return recordedEvent{}, false
}

func (l *eventLog) count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.name == name {
			n++
		}
	}
	return n
}

// serverValue matches a routed update (non-zero timestamp) carrying want.
func serverValue(topic string, want value.Value) func(recordedEvent) bool {
	return func(e recordedEvent) bool {
		msg, ok := e.payload.(protocol.Message)
		return ok && e.name == topic && msg.Timestamp != 0 && msg.Value.Equal(want)
	}
}

func startServer(t *testing.T) *ntserver.Server {
	t.Helper()
	srv := ntserver.New(ntserver.Config{Address: "127.0.0.1:0"})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func newManager(t *testing.T, sink session.EventSink, mt *metrics.Metrics) *session.Manager {
	t.Helper()
	dialer := ntclient.NewDialer(ntclient.WithKeepAlive(transport.KeepAliveConfig{
		PingInterval:   100 * time.Millisecond,
		PongTimeout:    100 * time.Millisecond,
		MaxMissedPongs: 2,
	}))
	mgr := session.NewManager(session.Config{
		ConnectTimeout: time.Second,
		Router: router.Config{Backoff: connection.BackoffConfig{
			Initial:     10 * time.Millisecond,
			Max:         50 * time.Millisecond,
			Multiplier:  2,
			MaxAttempts: 3,
		}},
	}, dialer, sink, session.WithMetrics(mt))
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestE2E_CachedWritesReachServerOnConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := startServer(t)
	events := &eventLog{}
	mgr := newManager(t, events, nil)
	ctx := context.Background()

	// Disconnected writes are cached, last write wins.
	require.NoError(t, mgr.Write(ctx, "/dash/speed", value.Float(1)))
	require.NoError(t, mgr.Write(ctx, "/dash/speed", value.Float(4)))
	require.NoError(t, mgr.Write(ctx, "/dash/label", value.String("auto")))
	assert.Equal(t, 2, mgr.Status().PendingWrites)
	assert.Equal(t, 3, events.count("/dash/speed")+events.count("/dash/label"))

	require.NoError(t, mgr.StartClient(ctx, srv.Addr().String()))
	_, ok := events.find(func(e recordedEvent) bool { return e.name == session.EventConnected && e.payload == true })
	assert.True(t, ok, "expected Connect-client true")

	st := mgr.Status()
	assert.Equal(t, connection.StateConnected, st.State)
	assert.Zero(t, st.PendingWrites)
	assert.Equal(t, 2, st.Publishers)

	require.Eventually(t, func() bool {
		topic, ok := srv.Get("/dash/speed")
		return ok && topic.HasValue && topic.Value.Equal(value.Float(4))
	}, 2*time.Second, 10*time.Millisecond)
	label, ok := srv.Get("/dash/label")
	require.True(t, ok)
	assert.Equal(t, value.TypeString, label.Type)

	// Live writes go straight to the server.
	require.NoError(t, mgr.Write(ctx, "/dash/speed", value.Float(5)))
	require.Eventually(t, func() bool {
		topic, _ := srv.Get("/dash/speed")
		return topic.Value.Equal(value.Float(5))
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, mgr.Status().PendingWrites)
}

func TestE2E_SubscribedTopicsAreRouted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := startServer(t)
	events := &eventLog{}
	mgr := newManager(t, events, nil)

	mgr.Subscribe("/robot/speed")
	require.NoError(t, srv.Set("/robot/speed", value.Float(2.5)))
	require.NoError(t, srv.Set("/robot/other", value.Boolean(true)))

	require.NoError(t, mgr.StartClient(context.Background(), srv.Addr().String()))

	require.Eventually(t, func() bool {
		_, ok := events.find(serverValue("/robot/speed", value.Float(2.5)))
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Set("/robot/speed", value.Float(3)))
	require.Eventually(t, func() bool {
		_, ok := events.find(serverValue("/robot/speed", value.Float(3)))
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	e, _ := events.find(serverValue("/robot/speed", value.Float(3)))
	msg := e.payload.(protocol.Message)
	assert.Equal(t, value.TypeDouble, msg.Type)
	assert.Equal(t, "/robot/speed", msg.TopicName)

	// Unsubscribed topics never reach the sink.
	assert.Zero(t, events.count("/robot/other"))

	require.NoError(t, mgr.Unsubscribe("/robot/speed"))
	require.NoError(t, srv.Set("/robot/speed", value.Float(9)))
	time.Sleep(100 * time.Millisecond)
	_, ok := events.find(serverValue("/robot/speed", value.Float(9)))
	assert.False(t, ok, "update after unsubscribe was routed")
}

func TestE2E_ReconnectReplacesConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	first := startServer(t)
	second := startServer(t)
	events := &eventLog{}
	mgr := newManager(t, events, nil)
	ctx := context.Background()

	require.NoError(t, mgr.StartClient(ctx, first.Addr().String()))
	require.NoError(t, mgr.Write(ctx, "/a", value.Float(1)))
	firstID := mgr.Status().ConnectionID

	require.NoError(t, mgr.StartClient(ctx, second.Addr().String()))
	st := mgr.Status()
	assert.NotEqual(t, firstID, st.ConnectionID)
	assert.Equal(t, second.Addr().String(), st.Address)
	assert.Zero(t, st.Publishers)

	// The old client is retired once its router exits.
	require.Eventually(t, func() bool { return first.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, mgr.Write(ctx, "/a", value.Float(2)))
	require.Eventually(t, func() bool {
		topic, ok := second.Get("/a")
		return ok && topic.Value.Equal(value.Float(2))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestE2E_ServerLossReportsDisconnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := ntserver.New(ntserver.Config{Address: "127.0.0.1:0"})
	require.NoError(t, srv.Start(context.Background()))

	events := &eventLog{}
	mgr := newManager(t, events, nil)
	require.NoError(t, mgr.StartClient(context.Background(), srv.Addr().String()))

	require.NoError(t, srv.Stop())

	require.Eventually(t, func() bool {
		_, ok := events.find(func(e recordedEvent) bool { return e.name == session.EventConnected && e.payload == false })
		return ok
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, connection.StateDisconnected, mgr.Status().State)

	// Writes are cached again until the next connect.
	require.NoError(t, mgr.Write(context.Background(), "/after", value.Boolean(true)))
	assert.Equal(t, 1, mgr.Status().PendingWrites)
}

func TestE2E_BridgeOverWebSocket(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := startServer(t)
	mt := metrics.New()
	hub := bridge.NewHub(nil, bridge.WithMetrics(mt))
	mgr := newManager(t, hub, mt)
	hub.SetCommands(bridge.NewCommands(mgr, mt))

	httpSrv := httptest.NewServer(bridge.NewServer(hub, mgr.Status, mt, nil).Handler())
	t.Cleanup(httpSrv.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	type frame struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
		ID      string          `json:"id"`
		Command string          `json:"command"`
		Error   *string         `json:"error"`
	}
	// next reads frames until one satisfies pred.
	next := func(pred func(frame) bool) frame {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for {
			require.NoError(t, conn.SetReadDeadline(deadline))
			var f frame
			require.NoError(t, conn.ReadJSON(&f))
			if pred(f) {
				return f
			}
		}
	}
	response := func(id string) func(frame) bool {
		return func(f frame) bool { return f.Command != "" && f.ID == id }
	}

	require.NoError(t, conn.WriteJSON(bridge.Request{ID: "1", Command: bridge.CommandSubscribe, Topic: "/robot/speed"}))
	f := next(response("1"))
	assert.Nil(t, f.Error)

	require.NoError(t, conn.WriteJSON(bridge.Request{ID: "2", Command: bridge.CommandStartClient, IP: srv.Addr().String()}))
	f = next(response("2"))
	require.Nil(t, f.Error)

	require.NoError(t, srv.Set("/robot/speed", value.Float(7)))
	f = next(func(f frame) bool { return f.Event == "/robot/speed" })
	var msg struct {
		Timestamp int64   `json:"timestamp"`
		Data      float64 `json:"data"`
		TopicName string  `json:"topic_name"`
		Type      string  `json:"type"`
	}
	require.NoError(t, json.Unmarshal(f.Payload, &msg))
	assert.Equal(t, 7.0, msg.Data)
	assert.Equal(t, "/robot/speed", msg.TopicName)
	assert.Equal(t, "double", msg.Type)
	assert.NotZero(t, msg.Timestamp)

	require.NoError(t, conn.WriteJSON(bridge.Request{ID: "3", Command: bridge.CommandWrite, Topic: "/dash/cmd", Value: json.RawMessage(`"go"`)}))
	f = next(response("3"))
	require.Nil(t, f.Error)
	require.Eventually(t, func() bool {
		topic, ok := srv.Get("/dash/cmd")
		return ok && topic.Value.Equal(value.String("go"))
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(bridge.Request{ID: "4", Command: bridge.CommandWrite, Topic: "/dash/bad", Value: json.RawMessage(`[1,2]`)}))
	f = next(response("4"))
	require.NotNil(t, f.Error)
	assert.Contains(t, *f.Error, value.ErrUnsupportedValueType.Error())
}
