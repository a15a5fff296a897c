package ntserver_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ntbridge/ntbridge-go/pkg/ntclient"
	"github.com/ntbridge/ntbridge-go/pkg/ntserver"
	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/transport"
	"github.com/ntbridge/ntbridge-go/pkg/value"
	"github.com/ntbridge/ntbridge-go/pkg/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(slog.DiscardHandler)

func start(t *testing.T) *ntserver.Server {
	t.Helper()
	s := ntserver.New(ntserver.Config{Address: "127.0.0.1:0", Logger: quiet})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestSetAndTopics(t *testing.T) {
	s := ntserver.New(ntserver.Config{Logger: quiet})

	require.NoError(t, s.Set("/b", value.Float(1)))
	require.NoError(t, s.Set("/a", value.String("x")))
	require.NoError(t, s.Set("/b", value.Float(2)))

	err := s.Set("/b", value.Boolean(true))
	assert.ErrorIs(t, err, ntserver.ErrTypeConflict)

	err = s.Set("/c", value.Unsupported(nil))
	assert.ErrorIs(t, err, value.ErrUnsupportedValueType)

	topics := s.Topics()
	require.Len(t, topics, 2)
	assert.Equal(t, "/a", topics[0].Name)
	assert.Equal(t, "/b", topics[1].Name)
	assert.Equal(t, value.TypeDouble, topics[1].Type)
	assert.True(t, topics[1].Value.Equal(value.Float(2)))
	assert.True(t, topics[1].HasValue)
	assert.NotEqual(t, topics[0].ID, topics[1].ID)

	_, ok := s.Get("/missing")
	assert.False(t, ok)
}

func TestPublisherCountFollowsClients(t *testing.T) {
	s := start(t)

	c, err := ntclient.NewDialer(ntclient.WithoutKeepAlive(), ntclient.WithLogger(quiet)).
		DialClient(context.Background(), s.Addr().String(), time.Second)
	require.NoError(t, err)

	_, err = c.PublishTopic(context.Background(), "/p", value.TypeDouble)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tp, ok := s.Get("/p")
		return ok && tp.Publishers == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.ClientCount())

	require.NoError(t, c.Close())

	require.Eventually(t, func() bool {
		tp, _ := s.Get("/p")
		return tp.Publishers == 0 && s.ClientCount() == 0
	}, 2*time.Second, 5*time.Millisecond)

	// Topics outlive their publishers.
	_, ok := s.Get("/p")
	assert.True(t, ok)
}

// rawClient speaks frames directly so malformed input can be sent.
func rawClient(t *testing.T, s *ntserver.Server) *transport.ClientConn {
	t.Helper()
	conn, err := transport.NewClient(transport.ClientConfig{DisableKeepAlive: true}).
		Connect(context.Background(), s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *transport.ClientConn, kind wire.Kind, body any) {
	t.Helper()
	data, err := wire.Encode(kind, body)
	require.NoError(t, err)
	require.NoError(t, conn.Send(data))
}

func receive(t *testing.T, conn *transport.ClientConn) *wire.Frame {
	t.Helper()
	data, err := conn.Receive(2 * time.Second)
	require.NoError(t, err)
	f, err := wire.Decode(data)
	require.NoError(t, err)
	return f
}

func TestAnnounceCarriesPublisherUID(t *testing.T) {
	s := start(t)
	conn := rawClient(t, s)

	sendFrame(t, conn, wire.KindPublish, wire.Publish{PubUID: 7, Name: "/mine", Type: value.TypeString})

	f := receive(t, conn)
	require.Equal(t, wire.KindAnnounce, f.Kind)
	a, err := wire.DecodeBody[wire.Announce](f)
	require.NoError(t, err)
	assert.Equal(t, "/mine", a.Name)
	require.NotNil(t, a.PubUID)
	assert.Equal(t, int32(7), *a.PubUID)
}

func TestRejectsBadValues(t *testing.T) {
	s := start(t)
	conn := rawClient(t, s)

	sendFrame(t, conn, wire.KindSubscribe, wire.Subscribe{SubUID: 1, Patterns: []string{""}, Options: protocol.SubscriptionOptions{Prefix: true}})
	sendFrame(t, conn, wire.KindPublish, wire.Publish{PubUID: 1, Name: "/v", Type: value.TypeDouble})
	receive(t, conn) // announce

	// Unknown publisher and wrong type are dropped.
	sendFrame(t, conn, wire.KindValue, wire.Value{ID: 99, Type: value.TypeDouble, Value: value.Float(1)})
	sendFrame(t, conn, wire.KindValue, wire.Value{ID: 1, Type: value.TypeString, Value: value.String("x")})
	sendFrame(t, conn, wire.KindValue, wire.Value{ID: 1, Type: value.TypeDouble, Value: value.Float(5)})

	require.Eventually(t, func() bool {
		tp, ok := s.Get("/v")
		return ok && tp.HasValue
	}, 2*time.Second, 5*time.Millisecond)

	tp, _ := s.Get("/v")
	assert.True(t, tp.Value.Equal(value.Float(5)))
}

func TestUnsubscribeStopsRelay(t *testing.T) {
	s := start(t)
	conn := rawClient(t, s)

	sendFrame(t, conn, wire.KindSubscribe, wire.Subscribe{SubUID: 3, Patterns: []string{"/r"}, Options: protocol.SubscriptionOptions{All: true}})
	require.NoError(t, s.Set("/r", value.Float(1)))

	assert.Equal(t, wire.KindAnnounce, receive(t, conn).Kind)
	assert.Equal(t, wire.KindValue, receive(t, conn).Kind)

	sendFrame(t, conn, wire.KindUnsubscribe, wire.Unsubscribe{SubUID: 3})
	// The announcement of a new publisher orders the unsubscribe before the next Set.
	sendFrame(t, conn, wire.KindPublish, wire.Publish{PubUID: 1, Name: "/sync", Type: value.TypeBoolean})
	assert.Equal(t, wire.KindAnnounce, receive(t, conn).Kind)

	require.NoError(t, s.Set("/r", value.Float(2)))
	_, err := conn.Receive(50 * time.Millisecond)
	assert.Error(t, err)
}
