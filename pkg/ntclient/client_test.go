package ntclient_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ntbridge/ntbridge-go/pkg/log"
	"github.com/ntbridge/ntbridge-go/pkg/ntclient"
	"github.com/ntbridge/ntbridge-go/pkg/ntserver"
	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/transport"
	"github.com/ntbridge/ntbridge-go/pkg/value"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(slog.DiscardHandler)

var prefixAll = protocol.SubscriptionOptions{Prefix: true, All: true}

func startServer(t *testing.T) *ntserver.Server {
	t.Helper()
	s := ntserver.New(ntserver.Config{Address: "127.0.0.1:0", Logger: quiet})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func dial(t *testing.T, s *ntserver.Server, opts ...ntclient.Option) *ntclient.Client {
	t.Helper()
	opts = append([]ntclient.Option{ntclient.WithoutKeepAlive(), ntclient.WithLogger(quiet)}, opts...)
	c, err := ntclient.NewDialer(opts...).DialClient(context.Background(), s.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func next(t *testing.T, sub protocol.Subscription) protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	return msg
}

func TestSubscribeRetainedAndLiveValues(t *testing.T) {
	s := startServer(t)
	require.NoError(t, s.Set("/a/x", value.Float(1)))

	c := dial(t, s)
	sub, err := c.Subscribe(context.Background(), []string{"/a/"}, prefixAll)
	require.NoError(t, err)

	msg := next(t, sub)
	assert.Equal(t, "/a/x", msg.TopicName)
	assert.Equal(t, value.TypeDouble, msg.Type)
	assert.True(t, msg.Value.Equal(value.Float(1)))
	assert.NotZero(t, msg.Timestamp)

	require.NoError(t, s.Set("/b/y", value.String("ignored")))
	require.NoError(t, s.Set("/a/x", value.Float(2)))

	msg = next(t, sub)
	assert.Equal(t, "/a/x", msg.TopicName)
	assert.True(t, msg.Value.Equal(value.Float(2)))

	names := make([]string, 0)
	for _, ti := range c.Topics() {
		names = append(names, ti.Name)
	}
	assert.Equal(t, []string{"/a/x"}, names)
}

func TestExactSubscription(t *testing.T) {
	s := startServer(t)
	require.NoError(t, s.Set("/a", value.Boolean(true)))
	require.NoError(t, s.Set("/a/b", value.Boolean(false)))

	c := dial(t, s)
	sub, err := c.Subscribe(context.Background(), []string{"/a/b"}, protocol.SubscriptionOptions{All: true})
	require.NoError(t, err)

	msg := next(t, sub)
	assert.Equal(t, "/a/b", msg.TopicName)
	assert.Equal(t, value.TypeBoolean, msg.Type)
}

func TestPublishRelaysToOtherClients(t *testing.T) {
	s := startServer(t)
	writer := dial(t, s)
	reader := dial(t, s)

	own, err := writer.Subscribe(context.Background(), []string{""}, prefixAll)
	require.NoError(t, err)

	pub, err := writer.PublishTopic(context.Background(), "/t", value.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "/t", pub.Topic())
	assert.Equal(t, value.TypeString, pub.Type())
	require.NoError(t, writer.PublishValue(context.Background(), pub, value.String("one")))

	require.Eventually(t, func() bool {
		tp, ok := s.Get("/t")
		return ok && tp.HasValue
	}, 2*time.Second, 5*time.Millisecond)

	sub, err := reader.Subscribe(context.Background(), []string{"/t"}, protocol.SubscriptionOptions{All: true})
	require.NoError(t, err)
	msg := next(t, sub)
	assert.True(t, msg.Value.Equal(value.String("one")))

	require.NoError(t, writer.PublishValue(context.Background(), pub, value.String("two")))
	msg = next(t, sub)
	assert.True(t, msg.Value.Equal(value.String("two")))

	tp, ok := s.Get("/t")
	require.True(t, ok)
	assert.Equal(t, 1, tp.Publishers)

	// The writer is not sent its own values.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = own.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishValueErrors(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)
	other := dial(t, s)

	pub, err := c.PublishTopic(context.Background(), "/n", value.TypeDouble)
	require.NoError(t, err)
	foreign, err := other.PublishTopic(context.Background(), "/n", value.TypeDouble)
	require.NoError(t, err)

	err = c.PublishValue(context.Background(), pub, value.String("x"))
	assert.ErrorIs(t, err, ntclient.ErrTypeMismatch)

	err = c.PublishValue(context.Background(), pub, value.Unsupported([]int{1}))
	assert.ErrorIs(t, err, value.ErrUnsupportedValueType)

	err = c.PublishValue(context.Background(), foreign, value.Float(1))
	assert.ErrorIs(t, err, protocol.ErrUnknownPublisher)

	_, err = c.PublishTopic(context.Background(), "/bad", value.Type("map"))
	assert.ErrorIs(t, err, value.ErrUnsupportedValueType)

	require.NoError(t, c.Unpublish(pub))
	err = c.PublishValue(context.Background(), pub, value.Float(1))
	assert.ErrorIs(t, err, protocol.ErrUnknownPublisher)
}

func TestTopicsOnlySubscription(t *testing.T) {
	s := startServer(t)
	require.NoError(t, s.Set("/x", value.Float(1)))

	c := dial(t, s)
	sub, err := c.Subscribe(context.Background(), []string{""}, protocol.SubscriptionOptions{Prefix: true, TopicsOnly: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.Topics()) == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnsubscribeEndsStream(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	sub, err := c.Subscribe(context.Background(), []string{""}, prefixAll)
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe(context.Background()))
	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, protocol.ErrSubscriptionClosed)

	assert.NoError(t, sub.Unsubscribe(context.Background()))
}

func TestServerStopEndsClient(t *testing.T) {
	s := ntserver.New(ntserver.Config{Address: "127.0.0.1:0", Logger: quiet})
	require.NoError(t, s.Start(context.Background()))

	c := dial(t, s)
	sub, err := c.Subscribe(context.Background(), []string{""}, prefixAll)
	require.NoError(t, err)

	require.NoError(t, s.Stop())

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, protocol.ErrSubscriptionClosed)

	<-c.Done()
	assert.Error(t, c.Err())
	_, err = c.Subscribe(context.Background(), []string{""}, prefixAll)
	assert.ErrorIs(t, err, protocol.ErrClosed)
	_, err = c.PublishTopic(context.Background(), "/x", value.TypeDouble)
	assert.ErrorIs(t, err, protocol.ErrClosed)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := startServer(t)
	c := dial(t, s, ntclient.WithKeepAlive(transport.KeepAliveConfig{PingInterval: 10 * time.Millisecond}))

	sub, err := c.Subscribe(context.Background(), []string{""}, prefixAll)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var nextErr error
	go func() {
		defer wg.Done()
		_, nextErr = sub.Next(context.Background())
	}()

	require.NoError(t, c.Close())
	wg.Wait()
	assert.ErrorIs(t, nextErr, protocol.ErrSubscriptionClosed)
	assert.ErrorIs(t, c.Err(), protocol.ErrClosed)
	assert.NoError(t, c.Close())

	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestNextHonoursContext(t *testing.T) {
	s := startServer(t)
	c := dial(t, s)

	sub, err := c.Subscribe(context.Background(), []string{"/none"}, prefixAll)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sub.Next(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDialFailure(t *testing.T) {
	s := ntserver.New(ntserver.Config{Address: "127.0.0.1:0", Logger: quiet})
	require.NoError(t, s.Start(context.Background()))
	addr := s.Addr().String()
	require.NoError(t, s.Stop())

	_, err := ntclient.NewDialer(ntclient.WithLogger(quiet)).Dial(context.Background(), addr, 200*time.Millisecond)
	assert.Error(t, err)
}

type memCapture struct {
	mu     sync.Mutex
	events []log.Event
}

func (m *memCapture) Log(e log.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *memCapture) topics(dir log.Direction) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		if e.Layer == log.LayerWire && e.Direction == dir && e.Message != nil && e.Message.Topic != "" {
			out = append(out, e.Message.Topic)
		}
	}
	return out
}

func TestCaptureRecordsFrames(t *testing.T) {
	s := startServer(t)
	require.NoError(t, s.Set("/cap", value.Float(3)))

	capture := &memCapture{}
	c := dial(t, s, ntclient.WithCapture(capture))

	sub, err := c.Subscribe(context.Background(), []string{"/cap"}, prefixAll)
	require.NoError(t, err)
	next(t, sub)

	_, err = c.PublishTopic(context.Background(), "/out", value.TypeBoolean)
	require.NoError(t, err)

	assert.Contains(t, capture.topics(log.DirectionIn), "/cap")
	assert.Contains(t, capture.topics(log.DirectionOut), "/out")
}
