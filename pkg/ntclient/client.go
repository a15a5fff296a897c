package ntclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ntbridge/ntbridge-go/pkg/log"
	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/transport"
	"github.com/ntbridge/ntbridge-go/pkg/value"
	"github.com/ntbridge/ntbridge-go/pkg/wire"
)

// DefaultPort is the server port assumed for bare hosts.
const DefaultPort = transport.DefaultPort

// MaxQueuedMessages bounds each subscription's undelivered messages.
const MaxQueuedMessages = 4096

// ErrTypeMismatch is returned when a value does not match its publisher's type.
var ErrTypeMismatch = errors.New("value type does not match topic type")

// TopicInfo describes a topic announced by the server.
type TopicInfo struct {
	ID   int32      `json:"id"`
	Name string     `json:"name"`
	Type value.Type `json:"type"`
}

// Client is a protocol.Client speaking the ntbridge wire protocol.
type Client struct {
	conn    *transport.ClientConn
	logger  *slog.Logger
	capture log.Logger

	nextSubUID atomic.Int32
	nextPubUID atomic.Int32

	mu     sync.Mutex
	topics map[int32]TopicInfo
	subs   map[int32]*subscription
	pubs   map[int32]*publisher
	closed bool
	err    error

	done chan struct{}
}

var _ protocol.Client = (*Client)(nil)

func newClient(conn *transport.ClientConn, o options) *Client {
	c := &Client{
		conn:    conn,
		logger:  o.logger.With("conn_id", conn.ConnID()),
		capture: o.capture,
		topics:  make(map[int32]TopicInfo),
		subs:    make(map[int32]*subscription),
		pubs:    make(map[int32]*publisher),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// RemoteAddr returns the server address.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Topics returns the topics currently announced by the server, by name.
func (c *Client) Topics() []TopicInfo {
	c.mu.Lock()
	out := make([]TopicInfo, 0, len(c.topics))
	for _, t := range c.topics {
		out = append(out, t)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subscribe registers a subscription and asks the server for matching topics.
func (c *Client) Subscribe(ctx context.Context, patterns []string, opts protocol.SubscriptionOptions) (protocol.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscription{
		client:   c,
		uid:      c.nextSubUID.Add(1),
		patterns: append([]string(nil), patterns...),
		opts:     opts,
		signal:   make(chan struct{}, 1),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, protocol.ErrClosed
	}
	c.subs[sub.uid] = sub
	c.mu.Unlock()

	err := c.send(wire.KindSubscribe, wire.Subscribe{SubUID: sub.uid, Patterns: sub.patterns, Options: opts})
	if err != nil {
		c.removeSub(sub.uid)
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	c.logger.Debug("subscribed", "sub_uid", sub.uid, "patterns", sub.patterns, "prefix", opts.Prefix)
	return sub, nil
}

// PublishTopic announces a publisher for name.
func (c *Client) PublishTopic(ctx context.Context, name string, typ value.Type) (protocol.Publisher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !typ.IsValid() {
		return nil, fmt.Errorf("%w: %q", value.ErrUnsupportedValueType, typ)
	}

	pub := &publisher{client: c, uid: c.nextPubUID.Add(1), name: name, typ: typ}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, protocol.ErrClosed
	}
	c.pubs[pub.uid] = pub
	c.mu.Unlock()

	if err := c.send(wire.KindPublish, wire.Publish{PubUID: pub.uid, Name: name, Type: typ}); err != nil {
		c.mu.Lock()
		delete(c.pubs, pub.uid)
		c.mu.Unlock()
		return nil, fmt.Errorf("publish %q: %w", name, err)
	}

	c.logger.Debug("publisher created", "pub_uid", pub.uid, "topic", name, "type", typ)
	return pub, nil
}

// PublishValue sends v through pub.
func (c *Client) PublishValue(ctx context.Context, pub protocol.Publisher, v value.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, ok := pub.(*publisher)
	if !ok || p.client != c {
		return protocol.ErrUnknownPublisher
	}

	typ, err := value.TypeOf(v)
	if err != nil {
		return err
	}
	if typ != p.typ {
		return fmt.Errorf("%w: %q is %s, got %s", ErrTypeMismatch, p.name, p.typ, typ)
	}

	c.mu.Lock()
	closed := c.closed
	_, known := c.pubs[p.uid]
	c.mu.Unlock()
	if closed {
		return protocol.ErrClosed
	}
	if !known {
		return protocol.ErrUnknownPublisher
	}

	return c.send(wire.KindValue, wire.Value{
		ID:        p.uid,
		Timestamp: time.Now().UnixMicro(),
		Type:      p.typ,
		Value:     v,
	})
}

// Unpublish withdraws pub.
func (c *Client) Unpublish(pub protocol.Publisher) error {
	p, ok := pub.(*publisher)
	if !ok || p.client != c {
		return protocol.ErrUnknownPublisher
	}

	c.mu.Lock()
	_, known := c.pubs[p.uid]
	delete(c.pubs, p.uid)
	c.mu.Unlock()
	if !known {
		return protocol.ErrUnknownPublisher
	}
	return c.send(wire.KindUnpublish, wire.Unpublish{PubUID: p.uid})
}

// Close says goodbye to the server and closes the connection. Every open
// subscription ends. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.mu.Unlock()

	_ = c.conn.SendClose("client closed")
	err := c.conn.Close()
	<-c.done
	if errors.Is(err, transport.ErrConnectionClosed) {
		return nil
	}
	return err
}

func (c *Client) send(kind wire.Kind, body any) error {
	data, err := wire.Encode(kind, body)
	if err != nil {
		return err
	}
	if err := c.conn.Send(data); err != nil {
		if errors.Is(err, transport.ErrConnectionClosed) {
			return protocol.ErrClosed
		}
		return err
	}
	if c.capture != nil {
		c.capture.Log(log.WireEvent(c.conn.ConnID(), log.RoleClient, log.DirectionOut, data))
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		data, err := c.conn.Receive(0)
		if err != nil {
			c.shutdown(err)
			return
		}
		if c.capture != nil {
			c.capture.Log(log.WireEvent(c.conn.ConnID(), log.RoleClient, log.DirectionIn, data))
		}

		f, err := wire.Decode(data)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		if err := c.handle(f); err != nil {
			c.logger.Warn("dropping malformed frame", "kind", f.Kind, "error", err)
		}
	}
}

func (c *Client) handle(f *wire.Frame) error {
	switch f.Kind {
	case wire.KindAnnounce:
		a, err := wire.DecodeBody[wire.Announce](f)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.topics[a.ID] = TopicInfo{ID: a.ID, Name: a.Name, Type: a.Type}
		c.mu.Unlock()

	case wire.KindUnannounce:
		u, err := wire.DecodeBody[wire.Unannounce](f)
		if err != nil {
			return err
		}
		c.mu.Lock()
		delete(c.topics, u.ID)
		c.mu.Unlock()

	case wire.KindValue:
		v, err := wire.DecodeBody[wire.Value](f)
		if err != nil {
			return err
		}
		c.deliver(v)

	default:
		c.logger.Debug("ignoring frame", "kind", f.Kind)
	}
	return nil
}

func (c *Client) deliver(v wire.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()

	topic, ok := c.topics[v.ID]
	if !ok {
		c.logger.Debug("value for unannounced topic", "id", v.ID)
		return
	}

	typ := v.Type
	if typ == "" {
		typ = topic.Type
	}
	msg := protocol.Message{
		Timestamp: v.Timestamp,
		Value:     v.Value,
		TopicName: topic.Name,
		Type:      typ,
	}
	for _, sub := range c.subs {
		if sub.opts.TopicsOnly || !wire.MatchTopic(sub.patterns, sub.opts.Prefix, topic.Name) {
			continue
		}
		if sub.push(msg) {
			c.logger.Warn("subscription queue full, dropped oldest message", "sub_uid", sub.uid)
		}
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		if errors.Is(err, transport.ErrConnectionClosed) {
			err = protocol.ErrClosed
		}
		c.err = err
	}
	subs := c.subs
	c.subs = make(map[int32]*subscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	_ = c.conn.Close()
	c.logger.Debug("connection ended", "error", err)
}

func (c *Client) removeSub(uid int32) (*subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[uid]
	delete(c.subs, uid)
	return sub, ok
}

// publisher is the handle returned by PublishTopic.
type publisher struct {
	client *Client
	uid    int32
	name   string
	typ    value.Type
}

func (p *publisher) Topic() string    { return p.name }
func (p *publisher) Type() value.Type { return p.typ }
