package ntserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/ntbridge/ntbridge-go/pkg/log"
	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/transport"
	"github.com/ntbridge/ntbridge-go/pkg/value"
	"github.com/ntbridge/ntbridge-go/pkg/wire"
)

// ErrTypeConflict is returned when a topic is set with a different type
// than it was created with.
var ErrTypeConflict = errors.New("topic type conflict")

// Config configures a Server.
type Config struct {
	// Address to listen on (default ":5810").
	Address string

	Logger  *slog.Logger
	Capture log.Logger
}

// Topic is a snapshot of one stored topic.
type Topic struct {
	ID        int32       `json:"id"`
	Name      string      `json:"name"`
	Type      value.Type  `json:"type"`
	Value     value.Value `json:"value"`
	HasValue  bool        `json:"has_value"`
	Timestamp int64       `json:"timestamp"`

	// Publishers counts the client publishers of the topic.
	Publishers int `json:"publishers"`
}

type subFilter struct {
	patterns []string
	opts     protocol.SubscriptionOptions
}

func (s subFilter) matches(name string) bool {
	return wire.MatchTopic(s.patterns, s.opts.Prefix, name)
}

type client struct {
	conn      *transport.ServerConn
	subs      map[int32]subFilter
	pubs      map[int32]*Topic
	announced map[int32]bool
}

// wantsTopic reports whether any subscription selects name.
func (c *client) wantsTopic(name string) bool {
	for _, s := range c.subs {
		if s.matches(name) {
			return true
		}
	}
	return false
}

// wantsValues reports whether any non topics-only subscription selects name.
func (c *client) wantsValues(name string) bool {
	for _, s := range c.subs {
		if !s.opts.TopicsOnly && s.matches(name) {
			return true
		}
	}
	return false
}

// Server is a simulated topic server.
type Server struct {
	ts      *transport.Server
	logger  *slog.Logger
	capture log.Logger

	mu      sync.Mutex
	topics  map[string]*Topic
	nextID  int32
	clients map[*transport.ServerConn]*client
}

// New creates a server. Call Start to listen.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		logger:  cfg.Logger,
		capture: cfg.Capture,
		topics:  make(map[string]*Topic),
		clients: make(map[*transport.ServerConn]*client),
	}
	s.ts = transport.NewServer(transport.ServerConfig{
		Address:      cfg.Address,
		Logger:       cfg.Capture,
		OnConnect:    s.onConnect,
		OnDisconnect: s.onDisconnect,
		OnMessage:    s.onMessage,
		OnError: func(conn *transport.ServerConn, err error) {
			s.logger.Debug("transport error", "error", err)
		},
	})
	return s
}

// Start listens and serves until Stop or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if err := s.ts.Start(ctx); err != nil {
		return err
	}
	s.logger.Info("server listening", "address", s.ts.Addr().String())
	return nil
}

// Stop closes every connection and the listener.
func (s *Server) Stop() error {
	return s.ts.Stop()
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	return s.ts.Addr()
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Topics returns a snapshot of the topic store sorted by name.
func (s *Server) Topics() []Topic {
	s.mu.Lock()
	out := make([]Topic, 0, len(s.topics))
	for _, t := range s.topics {
		out = append(out, *t)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the retained topic name.
func (s *Server) Get(name string) (Topic, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topics[name]
	if !ok {
		return Topic{}, false
	}
	return *t, true
}

// Set publishes v to name from the server itself, creating the topic on
// first use.
func (s *Server) Set(name string, v value.Value) error {
	typ, err := value.TypeOf(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.topicLocked(name, typ, nil, 0)
	if t.Type != typ {
		return fmt.Errorf("%w: %q is %s, got %s", ErrTypeConflict, name, t.Type, typ)
	}
	s.storeLocked(t, v, nil)
	return nil
}

func (s *Server) onConnect(conn *transport.ServerConn) {
	s.mu.Lock()
	s.clients[conn] = &client{
		conn:      conn,
		subs:      make(map[int32]subFilter),
		pubs:      make(map[int32]*Topic),
		announced: make(map[int32]bool),
	}
	n := len(s.clients)
	s.mu.Unlock()

	s.logger.Info("client connected", "conn_id", conn.ConnID(), "remote", conn.RemoteAddr().String(), "clients", n)
}

func (s *Server) onDisconnect(conn *transport.ServerConn) {
	s.mu.Lock()
	if c, ok := s.clients[conn]; ok {
		for _, t := range c.pubs {
			t.Publishers--
		}
		delete(s.clients, conn)
	}
	n := len(s.clients)
	s.mu.Unlock()

	s.logger.Info("client disconnected", "conn_id", conn.ConnID(), "clients", n)
}

func (s *Server) onMessage(conn *transport.ServerConn, data []byte) {
	if s.capture != nil {
		s.capture.Log(log.WireEvent(conn.ConnID(), log.RoleServer, log.DirectionIn, data))
	}

	f, err := wire.Decode(data)
	if err != nil {
		s.logger.Warn("dropping undecodable frame", "conn_id", conn.ConnID(), "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[conn]
	if !ok {
		return
	}
	if err := s.handleLocked(c, f); err != nil {
		s.logger.Warn("dropping malformed frame", "conn_id", conn.ConnID(), "kind", f.Kind, "error", err)
	}
}

func (s *Server) handleLocked(c *client, f *wire.Frame) error {
	switch f.Kind {
	case wire.KindSubscribe:
		sub, err := wire.DecodeBody[wire.Subscribe](f)
		if err != nil {
			return err
		}
		filter := subFilter{patterns: sub.Patterns, opts: sub.Options}
		c.subs[sub.SubUID] = filter
		s.logger.Debug("subscribe", "conn_id", c.conn.ConnID(), "sub_uid", sub.SubUID, "patterns", sub.Patterns)

		for _, name := range s.sortedNamesLocked() {
			t := s.topics[name]
			if !filter.matches(name) {
				continue
			}
			s.announceLocked(c, t, nil)
			if !filter.opts.TopicsOnly && t.HasValue {
				s.sendValueLocked(c, t)
			}
		}

	case wire.KindUnsubscribe:
		u, err := wire.DecodeBody[wire.Unsubscribe](f)
		if err != nil {
			return err
		}
		delete(c.subs, u.SubUID)

	case wire.KindPublish:
		p, err := wire.DecodeBody[wire.Publish](f)
		if err != nil {
			return err
		}
		if !p.Type.IsValid() {
			return fmt.Errorf("%w: %q", value.ErrUnsupportedValueType, p.Type)
		}
		if old, ok := c.pubs[p.PubUID]; ok {
			old.Publishers--
		}
		t := s.topicLocked(p.Name, p.Type, c, p.PubUID)
		t.Publishers++
		c.pubs[p.PubUID] = t

	case wire.KindUnpublish:
		u, err := wire.DecodeBody[wire.Unpublish](f)
		if err != nil {
			return err
		}
		if t, ok := c.pubs[u.PubUID]; ok {
			t.Publishers--
			delete(c.pubs, u.PubUID)
		}

	case wire.KindValue:
		v, err := wire.DecodeBody[wire.Value](f)
		if err != nil {
			return err
		}
		t, ok := c.pubs[v.ID]
		if !ok {
			return fmt.Errorf("unknown publisher %d", v.ID)
		}
		if typ, err := value.TypeOf(v.Value); err != nil || typ != t.Type {
			return fmt.Errorf("%w: %q is %s", ErrTypeConflict, t.Name, t.Type)
		}
		s.storeLocked(t, v.Value, c)

	default:
		return fmt.Errorf("unexpected %s frame", f.Kind)
	}
	return nil
}

// topicLocked returns the topic name, creating and announcing it when new.
// A creating client receives its announcement with pubUID attached.
func (s *Server) topicLocked(name string, typ value.Type, creator *client, pubUID int32) *Topic {
	if t, ok := s.topics[name]; ok {
		if creator != nil && !creator.announced[t.ID] {
			uid := pubUID
			s.announceLocked(creator, t, &uid)
		}
		return t
	}

	s.nextID++
	t := &Topic{ID: s.nextID, Name: name, Type: typ}
	s.topics[name] = t
	s.logger.Debug("topic created", "topic", name, "id", t.ID, "type", typ)

	for _, c := range s.clients {
		switch {
		case c == creator:
			uid := pubUID
			s.announceLocked(c, t, &uid)
		case c.wantsTopic(name):
			s.announceLocked(c, t, nil)
		}
	}
	return t
}

// storeLocked retains v and relays it to every other interested client.
func (s *Server) storeLocked(t *Topic, v value.Value, from *client) {
	t.Value = v
	t.HasValue = true
	t.Timestamp = time.Now().UnixMicro()

	for _, c := range s.clients {
		if c == from || !c.wantsValues(t.Name) {
			continue
		}
		s.announceLocked(c, t, nil)
		s.sendValueLocked(c, t)
	}
}

func (s *Server) announceLocked(c *client, t *Topic, pubUID *int32) {
	if c.announced[t.ID] {
		return
	}
	c.announced[t.ID] = true
	s.sendLocked(c, wire.KindAnnounce, wire.Announce{Name: t.Name, ID: t.ID, Type: t.Type, PubUID: pubUID})
}

func (s *Server) sendValueLocked(c *client, t *Topic) {
	s.sendLocked(c, wire.KindValue, wire.Value{ID: t.ID, Timestamp: t.Timestamp, Type: t.Type, Value: t.Value})
}

func (s *Server) sendLocked(c *client, kind wire.Kind, body any) {
	data, err := wire.Encode(kind, body)
	if err != nil {
		s.logger.Error("encode frame", "kind", kind, "error", err)
		return
	}
	if err := c.conn.Send(data); err != nil {
		s.logger.Debug("send failed", "conn_id", c.conn.ConnID(), "kind", kind, "error", err)
		return
	}
	if s.capture != nil {
		s.capture.Log(log.WireEvent(c.conn.ConnID(), log.RoleServer, log.DirectionOut, data))
	}
}

func (s *Server) sortedNamesLocked() []string {
	names := make([]string, 0, len(s.topics))
	for name := range s.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
