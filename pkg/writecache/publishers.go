package writecache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ntbridge/ntbridge-go/pkg/protocol"
	"github.com/ntbridge/ntbridge-go/pkg/value"
)

// ErrPublish wraps protocol failures while creating a publisher or sending a value.
var ErrPublish = errors.New("publish failed")

// Publishers maps topic names to the publication handles of one connection.
// It is safe for concurrent use.
type Publishers struct {
	mu      sync.Mutex
	handles map[string]protocol.Publisher
}

// NewPublishers creates an empty publisher registry.
func NewPublishers() *Publishers {
	return &Publishers{
		handles: make(map[string]protocol.Publisher),
	}
}

// Reset forgets every handle. Call it when the connection is replaced.
func (p *Publishers) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handles = make(map[string]protocol.Publisher)
}

// Len returns the number of known publishers.
func (p *Publishers) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Get returns the handle for topic, if one was created.
func (p *Publishers) Get(topic string) (protocol.Publisher, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pub, ok := p.handles[topic]
	return pub, ok
}

// Publish sends v to topic through client, creating the topic's publisher
// on first use. created reports whether a new publisher was announced.
func (p *Publishers) Publish(ctx context.Context, client protocol.Client, topic string, v value.Value, typ value.Type) (created bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pub, exists := p.handles[topic]
	if !exists {
		pub, err = client.PublishTopic(ctx, topic, typ)
		if err != nil {
			return false, fmt.Errorf("%w: create publisher for %q: %v", ErrPublish, topic, err)
		}
		p.handles[topic] = pub
		created = true
	}

	if err := client.PublishValue(ctx, pub, v); err != nil {
		return created, fmt.Errorf("%w: write %q: %v", ErrPublish, topic, err)
	}
	return created, nil
}

// Flush drains cache and publishes every entry through client. Failures on
// individual topics do not stop the replay; they are joined into the
// returned error. The number of entries published successfully is returned.
func Flush(ctx context.Context, client protocol.Client, cache *Cache, pubs *Publishers) (int, error) {
	var (
		published int
		errs      []error
	)

	for _, entry := range cache.Drain() {
		typ, err := value.TypeOf(entry.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%q: %w", entry.Topic, err))
			continue
		}
		if _, err := pubs.Publish(ctx, client, entry.Topic, entry.Value, typ); err != nil {
			errs = append(errs, err)
			continue
		}
		published++
	}

	return published, errors.Join(errs...)
}
