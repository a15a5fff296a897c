package writecache

import (
	"sort"
	"sync"

	"github.com/ntbridge/ntbridge-go/pkg/value"
)

// Entry is one pending write.
type Entry struct {
	Topic string
	Value value.Value
}

// Cache holds the latest value written to each topic while disconnected.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	pending map[string]value.Value
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		pending: make(map[string]value.Value),
	}
}

// Put stores v as the pending value for topic, replacing any earlier one.
func (c *Cache) Put(topic string, v value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[topic] = v
}

// Get returns the pending value for topic.
func (c *Cache) Get(topic string) (value.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.pending[topic]
	return v, ok
}

// Len returns the number of pending topics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Entries returns a copy of the pending writes sorted by topic.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedEntries(c.pending)
}

// Drain removes and returns every pending write, sorted by topic.
func (c *Cache) Drain() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := sortedEntries(c.pending)
	c.pending = make(map[string]value.Value)
	return entries
}

func sortedEntries(m map[string]value.Value) []Entry {
	entries := make([]Entry, 0, len(m))
	for topic, v := range m {
		entries = append(entries, Entry{Topic: topic, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Topic < entries[j].Topic
	})
	return entries
}
