package subscription

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotSubscribed is returned when unsubscribing from a topic with no
// recorded interest.
var ErrNotSubscribed = errors.New("not subscribed to topic")

// Registry is a reference-counted set of topic names.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	counts map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counts: make(map[string]int),
	}
}

// Subscribe records one more subscriber for topic and returns the new count.
func (r *Registry) Subscribe(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[topic]++
	return r.counts[topic]
}

// Unsubscribe removes one subscriber for topic and returns the remaining
// count. The topic is forgotten when the count reaches zero.
func (r *Registry) Unsubscribe(topic string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, exists := r.counts[topic]
	if !exists {
		return 0, ErrNotSubscribed
	}

	if count <= 1 {
		delete(r.counts, topic)
		return 0, nil
	}
	r.counts[topic] = count - 1
	return count - 1, nil
}

// IsSubscribed reports whether topic has at least one subscriber.
func (r *Registry) IsSubscribed(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.counts[topic]
	return exists
}

// Count returns the number of subscribers for topic.
func (r *Registry) Count(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[topic]
}

// Len returns the number of distinct subscribed topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.counts)
}

// Topics returns the subscribed topic names in sorted order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	topics := make([]string, 0, len(r.counts))
	for topic := range r.counts {
		topics = append(topics, topic)
	}
	r.mu.RUnlock()

	sort.Strings(topics)
	return topics
}
