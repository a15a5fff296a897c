package session

import (
	"github.com/ntbridge/ntbridge-go/pkg/subscription"
	"github.com/ntbridge/ntbridge-go/pkg/writecache"
)

// State is the mutable state shared between the Manager and its routers.
// Each part carries its own lock.
type State struct {
	Subscriptions *subscription.Registry
	Publishers    *writecache.Publishers
	Cache         *writecache.Cache
}

// NewState creates empty state.
func NewState() *State {
	return &State{
		Subscriptions: subscription.NewRegistry(),
		Publishers:    writecache.NewPublishers(),
		Cache:         writecache.NewCache(),
	}
}
