package event

import (
	"sync"

	"github.com/clinic/backend/internal/domain/shared"
)

// routes maps an event type to its subscribed handlers in subscription order.
type routes struct {
	mu     sync.RWMutex
	byType map[string][]shared.EventHandler
}

func newRoutes() *routes {
	return &routes{byType: make(map[string][]shared.EventHandler)}
}

// add subscribes handler to each type once; repeated subscriptions are ignored
func (r *routes) add(handler shared.EventHandler, eventTypes []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range eventTypes {
		if containsHandler(r.byType[t], handler) {
			continue
		}
		r.byType[t] = append(r.byType[t], handler)
	}
}

// lookup returns a snapshot safe to iterate without the lock
func (r *routes) lookup(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]shared.EventHandler(nil), r.byType[eventType]...)
}

func containsHandler(handlers []shared.EventHandler, target shared.EventHandler) bool {
	for _, h := range handlers {
		if h == target {
			return true
		}
	}
	return false
}
