package callback

import (
	"context"
	"fmt"
	"sync"
)

// HandlerContext is the view of a record handed to an application handler.
type HandlerContext struct {
	Token     string
	GraphType string
	Handler   string
	UserID    string
	Params    map[string]any
	Metadata  Metadata
}

// HandlerFunc executes one redemption. The returned value is serialized
// into the redemption result.
type HandlerFunc func(ctx context.Context, hc HandlerContext) (any, error)

// Registry is the process-local directory of handlers, keyed by
// (graph type, handler name). It is populated once at startup and
// passed explicitly to every consumer.
type Registry struct {
	mu       sync.RWMutex
	handlers map[registryKey]HandlerFunc
}

type registryKey struct {
	graphType string
	handler   string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[registryKey]HandlerFunc)}
}

// Register adds a handler under the given graph type and name.
// Registering the same pair twice is a wiring mistake and fails.
func (r *Registry) Register(graphType, name string, fn HandlerFunc) error {
	if graphType == "" || name == "" {
		return fmt.Errorf("graph type and handler name are required")
	}
	if fn == nil {
		return fmt.Errorf("handler %s/%s is nil", graphType, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{graphType: graphType, handler: name}
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("handler %s/%s already registered", graphType, name)
	}
	r.handlers[key] = fn
	return nil
}

// Get looks up a handler. The second return value reports whether the
// handler exists.
func (r *Registry) Get(graphType, name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.handlers[registryKey{graphType: graphType, handler: name}]
	return fn, ok
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
