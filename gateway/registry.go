package gateway

import (
	"fmt"
	"sync"
)

// Registry manages all payment gateway implementations.
type Registry struct {
	factories map[string]AdapterFactory
	mu        sync.RWMutex
}

// NewRegistry creates a new gateway registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]AdapterFactory),
	}
}

// Register adds a gateway adapter factory to the registry.
func (r *Registry) Register(name string, factory AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get retrieves a gateway adapter factory by provider tag.
func (r *Registry) Get(name string) (AdapterFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q is not registered", ErrUnsupportedProvider, name)
	}

	return factory, nil
}

// Names returns a list of all registered provider tags.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	return names
}

// DefaultRegistry is the global default gateway registry.
var DefaultRegistry = NewRegistry()

// Register registers an adapter factory with the default registry.
func Register(name string, factory AdapterFactory) {
	DefaultRegistry.Register(name, factory)
}
