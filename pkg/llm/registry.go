package llm

import (
	"fmt"
	"sort"
	"sync"

	pkgerrors "github.com/flowwright/flowwright/pkg/errors"
)

// Factory is a function that creates a new Provider instance from
// authentication configuration.
type Factory func(creds Credentials) (Provider, error)

// Registry maps provider names to factories. Factories register at import
// time (in init() functions); providers are instantiated on demand once
// configuration is known. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// RegisterFactory registers a provider factory under a name. Registering the
// same name twice overwrites the previous factory (idempotent).
func (r *Registry) RegisterFactory(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// New instantiates a provider from its registered factory.
// Returns NotFoundError if no factory is registered under that name.
func (r *Registry) New(name string, creds Credentials) (Provider, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, &pkgerrors.NotFoundError{
			Resource: "provider",
			ID:       name,
		}
	}

	provider, err := factory(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
	}
	return provider, nil
}

// HasFactory returns true if a factory is registered for the given name.
func (r *Registry) HasFactory(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// ListFactories returns the names of all registered provider factories,
// sorted alphabetically.
func (r *Registry) ListFactories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// globalRegistry is the default global registry instance.
var globalRegistry = NewRegistry()

// RegisterFactory registers a provider factory in the global registry.
// This is typically called from init() functions in provider packages.
func RegisterFactory(name string, factory Factory) {
	globalRegistry.RegisterFactory(name, factory)
}

// New instantiates a provider from the global registry.
func New(name string, creds Credentials) (Provider, error) {
	return globalRegistry.New(name, creds)
}

// HasFactory returns true if a factory is registered for the name in the
// global registry.
func HasFactory(name string) bool {
	return globalRegistry.HasFactory(name)
}

// ListFactories returns all registered factory names from the global registry.
func ListFactories() []string {
	return globalRegistry.ListFactories()
}
