package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a synthesis provider from the loaded configuration.
type Factory func(cfg *Config) (tts.Provider, error)

// Registry maps provider names to their constructor functions. It lets the
// server enumerate enabled providers without hard-wiring every adapter into
// main. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers a provider factory under name. Subsequent calls with
// the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the provider registered under name.
// Returns [ErrProviderNotRegistered] for unknown names.
func (r *Registry) Create(name string, cfg *Config) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}

// EnabledProviders returns the names of providers the configuration turns
// on, in a stable order.
func (cfg *Config) EnabledProviders() []string {
	var names []string
	if cfg.Providers.MockTone.IsEnabled() {
		names = append(names, "mock_tone")
	}
	if cfg.Providers.Coqui.Enabled {
		names = append(names, "coqui")
	}
	return names
}
