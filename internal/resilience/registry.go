package resilience

import "sync"

// Registry hands out one [CircuitBreaker] per provider id, all sharing the
// same configuration. Breakers are created lazily on first use so providers
// registered at runtime are covered without extra wiring.
type Registry struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a [Registry] whose breakers use cfg. The config's
// Name field is overridden per provider.
func NewRegistry(cfg CircuitBreakerConfig) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker guarding the given provider, creating it if
// needed.
func (r *Registry) For(provider string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[provider]
	if !ok {
		cfg := r.cfg
		cfg.Name = provider
		cb = NewCircuitBreaker(cfg)
		r.breakers[provider] = cb
	}
	return cb
}

// States returns a snapshot of every known breaker's state keyed by
// provider id.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.breakers))
	for provider, cb := range r.breakers {
		out[provider] = cb.State()
	}
	return out
}
