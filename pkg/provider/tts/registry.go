package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownProvider is returned by [Registry.Get] for an unregistered id.
var ErrUnknownProvider = errors.New("tts: unknown provider")

// ErrUnknownVoice is returned by [Registry.FindVoice] when no registered
// provider offers the requested voice.
var ErrUnknownVoice = errors.New("tts: unknown voice")

// Registry resolves provider identifiers to [Provider] instances and
// aggregates their voice catalogues. It is safe for concurrent use;
// registration normally happens once at startup.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]Provider
}

// NewRegistry creates a [Registry] pre-populated with the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds p under its ID, replacing any previous registration.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.ID()]; !ok {
		r.order = append(r.order, p.ID())
	}
	r.providers[p.ID()] = p
}

// Get resolves id to a registered provider.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

// List returns all registered providers in registration order.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// ListVoices aggregates the catalogues of all registered providers, in
// registration order, stamping each voice with its owning provider id.
func (r *Registry) ListVoices(ctx context.Context) ([]Voice, error) {
	var voices []Voice
	for _, p := range r.List() {
		vs, err := p.ListVoices(ctx)
		if err != nil {
			return nil, fmt.Errorf("tts: list voices for %q: %w", p.ID(), err)
		}
		for _, v := range vs {
			if v.Provider == "" {
				v.Provider = p.ID()
			}
			voices = append(voices, v)
		}
	}
	return voices, nil
}

// FindVoice locates voiceID across all registered catalogues. Returns
// [ErrUnknownVoice] when no provider offers it.
func (r *Registry) FindVoice(ctx context.Context, voiceID string) (Voice, error) {
	voices, err := r.ListVoices(ctx)
	if err != nil {
		return Voice{}, err
	}
	for _, v := range voices {
		if v.ID == voiceID {
			return v, nil
		}
	}
	return Voice{}, fmt.Errorf("%w: %q", ErrUnknownVoice, voiceID)
}
