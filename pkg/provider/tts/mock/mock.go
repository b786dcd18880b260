// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled chunk sequences to the pipeline and to
// verify the requests a consumer passes to the backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Chunks: []audio.Chunk{{Data: []byte("a"), Format: audio.FormatPCM16, SampleRateHz: 16000}},
//	    Voices: []tts.Voice{{ID: "v1", Name: "Test"}},
//	}
//	ch, _ := p.Synthesize(ctx, tts.Request{Text: "hi", VoiceID: "v1"})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// IDValue is returned by ID. Defaults to "mock" when empty.
	IDValue string

	// Chunks is the sequence emitted on the channel returned by Synthesize.
	Chunks []audio.Chunk

	// StreamErr, if non-nil, is emitted as a terminal Result element after
	// Chunks, simulating a mid-stream provider failure.
	StreamErr error

	// SynthesizeErr, if non-nil, is returned as the error from every
	// Synthesize call.
	SynthesizeErr error

	// FailStarts makes the first N Synthesize calls return StartErr, after
	// which calls succeed. Used to exercise retry paths.
	FailStarts int

	// StartErr is the error returned while FailStarts is positive.
	StartErr error

	// ChunkDelay, if non-zero, is slept before each chunk is emitted.
	// Used to exercise per-pull timeouts.
	ChunkDelay time.Duration

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// ID returns IDValue, or "mock" when unset.
func (p *Provider) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.IDValue == "" {
		return "mock"
	}
	return p.IDValue
}

// ListVoices returns Voices, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Voice, len(p.Voices))
	copy(out, p.Voices)
	return out, p.ListVoicesErr
}

// Synthesize records the call and, unless configured to fail, returns a
// channel that emits Chunks (then StreamErr, if set) and closes.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan tts.Result, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})

	if p.FailStarts > 0 {
		p.FailStarts--
		err := p.StartErr
		p.mu.Unlock()
		return nil, err
	}
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}

	chunks := make([]audio.Chunk, len(p.Chunks))
	copy(chunks, p.Chunks)
	streamErr := p.StreamErr
	delay := p.ChunkDelay
	p.mu.Unlock()

	ch := make(chan tts.Result)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			if delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- tts.Result{Chunk: c}:
			}
		}
		if streamErr != nil {
			select {
			case <-ctx.Done():
			case ch <- tts.Result{Err: streamErr}:
			}
		}
	}()
	return ch, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
