// Package tts defines the Provider contract for Text-to-Speech backends
// multiplexed by the voxgate gateway.
//
// A provider wraps one synthesis backend (the built-in tone generator, a
// local Coqui server, a cloud API) and presents a uniform interface: a
// voice catalogue plus a lazy, finite stream of audio chunks for a single
// utterance. The gateway owns transcoding and transport framing; providers
// only emit chunks in their base encoding (pcm16 in this system).
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel on different gateway workers.
package tts

import (
	"context"

	"github.com/MrWong99/voxgate/pkg/audio"
)

// Voice is an immutable catalogue entry describing one synthesis voice.
type Voice struct {
	// ID is the provider-specific voice identifier (e.g. "en-US-mock-1").
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is the BCP-47 language tag of the voice.
	Language string

	// SampleRateHz is the native output rate of the voice.
	SampleRateHz int

	// BaseFormat is the encoding the provider natively emits.
	BaseFormat audio.Format

	// Provider is the owning provider's ID. Stamped by the [Registry] when
	// aggregating catalogues.
	Provider string
}

// Request describes a single utterance to synthesise.
type Request struct {
	// Text is the utterance. Never empty — the gateway validates at
	// admission.
	Text string

	// VoiceID selects the voice from the provider's catalogue.
	VoiceID string

	// Language optionally overrides the voice's language tag. Providers
	// that do not support per-request languages may ignore it.
	Language string
}

// Result is one element of a synthesis stream: either a chunk or a
// terminal error. After an element with a non-nil Err the channel is
// closed and no further elements follow.
type Result struct {
	Chunk audio.Chunk
	Err   error
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// ID returns the stable provider identifier used in session requests
	// and metrics (e.g. "mock_tone", "coqui").
	ID() string

	// ListVoices returns the voices this provider currently offers.
	ListVoices(ctx context.Context) ([]Voice, error)

	// Synthesize starts synthesis of one utterance and returns a channel
	// of results. The channel is closed after the final chunk (natural
	// exhaustion) or after a single terminal error element. Cancelling ctx
	// stops synthesis; the implementation closes the channel promptly.
	//
	// A non-nil error return means the stream could not be started at all
	// (bad voice, unreachable backend). The caller must drain the channel
	// or cancel ctx to release provider resources.
	Synthesize(ctx context.Context, req Request) (<-chan Result, error)
}
