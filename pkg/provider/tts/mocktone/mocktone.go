// Package mocktone provides a dependency-free TTS provider that renders an
// utterance as a sequence of pitched sine tones, one per character. It
// exists so the full gateway pipeline (admission, queueing, transcoding,
// framing) can be exercised end to end without a synthesis backend.
package mocktone

import (
	"context"
	"math"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// ProviderID is the identifier this provider registers under.
const ProviderID = "mock_tone"

// DefaultVoiceID is the single voice the provider offers.
const DefaultVoiceID = "en-US-mock-1"

// Tone shape: each character becomes an 80 ms tone followed by a 20 ms
// gap. The pitch is derived from the character's code point, two octaves
// around a 220 Hz base.
const (
	baseFreqHz = 220.0
	gain       = 0.2
	charMs     = 80
	gapMs      = 20

	// chunkMs is the duration of each emitted chunk (~100 ms of audio).
	chunkMs = 100
)

// Provider implements [tts.Provider] with locally generated tones.
type Provider struct {
	sampleRateHz int
	voices       []tts.Voice
}

var _ tts.Provider = (*Provider)(nil)

// New creates a mock tone provider emitting mono pcm16 at sampleRateHz.
// A non-positive rate defaults to 16 kHz.
func New(sampleRateHz int) *Provider {
	if sampleRateHz <= 0 {
		sampleRateHz = 16000
	}
	return &Provider{
		sampleRateHz: sampleRateHz,
		voices: []tts.Voice{{
			ID:           DefaultVoiceID,
			Name:         "Mock Tone Voice",
			Language:     "en-US",
			SampleRateHz: sampleRateHz,
			BaseFormat:   audio.FormatPCM16,
			Provider:     ProviderID,
		}},
	}
}

// ID returns "mock_tone".
func (p *Provider) ID() string { return ProviderID }

// ListVoices returns the single built-in voice.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, len(p.voices))
	copy(out, p.voices)
	return out, nil
}

// Synthesize renders req.Text to PCM and streams it in ~100 ms chunks.
// Rendering happens up front; the chunk sequence is replayed lazily so the
// consumer controls pacing.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan tts.Result, error) {
	pcm := p.render(req.Text)

	bytesPerSecond := p.sampleRateHz * 2
	chunkSize := bytesPerSecond * chunkMs / 1000
	if chunkSize <= 0 {
		chunkSize = 1024
	}

	ch := make(chan tts.Result)
	go func() {
		defer close(ch)
		for offset := 0; offset < len(pcm); offset += chunkSize {
			end := offset + chunkSize
			if end > len(pcm) {
				end = len(pcm)
			}
			chunk := audio.Chunk{
				Data:         pcm[offset:end],
				Format:       audio.FormatPCM16,
				SampleRateHz: p.sampleRateHz,
				Channels:     1,
			}
			select {
			case <-ctx.Done():
				return
			case ch <- tts.Result{Chunk: chunk}:
			}
		}
	}()
	return ch, nil
}

// render maps each rune to a tone and concatenates the results as pcm16.
func (p *Provider) render(text string) []byte {
	charSamples := p.sampleRateHz * charMs / 1000
	gapSamples := p.sampleRateHz * gapMs / 1000

	runes := []rune(text)
	out := make([]int16, 0, len(runes)*(charSamples+gapSamples))

	for _, r := range runes {
		semitone := float64(int(r)%24 - 12)
		freq := baseFreqHz * math.Pow(2, semitone/12)

		for i := range charSamples {
			v := gain * math.Sin(2*math.Pi*freq*float64(i)/float64(p.sampleRateHz))
			out = append(out, floatToInt16(v))
		}
		for range gapSamples {
			out = append(out, 0)
		}
	}
	return audio.Int16sToBytes(out)
}

func floatToInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}
