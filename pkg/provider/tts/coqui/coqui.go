// Package coqui provides a TTS provider backed by a standard Coqui TTS
// server (ghcr.io/coqui-ai/tts-cpu) reached over its REST API. It
// implements the tts.Provider interface for the voxgate gateway.
//
// The server operates in batch mode: one GET /api/tts call per utterance
// returning a WAV body. Synthesize therefore performs a single HTTP call,
// strips the RIFF container, and replays the raw PCM as a sequence of
// fixed-size chunks so downstream transcoding and framing behave exactly
// as they do for genuinely streaming providers.
//
// Typical usage:
//
//	p := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	ch, err := p.Synthesize(ctx, tts.Request{Text: "hello", VoiceID: "coqui-en-1"})
package coqui

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// ProviderID is the identifier this provider registers under.
const ProviderID = "coqui"

const (
	defaultLanguage   = "en"
	defaultTimeout    = 30 * time.Second
	defaultSampleRate = 22050

	apiTTSEndpoint  = "/api/tts"
	detailsEndpoint = "/details"

	// pcmChunkSize is the size of each PCM chunk emitted on the result
	// channel (~93 ms of audio at 22.05 kHz mono pcm16).
	pcmChunkSize = 4096
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code reported for the voice
// catalogue (e.g., "en", "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS
// server. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithModelName sets the model name reported in the voice catalogue when
// the server's /details endpoint is unavailable.
func WithModelName(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.modelName = name
		}
	}
}

// Provider talks to a standard Coqui TTS server.
type Provider struct {
	baseURL    string
	language   string
	modelName  string
	httpClient *http.Client
}

// New creates a Coqui provider targeting serverURL (e.g.
// "http://localhost:5002").
func New(serverURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		modelName:  "coqui-tts",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ID returns "coqui".
func (p *Provider) ID() string { return ProviderID }

// ListVoices queries GET /details for the loaded model and falls back to a
// single static catalogue entry when the endpoint is unavailable, so a
// plain server still exposes one usable voice.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	name := p.modelName
	rate := defaultSampleRate

	if details, err := p.fetchDetails(ctx); err == nil {
		if details.ModelName != "" {
			name = details.ModelName
		}
		if details.SampleRate > 0 {
			rate = details.SampleRate
		}
	}

	return []tts.Voice{{
		ID:           "coqui-" + p.language + "-1",
		Name:         "Coqui " + name,
		Language:     p.language,
		SampleRateHz: rate,
		BaseFormat:   audio.FormatPCM16,
		Provider:     ProviderID,
	}}, nil
}

// Synthesize performs one batch synthesis call and replays the PCM result
// as pcmChunkSize chunks. The channel is closed after the final chunk or
// after a terminal error element.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan tts.Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("coqui: text must not be empty")
	}

	ch := make(chan tts.Result)
	go func() {
		defer close(ch)

		pcm, rate, err := p.synthesize(ctx, req.Text)
		if err != nil {
			select {
			case <-ctx.Done():
			case ch <- tts.Result{Err: err}:
			}
			return
		}

		for offset := 0; offset < len(pcm); offset += pcmChunkSize {
			end := offset + pcmChunkSize
			if end > len(pcm) {
				end = len(pcm)
			}
			chunk := audio.Chunk{
				Data:         pcm[offset:end],
				Format:       audio.FormatPCM16,
				SampleRateHz: rate,
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

// synthesize calls GET /api/tts and returns the raw PCM (WAV header
// stripped) together with the server-reported sample rate.
func (p *Provider) synthesize(ctx context.Context, text string) ([]byte, int, error) {
	q := url.Values{}
	q.Set("text", text)

	reqURL := p.baseURL + apiTTSEndpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: build synthesis request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("coqui: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: read WAV response: %w", err)
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, 0, err
	}
	return wav[info.DataOffset:], info.SampleRate, nil
}

// serverDetails is the subset of GET /details this provider consumes.
type serverDetails struct {
	ModelName  string
	SampleRate int
}

func (p *Provider) fetchDetails(ctx context.Context) (serverDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+detailsEndpoint, nil)
	if err != nil {
		return serverDetails{}, fmt.Errorf("coqui: build details request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return serverDetails{}, fmt.Errorf("coqui: details request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverDetails{}, fmt.Errorf("coqui: details returned %d", resp.StatusCode)
	}

	// The details payload shape varies across server versions; scrape only
	// the fields we need and tolerate everything else.
	var raw struct {
		ModelName string `json:"model_name"`
		Audio     struct {
			SampleRate int `json:"sample_rate"`
		} `json:"audio"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return serverDetails{}, fmt.Errorf("coqui: decode details: %w", err)
	}
	return serverDetails{ModelName: raw.ModelName, SampleRate: raw.Audio.SampleRate}, nil
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int
	SampleRate int
	Channels   int
}

// parseWAV scans the RIFF/WAVE container in wav and returns the data
// offset and format metadata. Returns an error if wav is not a valid
// RIFF/WAVE container or the data chunk is missing.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt chunk should appear before data, but be defensive.
				info.SampleRate = defaultSampleRate
				info.Channels = 1
			}
			return info, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}
