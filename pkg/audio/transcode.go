package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrUnsupportedTarget is returned by [NewTranscoder] when the requested
// target encoding or sample rate cannot be produced.
var ErrUnsupportedTarget = errors.New("audio: unsupported transcode target")

// ErrBadSource is returned by [Transcoder.Transcode] when a chunk is not in
// the pcm16 base encoding every provider in this system emits.
var ErrBadSource = errors.New("audio: source chunk is not pcm16")

// Target describes the encoding and sample rate a client requested.
type Target struct {
	Format       Format
	SampleRateHz int
}

// Transcoder converts provider chunks into a single target encoding.
//
// A Transcoder carries per-stream codec state (the Opus encoder), so create
// one per session and do not share it across goroutines. Each Transcode
// call is independent of the transport: the caller decides when the result
// is framed and sent.
type Transcoder interface {
	// Transcode converts one chunk to the target encoding. The input must
	// be mono pcm16. Compressed targets may buffer a partial codec frame;
	// the remainder is carried into the next call.
	Transcode(ctx context.Context, chunk Chunk) ([]byte, error)

	// Flush drains codec state buffered across Transcode calls and returns
	// the final partial frame, if any. Call exactly once, after the last
	// chunk. PCM and per-chunk targets return nil.
	Flush() ([]byte, error)
}

// TranscoderOption configures [NewTranscoder].
type TranscoderOption func(*transcoder)

// WithFFmpegPath overrides the ffmpeg binary used for mp3 encoding.
// Defaults to "ffmpeg" resolved via PATH.
func WithFFmpegPath(path string) TranscoderOption {
	return func(t *transcoder) {
		if path != "" {
			t.ffmpegPath = path
		}
	}
}

type transcoder struct {
	target     Target
	ffmpegPath string

	// opus is created eagerly in NewTranscoder so an unsupported rate is
	// rejected before the session starts streaming.
	opus *OpusEncoder
}

// NewTranscoder creates a [Transcoder] for the given target. It returns
// [ErrUnsupportedTarget] for unknown formats, non-positive sample rates,
// and Opus targets at rates the codec does not accept.
func NewTranscoder(target Target, opts ...TranscoderOption) (Transcoder, error) {
	if !target.Format.IsValid() {
		return nil, fmt.Errorf("%w: format %q", ErrUnsupportedTarget, target.Format)
	}
	if target.SampleRateHz <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrUnsupportedTarget, target.SampleRateHz)
	}

	t := &transcoder{
		target:     target,
		ffmpegPath: "ffmpeg",
	}
	for _, o := range opts {
		o(t)
	}

	if target.Format == FormatOpus {
		enc, err := NewOpusEncoder(target.SampleRateHz)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedTarget, err)
		}
		t.opus = enc
	}
	return t, nil
}

func (t *transcoder) Transcode(ctx context.Context, chunk Chunk) ([]byte, error) {
	if chunk.Format != FormatPCM16 {
		return nil, fmt.Errorf("%w: got %q", ErrBadSource, chunk.Format)
	}

	pcm := ResampleMono16(chunk.Data, chunk.SampleRateHz, t.target.SampleRateHz)

	switch t.target.Format {
	case FormatPCM16, FormatWAV:
		// wav targets stream raw PCM frames without a container header.
		return pcm, nil
	case FormatMulaw:
		return PCMToMulaw(pcm), nil
	case FormatOpus:
		return t.opus.Encode(pcm)
	case FormatMP3:
		return t.encodeMP3(ctx, pcm)
	default:
		return nil, fmt.Errorf("%w: format %q", ErrUnsupportedTarget, t.target.Format)
	}
}

// Flush drains the Opus encoder's pending partial frame. All other
// targets are stateless per chunk.
func (t *transcoder) Flush() ([]byte, error) {
	if t.opus != nil {
		return t.opus.Flush()
	}
	return nil, nil
}

// encodeMP3 shells out to ffmpeg for one independent chunk conversion.
// Spawning a process per chunk trades throughput for error isolation: a
// wedged encoder can only take down its own chunk, and the context bounds
// the call.
func (t *transcoder) encodeMP3(ctx context.Context, pcm []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", t.target.SampleRateHz),
		"-ac", "1",
		"-i", "pipe:0",
		"-f", "mp3",
		"-b:a", "64k",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(pcm)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return nil, fmt.Errorf("audio: ffmpeg mp3 encode: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("audio: ffmpeg mp3 encode: %w", err)
	}
	return out.Bytes(), nil
}
