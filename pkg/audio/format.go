// Package audio provides the wire-format vocabulary and transcoding
// primitives used by the voxgate streaming pipeline.
//
// Providers emit [Chunk] values in their base encoding (pcm16 in this
// system); a [Transcoder] converts each chunk into the encoding and sample
// rate the client requested. All PCM data is little-endian int16, mono
// unless stated otherwise.
package audio

// Format identifies an audio encoding carried through the gateway.
type Format string

const (
	// FormatPCM16 is raw little-endian signed 16-bit PCM.
	FormatPCM16 Format = "pcm16"

	// FormatWAV is raw PCM16 frames streamed without a RIFF container
	// header. A self-contained WAV file is out of scope for the streaming
	// path; clients that need one must assemble it themselves.
	FormatWAV Format = "wav"

	// FormatMulaw is G.711 µ-law, 8 bits per sample.
	FormatMulaw Format = "mulaw"

	// FormatOpus is a sequence of Opus packets, each prefixed with a
	// 2-byte big-endian length so the stream can be split back into
	// packets (Opus packets are not self-delimiting).
	FormatOpus Format = "opus"

	// FormatMP3 is MPEG-1 Layer III produced by an external encoder.
	FormatMP3 Format = "mp3"
)

// Formats lists every encoding the transcoder can produce from a pcm16
// base, in stable order.
func Formats() []Format {
	return []Format{FormatPCM16, FormatWAV, FormatMulaw, FormatOpus, FormatMP3}
}

// IsValid reports whether f is a recognised target encoding.
func (f Format) IsValid() bool {
	switch f {
	case FormatPCM16, FormatWAV, FormatMulaw, FormatOpus, FormatMP3:
		return true
	}
	return false
}

// Chunk is an immutable slice of audio produced by a provider. It is
// consumed at most once by the pipeline.
type Chunk struct {
	// Data holds the encoded samples.
	Data []byte

	// Format is the encoding of Data.
	Format Format

	// SampleRateHz is the sample rate of Data.
	SampleRateHz int

	// Channels is the channel count. Providers in this system emit mono.
	Channels int
}
