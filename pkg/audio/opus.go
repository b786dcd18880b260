package audio

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// Opus frames are fixed at 20 ms of mono audio. Each encoded packet is
// written with a 2-byte big-endian length prefix so that consumers can
// split the byte stream back into packets.
const (
	opusFrameMs = 20

	// opusMaxPacket bounds the encoder output buffer per frame.
	opusMaxPacket = 4000
)

// opusRates lists the sample rates the Opus codec accepts.
var opusRates = map[int]bool{
	8000:  true,
	12000: true,
	16000: true,
	24000: true,
	48000: true,
}

// OpusRateSupported reports whether rate is a legal Opus sample rate.
func OpusRateSupported(rate int) bool {
	return opusRates[rate]
}

// OpusEncoder converts mono pcm16 data at a fixed sample rate into
// length-prefixed Opus packets. Encoder state spans calls, so use one
// instance per audio stream. Not safe for concurrent use.
type OpusEncoder struct {
	enc       *gopus.Encoder
	rate      int
	frameSize int // samples per 20 ms frame

	// pending carries a partial frame between Encode calls.
	pending []int16
}

// NewOpusEncoder creates an encoder for mono audio at the given sample
// rate. The rate must be one of 8000, 12000, 16000, 24000 or 48000 Hz.
func NewOpusEncoder(rate int) (*OpusEncoder, error) {
	if !OpusRateSupported(rate) {
		return nil, fmt.Errorf("audio: opus does not support %d Hz", rate)
	}
	enc, err := gopus.NewEncoder(rate, 1, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{
		enc:       enc,
		rate:      rate,
		frameSize: rate * opusFrameMs / 1000,
	}, nil
}

// Encode consumes little-endian pcm16 bytes and returns zero or more
// length-prefixed Opus packets. Samples that do not fill a whole 20 ms
// frame are buffered for the next call; call [OpusEncoder.Flush] at end of
// stream to drain them.
func (e *OpusEncoder) Encode(pcm []byte) ([]byte, error) {
	e.pending = append(e.pending, BytesToInt16s(pcm)...)

	var out []byte
	for len(e.pending) >= e.frameSize {
		frame := e.pending[:e.frameSize]
		e.pending = e.pending[e.frameSize:]

		pkt, err := e.enc.Encode(frame, e.frameSize, opusMaxPacket)
		if err != nil {
			return nil, fmt.Errorf("audio: opus encode: %w", err)
		}
		out = appendOpusPacket(out, pkt)
	}
	return out, nil
}

// Flush encodes any buffered partial frame, padded with silence, and
// returns the resulting packet. Returns nil when nothing is buffered.
func (e *OpusEncoder) Flush() ([]byte, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	frame := make([]int16, e.frameSize)
	copy(frame, e.pending)
	e.pending = e.pending[:0]

	pkt, err := e.enc.Encode(frame, e.frameSize, opusMaxPacket)
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return appendOpusPacket(nil, pkt), nil
}

func appendOpusPacket(dst, pkt []byte) []byte {
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(pkt)))
	dst = append(dst, hdr[:]...)
	return append(dst, pkt...)
}
