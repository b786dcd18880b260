// Package stream implements the per-session synthesis pipeline and the
// bounded work queue that feeds it.
//
// A session's audio travels provider → transcoder → framed transport, one
// chunk at a time. The pipeline guarantees a strictly monotonic audio frame
// sequence followed by exactly one terminal frame (eos or error) per
// transport. Admission control (queue capacity, circuit breaker) and the
// retry policy live here; the HTTP/WebSocket surface in internal/gateway
// only adapts connections into [Transport] values.
package stream

import "context"

// FrameType discriminates the JSON frame envelope.
type FrameType string

const (
	// FrameAudio carries one transcoded audio chunk.
	FrameAudio FrameType = "audio"

	// FrameEos is the terminal success frame.
	FrameEos FrameType = "eos"

	// FrameError is the terminal failure frame. The server closes the
	// transport after sending it.
	FrameError FrameType = "error"
)

// Frame is one transport message. Exactly one frame per message, JSON
// encoded; Data is base64 on the wire via encoding/json.
type Frame struct {
	Type    FrameType `json:"type"`
	Seq     int       `json:"seq,omitempty"`
	Data    []byte    `json:"data,omitempty"`
	Code    int       `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

// AudioFrame builds an audio frame. seq starts at 1 and increments by 1
// per successfully sent frame.
func AudioFrame(seq int, payload []byte) Frame {
	return Frame{Type: FrameAudio, Seq: seq, Data: payload}
}

// EosFrame builds the terminal success frame.
func EosFrame() Frame {
	return Frame{Type: FrameEos}
}

// ErrorFrame builds a terminal failure frame with an HTTP-style code and a
// short machine-readable message.
func ErrorFrame(code int, message string) Frame {
	return Frame{Type: FrameError, Code: code, Message: message}
}

// CloseCode is a websocket close status sent when the server ends a
// transport.
type CloseCode int

const (
	// CloseNormal ends a successfully completed or client-cancelled stream.
	CloseNormal CloseCode = 1000

	// CloseInternalError ends a stream that failed server-side.
	CloseInternalError CloseCode = 1011

	// CloseTryAgainLater signals overload or shutdown; the caller may retry.
	CloseTryAgainLater CloseCode = 1013

	// CloseBadRequest rejects a malformed stream request.
	CloseBadRequest CloseCode = 4400

	// CloseForbidden rejects a stream open the server refuses to serve.
	// Reserved in the close-code vocabulary; the current surface rejects
	// rate-limited origins at session creation instead.
	CloseForbidden CloseCode = 4403
)

// Transport is the framed, ordered delivery boundary of the pipeline.
// Send must only return once the frame has fully drained into the
// underlying connection; it is the pipeline's back-pressure point.
type Transport interface {
	// Send writes one frame. An error means the frame was not delivered
	// and the peer should be considered gone.
	Send(ctx context.Context, f Frame) error

	// Close ends the transport with the given close code. Safe to call
	// more than once; only the first call takes effect.
	Close(code CloseCode, reason string) error

	// Done is closed when the peer has disconnected.
	Done() <-chan struct{}
}
