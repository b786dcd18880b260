// Package session holds the domain model for TTS streaming sessions and
// the in-memory store that owns their lifecycle state.
//
// A session is created at admission in status [StatusPending] and moves
// monotonically to exactly one terminal status. The store enforces the
// transition graph; illegal transitions fail without mutating state.
package session

import (
	"time"

	"github.com/MrWong99/voxgate/pkg/audio"
)

// Status is the lifecycle state of a [Session].
type Status string

const (
	// StatusPending means the session is admitted but no worker has
	// started streaming it.
	StatusPending Status = "pending"

	// StatusStreaming means exactly one worker currently owns the session
	// and is driving its pipeline.
	StatusStreaming Status = "streaming"

	// StatusCompleted is the terminal success state: all audio was sent,
	// followed by an end-of-stream frame.
	StatusCompleted Status = "completed"

	// StatusFailed is the terminal failure state.
	StatusFailed Status = "failed"

	// StatusCancelled is the terminal state for client-initiated aborts.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// transitions is the legal status graph. Absent keys have no successors.
var transitions = map[Status][]Status{
	StatusPending:   {StatusStreaming, StatusCancelled},
	StatusStreaming: {StatusCompleted, StatusFailed, StatusCancelled},
}

// canTransition reports whether from → to is a legal move.
func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is one utterance's lifecycle from admission to terminal state.
// Values handed out by the store are copies; only the store mutates the
// canonical record.
type Session struct {
	// ID is the opaque, unique session identifier.
	ID string

	// Provider is the id of the synthesis provider.
	Provider string

	// Voice is the provider voice id.
	Voice string

	// Language optionally overrides the voice language.
	Language string

	// Text is the utterance to synthesise. Non-empty.
	Text string

	// TargetFormat is the encoding the client requested.
	TargetFormat audio.Format

	// SampleRateHz is the requested output sample rate.
	SampleRateHz int

	// Status is the current lifecycle state.
	Status Status

	// FailureReason carries a short machine-readable reason when Status is
	// failed.
	FailureReason string

	// CreatedAt is when the session was admitted.
	CreatedAt time.Time

	// StartedAt is when a worker began streaming, nil before that.
	StartedAt *time.Time

	// FinishedAt is when the session reached a terminal status.
	FinishedAt *time.Time
}
