package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNotFound is returned when a session id is unknown to the store.
var ErrNotFound = errors.New("session: not found")

// ErrIllegalTransition is returned by [Store.UpdateStatus] for moves not in
// the lifecycle graph. The stored record is left untouched.
var ErrIllegalTransition = errors.New("session: illegal status transition")

// ErrDuplicateID is returned by [Store.Insert] when the id already exists.
var ErrDuplicateID = errors.New("session: duplicate id")

// Store is the in-memory source of truth for session lifecycle state.
// All mutations are atomic per session; readers observe consistent
// snapshots. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	items map[string]*Session

	// retention bounds how long terminal sessions stay queryable. Zero
	// deletes them immediately on their terminal transition.
	retention time.Duration

	now func() time.Time
}

// NewStore creates a [Store]. Terminal sessions are retained for the given
// duration so late catalogue queries can still observe them; a zero
// retention deletes records as soon as they reach a terminal status.
func NewStore(retention time.Duration) *Store {
	return &Store{
		items:     make(map[string]*Session),
		retention: retention,
		now:       time.Now,
	}
}

// Insert adds a new session record. The session must be in
// [StatusPending]; the id must be unused.
func (s *Store) Insert(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[sess.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, sess.ID)
	}
	cp := *sess
	s.items[sess.ID] = &cp
	return nil
}

// Get returns a copy of the session with the given id.
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.items[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return *sess, nil
}

// UpdateStatus moves the session along the lifecycle graph. reason is
// recorded on failed transitions and ignored otherwise. Illegal moves
// return [ErrIllegalTransition] without mutating state.
func (s *Store) UpdateStatus(id string, to Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if !canTransition(sess.Status, to) {
		return fmt.Errorf("%w: %s → %s", ErrIllegalTransition, sess.Status, to)
	}

	now := s.now()
	sess.Status = to
	switch {
	case to == StatusStreaming:
		sess.StartedAt = &now
	case to.Terminal():
		sess.FinishedAt = &now
		if to == StatusFailed {
			sess.FailureReason = reason
		}
	}

	if to.Terminal() && s.retention == 0 {
		delete(s.items, id)
	}
	return nil
}

// Delete removes a session record unconditionally.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// sweepInterval is how often the retention sweeper scans for expired
// terminal records.
const sweepInterval = time.Minute

// Sweep runs the retention sweeper until ctx is cancelled. It is a no-op
// loop when retention is zero (records are already deleted on their
// terminal transition).
func (s *Store) Sweep(ctx context.Context) {
	if s.retention == 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweepExpired(); n > 0 {
				slog.Debug("session store sweep", "removed", n, "remaining", s.Len())
			}
		}
	}
}

// sweepExpired removes terminal sessions older than the retention window
// and returns how many were removed.
func (s *Store) sweepExpired() int {
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.items {
		if sess.Status.Terminal() && sess.FinishedAt != nil && sess.FinishedAt.Before(cutoff) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}
