package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxgate/pkg/audio"
)

func newPending(id string) *Session {
	return &Session{
		ID:           id,
		Provider:     "mock_tone",
		Voice:        "en-US-mock-1",
		Text:         "hi",
		TargetFormat: audio.FormatPCM16,
		SampleRateHz: 16000,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}
}

func TestStore_InsertAndGetReturnsCopy(t *testing.T) {
	s := NewStore(time.Hour)
	if err := s.Insert(newPending("s1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Status = StatusFailed // mutating the copy must not affect the store

	again, _ := s.Get("s1")
	if again.Status != StatusPending {
		t.Errorf("store mutated through a copy: status = %q", again.Status)
	}
}

func TestStore_InsertDuplicate(t *testing.T) {
	s := NewStore(time.Hour)
	if err := s.Insert(newPending("s1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(newPending("s1")); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
}

func TestStore_LegalTransitions(t *testing.T) {
	paths := [][]Status{
		{StatusStreaming, StatusCompleted},
		{StatusStreaming, StatusFailed},
		{StatusStreaming, StatusCancelled},
		{StatusCancelled},
	}
	for _, path := range paths {
		s := NewStore(time.Hour)
		if err := s.Insert(newPending("s1")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		for _, to := range path {
			if err := s.UpdateStatus("s1", to, ""); err != nil {
				t.Errorf("path %v: transition to %q failed: %v", path, to, err)
			}
		}
	}
}

func TestStore_IllegalTransitions(t *testing.T) {
	cases := []struct {
		name string
		prep []Status
		to   Status
	}{
		{"pending to completed", nil, StatusCompleted},
		{"pending to failed", nil, StatusFailed},
		{"completed regression", []Status{StatusStreaming, StatusCompleted}, StatusStreaming},
		{"cancelled regression", []Status{StatusCancelled}, StatusStreaming},
		{"failed to completed", []Status{StatusStreaming, StatusFailed}, StatusCompleted},
		{"streaming to pending", []Status{StatusStreaming}, StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore(time.Hour)
			if err := s.Insert(newPending("s1")); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			for _, st := range tc.prep {
				if err := s.UpdateStatus("s1", st, ""); err != nil {
					t.Fatalf("prep transition %q: %v", st, err)
				}
			}
			before, _ := s.Get("s1")
			if err := s.UpdateStatus("s1", tc.to, ""); !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("err = %v, want ErrIllegalTransition", err)
			}
			after, _ := s.Get("s1")
			if after.Status != before.Status {
				t.Errorf("illegal transition mutated status: %q → %q", before.Status, after.Status)
			}
		})
	}
}

func TestStore_FailureReasonRecorded(t *testing.T) {
	s := NewStore(time.Hour)
	if err := s.Insert(newPending("s1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s.UpdateStatus("s1", StatusStreaming, "")
	s.UpdateStatus("s1", StatusFailed, "provider_mid_stream")

	got, err := s.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FailureReason != "provider_mid_stream" {
		t.Errorf("FailureReason = %q, want provider_mid_stream", got.FailureReason)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set on terminal transition")
	}
}

func TestStore_ZeroRetentionDeletesOnTerminal(t *testing.T) {
	s := NewStore(0)
	if err := s.Insert(newPending("s1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s.UpdateStatus("s1", StatusStreaming, "")
	s.UpdateStatus("s1", StatusCompleted, "")

	if _, err := s.Get("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after terminal transition", err)
	}
}

func TestStore_SweepRemovesExpiredTerminal(t *testing.T) {
	s := NewStore(10 * time.Minute)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Insert(newPending("done"))
	s.UpdateStatus("done", StatusStreaming, "")
	s.UpdateStatus("done", StatusCompleted, "")
	s.Insert(newPending("live"))

	// Advance past the retention window; only the terminal record goes.
	s.now = func() time.Time { return base.Add(11 * time.Minute) }
	if removed := s.sweepExpired(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := s.Get("live"); err != nil {
		t.Errorf("pending session was swept: %v", err)
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	s := NewStore(time.Hour)
	if err := s.Insert(newPending("s1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s.UpdateStatus("s1", StatusStreaming, "")

	// Many racing terminal transitions: exactly one must win.
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.UpdateStatus("s1", StatusCompleted, ""); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("terminal transition wins = %d, want 1", wins)
	}
}
