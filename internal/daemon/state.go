package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/openmined/dotsync/internal/utils"
)

// SyncState is the persisted record of commit and push progress.
// PendingPush is true iff a commit happened since the last successful push.
type SyncState struct {
	LastCommitAt *time.Time `json:"lastCommitAt"`
	LastPushAt   *time.Time `json:"lastPushAt"`
	PendingPush  bool       `json:"pendingPush"`
}

// StateStore persists SyncState as a small JSON file.
//
// The file is written atomically. When a save fails the store keeps serving
// its in-memory copy until a later save succeeds, so a stale file on disk
// never makes the daemon forget about unpushed work.
type StateStore struct {
	path   string
	mu     sync.Mutex
	belief *SyncState
	stale  bool
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

func (s *StateStore) Path() string {
	return s.path
}

// Load returns the current state. A missing or corrupt file yields the zero value.
func (s *StateStore) Load() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *StateStore) loadLocked() SyncState {
	if s.stale && s.belief != nil {
		return *s.belief
	}

	st, err := ReadStateFile(s.path)
	if err != nil {
		slog.Warn("sync state unreadable, using defaults", "path", s.path, "error", err)
		st = SyncState{}
	}
	s.belief = &st
	return st
}

// Save overwrites the state file.
func (s *StateStore) Save(st SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(st)
}

func (s *StateStore) saveLocked(st SyncState) error {
	s.belief = &st

	data, err := stateMarshal(st)
	if err != nil {
		s.stale = true
		return fmt.Errorf("encode sync state: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, data, 0o644); err != nil {
		s.stale = true
		return fmt.Errorf("write sync state: %w", err)
	}

	s.stale = false
	return nil
}

// Update applies fn to a fresh read of the state and saves the result.
// The updated state is returned even when saving fails.
func (s *StateStore) Update(fn func(st *SyncState)) (SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadLocked()
	fn(&st)
	return st, s.saveLocked(st)
}

// ReadStateFile decodes the state file at path. A missing file is not an error.
func ReadStateFile(path string) (SyncState, error) {
	var st SyncState

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	} else if err != nil {
		return st, err
	}

	if err := stateUnmarshal(data, &st); err != nil {
		return SyncState{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return st, nil
}
