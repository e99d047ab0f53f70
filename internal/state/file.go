package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	stateExt = ".state"
	lockExt  = ".lock"
)

// FileManager stores each job as <dir>/<job>.state JSON with a sibling
// <job>.lock file while the job is locked.
type FileManager struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

type lockFile struct {
	LockedAt time.Time `json:"locked_at"`
	Expires  time.Time `json:"expires"`
}

// NewFileManager creates a new file-based state manager rooted at dir
func NewFileManager(dir string) (*FileManager, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileManager{dir: dir, now: time.Now}, nil
}

func (m *FileManager) path(jobID, ext string) string {
	return filepath.Join(m.dir, jobID+ext)
}

func (m *FileManager) load(jobID string) (*State, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(m.path(jobID, stateExt))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &s, nil
}

// save writes through a temp file so readers never see a partial state
func (m *FileManager) save(s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := m.replace(s.JobID, stateExt, data); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// replace swaps the contents of <job><ext> atomically
func (m *FileManager) replace(jobID, ext string, data []byte) error {
	tmp, err := os.CreateTemp(m.dir, jobID+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), m.path(jobID, ext)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (m *FileManager) GetState(ctx context.Context, jobID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(jobID)
}

func (m *FileManager) CreateState(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.load(state.JobID)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrExists, state.JobID)
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return m.save(state)
}

func (m *FileManager) UpdateState(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.load(state.JobID); err != nil {
		return err
	}
	s := state.copy()
	s.LastUpdated = m.now()
	return m.save(s)
}

func (m *FileManager) DeleteState(ctx context.Context, jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.path(jobID, stateExt)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

func (m *FileManager) ListStates(ctx context.Context) ([]*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var states []*State
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), stateExt) {
			continue
		}
		s, err := m.load(strings.TrimSuffix(e.Name(), stateExt))
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].JobID < states[j].JobID })
	return states, nil
}

func (m *FileManager) LockState(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	if err := validateJobID(jobID); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.path(jobID, lockExt)
	now := m.now()
	if data, err := os.ReadFile(path); err == nil {
		var l lockFile
		if err := json.Unmarshal(data, &l); err == nil && l.Expires.After(now) {
			return false, nil
		}
		// expired or unreadable lock
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read lock file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(lockFile{LockedAt: now, Expires: now.Add(ttl)}); err != nil {
		return false, fmt.Errorf("failed to write lock file: %w", err)
	}
	return true, nil
}

func (m *FileManager) RefreshLock(ctx context.Context, jobID string, ttl time.Duration) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path(jobID, lockExt))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotLocked, jobID)
	}
	if err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}
	var l lockFile
	if err := json.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	l.Expires = m.now().Add(ttl)
	if data, err = json.Marshal(l); err != nil {
		return fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := m.replace(jobID, lockExt, data); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

func (m *FileManager) UnlockState(ctx context.Context, jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.path(jobID, lockExt)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete lock file: %w", err)
	}
	return nil
}
