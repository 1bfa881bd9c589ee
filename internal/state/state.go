// Package state persists the outcome of pipeline runs so later commands
// can report them
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/types"
	"github.com/cspack/cspack/pkg/utils"
)

const (
	// Dir holds the state files, relative to the project root
	Dir = ".cspack/state"

	stateExt          = ".json"
	heartbeatInterval = 10 * time.Second
	staleAfter        = 30 * time.Second
)

// RunState is the persisted record of one pipeline
type RunState struct {
	Pipeline     string          `json:"pipeline"`
	Status       types.RunStatus `json:"status"`
	BuildID      string          `json:"buildId,omitempty"`
	LastRunTime  time.Time       `json:"lastRunTime"`
	Duration     time.Duration   `json:"duration,omitempty"`
	RunCount     int             `json:"runCount"`
	FailureCount int             `json:"failureCount"`
	LastError    string          `json:"lastError,omitempty"`
	Archive      string          `json:"archive,omitempty"`
	ArchiveSize  int64           `json:"archiveSize,omitempty"`
	LastVerdict  *bool           `json:"lastVerdict,omitempty"`
	ProcessID    int             `json:"processId,omitempty"`
	Heartbeat    time.Time       `json:"heartbeat"`
}

// Outcome is what a pipeline reports after a run or a status change
type Outcome struct {
	Status      types.RunStatus
	BuildID     string
	Duration    time.Duration
	Err         error
	Archive     string
	ArchiveSize int64
	Verdict     *bool
}

// Store reads and writes state files under the project root
type Store struct {
	stateDir string
	logger   logger.Logger

	mu             sync.Mutex
	states         map[string]*RunState
	heartbeatStop  chan struct{}
	heartbeatTimer *time.Ticker
}

// NewStore creates a store for projectRoot. The state directory is only
// created on the first write.
func NewStore(projectRoot string, log logger.Logger) *Store {
	return &Store{
		stateDir: filepath.Join(projectRoot, filepath.FromSlash(Dir)),
		logger:   log,
		states:   make(map[string]*RunState),
	}
}

// Record merges o into the state of pipeline and saves it. Terminal
// statuses count as runs; failures also bump the failure counter.
func (s *Store) Record(pipeline string, o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[pipeline]
	if !ok {
		loaded, err := s.load(pipeline)
		if err != nil && !os.IsNotExist(err) {
			s.logger.Debug("Discarding unreadable state file",
				logger.WithField("pipeline", pipeline), logger.WithError(err))
		}
		if loaded == nil {
			loaded = &RunState{Pipeline: pipeline}
		}
		st = loaded
		s.states[pipeline] = st
	}

	now := time.Now()
	st.Status = o.Status
	st.Heartbeat = now
	st.ProcessID = os.Getpid()
	if o.BuildID != "" {
		st.BuildID = o.BuildID
	}
	if o.Verdict != nil {
		v := *o.Verdict
		st.LastVerdict = &v
	}

	if o.Status.IsTerminal() {
		st.LastRunTime = now
		st.Duration = o.Duration
		st.RunCount++
		st.ProcessID = 0
	}
	switch {
	case o.Status == types.RunStatusFailed:
		st.FailureCount++
		if o.Err != nil {
			st.LastError = o.Err.Error()
		}
	case o.Status == types.RunStatusSucceeded:
		st.LastError = ""
		if o.Archive != "" {
			st.Archive = o.Archive
			st.ArchiveSize = o.ArchiveSize
		}
	}

	return s.save(st)
}

// Read returns the state of pipeline
func (s *Store) Read(pipeline string) (*RunState, error) {
	s.mu.Lock()
	if st, ok := s.states[pipeline]; ok {
		cp := *st
		s.mu.Unlock()
		return &cp, nil
	}
	s.mu.Unlock()

	return s.load(pipeline)
}

// Discover loads every state file in the state directory
func (s *Store) Discover() (map[string]*RunState, error) {
	states := make(map[string]*RunState)

	entries, err := os.ReadDir(s.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return states, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != stateExt {
			continue
		}
		pipeline := strings.TrimSuffix(entry.Name(), stateExt)
		st, err := s.load(pipeline)
		if err != nil {
			s.logger.Warn("Failed to load state file",
				logger.WithField("pipeline", pipeline), logger.WithError(err))
			continue
		}
		states[pipeline] = st
	}

	return states, nil
}

// IsActive reports whether st belongs to a run that is still in progress
// in some process. A running state whose heartbeat went stale is treated
// as abandoned.
func IsActive(st *RunState) bool {
	return st != nil &&
		st.Status == types.RunStatusRunning &&
		st.ProcessID != 0 &&
		time.Since(st.Heartbeat) <= staleAfter
}

// StartHeartbeat refreshes the heartbeat of pipeline until ctx is done or
// StopHeartbeat is called
func (s *Store) StartHeartbeat(ctx context.Context, pipeline string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.heartbeatTimer != nil {
		return
	}

	stop := make(chan struct{})
	ticker := time.NewTicker(heartbeatInterval)
	s.heartbeatStop = stop
	s.heartbeatTimer = ticker

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				s.beat(pipeline)
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat updater
func (s *Store) StopHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.heartbeatTimer != nil {
		s.heartbeatTimer.Stop()
		s.heartbeatTimer = nil
	}
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
}

// Release stops the heartbeat and marks every running pipeline of this
// process idle
func (s *Store) Release() error {
	s.StopHeartbeat()

	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, st := range s.states {
		if st.Status != types.RunStatusRunning {
			continue
		}
		st.Status = types.RunStatusIdle
		st.ProcessID = 0
		if err := s.save(st); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) beat(pipeline string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[pipeline]
	if !ok {
		return
	}
	st.Heartbeat = time.Now()
	if err := s.save(st); err != nil {
		s.logger.Debug("Failed to update heartbeat",
			logger.WithField("pipeline", pipeline), logger.WithError(err))
	}
}

func (s *Store) path(pipeline string) string {
	return filepath.Join(s.stateDir, pipeline+stateExt)
}

func (s *Store) load(pipeline string) (*RunState, error) {
	data, err := os.ReadFile(s.path(pipeline))
	if err != nil {
		return nil, err
	}

	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &st, nil
}

func (s *Store) save(st *RunState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	err = utils.WriteFileAtomic(s.path(st.Pipeline), 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
