package types

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrSessionFinalized  = errors.New("session already finalized")
	ErrSessionNotStarted = errors.New("session not started")
)

// SessionStatus describes how a session ended.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// RunSession owns everything produced by one run invocation. It is created
// before scheduling, receives outcomes while running and becomes read-only
// once finalized.
type RunSession struct {
	ID         string
	BinaryPath string
	Catalog    *TestCatalog
	Request    RunRequest

	mu        sync.RWMutex
	selected  map[string]struct{}
	status    SessionStatus
	startedAt time.Time
	endedAt   time.Time
	outcomes  []RunOutcome
}

// NewRunSession validates the request against the catalog and returns a
// pending session.
func NewRunSession(id, binaryPath string, catalog *TestCatalog, request RunRequest) (*RunSession, error) {
	req, err := request.Validate(catalog)
	if err != nil {
		return nil, fmt.Errorf("invalid run request: %w", err)
	}
	selected := make(map[string]struct{}, len(req.Selected))
	for _, id := range req.Selected {
		selected[id.QualifiedName()] = struct{}{}
	}
	return &RunSession{
		ID:         id,
		BinaryPath: binaryPath,
		Catalog:    catalog,
		Request:    req,
		selected:   selected,
		status:     SessionPending,
	}, nil
}

// Start marks the session as running from now on.
func (s *RunSession) Start(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != SessionPending {
		return fmt.Errorf("cannot start session in state %s", s.status)
	}
	s.status = SessionRunning
	s.startedAt = now
	return nil
}

// Record appends an outcome to the session log. Pass outcomes are stored
// without their captured output.
func (s *RunSession) Record(o RunOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case SessionPending:
		return ErrSessionNotStarted
	case SessionCompleted, SessionCancelled:
		return ErrSessionFinalized
	}
	if _, ok := s.selected[o.Identity.QualifiedName()]; !ok {
		return fmt.Errorf("outcome for unselected test %s", o.Identity.QualifiedName())
	}
	if !o.Failed() {
		o.Stdout, o.Stderr = "", ""
	}
	s.outcomes = append(s.outcomes, o)
	return nil
}

// Finalize closes the session. Later calls to Record fail.
func (s *RunSession) Finalize(now time.Time, cancelled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != SessionRunning {
		return fmt.Errorf("cannot finalize session in state %s", s.status)
	}
	s.endedAt = now
	s.status = SessionCompleted
	if cancelled {
		s.status = SessionCancelled
	}
	return nil
}

func (s *RunSession) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Finalized reports whether the session is read-only.
func (s *RunSession) Finalized() bool {
	st := s.Status()
	return st == SessionCompleted || st == SessionCancelled
}

func (s *RunSession) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

func (s *RunSession) EndedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endedAt
}

// Duration is the wall time between start and finalization, or zero before
// the session is finalized.
func (s *RunSession) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.endedAt.IsZero() {
		return 0
	}
	return s.endedAt.Sub(s.startedAt)
}

// Outcomes returns a copy of the outcome log in observation order.
func (s *RunSession) Outcomes() []RunOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RunOutcome(nil), s.outcomes...)
}

// Failures returns the failed outcomes in observation order.
func (s *RunSession) Failures() []RunOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RunOutcome
	for _, o := range s.outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// Statistics recomputes statistics from the outcome log. Before finalization
// throughput is reported as zero.
func (s *RunSession) Statistics() SessionStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var wall time.Duration
	if !s.endedAt.IsZero() {
		wall = s.endedAt.Sub(s.startedAt)
	}
	return ComputeStatistics(s.outcomes, wall)
}
