package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

// SinkError wraps failures of outcome consumers. The session it accompanies
// is still complete and valid.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("outcome consumer failed: %v", e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// IsSinkError checks if the error is or wraps a SinkError
func IsSinkError(err error) bool {
	var sinkErr *SinkError
	return err != nil && errors.As(err, &sinkErr)
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Executor   Executor
	Consumers  []OutcomeConsumer
	Progress   ProgressIndicator
	Clock      clock.Clock
	Log        log.Logger
	BufferSize int // per-consumer outcome buffer
}

// Scheduler drives repeated execution of a session's selection until its
// duration budget is spent or the context is cancelled.
type Scheduler struct {
	executor   Executor
	consumers  []OutcomeConsumer
	progress   ProgressIndicator
	clock      clock.Clock
	log        log.Logger
	bufferSize int
}

// NewScheduler creates a scheduler
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return &Scheduler{
		executor:   cfg.Executor,
		consumers:  append([]OutcomeConsumer(nil), cfg.Consumers...),
		progress:   cfg.Progress,
		clock:      cfg.Clock,
		log:        cfg.Log.New("component", "scheduler"),
		bufferSize: cfg.BufferSize,
	}, nil
}

// Run executes the session and returns it finalized.
//
// New attempts are dispatched round-robin over the selection while a worker
// slot is free and the budget has not elapsed. Attempts still running when the
// budget elapses are waited for and recorded. Cancelling ctx stops dispatch,
// kills running attempts and finalizes the session as cancelled, which is not
// an error. Consumer failures are returned as a *SinkError alongside the
// finalized session.
func (s *Scheduler) Run(ctx context.Context, session *types.RunSession) (*types.RunSession, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	req := session.Request
	if len(req.Selected) == 0 {
		return nil, errors.New("session has no selected tests")
	}
	workers := max(req.WorkerCount, 1)

	start := s.clock.Now()
	if err := session.Start(start); err != nil {
		return nil, err
	}
	broadcaster := NewBroadcaster(s.bufferSize, s.consumers...)
	s.progress.StartSession(session)
	s.log.Info("Session started", "session", session.ID, "tests", len(req.Selected),
		"workers", workers, "budget", req.DurationBudget)

	queue := NewWorkQueue(req.Selected)
	slots := make(chan struct{}, workers)
	budget := s.clock.NewTimer(req.DurationBudget)
	defer budget.Stop()

	var (
		inflight  conc.WaitGroup
		publishMu sync.Mutex
		cancelled bool
		seq       int
	)

dispatch:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case <-budget.C():
			break dispatch
		case slots <- struct{}{}:
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if s.clock.Since(start) >= req.DurationBudget {
			break
		}

		seq++
		attempt := Attempt{Seq: seq, Identity: queue.Next()}
		s.progress.StartAttempt(attempt)
		s.log.Debug("Dispatching attempt", "seq", attempt.Seq, "test", attempt.Identity.QualifiedName())
		inflight.Go(func() {
			defer func() { <-slots }()
			s.runAttempt(ctx, session, broadcaster, &publishMu, attempt)
		})
	}

	inflight.Wait()
	if ctx.Err() != nil {
		cancelled = true
	}
	if err := session.Finalize(s.clock.Now(), cancelled); err != nil {
		return nil, err
	}

	var errs []error
	if err := broadcaster.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range s.consumers {
		if err := c.Complete(session); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ConsumerName(c), err))
		}
	}
	s.progress.CompleteSession(session)

	s.log.Info("Session finalized", "session", session.ID, "status", session.Status(),
		"dispatched", seq, "recorded", len(session.Outcomes()), "duration", session.Duration())
	if len(errs) > 0 {
		return session, &SinkError{Err: errors.Join(errs...)}
	}
	return session, nil
}

func (s *Scheduler) runAttempt(ctx context.Context, session *types.RunSession, b *Broadcaster, mu *sync.Mutex, attempt Attempt) {
	outcome, err := s.executor.Execute(ctx, attempt.Identity)
	if err != nil {
		if !errors.Is(err, ErrAttemptAborted) {
			s.log.Error("Executor returned an error, discarding attempt", "test", attempt.Identity.QualifiedName(), "err", err)
		}
		s.progress.CompleteAttempt(attempt, nil)
		return
	}

	// The session log and every consumer must observe the same order.
	mu.Lock()
	if err := session.Record(outcome); err != nil {
		s.log.Error("Failed to record outcome", "test", attempt.Identity.QualifiedName(), "err", err)
	} else if err := b.Publish(outcome); err != nil {
		s.log.Error("Failed to publish outcome", "test", attempt.Identity.QualifiedName(), "err", err)
	}
	mu.Unlock()

	s.progress.CompleteAttempt(attempt, &outcome)
}
