package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

// Attempt identifies one dispatched execution.
type Attempt struct {
	Seq      int
	Identity types.TestIdentity
}

// ProgressIndicator receives scheduling events for user-facing progress.
type ProgressIndicator interface {
	StartSession(session *types.RunSession)
	StartAttempt(attempt Attempt)
	// CompleteAttempt is called with a nil outcome when the attempt was aborted.
	CompleteAttempt(attempt Attempt, outcome *types.RunOutcome)
	CompleteSession(session *types.RunSession)
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartSession(*types.RunSession)             {}
func (n *noOpProgressIndicator) StartAttempt(Attempt)                       {}
func (n *noOpProgressIndicator) CompleteAttempt(Attempt, *types.RunOutcome) {}
func (n *noOpProgressIndicator) CompleteSession(*types.RunSession)          {}

// StatsSource provides live statistics, usually an Aggregator.
type StatsSource interface {
	Snapshot() types.SessionStatistics
}

// consoleProgressIndicator logs a periodic summary while a session runs.
type consoleProgressIndicator struct {
	logger   log.Logger
	clock    clock.Clock
	interval time.Duration
	stats    StatsSource

	mu        sync.Mutex
	stopCh    chan struct{}
	done      chan struct{}
	budget    time.Duration
	startTime time.Time
	running   map[int]runningAttempt
}

type runningAttempt struct {
	name  string
	start time.Time
}

// NewConsoleProgressIndicator creates a progress indicator that logs a
// "Progress update" line every interval.
func NewConsoleProgressIndicator(logger log.Logger, clk clock.Clock, interval time.Duration, stats StatsSource) ProgressIndicator {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	if clk == nil {
		clk = clock.NewClock()
	}
	return &consoleProgressIndicator{
		logger:   logger,
		clock:    clk,
		interval: interval,
		stats:    stats,
		running:  make(map[int]runningAttempt),
	}
}

func (c *consoleProgressIndicator) StartSession(session *types.RunSession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.budget = session.Request.DurationBudget
	c.startTime = c.clock.Now()
	c.running = make(map[int]runningAttempt)
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})

	c.logger.Info("Starting deflake session",
		"session", session.ID,
		"tests", len(session.Request.Selected),
		"workers", session.Request.WorkerCount,
		"budget", c.budget)

	go c.progressReporter(c.clock.NewTicker(c.interval), c.stopCh, c.done)
}

func (c *consoleProgressIndicator) StartAttempt(attempt Attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running[attempt.Seq] = runningAttempt{name: attempt.Identity.QualifiedName(), start: c.clock.Now()}
}

func (c *consoleProgressIndicator) CompleteAttempt(attempt Attempt, outcome *types.RunOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, attempt.Seq)
	if outcome != nil && outcome.Failed() {
		c.logger.Debug("Attempt failed", "test", attempt.Identity.QualifiedName(), "seq", attempt.Seq,
			"kind", outcome.Kind, "exitCode", outcome.ExitCode)
	}
}

func (c *consoleProgressIndicator) CompleteSession(session *types.RunSession) {
	c.mu.Lock()
	stopCh, done := c.stopCh, c.done
	c.stopCh = nil
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}
	c.logger.Info("Deflake session finished",
		"session", session.ID,
		"status", session.Status(),
		"duration", session.Duration().Truncate(time.Millisecond))
}

// progressReporter runs in a goroutine and periodically reports progress
func (c *consoleProgressIndicator) progressReporter(ticker clock.Ticker, stopCh, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			c.reportProgress()
		case <-stopCh:
			return
		}
	}
}

func (c *consoleProgressIndicator) reportProgress() {
	var snapshot types.SessionStatistics
	if c.stats != nil {
		snapshot = c.stats.Snapshot()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	elapsed := now.Sub(c.startTime)
	remaining := c.budget - elapsed
	if remaining < 0 {
		remaining = 0
	}
	overall := snapshot.Overall
	c.logger.Info("Progress update",
		"attempts", overall.Attempts,
		"passed", overall.Passes,
		"failed", overall.FailureCount(),
		"successRate", fmt.Sprintf("%.1f%%", overall.SuccessRate()*100),
		"throughput", fmt.Sprintf("%.2f/s", overall.Throughput),
		"elapsed", elapsed.Truncate(time.Second),
		"remaining", remaining.Truncate(time.Second),
		"numRunning", len(c.running),
		"longestRunning", formatRunningAttempts(c.running, now, 3))
}

// formatRunningAttempts lists the longest running attempts first.
func formatRunningAttempts(running map[int]runningAttempt, now time.Time, maxShow int) string {
	if len(running) == 0 {
		return ""
	}
	type entry struct {
		name     string
		duration time.Duration
	}
	entries := make([]entry, 0, len(running))
	for _, r := range running {
		entries = append(entries, entry{name: r.name, duration: now.Sub(r.start)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].duration != entries[j].duration {
			return entries[i].duration > entries[j].duration
		}
		return entries[i].name < entries[j].name
	})

	var parts []string
	for i, e := range entries {
		if i >= maxShow {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%v)", e.name, e.duration.Truncate(time.Second)))
	}
	if len(entries) > maxShow {
		parts = append(parts, fmt.Sprintf("+%d more", len(entries)-maxShow))
	}
	return strings.Join(parts, ", ")
}

type multiProgressIndicator []ProgressIndicator

// NewMultiProgressIndicator forwards every event to each indicator in order.
func NewMultiProgressIndicator(indicators ...ProgressIndicator) ProgressIndicator {
	return multiProgressIndicator(indicators)
}

func (m multiProgressIndicator) StartSession(session *types.RunSession) {
	for _, p := range m {
		p.StartSession(session)
	}
}

func (m multiProgressIndicator) StartAttempt(attempt Attempt) {
	for _, p := range m {
		p.StartAttempt(attempt)
	}
}

func (m multiProgressIndicator) CompleteAttempt(attempt Attempt, outcome *types.RunOutcome) {
	for _, p := range m {
		p.CompleteAttempt(attempt, outcome)
	}
}

func (m multiProgressIndicator) CompleteSession(session *types.RunSession) {
	for _, p := range m {
		p.CompleteSession(session)
	}
}
