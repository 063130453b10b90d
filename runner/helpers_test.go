package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

// writeScript creates an executable shell script standing in for a gtest binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake_gtest")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// newTestSession builds a pending session over n plain tests in one suite.
func newTestSession(t *testing.T, n int, budget time.Duration, workers int) *types.RunSession {
	t.Helper()
	names := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf"}
	require.LessOrEqual(t, n, len(names))
	suite := types.TestSuite{Name: "Suite"}
	for _, name := range names[:n] {
		suite.Cases = append(suite.Cases, types.TestIdentity{Suite: "Suite", Case: name, Kind: types.VariantPlain})
	}
	cat, err := types.NewTestCatalog([]types.TestSuite{suite})
	require.NoError(t, err)
	session, err := types.NewRunSession("test-session", "/bin/fake", cat, types.RunRequest{
		Selected:       cat.Identities(),
		DurationBudget: budget,
		WorkerCount:    workers,
	})
	require.NoError(t, err)
	return session
}

// fakeExecutor returns outcomes from a function instead of running a binary.
type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int, id types.TestIdentity) (types.RunOutcome, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, id types.TestIdentity) (types.RunOutcome, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(ctx, call, id)
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func passOutcome(id types.TestIdentity) types.RunOutcome {
	return types.RunOutcome{Identity: id, Kind: types.OutcomePass, Elapsed: time.Millisecond}
}

// recordingConsumer stores everything it is given.
type recordingConsumer struct {
	mu        sync.Mutex
	outcomes  []types.RunOutcome
	completed *types.RunSession
	failWith  error
	delay     time.Duration
}

func (r *recordingConsumer) Consume(o types.RunOutcome) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return r.failWith
}

func (r *recordingConsumer) Complete(session *types.RunSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = session
	return nil
}

func (r *recordingConsumer) Outcomes() []types.RunOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.RunOutcome(nil), r.outcomes...)
}

// recordingProgress captures the dispatch order.
type recordingProgress struct {
	mu         sync.Mutex
	dispatched []types.TestIdentity
	aborted    int
	started    chan Attempt
}

func (p *recordingProgress) StartSession(*types.RunSession) {}

func (p *recordingProgress) StartAttempt(a Attempt) {
	p.mu.Lock()
	p.dispatched = append(p.dispatched, a.Identity)
	p.mu.Unlock()
	if p.started != nil {
		select {
		case p.started <- a:
		default:
		}
	}
}

func (p *recordingProgress) CompleteAttempt(_ Attempt, o *types.RunOutcome) {
	if o == nil {
		p.mu.Lock()
		p.aborted++
		p.mu.Unlock()
	}
}

func (p *recordingProgress) CompleteSession(*types.RunSession) {}

func (p *recordingProgress) Dispatched() []types.TestIdentity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.TestIdentity(nil), p.dispatched...)
}

var errConsumer = errors.New("disk full")
