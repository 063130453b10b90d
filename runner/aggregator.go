package runner

import (
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

var _ OutcomeConsumer = (*Aggregator)(nil)

// Aggregator maintains running statistics for a session. It keeps every
// elapsed sample so medians are exact.
type Aggregator struct {
	session *types.RunSession
	clock   clock.Clock

	mu      sync.Mutex
	overall types.StatsAccumulator
	perTest map[string]*types.StatsAccumulator
	final   *types.SessionStatistics
}

// NewAggregator creates an aggregator for session.
func NewAggregator(session *types.RunSession, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Aggregator{
		session: session,
		clock:   clk,
		perTest: make(map[string]*types.StatsAccumulator),
	}
}

func (a *Aggregator) Name() string { return "aggregator" }

// Consume implements OutcomeConsumer.
func (a *Aggregator) Consume(o types.RunOutcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.overall.Add(o)
	name := o.Identity.QualifiedName()
	acc, ok := a.perTest[name]
	if !ok {
		acc = &types.StatsAccumulator{}
		a.perTest[name] = acc
	}
	acc.Add(o)
	return nil
}

// Complete implements OutcomeConsumer. It freezes the final statistics using
// the session's wall time.
func (a *Aggregator) Complete(session *types.RunSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := a.compute(session.Duration())
	a.final = &stats
	return nil
}

// Snapshot returns the current statistics. While the session runs, throughput
// uses the wall time elapsed so far.
func (a *Aggregator) Snapshot() types.SessionStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.final != nil {
		return a.copyFinal()
	}
	var wall time.Duration
	if started := a.session.StartedAt(); !started.IsZero() {
		wall = a.clock.Since(started)
	}
	return a.compute(wall)
}

// Final returns the statistics frozen by Complete, and false before that.
func (a *Aggregator) Final() (types.SessionStatistics, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.final == nil {
		return types.SessionStatistics{}, false
	}
	return a.copyFinal(), true
}

func (a *Aggregator) compute(wall time.Duration) types.SessionStatistics {
	out := types.SessionStatistics{
		Overall: a.overall.Statistics(wall),
		PerTest: make(map[string]types.Statistics, len(a.perTest)),
		Elapsed: wall,
	}
	for name, acc := range a.perTest {
		out.PerTest[name] = acc.Statistics(wall)
	}
	return out
}

func (a *Aggregator) copyFinal() types.SessionStatistics {
	out := *a.final
	out.PerTest = make(map[string]types.Statistics, len(a.final.PerTest))
	for name, s := range a.final.PerTest {
		out.PerTest[name] = s
	}
	return out
}
