package metrics

import (
	"github.com/ethereum-optimism/infra/op-deflake/runner"
	"github.com/ethereum-optimism/infra/op-deflake/types"
)

var (
	_ runner.OutcomeConsumer   = (*Sink)(nil)
	_ runner.ProgressIndicator = (*Sink)(nil)
)

// Sink exports session progress as Prometheus metrics. It is registered both
// as an outcome consumer and as a progress indicator so the in-flight gauge
// follows dispatch.
type Sink struct{}

// NewSink creates a metrics sink
func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) Name() string { return "metrics" }

func (s *Sink) Consume(o types.RunOutcome) error {
	RecordAttempt(o.Identity.QualifiedName(), o.Kind, o.Elapsed)
	return nil
}

func (s *Sink) Complete(session *types.RunSession) error {
	stats := session.Statistics()
	flaky := 0
	for _, st := range stats.PerTest {
		if st.IsFlaky() {
			flaky++
		}
	}
	RecordSession(session.ID, session.Status(), session.Duration(), flaky)
	return nil
}

func (s *Sink) StartSession(*types.RunSession) {}

func (s *Sink) StartAttempt(runner.Attempt) {
	attemptsInFlight.Inc()
}

func (s *Sink) CompleteAttempt(_ runner.Attempt, o *types.RunOutcome) {
	attemptsInFlight.Dec()
	if o == nil {
		RecordError("attempt_aborted")
	}
}

func (s *Sink) CompleteSession(*types.RunSession) {}
