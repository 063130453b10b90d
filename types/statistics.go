package types

import (
	"slices"
	"time"
)

// TimingStats summarizes a set of elapsed samples.
type TimingStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	Median time.Duration `json:"median"`
}

// SummarizeDurations computes exact min, max, mean and median. The median of an
// even number of samples is the average of the two middle values.
func SummarizeDurations(samples []time.Duration) TimingStats {
	if len(samples) == 0 {
		return TimingStats{}
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var total time.Duration
	for _, s := range sorted {
		total += s
	}
	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return TimingStats{
		Min:    sorted[0],
		Max:    sorted[n-1],
		Mean:   total / time.Duration(n),
		Median: median,
	}
}

// Statistics are the counts and timings for a group of attempts.
type Statistics struct {
	Attempts   int                 `json:"attempts"`
	Passes     int                 `json:"passes"`
	Failures   map[OutcomeKind]int `json:"failures"`
	Timing     TimingStats         `json:"timing"`
	Throughput float64             `json:"throughput"` // attempts per second of session wall time
}

// FailureCount is the number of non-pass attempts.
func (s Statistics) FailureCount() int {
	total := 0
	for _, n := range s.Failures {
		total += n
	}
	return total
}

// SuccessRate is passes / attempts, or 0 when nothing ran.
func (s Statistics) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Passes) / float64(s.Attempts)
}

// IsFlaky reports whether the group both passed and failed.
func (s Statistics) IsFlaky() bool {
	return s.Passes > 0 && s.FailureCount() > 0
}

// SessionStatistics holds overall and per-test statistics. PerTest is keyed by
// qualified name.
type SessionStatistics struct {
	Overall Statistics            `json:"overall"`
	PerTest map[string]Statistics `json:"per_test"`
	Elapsed time.Duration         `json:"elapsed"`
}

// StatsAccumulator collects counts and samples for one group of attempts.
type StatsAccumulator struct {
	attempts int
	passes   int
	failures map[OutcomeKind]int
	samples  []time.Duration
}

// Add records one outcome.
func (a *StatsAccumulator) Add(o RunOutcome) {
	a.attempts++
	if o.Kind.IsFailure() {
		if a.failures == nil {
			a.failures = make(map[OutcomeKind]int)
		}
		a.failures[o.Kind]++
	} else {
		a.passes++
	}
	a.samples = append(a.samples, o.Elapsed)
}

// Statistics computes the current statistics, deriving throughput from wall.
func (a *StatsAccumulator) Statistics(wall time.Duration) Statistics {
	failures := make(map[OutcomeKind]int, len(a.failures))
	for k, n := range a.failures {
		failures[k] = n
	}
	s := Statistics{
		Attempts: a.attempts,
		Passes:   a.passes,
		Failures: failures,
		Timing:   SummarizeDurations(a.samples),
	}
	if wall > 0 {
		s.Throughput = float64(a.attempts) / wall.Seconds()
	}
	return s
}

// ComputeStatistics derives session statistics from an outcome log.
func ComputeStatistics(outcomes []RunOutcome, wall time.Duration) SessionStatistics {
	var overall StatsAccumulator
	perTest := make(map[string]*StatsAccumulator)
	for _, o := range outcomes {
		overall.Add(o)
		name := o.Identity.QualifiedName()
		acc, ok := perTest[name]
		if !ok {
			acc = &StatsAccumulator{}
			perTest[name] = acc
		}
		acc.Add(o)
	}
	out := SessionStatistics{
		Overall: overall.Statistics(wall),
		PerTest: make(map[string]Statistics, len(perTest)),
		Elapsed: wall,
	}
	for name, acc := range perTest {
		out.PerTest[name] = acc.Statistics(wall)
	}
	return out
}
