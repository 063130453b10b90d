package runner

import (
	"runtime"

	"github.com/ethereum/go-ethereum/log"
	"github.com/shirou/gopsutil/v4/cpu"
)

// physicalCores is swapped out in tests.
var physicalCores = func() (int, error) {
	return cpu.Counts(false)
}

// DefaultConcurrency derives a worker count from the machine: one worker per
// physical core, never more than GOMAXPROCS and never less than one.
func DefaultConcurrency() int {
	cores, err := physicalCores()
	if err != nil || cores < 1 {
		cores = runtime.NumCPU() / 2
	}
	if limit := runtime.GOMAXPROCS(0); cores > limit {
		cores = limit
	}
	if cores < 1 {
		cores = 1
	}
	return cores
}

// DetermineConcurrency resolves the requested worker count. Zero or negative
// means use DefaultConcurrency.
func DetermineConcurrency(requested int, logger log.Logger) int {
	if requested <= 0 {
		n := DefaultConcurrency()
		logger.Debug("Using default concurrency", "workers", n, "cpus", runtime.NumCPU())
		return n
	}
	if requested > MaxReasonableConcurrency {
		logger.Warn("High concurrency requested, attempts may compete for CPU and skew timings",
			"workers", requested, "recommendedMax", MaxReasonableConcurrency)
	}
	return requested
}
