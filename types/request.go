package types

import (
	"errors"
	"fmt"
	"time"
)

// RunRequest is a resolved selection plus the limits a session runs under.
type RunRequest struct {
	Selected       []TestIdentity
	DurationBudget time.Duration
	WorkerCount    int
}

// Validate checks the request against the catalog it will run on and returns
// a normalized copy: selection deduplicated and in discovery order, worker
// count at least 1.
func (r RunRequest) Validate(catalog *TestCatalog) (RunRequest, error) {
	if catalog == nil {
		return RunRequest{}, errors.New("catalog is required")
	}
	if len(r.Selected) == 0 {
		return RunRequest{}, errors.New("no tests selected")
	}
	for _, id := range r.Selected {
		if !catalog.Contains(id) {
			return RunRequest{}, fmt.Errorf("selected test %s is not in the catalog", id.QualifiedName())
		}
	}
	if r.DurationBudget < 0 {
		return RunRequest{}, fmt.Errorf("duration budget must not be negative, got %s", r.DurationBudget)
	}
	out := RunRequest{
		Selected:       catalog.Order(r.Selected),
		DurationBudget: r.DurationBudget,
		WorkerCount:    r.WorkerCount,
	}
	if out.WorkerCount < 1 {
		out.WorkerCount = 1
	}
	return out, nil
}
