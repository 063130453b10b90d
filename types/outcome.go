package types

import "time"

// OutcomeKind classifies a single execution attempt.
type OutcomeKind string

const (
	OutcomePass             OutcomeKind = "pass"
	OutcomeAssertionFailure OutcomeKind = "assertion_failure"
	OutcomeCrash            OutcomeKind = "crash"
	OutcomeTimeout          OutcomeKind = "timeout"
	OutcomeLaunchError      OutcomeKind = "launch_error"
)

// FailureKinds lists every non-pass kind in reporting order.
var FailureKinds = []OutcomeKind{
	OutcomeAssertionFailure,
	OutcomeCrash,
	OutcomeTimeout,
	OutcomeLaunchError,
}

// Exit codes recorded for attempts that never produced one of their own.
const (
	ExitCodeTimeout     = -1
	ExitCodeLaunchError = -2
)

// IsFailure reports whether the kind counts as a failed attempt.
func (k OutcomeKind) IsFailure() bool {
	return k != OutcomePass
}

// Label returns a short human readable name.
func (k OutcomeKind) Label() string {
	switch k {
	case OutcomePass:
		return "Pass"
	case OutcomeAssertionFailure:
		return "Assertion"
	case OutcomeCrash:
		return "Crash"
	case OutcomeTimeout:
		return "Timeout"
	case OutcomeLaunchError:
		return "Launch Error"
	default:
		return string(k)
	}
}

// RunOutcome is the immutable result of running one identity once.
type RunOutcome struct {
	Identity  TestIdentity  `json:"identity"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	// ExitCode is the process exit status, -signum when the process was killed
	// by a signal, ExitCodeTimeout or ExitCodeLaunchError.
	ExitCode  int         `json:"exit_code"`
	Signal    string      `json:"signal,omitempty"`
	Stdout    string      `json:"stdout,omitempty"`
	Stderr    string      `json:"stderr,omitempty"`
	Truncated bool        `json:"truncated,omitempty"` // captured output hit the size cap
	Kind      OutcomeKind `json:"kind"`
}

// Failed reports whether the attempt did not pass.
func (o RunOutcome) Failed() bool {
	return o.Kind.IsFailure()
}
