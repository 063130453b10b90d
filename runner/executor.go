package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-deflake/types"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
)

var _ Executor = (*BinaryExecutor)(nil)

// ErrAttemptAborted is returned by Execute when the session context is
// cancelled while the attempt runs. Aborted attempts carry no outcome.
var ErrAttemptAborted = errors.New("attempt aborted")

// Executor runs a single test identity once. Every failure of the test itself
// is reported through the returned outcome; the only error is ErrAttemptAborted.
type Executor interface {
	Execute(ctx context.Context, id types.TestIdentity) (types.RunOutcome, error)
}

// ExecutorConfig configures a BinaryExecutor.
type ExecutorConfig struct {
	BinaryPath     string
	Timeout        time.Duration // per-attempt hard limit
	MaxOutputBytes int           // per stream
	FailureMarker  string
	ExtraArgs      []string
	Log            log.Logger
	Clock          clock.Clock

	// CmdBuilder creates the child command. Defaults to exec.CommandContext.
	CmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// BinaryExecutor runs gtest cases as child processes of a test binary.
type BinaryExecutor struct {
	binaryPath     string
	timeout        time.Duration
	maxOutputBytes int
	marker         string
	extraArgs      []string
	log            log.Logger
	clock          clock.Clock
	tracer         trace.Tracer
	cmdBuilder     func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewBinaryExecutor creates a new executor
func NewBinaryExecutor(cfg ExecutorConfig) (*BinaryExecutor, error) {
	if cfg.BinaryPath == "" {
		return nil, errors.New("binary path cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAttemptTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.FailureMarker == "" {
		cfg.FailureMarker = DefaultFailureMarker
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = exec.CommandContext
	}
	return &BinaryExecutor{
		binaryPath:     cfg.BinaryPath,
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		marker:         cfg.FailureMarker,
		extraArgs:      append([]string(nil), cfg.ExtraArgs...),
		log:            cfg.Log.New("component", "executor"),
		clock:          cfg.Clock,
		tracer:         otel.Tracer("deflake"),
		cmdBuilder:     cfg.CmdBuilder,
	}, nil
}

// Args returns the command line arguments used to run id.
func (e *BinaryExecutor) Args(id types.TestIdentity) []string {
	args := []string{FilterFlagPrefix + id.QualifiedName(), BriefFlag}
	return append(args, e.extraArgs...)
}

// Execute runs id once and classifies the result.
func (e *BinaryExecutor) Execute(ctx context.Context, id types.TestIdentity) (types.RunOutcome, error) {
	if ctx.Err() != nil {
		return types.RunOutcome{}, ErrAttemptAborted
	}
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("attempt %s", id.QualifiedName()))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := e.cmdBuilder(attemptCtx, e.binaryPath, e.Args(id)...)
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	cmd.Env = telemetry.InstrumentEnvironment(ctx, os.Environ())
	stdout := newTailBuffer(e.maxOutputBytes)
	stderr := newTailBuffer(e.maxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	outcome := types.RunOutcome{Identity: id, StartedAt: e.clock.Now()}
	if err := cmd.Start(); err != nil {
		outcome.Elapsed = e.clock.Since(outcome.StartedAt)
		outcome.ExitCode = types.ExitCodeLaunchError
		outcome.Stderr = err.Error()
		outcome.Kind = types.OutcomeLaunchError
		e.log.Warn("Failed to launch test", "test", id.QualifiedName(), "err", err)
		span.SetAttributes(attribute.String("outcome", string(outcome.Kind)))
		return outcome, nil
	}
	waitErr := cmd.Wait()
	outcome.Elapsed = e.clock.Since(outcome.StartedAt)

	if ctx.Err() != nil {
		e.log.Debug("Attempt aborted", "test", id.QualifiedName(), "elapsed", outcome.Elapsed)
		return types.RunOutcome{}, ErrAttemptAborted
	}

	outcome.Stdout = stdout.String()
	outcome.Stderr = stderr.String()
	outcome.Truncated = stdout.Truncated() || stderr.Truncated()

	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		outcome.ExitCode = types.ExitCodeTimeout
		outcome.Kind = types.OutcomeTimeout
	} else {
		outcome.ExitCode, outcome.Signal = exitStatus(cmd.ProcessState, waitErr)
		outcome.Kind = Classify(outcome.ExitCode, e.markerFound(id, outcome.Stdout, outcome.Stderr))
	}

	span.SetAttributes(
		attribute.String("outcome", string(outcome.Kind)),
		attribute.Int("exit_code", outcome.ExitCode),
	)
	e.log.Debug("Attempt finished", "test", id.QualifiedName(), "kind", outcome.Kind,
		"exitCode", outcome.ExitCode, "elapsed", outcome.Elapsed)
	return outcome, nil
}

// Classify maps an exit code and the presence of a failure marker to an
// outcome kind. A marker always means the test's own assertions failed; without
// one, only a clean zero exit is a pass.
func Classify(exitCode int, markerFound bool) types.OutcomeKind {
	switch {
	case markerFound:
		return types.OutcomeAssertionFailure
	case exitCode == 0:
		return types.OutcomePass
	default:
		return types.OutcomeCrash
	}
}

func (e *BinaryExecutor) markerFound(id types.TestIdentity, outputs ...string) bool {
	name := id.QualifiedName()
	for _, out := range outputs {
		if HasFailureMarker(out, e.marker, name) {
			return true
		}
	}
	return false
}

// HasFailureMarker reports whether output contains a line of the form
// "<marker> <name>", optionally followed by a space or comma and more text.
func HasFailureMarker(output, marker, name string) bool {
	if !strings.Contains(output, marker) {
		return false
	}
	for _, line := range strings.Split(output, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(stripansi.Strip(line)), marker)
		if !ok {
			continue
		}
		rest, ok = strings.CutPrefix(strings.TrimLeft(rest, " "), name)
		if !ok {
			continue
		}
		if rest == "" || rest[0] == ' ' || rest[0] == ',' {
			return true
		}
	}
	return false
}

// exitStatus extracts the exit code from a finished process.
func exitStatus(state *os.ProcessState, waitErr error) (int, string) {
	if state == nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			state = exitErr.ProcessState
		}
	}
	if state == nil {
		return types.ExitCodeLaunchError, ""
	}
	if code, sig, ok := signalStatus(state); ok {
		return code, sig
	}
	return state.ExitCode(), ""
}
