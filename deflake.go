package deflake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-deflake/catalog"
	"github.com/ethereum-optimism/infra/op-deflake/exitcodes"
	"github.com/ethereum-optimism/infra/op-deflake/logging"
	"github.com/ethereum-optimism/infra/op-deflake/metrics"
	"github.com/ethereum-optimism/infra/op-deflake/reporting"
	"github.com/ethereum-optimism/infra/op-deflake/runner"
	"github.com/ethereum-optimism/infra/op-deflake/selection"
	"github.com/ethereum-optimism/infra/op-deflake/service"
	"github.com/ethereum-optimism/infra/op-deflake/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

const serviceShutdownTimeout = 5 * time.Second

// deflaker implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &deflaker{}

// deflaker runs one session against a test binary and reports the results.
type deflaker struct {
	config     *Config
	version    string
	session    *types.RunSession
	executor   runner.Executor
	aggregator *runner.Aggregator
	failureLog *logging.FailureLog
	sink       *metrics.Sink
	svc        *service.Service
	clock      clock.Clock
	out        io.Writer
	report     *reporting.SessionReport

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// Option customizes a deflaker.
type Option func(*deflaker)

// WithExecutor replaces the binary executor.
func WithExecutor(e runner.Executor) Option {
	return func(d *deflaker) { d.executor = e }
}

// WithClock replaces the wall clock used for the budget and statistics.
func WithClock(clk clock.Clock) Option {
	return func(d *deflaker) { d.clock = clk }
}

// WithOutput sets where the results are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(d *deflaker) { d.out = w }
}

// New discovers the binary's tests, resolves the selection and prepares a
// pending session. Discovery errors are returned unchanged so callers can
// tell an unusable binary from an empty one.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error), opts ...Option) (*deflaker, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		config.Log = log.Root()
	}

	d := &deflaker{
		config:           config,
		version:          version,
		clock:            clock.NewClock(),
		out:              os.Stdout,
		shutdownCallback: shutdownCallback,
	}
	for _, opt := range opts {
		opt(d)
	}

	config.Log.Debug("Creating deflaker with config",
		"binary", config.BinaryPath,
		"duration", config.Duration,
		"processes", config.Processes,
		"filter", config.Filter,
		"selectionFile", config.SelectionFile)

	cat, err := catalog.Discover(ctx, config.BinaryPath, catalog.Options{Log: config.Log})
	if err != nil {
		return nil, err
	}
	config.Log.Info("Discovered tests", "suites", len(cat.Suites()), "tests", cat.Len())

	selected, err := resolveSelection(cat, config)
	if err != nil {
		return nil, err
	}

	workers := runner.DetermineConcurrency(config.Processes, config.Log)
	session, err := types.NewRunSession(uuid.New().String(), config.BinaryPath, cat, types.RunRequest{
		Selected:       selected,
		DurationBudget: config.Duration,
		WorkerCount:    workers,
	})
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	d.session = session

	if d.executor == nil {
		d.executor, err = runner.NewBinaryExecutor(runner.ExecutorConfig{
			BinaryPath:     config.BinaryPath,
			Timeout:        config.Timeout,
			MaxOutputBytes: config.MaxOutputBytes,
			FailureMarker:  config.FailureMarker,
			ExtraArgs:      config.TestArgs,
			Log:            config.Log,
			Clock:          d.clock,
		})
		if err != nil {
			return nil, NewRuntimeError(fmt.Errorf("failed to create executor: %w", err))
		}
	}

	d.aggregator = runner.NewAggregator(session, d.clock)
	d.failureLog, err = logging.NewFailureLog(config.FailureLogPath, config.Log)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to create failure log: %w", err))
	}
	d.sink = metrics.NewSink()
	d.svc = service.New(config.Service, session, d.aggregator, config.Log)

	config.Log.Info("deflake.New: created session",
		"session", session.ID, "selected", len(selected), "workers", workers)
	return d, nil
}

func resolveSelection(cat *types.TestCatalog, config *Config) ([]types.TestIdentity, error) {
	var filters []selection.Filter
	if config.Filter != "" {
		filters = append(filters, selection.ParseFilter(config.Filter))
	}
	if config.SelectionFile != "" {
		f, err := selection.LoadFile(config.SelectionFile)
		if err != nil {
			return nil, NewSelectionError(err)
		}
		filters = append(filters, f.Filter())
	}
	selected, err := selection.Resolve(cat, filters...)
	if err != nil {
		return nil, NewSelectionError(err)
	}
	return selected, nil
}

// Session returns the session, which is finalized once Start has returned.
func (d *deflaker) Session() *types.RunSession {
	return d.session
}

// Report returns the summary of the finished session, or nil before that.
func (d *deflaker) Report() *reporting.SessionReport {
	return d.report
}

// Start runs the session to completion and prints the results.
// Start implements the cliapp.Lifecycle interface.
func (d *deflaker) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			d.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	d.running.Store(true)

	d.config.Log.Info("Starting deflake session",
		"session", d.session.ID,
		"binary", d.config.BinaryPath,
		"tests", len(d.session.Request.Selected),
		"workers", d.session.Request.WorkerCount,
		"budget", d.session.Request.DurationBudget,
		"version", d.version)

	d.svc.Start()
	err := d.runSession(ctx)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serviceShutdownTimeout)
	d.svc.Shutdown(shutdownCtx)
	cancel()
	if err != nil {
		return err
	}

	if failed := len(d.session.Failures()); failed > 0 && d.config.FailOnFlake {
		d.config.Log.Warn("Session recorded failures, returning exit code 1", "failures", failed)
		return NewTestFailureError(fmt.Sprintf("%d of %d attempts failed", failed, len(d.session.Outcomes())))
	}

	go func() {
		d.shutdownCallback(nil)
	}()
	return nil
}

func (d *deflaker) runSession(ctx context.Context) error {
	progress := runner.NewNoOpProgressIndicator()
	if d.config.ShowProgress {
		progress = runner.NewConsoleProgressIndicator(d.config.Log, d.clock, d.config.ProgressInterval, d.aggregator)
	}
	if d.config.Verbose {
		progress = runner.NewMultiProgressIndicator(progress, &attemptLogger{log: d.config.Log})
	}

	scheduler, err := runner.NewScheduler(runner.SchedulerConfig{
		Executor:   d.executor,
		Consumers:  []runner.OutcomeConsumer{d.aggregator, d.failureLog, d.sink},
		Progress:   runner.NewMultiProgressIndicator(progress, d.sink),
		Clock:      d.clock,
		Log:        d.config.Log,
		BufferSize: runner.DefaultBroadcastBuffer,
	})
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create scheduler: %w", err))
	}

	session, err := scheduler.Run(ctx, d.session)
	if err != nil {
		if !runner.IsSinkError(err) || session == nil {
			return NewRuntimeError(err)
		}
		d.config.Log.Warn("Some outcome consumers failed, results may be incomplete", "err", err)
		metrics.RecordErrorDetails("sink", err)
	}

	stats, ok := d.aggregator.Final()
	if !ok {
		stats = session.Statistics()
	}
	d.report = reporting.BuildReport(session, stats)
	d.printResults(session, stats)

	if d.config.ReportDir != "" {
		dir, err := reporting.WriteReport(d.config.ReportDir, d.report)
		if err != nil {
			d.config.Log.Error("Failed to write session report", "err", err)
			metrics.RecordErrorDetails("report", err)
		} else {
			fmt.Fprintf(d.out, "Session report written to %s\n", dir)
		}
	}

	d.config.Log.Info("Session finished",
		"session", session.ID,
		"status", session.Status(),
		"attempts", stats.Overall.Attempts,
		"failures", stats.Overall.FailureCount(),
		"duration", session.Duration())
	return nil
}

func (d *deflaker) printResults(session *types.RunSession, stats types.SessionStatistics) {
	d.config.Log.Info("Printing results...")
	fmt.Fprint(d.out, reporting.ResultsTable(session, stats, reporting.TableOptions{
		Title: fmt.Sprintf("Deflake Results (%s)", reporting.FormatDuration(session.Duration())),
		Color: reporting.IsTerminal(d.out),
	}))

	failures := session.Failures()
	if len(failures) == 0 {
		fmt.Fprintf(d.out, "\nAll %s attempts passed.\n", humanize.Comma(int64(stats.Overall.Attempts)))
		return
	}
	fmt.Fprintln(d.out)
	fmt.Fprint(d.out, reporting.FailureBreakdown(failures, d.config.Verbose))
	if flaky := d.report.FlakyTests(); len(flaky) > 0 {
		fmt.Fprintf(d.out, "\nFlaky tests: %s\n", strings.Join(flaky, ", "))
	}
	if d.failureLog.Count() > 0 {
		fmt.Fprintf(d.out, "\nFailure details written to %s\n", d.failureLog.Path())
	}
}

// Stop stops the deflaker.
// Stop implements the cliapp.Lifecycle interface.
func (d *deflaker) Stop(ctx context.Context) error {
	d.config.Log.Info("Stopping deflake")

	if !d.running.CompareAndSwap(true, false) {
		d.config.Log.Debug("Already stopped, nothing to do")
		return nil
	}

	d.config.Log.Info("deflake stopped successfully")
	return nil
}

// Stopped returns true if the deflaker is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (d *deflaker) Stopped() bool {
	return !d.running.Load()
}

// attemptLogger logs every dispatch and outcome at debug level.
type attemptLogger struct {
	log log.Logger
}

func (a *attemptLogger) StartSession(*types.RunSession) {}

func (a *attemptLogger) StartAttempt(attempt runner.Attempt) {
	a.log.Debug("Dispatching attempt", "seq", attempt.Seq, "test", attempt.Identity.QualifiedName())
}

func (a *attemptLogger) CompleteAttempt(attempt runner.Attempt, outcome *types.RunOutcome) {
	if outcome == nil {
		a.log.Debug("Attempt aborted", "seq", attempt.Seq, "test", attempt.Identity.QualifiedName())
		return
	}
	a.log.Debug("Attempt finished",
		"seq", attempt.Seq,
		"test", attempt.Identity.QualifiedName(),
		"outcome", outcome.Kind,
		"exitCode", outcome.ExitCode,
		"elapsed", outcome.Elapsed)
}

func (a *attemptLogger) CompleteSession(*types.RunSession) {}

// PrintCatalog discovers the tests in binaryPath and writes them as a tree.
func PrintCatalog(ctx context.Context, binaryPath string, logger log.Logger, w io.Writer) error {
	if binaryPath == "" {
		return NewRuntimeError(errors.New("test binary path is required"))
	}
	cat, err := catalog.Discover(ctx, binaryPath, catalog.Options{Log: logger})
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, reporting.CatalogTree(cat))
	return err
}
