// Package logging persists failed attempts to the failure log shared across
// deflake sessions.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-deflake/runner"
	"github.com/ethereum-optimism/infra/op-deflake/types"
)

const (
	// DefaultFailureLogPath is relative to the working directory.
	DefaultFailureLogPath = "failed_tests.log"

	HeaderTimeLayout = "2006-01-02 15:04:05"

	spoolBuffer = 64
)

var (
	headerRule = strings.Repeat("=", 80)
	entryRule  = strings.Repeat("—", 40)
)

var _ runner.OutcomeConsumer = (*FailureLog)(nil)

// FailureLog writes every non-pass outcome of a session to the failure log.
//
// Entries are numbered in arrival order and streamed to a spool file next to
// the log while the session runs. Complete appends the session header followed
// by the spooled entries, so the log only ever grows by whole sessions.
type FailureLog struct {
	path string
	log  log.Logger

	mu        sync.Mutex
	seq       int
	spool     *os.File
	spoolW    *asyncFile
	completed bool
}

// NewFailureLog creates a writer appending to path. Parent directories are
// created as needed.
func NewFailureLog(path string, logger log.Logger) (*FailureLog, error) {
	if path == "" {
		return nil, errors.New("failure log path cannot be empty")
	}
	if logger == nil {
		logger = log.Root()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &FailureLog{path: path, log: logger.New("component", "failure-log")}, nil
}

func (f *FailureLog) Name() string { return "failure-log" }

// Path returns the log file location.
func (f *FailureLog) Path() string {
	return f.path
}

// Count returns the number of failures observed so far.
func (f *FailureLog) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

// Consume implements runner.OutcomeConsumer. Passing outcomes are ignored.
func (f *FailureLog) Consume(o types.RunOutcome) error {
	if !o.Failed() {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed {
		return errors.New("failure log already completed")
	}
	if f.spoolW == nil {
		if err := f.openSpool(); err != nil {
			return err
		}
	}
	f.seq++
	return f.spoolW.Write([]byte(FormatEntry(f.seq, o)))
}

func (f *FailureLog) openSpool() error {
	spool, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*.spool")
	if err != nil {
		return fmt.Errorf("failed to create failure spool: %w", err)
	}
	f.spool = spool
	f.spoolW = newAsyncFile(spool, spoolBuffer)
	return nil
}

// Complete implements runner.OutcomeConsumer. It appends the session to the
// log; a session without failures writes nothing.
func (f *FailureLog) Complete(session *types.RunSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed {
		return nil
	}
	f.completed = true
	if f.spoolW == nil {
		return nil
	}
	defer f.removeSpool()

	if err := f.spoolW.Flush(); err != nil {
		return err
	}
	if err := f.appendSession(session.StartedAt()); err != nil {
		return err
	}
	f.log.Info("Wrote failure log", "path", f.path, "failures", f.seq)
	return nil
}

func (f *FailureLog) appendSession(start time.Time) error {
	out, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open failure log %s: %w", f.path, err)
	}
	defer func() {
		_ = out.Close()
	}()

	info, err := out.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat failure log %s: %w", f.path, err)
	}
	header := FormatHeader(start, f.seq)
	if info.Size() > 0 {
		header = "\n" + header
	}
	if _, err := io.WriteString(out, header); err != nil {
		return fmt.Errorf("failed to write failure log header: %w", err)
	}
	if _, err := f.spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind failure spool: %w", err)
	}
	if _, err := io.Copy(out, f.spool); err != nil {
		return fmt.Errorf("failed to write failure log entries: %w", err)
	}
	if _, err := io.WriteString(out, "\n"); err != nil {
		return fmt.Errorf("failed to write failure log: %w", err)
	}
	return out.Sync()
}

func (f *FailureLog) removeSpool() {
	name := f.spool.Name()
	_ = f.spool.Close()
	if err := os.Remove(name); err != nil {
		f.log.Warn("Failed to remove failure spool", "path", name, "err", err)
	}
	f.spool, f.spoolW = nil, nil
}

// FormatHeader renders the session header.
func FormatHeader(start time.Time, failures int) string {
	var b strings.Builder
	fmt.Fprintln(&b, headerRule)
	fmt.Fprintf(&b, "DEFLAKE SESSION: %s\n", start.Format(HeaderTimeLayout))
	fmt.Fprintf(&b, "Total Failed Runs: %d\n", failures)
	fmt.Fprintln(&b, headerRule)
	b.WriteString("\n")
	return b.String()
}

// FormatEntry renders one numbered failure block.
func FormatEntry(seq int, o types.RunOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FAILURE #%d\n", seq)
	fmt.Fprintln(&b, entryRule)
	fmt.Fprintf(&b, "Return Code: %d\n", o.ExitCode)
	fmt.Fprintf(&b, "Duration: %.1fms\n", float64(o.Elapsed)/float64(time.Millisecond))
	if strings.TrimSpace(o.Stdout) != "" {
		b.WriteString("\nStandard Output:\n")
		b.WriteString(o.Stdout)
		b.WriteString("\n")
	}
	if strings.TrimSpace(o.Stderr) != "" {
		b.WriteString("\nStandard Error:\n")
		b.WriteString(o.Stderr)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
