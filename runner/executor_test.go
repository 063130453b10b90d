package runner

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

const fakeGtestBody = `case "$1" in
  --gtest_filter=S.Pass) echo "args: $@"; exit 0 ;;
  --gtest_filter=S.Fail) echo "[  FAILED  ] S.Fail (3 ms)"; exit 1 ;;
  --gtest_filter=S.FailZero) echo "[  FAILED  ] S.FailZero"; exit 0 ;;
  --gtest_filter=S.OtherMarker) echo "[  FAILED  ] S.OtherMarkerLonger"; exit 0 ;;
  --gtest_filter=S.Crash) echo "about to crash" >&2; kill -SEGV $$ ;;
  --gtest_filter=S.Exit) echo boom >&2; exit 3 ;;
  --gtest_filter=S.Noisy) i=0; while [ $i -lt 200 ]; do echo "line $i"; i=$((i+1)); done; exit 0 ;;
  --gtest_filter=S.Hang) sleep 10 ;;
esac
exit 0
`

func newScriptExecutor(t *testing.T, mutate func(*ExecutorConfig)) *BinaryExecutor {
	t.Helper()
	cfg := ExecutorConfig{
		BinaryPath: writeScript(t, fakeGtestBody),
		Timeout:    5 * time.Second,
		Log:        testLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewBinaryExecutor(cfg)
	require.NoError(t, err)
	return e
}

func caseID(name string) types.TestIdentity {
	return types.TestIdentity{Suite: "S", Case: name, Kind: types.VariantPlain}
}

func TestExecutorClassification(t *testing.T) {
	e := newScriptExecutor(t, nil)
	tests := []struct {
		name     string
		kind     types.OutcomeKind
		exitCode int
	}{
		{"Pass", types.OutcomePass, 0},
		{"Fail", types.OutcomeAssertionFailure, 1},
		{"FailZero", types.OutcomeAssertionFailure, 0},
		{"OtherMarker", types.OutcomePass, 0},
		{"Crash", types.OutcomeCrash, -11},
		{"Exit", types.OutcomeCrash, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := e.Execute(context.Background(), caseID(tt.name))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, o.Kind)
			assert.Equal(t, tt.exitCode, o.ExitCode)
			assert.Equal(t, caseID(tt.name), o.Identity)
			assert.False(t, o.StartedAt.IsZero())
		})
	}
}

func TestExecutorCapturesOutput(t *testing.T) {
	e := newScriptExecutor(t, func(c *ExecutorConfig) { c.ExtraArgs = []string{"--gtest_also_run_disabled_tests"} })

	o, err := e.Execute(context.Background(), caseID("Pass"))
	require.NoError(t, err)
	assert.Contains(t, o.Stdout, "--gtest_filter=S.Pass --gtest_brief=yes --gtest_also_run_disabled_tests")

	o, err = e.Execute(context.Background(), caseID("Crash"))
	require.NoError(t, err)
	assert.Contains(t, o.Stderr, "about to crash")
	assert.Equal(t, "SIGSEGV", o.Signal)
}

func TestExecutorTruncatesOutput(t *testing.T) {
	e := newScriptExecutor(t, func(c *ExecutorConfig) { c.MaxOutputBytes = 64 })
	o, err := e.Execute(context.Background(), caseID("Noisy"))
	require.NoError(t, err)
	assert.True(t, o.Truncated)
	assert.LessOrEqual(t, len(o.Stdout), 64)
	assert.True(t, strings.HasSuffix(o.Stdout, "line 199\n"))
}

func TestExecutorTimeout(t *testing.T) {
	e := newScriptExecutor(t, func(c *ExecutorConfig) { c.Timeout = 300 * time.Millisecond })
	start := time.Now()
	o, err := e.Execute(context.Background(), caseID("Hang"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeTimeout, o.Kind)
	assert.Equal(t, types.ExitCodeTimeout, o.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecutorAbortOnCancel(t *testing.T) {
	e := newScriptExecutor(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	_, err := e.Execute(ctx, caseID("Hang"))
	require.ErrorIs(t, err, ErrAttemptAborted)

	_, err = e.Execute(ctx, caseID("Pass"))
	require.ErrorIs(t, err, ErrAttemptAborted)
}

func TestExecutorLaunchError(t *testing.T) {
	e, err := NewBinaryExecutor(ExecutorConfig{
		BinaryPath: filepath.Join(t.TempDir(), "missing"),
		Log:        testLogger(),
	})
	require.NoError(t, err)

	o, err := e.Execute(context.Background(), caseID("Pass"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeLaunchError, o.Kind)
	assert.Equal(t, types.ExitCodeLaunchError, o.ExitCode)
	assert.NotEmpty(t, o.Stderr)
}

func TestNewBinaryExecutorRequiresPath(t *testing.T) {
	_, err := NewBinaryExecutor(ExecutorConfig{})
	require.Error(t, err)
}

func TestExecutorArgs(t *testing.T) {
	e, err := NewBinaryExecutor(ExecutorConfig{BinaryPath: "/bin/true", ExtraArgs: []string{"--x"}, Log: testLogger()})
	require.NoError(t, err)
	id := types.TestIdentity{Suite: "Typed/0", Case: "Works", Variant: "int", Kind: types.VariantTyped}
	assert.Equal(t, []string{"--gtest_filter=Typed/0.Works", "--gtest_brief=yes", "--x"}, e.Args(id))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, types.OutcomePass, Classify(0, false))
	assert.Equal(t, types.OutcomeAssertionFailure, Classify(0, true))
	assert.Equal(t, types.OutcomeAssertionFailure, Classify(1, true))
	assert.Equal(t, types.OutcomeAssertionFailure, Classify(-6, true))
	assert.Equal(t, types.OutcomeCrash, Classify(1, false))
	assert.Equal(t, types.OutcomeCrash, Classify(-11, false))
}

func TestHasFailureMarker(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"bare", "[  FAILED  ] S.Case\n", true},
		{"with timing", "[  FAILED  ] S.Case (12 ms)\n", true},
		{"with param", "[  FAILED  ] S.Case, where GetParam() = 3 (0 ms)", true},
		{"colored", "\x1b[0;31m[  FAILED  ] \x1b[mS.Case\n", true},
		{"prefix of longer name", "[  FAILED  ] S.CaseTwo\n", false},
		{"other test", "[  FAILED  ] S.Other\n", false},
		{"summary count", "[  FAILED  ] 1 test, listed below:\n", false},
		{"no marker", "[       OK ] S.Case\n", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasFailureMarker(tt.output, DefaultFailureMarker, "S.Case"))
		})
	}
}
