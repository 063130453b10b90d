package deflake

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-deflake/flags"
)

// parseConfig runs args through the run flags and builds a Config from them.
func parseConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var (
		cfg    *Config
		cfgErr error
	)
	app := &cli.App{
		Flags: flags.Flags,
		Action: func(ctx *cli.Context) error {
			cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()), ctx.Args().First())
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"deflake"}, args...)))
	return cfg, cfgErr
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(t, "bin/unit_tests")
	require.NoError(t, err)

	abs, err := filepath.Abs("bin/unit_tests")
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.BinaryPath)
	assert.Equal(t, 5*time.Second, cfg.Duration)
	assert.Equal(t, 0, cfg.Processes)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "failed_tests.log", filepath.Base(cfg.FailureLogPath))
	assert.True(t, filepath.IsAbs(cfg.FailureLogPath))
	assert.Equal(t, "[  FAILED  ]", cfg.FailureMarker)
	assert.Equal(t, 5*1024*1024, cfg.MaxOutputBytes)
	assert.Empty(t, cfg.ReportDir)
	assert.True(t, cfg.ShowProgress)
	assert.False(t, cfg.FailOnFlake)
	assert.Equal(t, 0, cfg.Service.StatusPort)
	assert.False(t, cfg.Service.MetricsEnabled)
	assert.NotNil(t, cfg.Log)
}

func TestNewConfigFlags(t *testing.T) {
	reportDir := filepath.Join(t.TempDir(), "reports")
	cfg, err := parseConfig(t,
		"-d", "0.5", "-p", "3", "-v", "-f", "Math.*",
		"--timeout", "2s", "--test-arg", "--gtest_repeat=1",
		"--report-dir", reportDir, "--status.port", "8085",
		"--metrics.enabled", "--fail-on-flake",
		"/opt/tests/unit",
	)
	require.NoError(t, err)
	assert.Equal(t, "/opt/tests/unit", cfg.BinaryPath)
	assert.Equal(t, 500*time.Millisecond, cfg.Duration)
	assert.Equal(t, 3, cfg.Processes)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "Math.*", cfg.Filter)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"--gtest_repeat=1"}, cfg.TestArgs)
	assert.Equal(t, reportDir, cfg.ReportDir)
	assert.Equal(t, 8085, cfg.Service.StatusPort)
	assert.True(t, cfg.Service.MetricsEnabled)
	assert.True(t, cfg.FailOnFlake)
}

func TestNewConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing binary", nil},
		{"zero duration", []string{"-d", "0", "/bin/true"}},
		{"negative duration", []string{"-d", "-1", "/bin/true"}},
		{"negative processes", []string{"-p", "-2", "/bin/true"}},
		{"zero timeout", []string{"--timeout", "0s", "/bin/true"}},
		{"zero output cap", []string{"--max-output-bytes", "0", "/bin/true"}},
		{"empty failure log", []string{"--failure-log", "", "/bin/true"}},
		{"report dir without parent", []string{"--report-dir", "/nonexistent-parent-dir/reports", "/bin/true"}},
		{"zero progress interval", []string{"--progress-interval", "0s", "/bin/true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	base := errors.New("boom")

	wrapped := errors.Join(errors.New("failed to start"), NewRuntimeError(base))
	assert.True(t, IsRuntimeError(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.False(t, IsRuntimeError(base))
	assert.False(t, IsRuntimeError(nil))

	sel := NewSelectionError(base)
	assert.True(t, IsSelectionError(sel))
	assert.Equal(t, "selection error: boom", sel.Error())
	assert.False(t, IsSelectionError(NewRuntimeError(base)))

	tf := NewTestFailureError("3 of 10 attempts failed")
	assert.True(t, IsTestFailureError(tf))
	assert.Equal(t, "test failure: 3 of 10 attempts failed", tf.Error())
}
