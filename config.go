package deflake

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-deflake/flags"
	"github.com/ethereum-optimism/infra/op-deflake/service"
)

// Config holds the configuration of a deflake session
type Config struct {
	BinaryPath       string
	Duration         time.Duration // dispatch budget
	Processes        int           // requested workers (0 = auto-determine)
	Verbose          bool
	Filter           string // gtest filter expression
	SelectionFile    string // YAML or TOML include/exclude file
	Timeout          time.Duration
	FailureLogPath   string
	FailureMarker    string
	MaxOutputBytes   int
	TestArgs         []string // extra arguments for every attempt
	ReportDir        string   // empty disables the JSON/HTML report
	ShowProgress     bool
	ProgressInterval time.Duration
	FailOnFlake      bool
	Service          service.Config
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger, binaryPath string) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if binaryPath == "" {
		return nil, errors.New("test binary path is required")
	}
	absBinary, err := filepath.Abs(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for binary '%s': %w", binaryPath, err)
	}

	seconds := ctx.Float64(flags.Duration.Name)
	if seconds <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %v", seconds)
	}
	processes := ctx.Int(flags.Processes.Name)
	if processes < 0 {
		return nil, fmt.Errorf("processes cannot be negative, got %d", processes)
	}
	timeout := ctx.Duration(flags.Timeout.Name)
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", timeout)
	}
	maxOutput := ctx.Int(flags.MaxOutputBytes.Name)
	if maxOutput <= 0 {
		return nil, fmt.Errorf("max output bytes must be positive, got %d", maxOutput)
	}

	failureLog := ctx.String(flags.FailureLog.Name)
	if failureLog == "" {
		return nil, errors.New("failure log path cannot be empty")
	}
	failureLog, err = filepath.Abs(failureLog)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for failure log '%s': %w", failureLog, err)
	}

	reportDir := ctx.String(flags.ReportDir.Name)
	if reportDir != "" {
		reportDir, err = filepath.Abs(reportDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for report directory '%s': %w", reportDir, err)
		}
		if _, err := os.Stat(filepath.Dir(reportDir)); err != nil {
			return nil, fmt.Errorf("report directory parent is not usable: %w", err)
		}
	}

	progressInterval := ctx.Duration(flags.ProgressInterval.Name)
	showProgress := ctx.Bool(flags.ShowProgress.Name)
	if showProgress && progressInterval <= 0 {
		return nil, fmt.Errorf("progress interval must be positive, got %s", progressInterval)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)

	return &Config{
		BinaryPath:       absBinary,
		Duration:         time.Duration(seconds * float64(time.Second)),
		Processes:        processes,
		Verbose:          ctx.Bool(flags.Verbose.Name),
		Filter:           ctx.String(flags.Filter.Name),
		SelectionFile:    ctx.String(flags.SelectionFile.Name),
		Timeout:          timeout,
		FailureLogPath:   failureLog,
		FailureMarker:    ctx.String(flags.FailureMarker.Name),
		MaxOutputBytes:   maxOutput,
		TestArgs:         ctx.StringSlice(flags.TestArgs.Name),
		ReportDir:        reportDir,
		ShowProgress:     showProgress,
		ProgressInterval: progressInterval,
		FailOnFlake:      ctx.Bool(flags.FailOnFlake.Name),
		Service: service.Config{
			StatusPort:     ctx.Int(flags.StatusPort.Name),
			MetricsEnabled: metricsCfg.Enabled,
			MetricsAddr:    metricsCfg.ListenAddr,
			MetricsPort:    metricsCfg.ListenPort,
		},
		Log: log,
	}, nil
}
