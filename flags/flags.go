package flags

import (
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-deflake/logging"
	"github.com/ethereum-optimism/infra/op-deflake/runner"
)

const EnvVarPrefix = "OP_DEFLAKE"

var (
	Duration = &cli.Float64Flag{
		Name:    "duration",
		Aliases: []string{"d"},
		Value:   5.0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DURATION"),
		Usage:   "Seconds during which new attempts are dispatched. Running attempts are always waited for.",
	}
	Processes = &cli.IntFlag{
		Name:    "processes",
		Aliases: []string{"p"},
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROCESSES"),
		Usage:   "Number of concurrent attempts (0 = one per physical core)",
	}
	Verbose = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "VERBOSE"),
		Usage:   "Log every attempt and print details for each distinct failure",
	}
	Filter = &cli.StringFlag{
		Name:    "filter",
		Aliases: []string{"f"},
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FILTER"),
		Usage:   "gtest filter expression selecting the tests to run (eg. 'Net*:Disk.*-*.Slow*')",
	}
	SelectionFile = &cli.StringFlag{
		Name:    "selection-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SELECTION_FILE"),
		Usage:   "YAML or TOML file with include/exclude test patterns",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   runner.DefaultAttemptTimeout,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Hard limit for a single attempt; the attempt is killed and recorded as a timeout",
	}
	FailureLog = &cli.StringFlag{
		Name:    "failure-log",
		Value:   logging.DefaultFailureLogPath,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FAILURE_LOG"),
		Usage:   "File that failed attempts are appended to",
	}
	FailureMarker = &cli.StringFlag{
		Name:    "failure-marker",
		Value:   runner.DefaultFailureMarker,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FAILURE_MARKER"),
		Usage:   "Line prefix the binary prints before the name of a failed test",
	}
	MaxOutputBytes = &cli.IntFlag{
		Name:    "max-output-bytes",
		Value:   runner.DefaultMaxOutputBytes,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_OUTPUT_BYTES"),
		Usage:   "Maximum bytes of stdout and of stderr kept per attempt (the tail is kept)",
	}
	TestArgs = &cli.StringSliceFlag{
		Name:    "test-arg",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_ARG"),
		Usage:   "Extra argument passed to every attempt. May be repeated.",
	}
	ReportDir = &cli.StringFlag{
		Name:    "report-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT_DIR"),
		Usage:   "Directory to write the JSON and HTML session report to (empty disables)",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Log periodic progress updates while the session runs",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   runner.DefaultProgressInterval,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
	StatusPort = &cli.IntFlag{
		Name:    "status.port",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STATUS_PORT"),
		Usage:   "Port for the HTTP status server (0 disables)",
	}
	FailOnFlake = &cli.BoolFlag{
		Name:    "fail-on-flake",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FAIL_ON_FLAKE"),
		Usage:   "Exit with code 1 when any attempt failed",
	}
)

var runFlags = []cli.Flag{
	Duration,
	Processes,
	Verbose,
	Filter,
	SelectionFile,
	Timeout,
	FailureLog,
	FailureMarker,
	MaxOutputBytes,
	TestArgs,
	ReportDir,
	ShowProgress,
	ProgressInterval,
	StatusPort,
	FailOnFlake,
}

var discoverFlags = []cli.Flag{
	Verbose,
}

// Flags are the flags of the run command.
var Flags []cli.Flag

// DiscoverFlags are the flags of the discover command.
var DiscoverFlags []cli.Flag

func init() {
	logFlags := oplog.CLIFlags(EnvVarPrefix)
	Flags = append(append(append([]cli.Flag{}, runFlags...), logFlags...), opmetrics.CLIFlags(EnvVarPrefix)...)
	DiscoverFlags = append(append([]cli.Flag{}, discoverFlags...), logFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	return opflags.CheckRequiredXor(ctx)
}
