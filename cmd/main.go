package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	deflake "github.com/ethereum-optimism/infra/op-deflake"
	"github.com/ethereum-optimism/infra/op-deflake/catalog"
	"github.com/ethereum-optimism/infra/op-deflake/exitcodes"
	"github.com/ethereum-optimism/infra/op-deflake/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-deflake"
	app.Usage = "Repeatedly runs gtest cases to surface flaky tests"
	app.Description = "op-deflake runs the tests of a gtest binary over and over for a time budget and reports which ones fail intermittently"
	app.Commands = []*cli.Command{
		{
			Name:      "run",
			Usage:     "Run the selected tests repeatedly for the duration budget",
			ArgsUsage: "<binaryPath>",
			Flags:     cliapp.ProtectFlags(flags.Flags),
			Action:    cliapp.LifecycleCmd(run),
		},
		{
			Name:      "discover",
			Usage:     "List the tests of a gtest binary",
			ArgsUsage: "<binaryPath>",
			Flags:     cliapp.ProtectFlags(flags.DiscoverFlags),
			Action:    discover,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
		}
	}
	return app
}

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case catalog.IsEmptyCatalogError(err):
		return exitcodes.EmptyCatalog
	case deflake.IsTestFailureError(err):
		return exitcodes.FlakesFound
	default:
		// runtime, discovery and selection errors, and anything unexpected
		return exitcodes.RuntimeErr
	}
}

func setupLogger(ctx *cli.Context) log.Logger {
	logCfg := oplog.ReadCLIConfig(ctx)
	if ctx.Bool(flags.Verbose.Name) {
		logCfg.Level = log.LevelDebug
	}
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	oplog.SetupDefaults()
	return logger
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logger := setupLogger(ctx)

	cfg, err := deflake.NewConfig(ctx, logger, ctx.Args().First())
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, deflake.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	d, err := deflake.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		return nil, fmt.Errorf("failed to create deflaker: %w", err)
	}
	return d, nil
}

func discover(ctx *cli.Context) error {
	logger := setupLogger(ctx)
	return deflake.PrintCatalog(ctx.Context, ctx.Args().First(), logger, ctx.App.Writer)
}
