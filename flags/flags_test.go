package flags

import (
	"testing"
	"time"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that no flag is required; the
// binary path is a positional argument.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range append(append([]cli.Flag{}, Flags...), DiscoverFlags...) {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names and aliases are unique within a command.
func TestUniqueFlags(t *testing.T) {
	for _, set := range [][]cli.Flag{Flags, DiscoverFlags} {
		seen := make(map[string]struct{})
		for _, flag := range set {
			for _, name := range flag.Names() {
				if _, ok := seen[name]; ok {
					t.Errorf("duplicate flag %s", name)
					continue
				}
				seen[name] = struct{}{}
			}
		}
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")
			require.Equal(t, opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix), envFlags[0])
		})
	}
}

func TestRunFlagDefaults(t *testing.T) {
	app := &cli.App{
		Flags: Flags,
		Action: func(ctx *cli.Context) error {
			assert.Equal(t, 5.0, ctx.Float64(Duration.Name))
			assert.Equal(t, 0, ctx.Int(Processes.Name))
			assert.Equal(t, 30*time.Second, ctx.Duration(Timeout.Name))
			assert.Equal(t, "failed_tests.log", ctx.String(FailureLog.Name))
			assert.Equal(t, "[  FAILED  ]", ctx.String(FailureMarker.Name))
			assert.Equal(t, 5*1024*1024, ctx.Int(MaxOutputBytes.Name))
			assert.True(t, ctx.Bool(ShowProgress.Name))
			assert.False(t, ctx.Bool(FailOnFlake.Name))
			assert.Empty(t, ctx.StringSlice(TestArgs.Name))
			return nil
		},
	}
	require.NoError(t, app.Run([]string{"deflake"}))
}

func TestRunFlagAliases(t *testing.T) {
	app := &cli.App{
		Flags: Flags,
		Action: func(ctx *cli.Context) error {
			assert.Equal(t, 2.5, ctx.Float64(Duration.Name))
			assert.Equal(t, 4, ctx.Int(Processes.Name))
			assert.True(t, ctx.Bool(Verbose.Name))
			assert.Equal(t, "Net.*", ctx.String(Filter.Name))
			assert.Equal(t, []string{"--gtest_also_run_disabled_tests", "--seed=3"}, ctx.StringSlice(TestArgs.Name))
			assert.Equal(t, "/opt/tests/unit", ctx.Args().First())
			return nil
		},
	}
	require.NoError(t, app.Run([]string{
		"deflake", "-d", "2.5", "-p", "4", "-v", "-f", "Net.*",
		"--test-arg", "--gtest_also_run_disabled_tests", "--test-arg", "--seed=3",
		"/opt/tests/unit",
	}))
}

func TestDurationFromEnv(t *testing.T) {
	t.Setenv("OP_DEFLAKE_DURATION", "0.25")
	app := &cli.App{
		Flags: Flags,
		Action: func(ctx *cli.Context) error {
			assert.Equal(t, 0.25, ctx.Float64(Duration.Name))
			return nil
		},
	}
	require.NoError(t, app.Run([]string{"deflake"}))
}
