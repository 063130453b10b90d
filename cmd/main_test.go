package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	deflake "github.com/ethereum-optimism/infra/op-deflake"
	"github.com/ethereum-optimism/infra/op-deflake/catalog"
	"github.com/ethereum-optimism/infra/op-deflake/exitcodes"
)

// TestExitCodes verifies the mapping from command errors to exit codes:
// - 0 when the session ran, whatever the tests did
// - 1 when failures were recorded with --fail-on-flake
// - 2 for runtime, discovery and selection errors
// - 3 when the binary lists no tests
func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitcodes.Success},
		{"flakes found", deflake.NewTestFailureError("2 of 9 attempts failed"), exitcodes.FlakesFound},
		{"runtime error", deflake.NewRuntimeError(errors.New("bad config")), exitcodes.RuntimeErr},
		{"selection error", fmt.Errorf("failed to create deflaker: %w", deflake.NewSelectionError(errors.New("none"))), exitcodes.RuntimeErr},
		{"discovery error", &catalog.DiscoveryError{BinaryPath: "/x", Reason: catalog.ReasonNotFound}, exitcodes.RuntimeErr},
		{"empty catalog", fmt.Errorf("failed to create deflaker: %w", &catalog.EmptyCatalogError{BinaryPath: "/x"}), exitcodes.EmptyCatalog},
		{"unknown error", errors.New("surprise"), exitcodes.RuntimeErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake_gtest")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// testApp returns the app with output captured and exit handling disabled.
func testApp(out *bytes.Buffer) *cli.App {
	app := newApp()
	app.Writer = out
	app.ErrWriter = out
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func TestDiscoverCommand(t *testing.T) {
	bin := writeScript(t, `if [ "$1" = "--gtest_list_tests" ]; then
echo "Running main() from gtest_main.cc"
echo "Codec."
echo "  Encodes"
echo "  Decodes"
exit 0
fi
exit 1
`)
	var out bytes.Buffer
	require.NoError(t, testApp(&out).Run([]string{"op-deflake", "discover", "--log.level", "error", bin}))
	assert.Contains(t, out.String(), "Codec (2 tests)")
	assert.Contains(t, out.String(), "Total Tests: 2")
}

func TestDiscoverCommandErrors(t *testing.T) {
	var out bytes.Buffer
	err := testApp(&out).Run([]string{"op-deflake", "discover", "--log.level", "error", filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.Equal(t, exitcodes.RuntimeErr, exitCode(err))

	empty := writeScript(t, "exit 0\n")
	err = testApp(&out).Run([]string{"op-deflake", "discover", "--log.level", "error", empty})
	require.Error(t, err)
	assert.Equal(t, exitcodes.EmptyCatalog, exitCode(err))
}
