// Package catalog builds the set of runnable test identities from a gtest
// binary's listing output.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

const (
	DefaultListFlag       = "--gtest_list_tests"
	DefaultListingTimeout = 30 * time.Second
)

// Options tune discovery. The zero value uses the defaults.
type Options struct {
	ListFlag string
	Timeout  time.Duration
	Log      log.Logger
}

func (o Options) withDefaults() Options {
	if o.ListFlag == "" {
		o.ListFlag = DefaultListFlag
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultListingTimeout
	}
	if o.Log == nil {
		o.Log = log.Root()
	}
	return o
}

// Discover lists the tests in binaryPath and returns them as a catalog.
func Discover(ctx context.Context, binaryPath string, opts Options) (*types.TestCatalog, error) {
	opts = opts.withDefaults()
	if err := checkExecutable(binaryPath); err != nil {
		return nil, err
	}
	// exec looks a bare name up in $PATH, not the working directory.
	absPath, err := filepath.Abs(binaryPath)
	if err != nil {
		return nil, &DiscoveryError{BinaryPath: binaryPath, Reason: ReasonNotFound, Err: err}
	}

	listCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(listCtx, absPath, opts.ListFlag)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	opts.Log.Debug("Listing tests", "binary", binaryPath, "flag", opts.ListFlag)
	if err := cmd.Run(); err != nil {
		if errors.Is(listCtx.Err(), context.DeadlineExceeded) {
			return nil, &DiscoveryError{BinaryPath: binaryPath, Reason: ReasonListingTimeout, Detail: opts.Timeout.String()}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &DiscoveryError{
			BinaryPath: binaryPath,
			Reason:     ReasonListingFailed,
			Detail:     strings.TrimSpace(stderr.String()),
			Err:        err,
		}
	}

	suites, err := Parse(&stdout)
	if err != nil {
		return nil, &DiscoveryError{BinaryPath: binaryPath, Reason: ReasonMalformedListing, Err: err}
	}
	if len(suites) == 0 {
		return nil, &EmptyCatalogError{BinaryPath: binaryPath}
	}
	cat, err := types.NewTestCatalog(suites)
	if err != nil {
		return nil, &DiscoveryError{BinaryPath: binaryPath, Reason: ReasonMalformedListing, Err: err}
	}
	opts.Log.Info("Discovered tests", "binary", binaryPath, "suites", len(suites), "tests", cat.Len())
	return cat, nil
}

func checkExecutable(binaryPath string) error {
	info, err := os.Stat(binaryPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &DiscoveryError{BinaryPath: binaryPath, Reason: ReasonNotFound}
		}
		return &DiscoveryError{BinaryPath: binaryPath, Reason: ReasonNotFound, Err: err}
	}
	if info.IsDir() {
		return &DiscoveryError{BinaryPath: binaryPath, Reason: ReasonNotExecutable, Detail: "is a directory"}
	}
	if info.Mode().Perm()&0o111 == 0 {
		return &DiscoveryError{BinaryPath: binaryPath, Reason: ReasonNotExecutable, Detail: fmt.Sprintf("mode %s", info.Mode().Perm())}
	}
	return nil
}
