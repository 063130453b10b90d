package catalog

import (
	"errors"
	"fmt"
)

// Reason says why discovery failed.
type Reason string

const (
	ReasonNotFound         Reason = "not found"
	ReasonNotExecutable    Reason = "not executable"
	ReasonListingFailed    Reason = "listing failed"
	ReasonListingTimeout   Reason = "listing timed out"
	ReasonMalformedListing Reason = "malformed listing"
)

// DiscoveryError means the binary could not be used to build a catalog.
type DiscoveryError struct {
	BinaryPath string
	Reason     Reason
	Detail     string
	Err        error
}

func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("discovery failed for %s: %s", e.BinaryPath, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// IsDiscoveryError checks if the error is or wraps a DiscoveryError
func IsDiscoveryError(err error) bool {
	var discoveryErr *DiscoveryError
	return err != nil && errors.As(err, &discoveryErr)
}

// EmptyCatalogError means the listing was well formed but contained no tests.
type EmptyCatalogError struct {
	BinaryPath string
}

func (e *EmptyCatalogError) Error() string {
	return fmt.Sprintf("no tests found in %s", e.BinaryPath)
}

// IsEmptyCatalogError checks if the error is or wraps an EmptyCatalogError
func IsEmptyCatalogError(err error) bool {
	var emptyErr *EmptyCatalogError
	return err != nil && errors.As(err, &emptyErr)
}

// ParseError points at the listing line that broke the grammar.
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}
