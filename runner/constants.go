package runner

import "time"

// Execution constants
const (
	// DefaultAttemptTimeout is the hard limit for a single attempt
	DefaultAttemptTimeout = 30 * time.Second

	// DefaultMaxOutputBytes caps captured stdout and stderr per attempt
	DefaultMaxOutputBytes = 5 * 1024 * 1024

	// DefaultFailureMarker is the gtest line prefix for a failed test
	DefaultFailureMarker = "[  FAILED  ]"

	// gtest command line arguments
	FilterFlagPrefix = "--gtest_filter="
	BriefFlag        = "--gtest_brief=yes"

	// DefaultProgressInterval is how often the console indicator logs progress
	DefaultProgressInterval = 30 * time.Second

	// DefaultBroadcastBuffer is the per-consumer outcome channel capacity
	DefaultBroadcastBuffer = 256

	// waitDelay bounds how long Wait keeps draining pipes after the child is killed
	waitDelay = 5 * time.Second

	// MaxReasonableConcurrency is the worker count above which a warning is logged
	MaxReasonableConcurrency = 32
)
