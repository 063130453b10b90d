// Package exitcodes defines the standard exit codes used by op-deflake.
package exitcodes

// Exit code constants used by op-deflake
//
// * Success (0): the session ran to completion or was interrupted, whatever
// the tests did
// * FlakesFound (1): failures were recorded and --fail-on-flake is set
// * RuntimeErr (2): the binary or configuration could not be used
// * EmptyCatalog (3): the binary lists no tests
const (
	Success      = 0
	FlakesFound  = 1
	RuntimeErr   = 2
	EmptyCatalog = 3
)
