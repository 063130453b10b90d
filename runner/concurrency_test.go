package runner

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withPhysicalCores(t *testing.T, n int, err error) {
	t.Helper()
	orig := physicalCores
	physicalCores = func() (int, error) { return n, err }
	t.Cleanup(func() { physicalCores = orig })
}

func TestDefaultConcurrency(t *testing.T) {
	withPhysicalCores(t, 1, nil)
	assert.Equal(t, 1, DefaultConcurrency())

	withPhysicalCores(t, 10_000, nil)
	assert.Equal(t, runtime.GOMAXPROCS(0), DefaultConcurrency())

	withPhysicalCores(t, 0, errors.New("no cpuinfo"))
	got := DefaultConcurrency()
	assert.GreaterOrEqual(t, got, 1)
	assert.LessOrEqual(t, got, max(runtime.NumCPU()/2, 1))
}

func TestDetermineConcurrency(t *testing.T) {
	withPhysicalCores(t, 1, nil)
	assert.Equal(t, 1, DetermineConcurrency(0, testLogger()))
	assert.Equal(t, 1, DetermineConcurrency(-3, testLogger()))
	assert.Equal(t, 4, DetermineConcurrency(4, testLogger()))
	assert.Equal(t, 64, DetermineConcurrency(64, testLogger()))
}
