package runner

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

func TestBroadcasterDeliversInOrder(t *testing.T) {
	a := &recordingConsumer{}
	b := &recordingConsumer{delay: 50 * time.Microsecond}
	bc := NewBroadcaster(2, a, b)

	var want []types.RunOutcome
	for i := range 50 {
		o := passOutcome(caseID(fmt.Sprintf("T%d", i)))
		want = append(want, o)
		require.NoError(t, bc.Publish(o))
	}
	require.NoError(t, bc.Close())
	assert.Equal(t, want, a.Outcomes())
	assert.Equal(t, want, b.Outcomes())
}

func TestBroadcasterConcurrentPublishers(t *testing.T) {
	a := &recordingConsumer{}
	b := &recordingConsumer{}
	bc := NewBroadcaster(0, a, b)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				assert.NoError(t, bc.Publish(passOutcome(caseID(fmt.Sprintf("W%dT%d", w, i)))))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, bc.Close())
	require.Len(t, a.Outcomes(), 100)
	assert.Equal(t, a.Outcomes(), b.Outcomes())
}

func TestBroadcasterReportsConsumerError(t *testing.T) {
	ok := &recordingConsumer{}
	broken := &recordingConsumer{failWith: errConsumer}
	bc := NewBroadcaster(1, ok, broken)
	for i := range 5 {
		require.NoError(t, bc.Publish(passOutcome(caseID(fmt.Sprintf("T%d", i)))))
	}
	err := bc.Close()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errConsumer))
	// A failing consumer keeps draining so others still see everything.
	assert.Len(t, ok.Outcomes(), 5)
	assert.Len(t, broken.Outcomes(), 5)
}

func TestBroadcasterPublishAfterClose(t *testing.T) {
	bc := NewBroadcaster(1, &recordingConsumer{})
	require.NoError(t, bc.Close())
	require.ErrorIs(t, bc.Publish(passOutcome(caseID("A"))), ErrBroadcasterClosed)
	require.NoError(t, bc.Close())
}

type namedConsumer struct{ recordingConsumer }

func (n *namedConsumer) Name() string { return "named" }

func TestConsumerName(t *testing.T) {
	assert.Equal(t, "named", ConsumerName(&namedConsumer{}))
	assert.Equal(t, "*runner.recordingConsumer", ConsumerName(&recordingConsumer{}))
}
