package runner

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

// ErrBroadcasterClosed is returned by Publish after Close.
var ErrBroadcasterClosed = errors.New("broadcaster closed")

// OutcomeConsumer observes every outcome of a session. Consume is called from a
// single goroutine per consumer, in publish order. Complete is called once,
// after the last Consume, with the finalized session.
type OutcomeConsumer interface {
	Consume(outcome types.RunOutcome) error
	Complete(session *types.RunSession) error
}

// ConsumerName returns a printable name for a consumer.
func ConsumerName(c OutcomeConsumer) string {
	if n, ok := c.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", c)
}

type subscription struct {
	consumer OutcomeConsumer
	ch       chan types.RunOutcome
}

// Broadcaster delivers each published outcome to every subscriber exactly
// once. Each subscriber drains its own buffered channel, so a slow consumer
// only slows publishing once its buffer is full and never drops outcomes.
type Broadcaster struct {
	mu     sync.Mutex
	subs   []*subscription
	closed bool
	group  errgroup.Group
}

// NewBroadcaster starts one delivery goroutine per consumer.
func NewBroadcaster(bufferSize int, consumers ...OutcomeConsumer) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBroadcastBuffer
	}
	b := &Broadcaster{}
	for _, c := range consumers {
		sub := &subscription{consumer: c, ch: make(chan types.RunOutcome, bufferSize)}
		b.subs = append(b.subs, sub)
		b.group.Go(func() error {
			return deliver(sub)
		})
	}
	return b
}

// deliver keeps draining after a consumer error so Publish never blocks on a
// broken consumer; the first error is reported by Close.
func deliver(sub *subscription) error {
	var firstErr error
	for o := range sub.ch {
		if err := sub.consumer.Consume(o); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", ConsumerName(sub.consumer), err)
		}
	}
	return firstErr
}

// Publish hands the outcome to every subscriber. Calls are serialized, so all
// subscribers observe the same order.
func (b *Broadcaster) Publish(o types.RunOutcome) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBroadcasterClosed
	}
	for _, sub := range b.subs {
		sub.ch <- o
	}
	return nil
}

// Close stops accepting outcomes, waits until every subscriber has consumed
// what was already published and returns the first consumer error.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for _, sub := range b.subs {
			close(sub.ch)
		}
	}
	b.mu.Unlock()
	return b.group.Wait()
}
