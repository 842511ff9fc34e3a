// Package nanoevent provides the typed event bus design note §9 asks
// for: "a single typed event bus per component... invocation is always
// outside core mutexes." It is a generic reimplementation of the
// teacher's event.FeedOf, trading reflect.Select fan-out (needed when the
// teacher supported arbitrary non-generic payload types on one Feed) for
// direct generic channels, since every subscriber here wants the same
// concrete event type.
package nanoevent

import (
	"errors"
	"sync"
)

// ErrFeedClosed names the closed-feed condition. Send does not return
// it: after Close, Send delivers nothing and returns 0.
var ErrFeedClosed = errors.New("nanoevent: feed closed")

// Feed implements one-to-many distribution of values of type T to
// channel subscribers. Callers must not copy a non-zero Feed.
type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[*feedSub[T]]struct{}
	closed bool
}

type feedSub[T any] struct {
	feed    *Feed[T]
	channel chan<- T
	err     chan error
	once    sync.Once
}

// Subscribe adds a channel to the feed. Future sends will be delivered
// on the channel until the subscription is canceled. All channels added
// through Subscribe should have the same element type.
func (f *Feed[T]) Subscribe(channel chan<- T) *feedSub[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[*feedSub[T]]struct{})
	}
	sub := &feedSub[T]{feed: f, channel: channel, err: make(chan error, 1)}
	f.subs[sub] = struct{}{}
	return sub
}

// Send delivers v to all current subscribers, blocking until every one
// has received it. It returns the number of subscribers the value was
// sent to.
func (f *Feed[T]) Send(v T) (nsent int) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0
	}
	subs := make([]*feedSub[T], 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.channel <- v
		nsent++
	}
	return nsent
}

// Close terminates the feed; further Subscribe calls still succeed but
// Send becomes a no-op. Existing subscriptions are left open so in-flight
// readers can drain; callers should Unsubscribe themselves on shutdown.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (s *feedSub[T]) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
		close(s.err)
	})
}

func (s *feedSub[T]) Err() <-chan error { return s.err }

// Subscription is the interface satisfied by the *feedSub handle that
// Subscribe returns.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}
