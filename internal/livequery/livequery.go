// File: internal/livequery/livequery.go

// Package livequery turns read-only query functions over the record store
// into live subscriptions: the query is recomputed and redelivered after
// every committed transaction that overlaps its declared selectors.
package livequery

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/iyunix/go-branchchat/internal/store"
)

// Logger defines the logging interface used by the query layer.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Queries is the subscription hub. One instance per store.
type Queries struct {
	store  *store.Store
	logger Logger
	group  singleflight.Group
}

func New(st *store.Store, logger Logger) *Queries {
	return &Queries{store: st, logger: logger}
}

// Options tunes a single subscription.
type Options struct {
	// ShareKey lets subscriptions running equivalent queries share one
	// recomputation when commits land concurrently. Purely an optimization;
	// leave empty to always compute independently.
	ShareKey string
}

// Result carries one computed query value. Err is set when the query function
// itself failed; the subscription stays alive and recomputes on the next
// commit.
type Result[T any] struct {
	Value T
	Err   error
}

// Subscription is a live view over one query function.
type Subscription[T any] struct {
	watch   *store.Watch
	updates chan Result[T]
	done    chan struct{}
	close   sync.Once

	mu      sync.Mutex
	current Result[T]
}

// Subscribe computes fn once for the initial value, then recomputes it after
// every committed transaction overlapping sels. fn must be read-only: it runs
// outside any transaction and only ever observes fully committed state.
func Subscribe[T any](q *Queries, sels []store.Selector, fn func(ctx context.Context) (T, error), opts Options) *Subscription[T] {
	sub := &Subscription[T]{
		watch:   q.store.Watch(sels...),
		updates: make(chan Result[T], 1),
		done:    make(chan struct{}),
	}
	sub.current = compute(q, opts.ShareKey, fn)
	go sub.loop(q, opts.ShareKey, fn)
	return sub
}

// Current returns the most recently computed result.
func (s *Subscription[T]) Current() Result[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Updates delivers recomputed results. Delivery is latest-wins: if the
// consumer lags, intermediate results are dropped, never reordered.
func (s *Subscription[T]) Updates() <-chan Result[T] {
	return s.updates
}

// Done is closed when the subscription stops delivering.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close stops recomputation and delivery immediately and releases the query
// function.
func (s *Subscription[T]) Close() {
	s.close.Do(func() {
		close(s.done)
		s.watch.Close()
	})
}

func (s *Subscription[T]) loop(q *Queries, shareKey string, fn func(ctx context.Context) (T, error)) {
	for {
		select {
		case <-s.done:
			return
		case _, ok := <-s.watch.C:
			if !ok {
				return
			}
			res := compute(q, shareKey, fn)
			s.mu.Lock()
			s.current = res
			s.mu.Unlock()

			select {
			case s.updates <- res:
			default:
				select {
				case <-s.updates:
				default:
				}
				s.updates <- res
			}
		}
	}
}

func compute[T any](q *Queries, shareKey string, fn func(ctx context.Context) (T, error)) Result[T] {
	ctx := context.Background()
	if shareKey == "" {
		v, err := fn(ctx)
		if err != nil {
			q.logger.Error("live query recompute failed", "error", err)
		}
		return Result[T]{Value: v, Err: err}
	}

	v, err, _ := q.group.Do(shareKey, func() (interface{}, error) {
		return fn(ctx)
	})
	res := Result[T]{Err: err}
	if err != nil {
		q.logger.Error("live query recompute failed", "share_key", shareKey, "error", err)
	}
	if typed, ok := v.(T); ok {
		res.Value = typed
	}
	return res
}
