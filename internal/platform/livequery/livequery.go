// Package livequery keeps an in-memory snapshot in step with the change
// feed. Any change on a watched table triggers a full re-pull of the
// snapshot; nothing is patched piecemeal, so joins across tables stay
// consistent without cross-table ordering.
package livequery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/platform/changefeed"
)

// Subscriber is the part of the multiplexer a query needs.
type Subscriber interface {
	Subscribe(table changefeed.Table, filter changefeed.Filter, cb changefeed.Callbacks) (*changefeed.Subscription, error)
}

// Fetch pulls a complete snapshot.
type Fetch[T any] func(ctx context.Context) (T, error)

// Watch names a table to re-pull on, with an optional filter.
type Watch struct {
	Table  changefeed.Table
	Filter changefeed.Filter
}

// Options configure a Query.
type Options struct {
	Name       string
	Watch      []Watch
	RetryDelay time.Duration
}

// ErrNotMounted is returned by Refresh on a query that is not mounted.
var ErrNotMounted = errors.New("livequery: not mounted")

// Query holds the latest snapshot returned by its fetch function.
//
// Every pull is tagged with a generation. A result is applied only if no
// newer pull has started and the query is still mounted, so responses that
// arrive after Unmount, or after a newer pull, are dropped.
type Query[T any] struct {
	sub    Subscriber
	fetch  Fetch[T]
	opts   Options
	logger zerolog.Logger

	// notifyMu serialises apply so listeners see snapshots in generation
	// order. Listeners must not call Refresh.
	notifyMu sync.Mutex

	mu       sync.Mutex
	mounted  bool
	ctx      context.Context
	cancel   context.CancelFunc
	subs     []*changefeed.Subscription
	gen      uint64
	value    T
	hasValue bool
	pulling  bool
	dirty    bool
	onChange []func(T)
	onError  []func(error)
}

// New creates an unmounted query.
func New[T any](sub Subscriber, fetch Fetch[T], opts Options, logger zerolog.Logger) *Query[T] {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}
	return &Query[T]{
		sub:    sub,
		fetch:  fetch,
		opts:   opts,
		logger: logger.With().Str("component", "livequery").Str("query", opts.Name).Logger(),
	}
}

// OnChange registers fn to receive every applied snapshot.
func (q *Query[T]) OnChange(fn func(T)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = append(q.onChange, fn)
}

// OnError registers fn to receive pull failures that survived a retry.
func (q *Query[T]) OnError(fn func(error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onError = append(q.onError, fn)
}

// Mount subscribes to the watched tables and pulls the initial snapshot.
// Subscribing first means a change racing with the initial pull still
// triggers a second pull.
func (q *Query[T]) Mount(ctx context.Context) error {
	q.mu.Lock()
	if q.mounted {
		q.mu.Unlock()
		return nil
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.mounted = true
	q.mu.Unlock()

	var subs []*changefeed.Subscription
	for _, w := range q.opts.Watch {
		s, err := q.sub.Subscribe(w.Table, w.Filter, changefeed.Any(q.Invalidate))
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			q.Unmount()
			return err
		}
		subs = append(subs, s)
	}

	q.mu.Lock()
	if !q.mounted {
		q.mu.Unlock()
		for _, s := range subs {
			s.Unsubscribe()
		}
		return ErrNotMounted
	}
	q.subs = subs
	q.mu.Unlock()

	return q.Refresh(ctx)
}

// Unmount releases the subscriptions. Pulls still in flight are discarded
// when they return. Safe to call more than once.
func (q *Query[T]) Unmount() {
	q.mu.Lock()
	if !q.mounted {
		q.mu.Unlock()
		return
	}
	q.mounted = false
	q.gen++
	subs := q.subs
	q.subs = nil
	cancel := q.cancel
	q.mu.Unlock()

	cancel()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Mounted reports whether the query is mounted.
func (q *Query[T]) Mounted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mounted
}

// Value returns the last applied snapshot and whether there is one.
func (q *Query[T]) Value() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.value, q.hasValue
}

// Refresh pulls synchronously and applies the result if it is still the
// newest pull.
func (q *Query[T]) Refresh(ctx context.Context) error {
	q.mu.Lock()
	if !q.mounted {
		q.mu.Unlock()
		return ErrNotMounted
	}
	q.gen++
	gen := q.gen
	q.mu.Unlock()

	v, err := q.pull(ctx)
	q.apply(gen, v, err)
	return err
}

// Invalidate schedules a background re-pull. Calls made while a pull is in
// flight are coalesced into one follow-up pull.
func (q *Query[T]) Invalidate() {
	q.mu.Lock()
	if !q.mounted {
		q.mu.Unlock()
		return
	}
	if q.pulling {
		q.dirty = true
		q.mu.Unlock()
		return
	}
	q.pulling = true
	ctx := q.ctx
	q.mu.Unlock()

	go q.pullLoop(ctx)
}

// Supersede drops every pull already in flight and schedules a fresh one.
// Callers use it after a write that older pulls may have read around.
func (q *Query[T]) Supersede() {
	q.mu.Lock()
	if q.mounted {
		q.gen++
	}
	q.mu.Unlock()
	q.Invalidate()
}

func (q *Query[T]) pullLoop(ctx context.Context) {
	for {
		q.mu.Lock()
		if !q.mounted {
			q.pulling = false
			q.dirty = false
			q.mu.Unlock()
			return
		}
		q.dirty = false
		q.gen++
		gen := q.gen
		q.mu.Unlock()

		v, err := q.pull(ctx)
		q.apply(gen, v, err)

		q.mu.Lock()
		if !q.dirty || !q.mounted {
			q.pulling = false
			q.dirty = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
	}
}

// pull fetches once and retries once after RetryDelay on failure.
func (q *Query[T]) pull(ctx context.Context) (T, error) {
	v, err := q.fetch(ctx)
	if err == nil || ctx.Err() != nil {
		return v, err
	}
	q.logger.Warn().Err(err).Msg("pull failed, retrying")
	t := time.NewTimer(q.opts.RetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return v, err
	case <-t.C:
	}
	return q.fetch(ctx)
}

func (q *Query[T]) apply(gen uint64, v T, err error) {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	if !q.mounted || gen != q.gen {
		q.mu.Unlock()
		return
	}
	if err != nil {
		listeners := append(([]func(error))(nil), q.onError...)
		q.mu.Unlock()
		q.logger.Error().Err(err).Msg("pull failed")
		for _, fn := range listeners {
			fn(err)
		}
		return
	}
	q.value = v
	q.hasValue = true
	listeners := append(([]func(T))(nil), q.onChange...)
	q.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}
