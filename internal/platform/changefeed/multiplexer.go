package changefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Subscribe after the multiplexer has been closed.
var ErrClosed = errors.New("changefeed: multiplexer closed")

// State is the health of one table's backend channel.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDegraded     State = "degraded"
)

// TableHealth is a point-in-time view of one table's channel.
type TableHealth struct {
	Table       Table     `json:"table"`
	State       State     `json:"state"`
	Failures    int       `json:"consecutive_failures"`
	LastError   string    `json:"last_error,omitempty"`
	Subscribers int       `json:"subscribers"`
	Since       time.Time `json:"since"`
}

// Options tune reconnection.
type Options struct {
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// DegradedAfter is the number of consecutive failed reconnect attempts
	// after which a table is reported as degraded.
	DegradedAfter int
}

func (o Options) withDefaults() Options {
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = 500 * time.Millisecond
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = 30 * time.Second
		if o.ReconnectMax < o.ReconnectMin {
			o.ReconnectMax = o.ReconnectMin
		}
	}
	if o.DegradedAfter < 1 {
		o.DegradedAfter = 3
	}
	return o
}

// backoff returns the delay before reconnect attempt n (1-based).
func (o Options) backoff(n int) time.Duration {
	d := o.ReconnectMin
	for i := 1; i < n; i++ {
		d *= 2
		if d >= o.ReconnectMax {
			return o.ReconnectMax
		}
	}
	return d
}

// Multiplexer shares one backend channel per table among all subscribers of
// that table. Channels are opened on the first Subscribe and torn down when
// the last subscription is released.
type Multiplexer struct {
	source Source
	opts   Options
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	feeds     map[Table]*feed
	health    map[Table]TableHealth
	listeners map[uint64]func(TableHealth)
	nextID    uint64
}

type feed struct {
	table  Table
	subs   []*Subscription
	cancel context.CancelFunc
	ready  chan struct{}
}

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	m      *Multiplexer
	table  Table
	filter Filter
	cb     Callbacks
	active atomic.Bool
	once   sync.Once
}

// New creates a multiplexer reading from source.
func New(source Source, opts Options, logger zerolog.Logger) *Multiplexer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Multiplexer{
		source:    source,
		opts:      opts.withDefaults(),
		logger:    logger.With().Str("component", "changefeed").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		feeds:     make(map[Table]*feed),
		health:    make(map[Table]TableHealth),
		listeners: make(map[uint64]func(TableHealth)),
	}
}

// Run blocks until ctx is done, then closes every channel.
func (m *Multiplexer) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-m.ctx.Done():
	}
	m.Close()
	return nil
}

// Close tears down every channel and waits for the delivery goroutines.
// Existing subscriptions stop receiving events. Close must not be called
// from inside a callback.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, f := range m.feeds {
		for _, s := range f.subs {
			s.active.Store(false)
		}
	}
	m.feeds = make(map[Table]*feed)
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// Subscribe registers callbacks for table. filter may be nil. The first
// subscriber of a table opens its backend channel; Subscribe returns once
// that first open attempt has finished, so a snapshot pulled afterwards
// cannot miss changes made while the channel was being established.
func (m *Multiplexer) Subscribe(table Table, filter Filter, cb Callbacks) (*Subscription, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("changefeed: unknown table %q", table)
	}
	s := &Subscription{m: m, table: table, filter: filter, cb: cb}
	s.active.Store(true)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	f, ok := m.feeds[table]
	if !ok {
		ctx, cancel := context.WithCancel(m.ctx)
		f = &feed{table: table, cancel: cancel, ready: make(chan struct{})}
		m.feeds[table] = f
		m.health[table] = TableHealth{Table: table, State: StateConnecting, Since: time.Now()}
		m.wg.Add(1)
		go m.runFeed(ctx, f)
	}
	// Copy on write: the delivery goroutine iterates over a snapshot.
	subs := make([]*Subscription, len(f.subs), len(f.subs)+1)
	copy(subs, f.subs)
	f.subs = append(subs, s)
	ready := f.ready
	m.mu.Unlock()

	select {
	case <-ready:
	case <-m.ctx.Done():
	}
	return s, nil
}

// Table returns the table this subscription listens to.
func (s *Subscription) Table() Table { return s.table }

// Unsubscribe releases the subscription. It is idempotent and may be called
// from inside one of the subscription's own callbacks. Once it returns no
// further callback is started for this subscription. Releasing the last
// subscription of a table closes the table's backend channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		s.m.release(s)
	})
}

func (m *Multiplexer) release(s *Subscription) {
	m.mu.Lock()
	f, ok := m.feeds[s.table]
	if !ok {
		m.mu.Unlock()
		return
	}
	subs := make([]*Subscription, 0, len(f.subs))
	for _, other := range f.subs {
		if other != s {
			subs = append(subs, other)
		}
	}
	f.subs = subs
	if len(subs) > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.feeds, s.table)
	delete(m.health, s.table)
	m.mu.Unlock()

	// The delivery goroutine may be the caller, so do not wait for it.
	f.cancel()
	m.logger.Debug().Str("table", string(s.table)).Msg("last subscriber left, closing channel")
}

func (m *Multiplexer) subscribers(f *feed) []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f.subs
}

// runFeed owns one table's backend channel: it opens it, delivers events in
// arrival order, and reconnects with backoff when it drops.
func (m *Multiplexer) runFeed(ctx context.Context, f *feed) {
	defer m.wg.Done()
	log := m.logger.With().Str("table", string(f.table)).Logger()

	readyOnce := sync.Once{}
	markReady := func() { readyOnce.Do(func() { close(f.ready) }) }
	defer markReady()

	failures := 0
	// missed is set once events may have been lost; the next successful
	// open then tells every subscriber to re-pull.
	missed := false

	for {
		stream, err := m.source.Open(ctx, f.table)
		markReady()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if !missed {
				missed = true
				m.stale(f, ConnectionLost)
			}
			state := StateReconnecting
			if failures >= m.opts.DegradedAfter {
				state = StateDegraded
			}
			if state == StateDegraded && failures == m.opts.DegradedAfter {
				log.Error().Err(err).Int("failures", failures).Msg("change feed degraded")
			} else {
				log.Warn().Err(err).Int("failures", failures).Msg("change feed open failed")
			}
			m.setHealth(f, state, failures, err)
			if !sleepCtx(ctx, m.opts.backoff(failures)) {
				return
			}
			continue
		}

		if failures >= m.opts.DegradedAfter {
			log.Info().Int("failures", failures).Msg("change feed recovered from degraded mode")
		} else {
			log.Debug().Msg("change feed channel open")
		}
		failures = 0
		m.setHealth(f, StateConnected, 0, nil)
		if missed {
			missed = false
			m.stale(f, Reconnected)
		}

		m.consume(ctx, f, stream)
		cause := stream.Err()
		_ = stream.Close()
		if ctx.Err() != nil {
			return
		}
		if cause == nil {
			cause = errors.New("channel closed")
		}
		log.Warn().Err(cause).Msg("change feed channel lost")
		missed = true
		m.stale(f, ConnectionLost)
		m.setHealth(f, StateReconnecting, 0, cause)
		if !sleepCtx(ctx, m.opts.ReconnectMin) {
			return
		}
	}
}

func (m *Multiplexer) consume(ctx context.Context, f *feed, stream Stream) {
	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.ReceivedAt.IsZero() {
				e.ReceivedAt = time.Now()
			}
			for _, s := range m.subscribers(f) {
				s.deliver(e)
			}
		}
	}
}

func (m *Multiplexer) stale(f *feed, reason StaleReason) {
	for _, s := range m.subscribers(f) {
		s.deliverStale(reason)
	}
}

func (s *Subscription) deliver(e Event) {
	if !s.active.Load() {
		return
	}
	if s.filter != nil && !s.matches(e) {
		return
	}
	switch e.Op {
	case OpDelete:
		if s.cb.OnDelete != nil {
			s.guard(func() { s.cb.OnDelete(e.ID) })
		}
	case OpInsert, OpUpdate:
		fn := s.cb.OnUpdate
		if e.Op == OpInsert {
			fn = s.cb.OnInsert
		}
		if fn != nil {
			s.guard(func() { fn(e) })
		}
	}
}

func (s *Subscription) matches(e Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.m.logger.Error().Interface("panic", r).Str("table", string(s.table)).Msg("change feed filter panicked")
			ok = false
		}
	}()
	return s.filter(e)
}

func (s *Subscription) deliverStale(reason StaleReason) {
	if !s.active.Load() || s.cb.OnStale == nil {
		return
	}
	s.guard(func() { s.cb.OnStale(reason) })
}

// guard runs a callback, keeping a panicking subscriber from taking the
// delivery goroutine down with it.
func (s *Subscription) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.m.logger.Error().Interface("panic", r).Str("table", string(s.table)).Msg("change feed callback panicked")
		}
	}()
	fn()
}

// Health returns the state of every table that currently has subscribers.
func (m *Multiplexer) Health() []TableHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TableHealth, 0, len(m.health))
	for _, t := range AllTables {
		h, ok := m.health[t]
		if !ok {
			continue
		}
		if f, ok := m.feeds[t]; ok {
			h.Subscribers = len(f.subs)
		}
		out = append(out, h)
	}
	return out
}

// Degraded reports whether any table is in degraded mode.
func (m *Multiplexer) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.health {
		if h.State == StateDegraded {
			return true
		}
	}
	return false
}

// OnHealthChange registers fn to be called whenever a table changes state.
// The returned function removes the listener.
func (m *Multiplexer) OnHealthChange(fn func(TableHealth)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Multiplexer) setHealth(f *feed, state State, failures int, err error) {
	m.mu.Lock()
	if m.feeds[f.table] != f {
		// The table was released while its goroutine was still running.
		m.mu.Unlock()
		return
	}
	prev := m.health[f.table]
	h := TableHealth{Table: f.table, State: state, Failures: failures, Since: prev.Since}
	if err != nil {
		h.LastError = err.Error()
	}
	if prev.State != state {
		h.Since = time.Now()
	}
	m.health[f.table] = h
	var listeners []func(TableHealth)
	if prev.State != state {
		for _, fn := range m.listeners {
			listeners = append(listeners, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(h)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
