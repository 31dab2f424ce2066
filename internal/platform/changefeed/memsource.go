package changefeed

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInjected is the default cause used by MemorySource.Break.
var ErrInjected = errors.New("changefeed: injected channel failure")

const memInboxSize = 1024

// MemorySource is an in-process Source. Tests and single-process setups
// publish events directly; Break and FailOpens inject channel failures.
type MemorySource struct {
	mu        sync.Mutex
	streams   map[Table]map[*memChannel]struct{}
	failOpens map[Table]int
	opens     map[Table]int
}

type memChannel struct {
	inbox chan Event
	fail  chan error
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		streams:   make(map[Table]map[*memChannel]struct{}),
		failOpens: make(map[Table]int),
		opens:     make(map[Table]int),
	}
}

func (s *MemorySource) Open(ctx context.Context, table Table) (Stream, error) {
	s.mu.Lock()
	s.opens[table]++
	if s.failOpens[table] > 0 {
		s.failOpens[table]--
		s.mu.Unlock()
		return nil, ErrInjected
	}
	ch := &memChannel{
		inbox: make(chan Event, memInboxSize),
		fail:  make(chan error, 1),
	}
	if s.streams[table] == nil {
		s.streams[table] = make(map[*memChannel]struct{})
	}
	s.streams[table][ch] = struct{}{}
	s.mu.Unlock()

	return startPump(ctx, 0, func(ctx context.Context, emit emitFunc) error {
		defer s.remove(table, ch)
		for {
			select {
			case e := <-ch.inbox:
				if !emit(e) {
					return nil
				}
			case err := <-ch.fail:
				// Deliver what was published before the failure.
				for {
					select {
					case e := <-ch.inbox:
						if !emit(e) {
							return nil
						}
					default:
						return err
					}
				}
			case <-ctx.Done():
				return nil
			}
		}
	}), nil
}

func (s *MemorySource) remove(table Table, ch *memChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams[table], ch)
}

// Publish hands e to every open stream of its table. It never blocks; a
// stream whose inbox is full misses the event.
func (s *MemorySource) Publish(e Event) {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.streams[e.Table] {
		select {
		case ch.inbox <- e:
		default:
		}
	}
}

// Break fails every open stream of table with cause (ErrInjected if nil).
func (s *MemorySource) Break(table Table, cause error) {
	if cause == nil {
		cause = ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.streams[table] {
		select {
		case ch.fail <- cause:
		default:
		}
	}
}

// FailOpens makes the next n Open calls for table fail.
func (s *MemorySource) FailOpens(table Table, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOpens[table] = n
}

// Opens returns how many times Open was called for table.
func (s *MemorySource) Opens(table Table) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[table]
}

// Active returns how many streams for table are currently open.
func (s *MemorySource) Active(table Table) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams[table])
}
