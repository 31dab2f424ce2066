package changefeed

import (
	"context"
	"sync"
)

// Source opens the backend change channel for one table.
type Source interface {
	Open(ctx context.Context, table Table) (Stream, error)
}

// Stream is an open backend channel. Events is closed when the channel ends;
// Err then reports why (nil after Close).
type Stream interface {
	Events() <-chan Event
	Err() error
	Close() error
}

// pumpStream runs a producer in a goroutine and exposes its output as a
// Stream. The producer returns when ctx is cancelled or the channel fails.
type pumpStream struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

type emitFunc func(Event) bool

func startPump(ctx context.Context, buffer int, run func(ctx context.Context, emit emitFunc) error) *pumpStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &pumpStream{
		events: make(chan Event, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	emit := func(e Event) bool {
		select {
		case s.events <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		err := run(ctx, emit)
		if ctx.Err() != nil {
			err = nil
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
		close(s.done)
	}()
	return s
}

func (s *pumpStream) Events() <-chan Event { return s.events }

func (s *pumpStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *pumpStream) Close() error {
	s.cancel()
	<-s.done
	return nil
}
