package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestMux(src Source) *Multiplexer {
	return New(src, Options{ReconnectMin: time.Millisecond, ReconnectMax: 5 * time.Millisecond, DegradedAfter: 2}, zerolog.Nop())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// recorder collects callbacks in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnInsert: func(e Event) { r.add("insert:" + e.ID) },
		OnUpdate: func(e Event) { r.add("update:" + e.ID) },
		OnDelete: func(id string) { r.add("delete:" + id) },
		OnStale:  func(reason StaleReason) { r.add("stale:" + reason.String()) },
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSubscribe_SharesOneChannelPerTable(t *testing.T) {
	src := NewMemorySource()
	mux := newTestMux(src)
	defer mux.Close()

	var a, b recorder
	subA, err := mux.Subscribe(Appointments, nil, a.callbacks())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	subB, err := mux.Subscribe(Appointments, nil, b.callbacks())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if got := src.Opens(Appointments); got != 1 {
		t.Fatalf("expected one backend open, got %d", got)
	}

	src.Publish(Event{Table: Appointments, Op: OpInsert, ID: "a1"})
	waitFor(t, "both subscribers", func() bool { return len(a.snapshot()) == 1 && len(b.snapshot()) == 1 })

	subA.Unsubscribe()
	subA.Unsubscribe()
	if src.Active(Appointments) != 1 {
		t.Fatal("channel must stay open while a subscriber remains")
	}

	subB.Unsubscribe()
	waitFor(t, "channel teardown", func() bool { return src.Active(Appointments) == 0 })
	if len(mux.Health()) != 0 {
		t.Errorf("expected no tracked tables, got %+v", mux.Health())
	}
}

func TestDelivery_OrderAndFilter(t *testing.T) {
	src := NewMemorySource()
	mux := newTestMux(src)
	defer mux.Close()

	var r recorder
	if _, err := mux.Subscribe(Notifications, FieldEquals("user_id", "u1"), r.callbacks()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	row := func(user string) json.RawMessage { return json.RawMessage(`{"user_id":"` + user + `"}`) }
	src.Publish(Event{Table: Notifications, Op: OpInsert, ID: "n1", Row: row("u2")})
	src.Publish(Event{Table: Notifications, Op: OpInsert, ID: "n2", Row: row("u1")})
	src.Publish(Event{Table: Notifications, Op: OpUpdate, ID: "n2", Row: row("u1")})
	src.Publish(Event{Table: Notifications, Op: OpDelete, ID: "n1", Row: row("u2")})
	src.Publish(Event{Table: Notifications, Op: OpDelete, ID: "n2", Row: row("u1")})
	src.Publish(Event{Table: Notifications, Op: OpDelete, ID: "n3"})
	src.Publish(Event{Table: Patients, Op: OpInsert, ID: "p1"})

	want := []string{"insert:n2", "update:n2", "delete:n2", "delete:n3"}
	waitFor(t, "filtered events", func() bool { return len(r.snapshot()) == len(want) })
	if got := r.snapshot(); !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUnsubscribe_FromInsideCallback(t *testing.T) {
	src := NewMemorySource()
	mux := newTestMux(src)
	defer mux.Close()

	var other recorder
	if _, err := mux.Subscribe(Patients, nil, other.callbacks()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var mu sync.Mutex
	calls := 0
	var sub *Subscription
	sub, err := mux.Subscribe(Patients, nil, Callbacks{
		OnInsert: func(Event) {
			mu.Lock()
			calls++
			mu.Unlock()
			sub.Unsubscribe()
		},
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	src.Publish(Event{Table: Patients, Op: OpInsert, ID: "p1"})
	src.Publish(Event{Table: Patients, Op: OpInsert, ID: "p2"})
	waitFor(t, "other subscriber", func() bool { return len(other.snapshot()) == 2 })

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("expected exactly one callback before unsubscribe, got %d", calls)
	}
}

func TestUnsubscribe_LastFromInsideCallbackTearsDown(t *testing.T) {
	src := NewMemorySource()
	mux := newTestMux(src)
	defer mux.Close()

	var sub *Subscription
	sub, err := mux.Subscribe(Doctors, nil, Callbacks{OnUpdate: func(Event) { sub.Unsubscribe() }})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	src.Publish(Event{Table: Doctors, Op: OpUpdate, ID: "d1"})
	waitFor(t, "teardown", func() bool { return src.Active(Doctors) == 0 })
}

func TestReconnect_SignalsStaleThenReconnected(t *testing.T) {
	src := NewMemorySource()
	mux := newTestMux(src)
	defer mux.Close()

	var r recorder
	if _, err := mux.Subscribe(Appointments, nil, r.callbacks()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	src.Publish(Event{Table: Appointments, Op: OpInsert, ID: "a1"})
	src.Break(Appointments, errors.New("network down"))

	want := []string{"insert:a1", "stale:connection_lost", "stale:reconnected"}
	waitFor(t, "reconnect", func() bool { return len(r.snapshot()) == len(want) })
	if got := r.snapshot(); !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if src.Opens(Appointments) != 2 {
		t.Errorf("expected a second open, got %d", src.Opens(Appointments))
	}

	src.Publish(Event{Table: Appointments, Op: OpUpdate, ID: "a1"})
	waitFor(t, "delivery after reconnect", func() bool { return len(r.snapshot()) == 4 })
}

func TestDegradedMode(t *testing.T) {
	src := NewMemorySource()
	src.FailOpens(Patients, 3)
	mux := newTestMux(src)
	defer mux.Close()

	var mu sync.Mutex
	var states []State
	remove := mux.OnHealthChange(func(h TableHealth) {
		mu.Lock()
		states = append(states, h.State)
		mu.Unlock()
	})
	defer remove()

	var r recorder
	if _, err := mux.Subscribe(Patients, nil, r.callbacks()); err != nil {
		t.Fatalf("Subscribe must not fail while the channel is down: %v", err)
	}

	waitFor(t, "recovery", func() bool {
		h := mux.Health()
		return len(h) == 1 && h[0].State == StateConnected
	})
	if mux.Degraded() {
		t.Error("expected degraded mode to clear after recovery")
	}

	mu.Lock()
	seenDegraded := false
	for _, s := range states {
		if s == StateDegraded {
			seenDegraded = true
		}
	}
	mu.Unlock()
	if !seenDegraded {
		t.Errorf("expected a degraded transition, got %v", states)
	}

	want := []string{"stale:connection_lost", "stale:reconnected"}
	if got := r.snapshot(); !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCallbackPanicIsContained(t *testing.T) {
	src := NewMemorySource()
	mux := newTestMux(src)
	defer mux.Close()

	if _, err := mux.Subscribe(Patients, nil, Callbacks{OnInsert: func(Event) { panic("boom") }}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	var r recorder
	if _, err := mux.Subscribe(Patients, nil, r.callbacks()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	src.Publish(Event{Table: Patients, Op: OpInsert, ID: "p1"})
	waitFor(t, "delivery past panicking subscriber", func() bool { return len(r.snapshot()) == 1 })
}

func TestSubscribe_Errors(t *testing.T) {
	mux := newTestMux(NewMemorySource())
	if _, err := mux.Subscribe(Table("users"), nil, Callbacks{}); err == nil {
		t.Error("expected error for unknown table")
	}
	mux.Close()
	if _, err := mux.Subscribe(Patients, nil, Callbacks{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestRun_ClosesOnCancel(t *testing.T) {
	src := NewMemorySource()
	mux := newTestMux(src)
	if _, err := mux.Subscribe(Patients, nil, Callbacks{}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if src.Active(Patients) != 0 {
		t.Error("expected channels closed after Run returns")
	}
}

func TestBackoff(t *testing.T) {
	o := Options{ReconnectMin: 100 * time.Millisecond, ReconnectMax: time.Second}.withDefaults()
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := o.backoff(i + 1); got != w {
			t.Errorf("attempt %d: got %v, want %v", i+1, got, w)
		}
	}
}
