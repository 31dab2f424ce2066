package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/platform/auth"
)

var staff = auth.Principal{UserID: "u-1", Role: auth.RoleReceptionist}

func newClient(id string) *Client {
	return NewClient(id, staff, 16)
}

func recv(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected event %s", data)
	default:
	}
}

type recordingHooks struct {
	mu     sync.Mutex
	joined []string
	left   []string
	refuse map[string]bool
}

func (r *recordingHooks) OnSubscribe(_ *Client, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse[topic] {
		return errors.New("not allowed")
	}
	r.joined = append(r.joined, topic)
	return nil
}

func (r *recordingHooks) OnUnsubscribe(_ *Client, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, topic)
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a, b := newClient("a"), newClient("b")
	hub.Register(a)
	hub.Register(b)
	hub.Subscribe(a, []string{"appointments"})
	hub.Subscribe(b, []string{"patients"})

	hub.Broadcast(Event{Type: "update", Topic: "appointments", ID: "x"})

	if ev := recv(t, a); ev.ID != "x" || ev.Topic != "appointments" {
		t.Errorf("unexpected event %+v", ev)
	}
	assertEmpty(t, b)
	if hub.ClientCount() != 2 || hub.TopicCount("appointments") != 1 {
		t.Errorf("unexpected counts clients=%d topic=%d", hub.ClientCount(), hub.TopicCount("appointments"))
	}
}

func TestHub_SubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hooks := &recordingHooks{}
	hub.SetHooks(hooks)
	c := newClient("c")
	hub.Register(c)

	hub.Subscribe(c, []string{"stats", "stats"})
	hub.Subscribe(c, []string{"stats"})

	if len(hooks.joined) != 1 {
		t.Errorf("expected one hook call, got %v", hooks.joined)
	}
	if len(c.Topics()) != 1 {
		t.Errorf("expected one topic, got %v", c.Topics())
	}
}

func TestHub_RefusedTopicReportsError(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.SetHooks(&recordingHooks{refuse: map[string]bool{"medical_records": true}})
	c := newClient("c")
	hub.Register(c)

	hub.Subscribe(c, []string{"medical_records"})

	ev := recv(t, c)
	if ev.Type != "error" || ev.Topic != "medical_records" {
		t.Errorf("expected error event, got %+v", ev)
	}
	if hub.TopicCount("medical_records") != 0 {
		t.Error("refused topic must not be joined")
	}
}

func TestHub_UnregisterReleasesTopics(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hooks := &recordingHooks{}
	hub.SetHooks(hooks)
	c := newClient("c")
	hub.Register(c)
	hub.Subscribe(c, []string{"appointments", "waiting_list"})

	hub.Unregister(c)
	hub.Unregister(c)

	if _, ok := <-c.Send; ok {
		t.Error("expected send channel closed")
	}
	if len(hooks.left) != 2 {
		t.Errorf("expected both topics released, got %v", hooks.left)
	}
	if hub.ClientCount() != 0 || hub.TopicCount("appointments") != 0 {
		t.Error("expected hub to be empty")
	}
	// Sending to a gone client is a no-op.
	hub.SendTo(c, Event{Type: "update", Topic: "appointments"})
}

func TestHub_ProcessMessage(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("c")
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{"doctors", "patients"}})
	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{"doctors"}})
	hub.ProcessMessage(c, ClientMessage{Action: "shout"})

	topics := c.Topics()
	if len(topics) != 1 || topics[0] != "patients" {
		t.Errorf("expected [patients], got %v", topics)
	}
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := NewClient("slow", staff, 1)
	hub.Register(c)
	hub.Subscribe(c, []string{"stats"})

	for i := 0; i < 5; i++ {
		hub.Broadcast(Event{Type: "snapshot", Topic: "stats"})
	}
	if len(c.Send) != 1 {
		t.Errorf("expected one buffered event, got %d", len(c.Send))
	}
}

func TestHub_ConcurrentSessions(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient("c")
			hub.Register(c)
			hub.Subscribe(c, []string{"appointments"})
			hub.Broadcast(Event{Type: "update", Topic: "appointments"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 || hub.TopicCount("appointments") != 0 {
		t.Errorf("expected empty hub, got clients=%d", hub.ClientCount())
	}
}
