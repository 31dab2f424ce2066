package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/changefeed"
)

// Snapshot topics carry whole views rather than row changes.
const (
	TopicWaitingList = "waiting_list"
	TopicStats       = "stats"
	TopicFeed        = "feed"
)

var topicCapability = map[string]auth.Capability{
	string(changefeed.MedicalRecords): auth.ViewMedicalRecord,
	TopicStats:                        auth.ViewReports,
}

// Subscriber is the part of the multiplexer the bridge needs.
type Subscriber interface {
	Subscribe(table changefeed.Table, filter changefeed.Filter, cb changefeed.Callbacks) (*changefeed.Subscription, error)
}

// Bridge connects hub topics to the core. A table topic holds one feed
// subscription per session, released when the session leaves the topic.
// Notification events are filtered to the session's own user.
type Bridge struct {
	hub    *Hub
	feed   Subscriber
	ev     auth.Evaluator
	logger zerolog.Logger

	mu        sync.Mutex
	subs      map[*Client]map[string]*changefeed.Subscription
	providers map[string]func() (interface{}, bool)
}

// NewBridge installs itself as hub's hooks.
func NewBridge(hub *Hub, feed Subscriber, ev auth.Evaluator, logger zerolog.Logger) *Bridge {
	b := &Bridge{
		hub:       hub,
		feed:      feed,
		ev:        ev,
		logger:    logger.With().Str("component", "ws_bridge").Logger(),
		subs:      make(map[*Client]map[string]*changefeed.Subscription),
		providers: make(map[string]func() (interface{}, bool)),
	}
	hub.SetHooks(b)
	return b
}

// Provide registers a snapshot topic. current is called when a session
// subscribes so it starts with the latest view.
func (b *Bridge) Provide(topic string, current func() (interface{}, bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers[topic] = current
}

// Publish broadcasts a snapshot to every subscriber of topic.
func (b *Bridge) Publish(topic, kind string, v interface{}) {
	ev, err := snapshotEvent(topic, kind, v)
	if err != nil {
		b.logger.Error().Err(err).Str("topic", topic).Msg("encode snapshot")
		return
	}
	b.hub.Broadcast(ev)
}

// Subscriptions returns how many feed subscriptions c holds.
func (b *Bridge) Subscriptions(c *Client) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[c])
}

func (b *Bridge) OnSubscribe(c *Client, topic string) error {
	if need, ok := topicCapability[topic]; ok {
		if err := auth.Authorize(b.ev, c.Principal, need); err != nil {
			return err
		}
	}

	if table := changefeed.Table(topic); table.Valid() {
		var filter changefeed.Filter
		if table == changefeed.Notifications {
			filter = changefeed.FieldEquals("user_id", c.Principal.UserID)
		}
		sub, err := b.feed.Subscribe(table, filter, b.forward(c, topic))
		if err != nil {
			return apperr.Wrap(err, apperr.TransientIO, "ws.subscribe", "live updates unavailable")
		}
		b.mu.Lock()
		if b.subs[c] == nil {
			b.subs[c] = make(map[string]*changefeed.Subscription)
		}
		b.subs[c][topic] = sub
		b.mu.Unlock()
		return nil
	}

	b.mu.Lock()
	current, ok := b.providers[topic]
	b.mu.Unlock()
	if !ok {
		return apperr.Newf(apperr.Validation, "unknown topic %q", topic)
	}
	if v, has := current(); has {
		ev, err := snapshotEvent(topic, "snapshot", v)
		if err != nil {
			return err
		}
		b.hub.SendTo(c, ev)
	}
	return nil
}

func (b *Bridge) OnUnsubscribe(c *Client, topic string) {
	b.mu.Lock()
	sub := b.subs[c][topic]
	delete(b.subs[c], topic)
	if len(b.subs[c]) == 0 {
		delete(b.subs, c)
	}
	b.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (b *Bridge) forward(c *Client, topic string) changefeed.Callbacks {
	row := func(e changefeed.Event) {
		b.hub.SendTo(c, Event{Type: string(e.Op), Topic: topic, ID: e.ID, Timestamp: e.ReceivedAt, Data: e.Row})
	}
	return changefeed.Callbacks{
		OnInsert: row,
		OnUpdate: row,
		OnDelete: func(id string) {
			b.hub.SendTo(c, Event{Type: string(changefeed.OpDelete), Topic: topic, ID: id, Timestamp: time.Now().UTC()})
		},
		OnStale: func(r changefeed.StaleReason) {
			data, _ := json.Marshal(map[string]string{"reason": r.String()})
			b.hub.SendTo(c, Event{Type: "stale", Topic: topic, Timestamp: time.Now().UTC(), Data: data})
		},
	}
}

func snapshotEvent(topic, kind string, v interface{}) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: kind, Topic: topic, Timestamp: time.Now().UTC(), Data: data}, nil
}
