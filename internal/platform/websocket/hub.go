// Package websocket pushes live clinic updates to browser sessions. Each
// session subscribes to topics; the Bridge feeds those topics from the
// change feed and from the coordinators' snapshots.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/platform/auth"
)

// Event is one message pushed to a session.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is a session's request to change its topics.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Hooks observe topic membership. OnSubscribe may refuse a topic.
type Hooks interface {
	OnSubscribe(c *Client, topic string) error
	OnUnsubscribe(c *Client, topic string)
}

// Client is one connected browser session.
type Client struct {
	ID        string
	Principal auth.Principal
	Send      chan []byte

	mu     sync.Mutex
	topics map[string]struct{}
}

func NewClient(id string, p auth.Principal, buffer int) *Client {
	return &Client{ID: id, Principal: p, Send: make(chan []byte, buffer), topics: make(map[string]struct{})}
}

// Topics returns the client's current topics.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

// Hub tracks sessions and their topics.
type Hub struct {
	mu      sync.RWMutex
	byTopic map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	hooks   Hooks
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		byTopic: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

// SetHooks installs the topic membership hooks. Call before serving.
func (h *Hub) SetHooks(hooks Hooks) {
	h.hooks = hooks
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.all[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("client_id", c.ID).Str("user_id", c.Principal.UserID).Msg("session connected")
}

// Unregister drops the client from every topic, releases its hooks and
// closes Send. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.all[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.all, c)
	h.mu.Unlock()

	h.Unsubscribe(c, c.Topics())
	close(c.Send)
	h.logger.Debug().Str("client_id", c.ID).Msg("session disconnected")
}

// Subscribe adds topics to c. Topics refused by the hooks are reported to
// the client as error events.
func (h *Hub) Subscribe(c *Client, topics []string) {
	for _, topic := range topics {
		c.mu.Lock()
		_, already := c.topics[topic]
		c.mu.Unlock()
		if already {
			continue
		}
		if h.hooks != nil {
			if err := h.hooks.OnSubscribe(c, topic); err != nil {
				h.SendTo(c, errorEvent(topic, err))
				continue
			}
		}
		c.mu.Lock()
		c.topics[topic] = struct{}{}
		c.mu.Unlock()

		h.mu.Lock()
		if h.byTopic[topic] == nil {
			h.byTopic[topic] = make(map[*Client]struct{})
		}
		h.byTopic[topic][c] = struct{}{}
		h.mu.Unlock()
	}
}

func (h *Hub) Unsubscribe(c *Client, topics []string) {
	for _, topic := range topics {
		c.mu.Lock()
		_, ok := c.topics[topic]
		delete(c.topics, topic)
		c.mu.Unlock()
		if !ok {
			continue
		}

		h.mu.Lock()
		if subs, ok := h.byTopic[topic]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.byTopic, topic)
			}
		}
		h.mu.Unlock()

		if h.hooks != nil {
			h.hooks.OnUnsubscribe(c, topic)
		}
	}
}

func (h *Hub) ProcessMessage(c *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(c, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(c, msg.Topics)
	default:
		h.logger.Debug().Str("client_id", c.ID).Str("action", msg.Action).Msg("unknown client action")
	}
}

// Broadcast sends event to every subscriber of its topic.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", event.Topic).Msg("encode event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byTopic[event.Topic] {
		h.push(c, data)
	}
}

// SendTo sends event to one client if it is still connected.
func (h *Hub) SendTo(c *Client, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", event.Topic).Msg("encode event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[c]; ok {
		h.push(c, data)
	}
}

// push must be called with h.mu held so Send is not closed underneath it.
func (h *Hub) push(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
		h.logger.Warn().Str("client_id", c.ID).Msg("session buffer full, dropping event")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTopic[topic])
}

func errorEvent(topic string, err error) Event {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return Event{Type: "error", Topic: topic, Timestamp: time.Now().UTC(), Data: data}
}
