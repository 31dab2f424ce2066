package changefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Relay republishes every event seen by a multiplexer to redis, so other
// instances can consume them through a RedisSource instead of holding their
// own database listeners.
type Relay struct {
	mux    *Multiplexer
	client *redis.Client
	schema string
	logger zerolog.Logger

	mu   sync.Mutex
	subs []*Subscription
}

func NewRelay(mux *Multiplexer, client *redis.Client, schema string, logger zerolog.Logger) *Relay {
	return &Relay{
		mux:    mux,
		client: client,
		schema: schema,
		logger: logger.With().Str("component", "changefeed.relay").Logger(),
	}
}

// Run subscribes to every table and relays until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.start(); err != nil {
		return err
	}
	<-ctx.Done()
	r.stop()
	return nil
}

func (r *Relay) start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, table := range AllTables {
		sub, err := r.mux.Subscribe(table, nil, Callbacks{
			OnInsert: r.publish,
			OnUpdate: r.publish,
			OnDelete: func(table Table) func(string) {
				return func(id string) { r.publish(Event{Table: table, Op: OpDelete, ID: id}) }
			}(table),
		})
		if err != nil {
			for _, s := range r.subs {
				s.Unsubscribe()
			}
			r.subs = nil
			return fmt.Errorf("relay subscribe %s: %w", table, err)
		}
		r.subs = append(r.subs, sub)
	}
	r.logger.Info().Int("tables", len(r.subs)).Msg("relaying change feed to redis")
	return nil
}

func (r *Relay) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		s.Unsubscribe()
	}
	r.subs = nil
}

func (r *Relay) publish(e Event) {
	data, err := MarshalPayload(e, r.schema)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode relayed event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, RedisChannel(e.Table), data).Err(); err != nil {
		r.logger.Warn().Err(err).Str("table", string(e.Table)).Str("id", e.ID).Msg("relay publish failed")
	}
}
