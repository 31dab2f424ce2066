package changefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// RedisChannel is the pub/sub channel a table's events are relayed on.
func RedisChannel(table Table) string {
	return "clinic:feed:" + string(table)
}

// RedisSource reads events republished to redis by a Relay. It lets replicas
// share one database listener.
type RedisSource struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisSource(client *redis.Client, logger zerolog.Logger) *RedisSource {
	return &RedisSource{
		client: client,
		logger: logger.With().Str("component", "changefeed.redis").Logger(),
	}
}

func (s *RedisSource) Open(ctx context.Context, table Table) (Stream, error) {
	ps := s.client.Subscribe(ctx, RedisChannel(table))
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", RedisChannel(table), err)
	}

	return startPump(ctx, 64, func(ctx context.Context, emit emitFunc) error {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
			case <-stop:
			}
			_ = ps.Close()
		}()

		for {
			msg, err := ps.Receive(ctx)
			if err != nil {
				return fmt.Errorf("receive %s: %w", RedisChannel(table), err)
			}
			m, ok := msg.(*redis.Message)
			if !ok {
				continue
			}
			e, _, err := ParsePayload([]byte(m.Payload))
			if err != nil {
				s.logger.Warn().Err(err).Str("channel", m.Channel).Msg("dropping malformed message")
				continue
			}
			e.ReceivedAt = time.Now()
			if !emit(e) {
				return nil
			}
		}
	}), nil
}
