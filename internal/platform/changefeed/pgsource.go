package changefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PGSource listens on the clinic_feed_<table> channels filled by the
// database triggers. Each open table takes one connection out of the pool
// for the lifetime of its stream.
type PGSource struct {
	pool   *pgxpool.Pool
	schema string
	logger zerolog.Logger
}

// NewPGSource creates a source that keeps only notifications raised in
// schema. An empty schema accepts every schema.
func NewPGSource(pool *pgxpool.Pool, schema string, logger zerolog.Logger) *PGSource {
	return &PGSource{
		pool:   pool,
		schema: schema,
		logger: logger.With().Str("component", "changefeed.pg").Logger(),
	}
}

func (s *PGSource) Open(ctx context.Context, table Table) (Stream, error) {
	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	// LISTEN state is per session; keep this connection out of the pool.
	conn := pooled.Hijack()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{table.Channel()}.Sanitize()); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", table.Channel(), err)
	}

	return startPump(ctx, 64, func(ctx context.Context, emit emitFunc) error {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			conn.Close(closeCtx)
		}()
		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				return fmt.Errorf("wait for notification on %s: %w", table.Channel(), err)
			}
			e, schema, err := ParsePayload([]byte(n.Payload))
			if err != nil {
				s.logger.Warn().Err(err).Str("channel", n.Channel).Msg("dropping malformed notification")
				continue
			}
			if s.schema != "" && schema != "" && schema != s.schema {
				continue
			}
			e.ReceivedAt = time.Now()
			if !emit(e) {
				return nil
			}
		}
	}), nil
}
