package db

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// NewPool connects to databaseURL with every connection's search_path set to
// schema, so repositories can use unqualified table names. One clinic runs
// per schema.
func NewPool(ctx context.Context, databaseURL, schema string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	if schema != "" {
		if !schemaPattern.MatchString(schema) {
			return nil, fmt.Errorf("invalid schema name %q", schema)
		}
		cfg.ConnConfig.RuntimeParams["search_path"] = schema + ", public"
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Pinger is the part of the pool the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
}

// poolReport is the /health/db body. Each change feed listener holds one
// connection outside the pool, so acquired counts exclude them.
type poolReport struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Latency  string `json:"ping_latency"`
	Total    int32  `json:"total_conns"`
	Idle     int32  `json:"idle_conns"`
	Acquired int32  `json:"acquired_conns"`
	Max      int32  `json:"max_conns"`
	Waited   int64  `json:"empty_acquire_count"`
}

// HealthHandler pings the store and reports pool usage. A failed ping
// answers 503.
func HealthHandler(pool Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		start := time.Now()
		err := pool.Ping(ctx)
		st := pool.Stat()
		r := poolReport{
			Status:   "healthy",
			Latency:  time.Since(start).String(),
			Total:    st.TotalConns(),
			Idle:     st.IdleConns(),
			Acquired: st.AcquiredConns(),
			Max:      st.MaxConns(),
			Waited:   st.EmptyAcquireCount(),
		}
		if err != nil {
			r.Status, r.Error = "unhealthy", err.Error()
			return c.JSON(http.StatusServiceUnavailable, r)
		}
		return c.JSON(http.StatusOK, r)
	}
}
