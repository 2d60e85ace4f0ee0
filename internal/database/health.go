package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Health is the readiness of the backing stores.
type Health struct {
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// OK reports whether every store answered.
func (h Health) OK() bool {
	return h.Postgres == "ok" && h.Redis == "ok"
}

// Check pings Postgres and Redis concurrently with a short timeout.
func Check(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client) Health {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	h := Health{Postgres: "ok", Redis: "ok"}
	var g errgroup.Group
	g.Go(func() error {
		if err := pool.Ping(ctx); err != nil {
			h.Postgres = err.Error()
		}
		return nil
	})
	g.Go(func() error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			h.Redis = err.Error()
		}
		return nil
	})
	_ = g.Wait()
	return h
}
