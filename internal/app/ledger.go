package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/colormuse/print-api/internal/domain/order"
	"github.com/colormuse/print-api/internal/storage/memory"
	"github.com/colormuse/print-api/internal/storage/postgres"
	redisledger "github.com/colormuse/print-api/internal/storage/redis"
	"github.com/colormuse/print-api/pkg/health"
)

// openedLedger is an order.Ledger with its connection lifecycle.
type openedLedger struct {
	order.Ledger
	pinger health.Pinger
	close  func()
}

func openLedger(ctx context.Context, cfg LedgerConfig) (*openedLedger, error) {
	switch cfg.Backend {
	case LedgerPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		l := postgres.NewLedger(pool, cfg.ReservationTTL)
		return &openedLedger{Ledger: l, pinger: l, close: pool.Close}, nil

	case LedgerRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		client := redis.NewClient(opt)
		l := redisledger.NewLedger(client, redisledger.Config{
			ReservationTTL: cfg.ReservationTTL,
			Retention:      cfg.Retention,
		})
		if err := l.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, errors.Wrap(err, "ping redis")
		}
		return &openedLedger{Ledger: l, pinger: l, close: func() { _ = client.Close() }}, nil

	case LedgerMemory:
		return &openedLedger{Ledger: memory.NewLedger(cfg.ReservationTTL), close: func() {}}, nil

	default:
		return nil, errors.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
