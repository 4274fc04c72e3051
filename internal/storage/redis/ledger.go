// Package redis provides an order ledger shared by all service instances.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/colormuse/print-api/internal/domain/order"
)

const (
	defaultKeyPrefix = "colormuse:order:"
	pendingValue     = "pending"
)

var _ order.Ledger = (*Ledger)(nil)

// releaseScript deletes a key only while it still holds a reservation.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config controls key naming and expiry.
type Config struct {
	KeyPrefix      string
	ReservationTTL time.Duration
	// Retention is how long fulfilled orders are remembered. Zero keeps
	// them forever.
	Retention time.Duration
}

// Ledger stores reservations with SETNX and fulfilled jobs as JSON values.
type Ledger struct {
	client *redis.Client
	cfg    Config
}

type storedJob struct {
	ID  string          `json:"id"`
	Job json.RawMessage `json:"job"`
}

// NewLedger creates a Ledger on an existing client.
func NewLedger(client *redis.Client, cfg Config) *Ledger {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 10 * time.Minute
	}
	return &Ledger{client: client, cfg: cfg}
}

// Ping checks connectivity for readiness probes.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Reserve claims p.OrderID or returns its stored job.
func (l *Ledger) Reserve(ctx context.Context, p order.Payment) (*order.PrintJob, error) {
	key := l.cfg.KeyPrefix + p.OrderID

	// Two attempts cover a reservation expiring between SETNX and GET.
	for range 2 {
		ok, err := l.client.SetNX(ctx, key, pendingValue, l.cfg.ReservationTTL).Result()
		if err != nil {
			return nil, errors.Wrap(err, "reserve")
		}
		if ok {
			return nil, nil
		}

		val, err := l.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "get reservation")
		}
		if string(val) == pendingValue {
			return nil, order.ErrAlreadyProcessing
		}

		var stored storedJob
		if err := json.Unmarshal(val, &stored); err != nil {
			return nil, errors.Wrapf(err, "decode stored job for %s", p.OrderID)
		}
		return &order.PrintJob{ID: stored.ID, Raw: stored.Job}, nil
	}
	return nil, order.ErrAlreadyProcessing
}

// Complete stores the job placed for paymentOrderID.
func (l *Ledger) Complete(ctx context.Context, paymentOrderID string, job *order.PrintJob) error {
	val, err := json.Marshal(storedJob{ID: job.ID, Job: job.Raw})
	if err != nil {
		return errors.Wrap(err, "encode job")
	}
	if err := l.client.Set(ctx, l.cfg.KeyPrefix+paymentOrderID, val, l.cfg.Retention).Err(); err != nil {
		return errors.Wrap(err, "store job")
	}
	return nil
}

// Release drops an unfulfilled reservation.
func (l *Ledger) Release(ctx context.Context, paymentOrderID string) error {
	err := releaseScript.Run(ctx, l.client, []string{l.cfg.KeyPrefix + paymentOrderID}, pendingValue).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrap(err, "release")
	}
	return nil
}
