package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/colormuse/print-api/internal/domain/order"
)

var _ order.Ledger = (*Ledger)(nil)

const statusCompleted = "completed"

// A fresh row or a stale reservation is (re)claimed. The RETURNING row is
// absent when another request owns the order.
const reserveSQL = `
INSERT INTO print_orders (payment_order_id, status, amount, currency, reserved_at)
VALUES ($1, 'pending', $2, $3, now())
ON CONFLICT (payment_order_id) DO UPDATE
   SET amount = EXCLUDED.amount,
       currency = EXCLUDED.currency,
       reserved_at = now()
 WHERE print_orders.status = 'pending'
   AND print_orders.reserved_at < $4
RETURNING payment_order_id`

const selectSQL = `
SELECT status, COALESCE(job_id, ''), job
  FROM print_orders
 WHERE payment_order_id = $1`

const completeSQL = `
INSERT INTO print_orders (payment_order_id, status, job_id, job, completed_at)
VALUES ($1, 'completed', $2, $3, now())
ON CONFLICT (payment_order_id) DO UPDATE
   SET status = 'completed',
       job_id = EXCLUDED.job_id,
       job = EXCLUDED.job,
       completed_at = now()`

const releaseSQL = `
DELETE FROM print_orders
 WHERE payment_order_id = $1
   AND status = 'pending'`

// Ledger implements order.Ledger backed by the print_orders table.
type Ledger struct {
	pool           *pgxpool.Pool
	reservationTTL time.Duration
	now            func() time.Time
}

// NewLedger returns a Ledger that uses the given pool.
func NewLedger(pool *pgxpool.Pool, reservationTTL time.Duration) *Ledger {
	if reservationTTL <= 0 {
		reservationTTL = 10 * time.Minute
	}
	return &Ledger{pool: pool, reservationTTL: reservationTTL, now: time.Now}
}

// Ping checks connectivity for readiness probes.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

// Reserve claims p.OrderID or returns the job already placed for it.
func (l *Ledger) Reserve(ctx context.Context, p order.Payment) (*order.PrintJob, error) {
	var amount *decimal.Decimal
	if !p.Amount.IsZero() {
		amount = &p.Amount
	}
	cutoff := l.now().Add(-l.reservationTTL)

	var id string
	err := l.pool.QueryRow(ctx, reserveSQL, p.OrderID, amount, nullable(p.Currency), cutoff).Scan(&id)
	switch {
	case err == nil:
		return nil, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, errors.Wrapf(err, "reserve order %q", p.OrderID)
	}

	var (
		status string
		jobID  string
		raw    []byte
	)
	err = l.pool.QueryRow(ctx, selectSQL, p.OrderID).Scan(&status, &jobID, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		// Released between the two statements.
		return nil, order.ErrAlreadyProcessing
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load order %q", p.OrderID)
	}
	if status != statusCompleted {
		return nil, order.ErrAlreadyProcessing
	}
	return &order.PrintJob{ID: jobID, Raw: raw}, nil
}

// Complete records the job placed for paymentOrderID.
func (l *Ledger) Complete(ctx context.Context, paymentOrderID string, job *order.PrintJob) error {
	raw := job.Raw
	if len(raw) == 0 {
		raw = nil
	}
	if _, err := l.pool.Exec(ctx, completeSQL, paymentOrderID, job.ID, raw); err != nil {
		return errors.Wrapf(err, "complete order %q", paymentOrderID)
	}
	return nil
}

// Release drops an unfulfilled reservation.
func (l *Ledger) Release(ctx context.Context, paymentOrderID string) error {
	if _, err := l.pool.Exec(ctx, releaseSQL, paymentOrderID); err != nil {
		return errors.Wrapf(err, "release order %q", paymentOrderID)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Entry is a full print_orders row.
type Entry struct {
	PaymentOrderID string
	Status         string
	JobID          string
	Job            []byte
	Amount         *decimal.Decimal
	Currency       string
	ReservedAt     time.Time
	CompletedAt    *time.Time
}

const lookupSQL = `
SELECT payment_order_id, status, COALESCE(job_id, ''), job, amount, COALESCE(currency, ''), reserved_at, completed_at
  FROM print_orders
 WHERE payment_order_id = $1`

// ErrNotFound is returned by Lookup for an unknown payment order.
var ErrNotFound = errors.New("order not found")

// Lookup returns the stored row for paymentOrderID.
func (l *Ledger) Lookup(ctx context.Context, paymentOrderID string) (*Entry, error) {
	var e Entry
	err := l.pool.QueryRow(ctx, lookupSQL, paymentOrderID).Scan(
		&e.PaymentOrderID, &e.Status, &e.JobID, &e.Job, &e.Amount, &e.Currency, &e.ReservedAt, &e.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "lookup %q", paymentOrderID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lookup %q", paymentOrderID)
	}
	return &e, nil
}
