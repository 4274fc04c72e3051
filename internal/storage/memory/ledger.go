// Package memory provides a process-local order ledger.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/colormuse/print-api/internal/domain/order"
)

var _ order.Ledger = (*Ledger)(nil)

type entry struct {
	job        *order.PrintJob
	reservedAt time.Time
}

// Ledger de-duplicates orders within one process. Reservations older than
// the reservation TTL are treated as abandoned.
type Ledger struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewLedger creates an empty ledger.
func NewLedger(reservationTTL time.Duration) *Ledger {
	if reservationTTL <= 0 {
		reservationTTL = 10 * time.Minute
	}
	return &Ledger{
		ttl:     reservationTTL,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Reserve claims p.OrderID or returns its stored job.
func (l *Ledger) Reserve(_ context.Context, p order.Payment) (*order.PrintJob, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.entries[p.OrderID]; ok {
		if e.job != nil {
			return e.job, nil
		}
		if now.Sub(e.reservedAt) < l.ttl {
			return nil, order.ErrAlreadyProcessing
		}
	}
	l.entries[p.OrderID] = &entry{reservedAt: now}
	return nil, nil
}

// Complete stores the job placed for paymentOrderID.
func (l *Ledger) Complete(_ context.Context, paymentOrderID string, job *order.PrintJob) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[paymentOrderID] = &entry{job: job, reservedAt: l.now()}
	return nil
}

// Release drops an unfulfilled reservation.
func (l *Ledger) Release(_ context.Context, paymentOrderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[paymentOrderID]; ok && e.job == nil {
		delete(l.entries, paymentOrderID)
	}
	return nil
}
