package delivery

import (
	"context"
	"time"

	"github.com/fistfulayen/ubtrippin-sub001/id"
)

// Store defines the persistence contract for deliveries and their queue.
type Store interface {
	// EnqueueBatch creates deliveries and their first queue entries together.
	EnqueueBatch(ctx context.Context, ds []*Delivery, entries []*QueueEntry) error

	// DueEntries returns up to limit queue entries whose DeliverAfter is not
	// after now, oldest first, joined with their webhook and delivery.
	DueEntries(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// Claim atomically deletes a queue entry and returns it. ok is false when
	// another worker claimed it first. Losing the race is not an error.
	Claim(ctx context.Context, entryID id.ID) (entry *QueueEntry, ok bool, err error)

	// Requeue inserts a follow-up queue entry.
	Requeue(ctx context.Context, entry *QueueEntry) error

	// Reschedule updates a delivery and inserts its follow-up queue entry
	// as one write. Either both land or neither does.
	Reschedule(ctx context.Context, d *Delivery, follow *QueueEntry) error

	// UpdateDelivery modifies a delivery (status, attempts, last response).
	UpdateDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery returns a delivery by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListByWebhook returns delivery history for a webhook, newest first.
	ListByWebhook(ctx context.Context, whID id.ID, opts ListOpts) ([]*Delivery, error)

	// CountQueued returns the number of queue entries, due or not.
	CountQueued(ctx context.Context) (int64, error)

	// CountByStatus returns the number of deliveries per status.
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}
