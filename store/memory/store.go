// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/participant"
	ubtstore "github.com/fistfulayen/ubtrippin-sub001/store"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// compile-time interface check.
var _ ubtstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
// Reads return copies so callers can mutate them without holding a lock.
type Store struct {
	mu sync.RWMutex

	webhooks      map[string]*webhook.Webhook          // keyed by ID string
	deliveries    map[string]*delivery.Delivery        // keyed by ID string
	queue         map[string]*delivery.QueueEntry      // keyed by ID string
	collaborators map[string]*participant.Collaborator // keyed by trip and user

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		webhooks:      make(map[string]*webhook.Webhook),
		deliveries:    make(map[string]*delivery.Delivery),
		queue:         make(map[string]*delivery.QueueEntry),
		collaborators: make(map[string]*participant.Collaborator),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ubtrippin.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// webhook.Store
// ──────────────────────────────────────────────────

// CreateWebhook persists a new webhook.
func (s *Store) CreateWebhook(_ context.Context, w *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.webhooks[w.ID.String()] = copyWebhook(w)
	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(_ context.Context, whID id.ID) (*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[whID.String()]
	if !ok {
		return nil, ubtrippin.ErrWebhookNotFound
	}
	return copyWebhook(w), nil
}

// UpdateWebhook modifies an existing webhook.
func (s *Store) UpdateWebhook(_ context.Context, w *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[w.ID.String()]; !ok {
		return ubtrippin.ErrWebhookNotFound
	}
	w.UpdatedAt = time.Now().UTC()
	s.webhooks[w.ID.String()] = copyWebhook(w)
	return nil
}

// DeleteWebhook removes a webhook with its deliveries and queue entries.
func (s *Store) DeleteWebhook(_ context.Context, whID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := whID.String()
	if _, ok := s.webhooks[key]; !ok {
		return ubtrippin.ErrWebhookNotFound
	}
	delete(s.webhooks, key)

	for k, d := range s.deliveries {
		if d.WebhookID.String() == key {
			delete(s.deliveries, k)
		}
	}
	for k, e := range s.queue {
		if e.WebhookID.String() == key {
			delete(s.queue, k)
		}
	}
	return nil
}

// ListWebhooks returns the webhooks of a user, newest first.
func (s *Store) ListWebhooks(_ context.Context, userID string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhook.Webhook, 0, len(s.webhooks))
	for _, w := range s.webhooks {
		if w.UserID != userID {
			continue
		}
		if opts.Enabled != nil && w.Enabled != *opts.Enabled {
			continue
		}
		result = append(result, copyWebhook(w))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListEnabledByUsers returns the enabled webhooks of any of the given users.
func (s *Store) ListEnabledByUsers(_ context.Context, userIDs []string) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[string]struct{}, len(userIDs))
	for _, u := range userIDs {
		users[u] = struct{}{}
	}

	var result []*webhook.Webhook
	for _, w := range s.webhooks {
		if !w.Enabled {
			continue
		}
		if _, ok := users[w.UserID]; !ok {
			continue
		}
		result = append(result, copyWebhook(w))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// SetEnabled pauses or resumes a webhook.
func (s *Store) SetEnabled(_ context.Context, whID id.ID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[whID.String()]
	if !ok {
		return ubtrippin.ErrWebhookNotFound
	}
	w.Enabled = enabled
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// EnqueueBatch creates deliveries and their queue entries atomically.
func (s *Store) EnqueueBatch(_ context.Context, ds []*delivery.Delivery, entries []*delivery.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ubtrippin.ErrStoreClosed
	}

	for _, d := range ds {
		s.deliveries[d.ID.String()] = copyDelivery(d)
	}
	for _, e := range entries {
		s.queue[e.ID.String()] = copyEntry(e)
	}
	return nil
}

// DueEntries returns due queue entries oldest first, joined with their
// webhook and delivery.
func (s *Store) DueEntries(_ context.Context, now time.Time, limit int) ([]*delivery.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]*delivery.QueueEntry, 0, len(s.queue))
	for _, e := range s.queue {
		if e.DeliverAfter.After(now) {
			continue
		}
		due = append(due, e)
	}

	sort.Slice(due, func(i, j int) bool {
		if !due[i].DeliverAfter.Equal(due[j].DeliverAfter) {
			return due[i].DeliverAfter.Before(due[j].DeliverAfter)
		}
		return due[i].ID.String() < due[j].ID.String()
	})

	if limit > 0 && limit < len(due) {
		due = due[:limit]
	}

	jobs := make([]*delivery.Job, 0, len(due))
	for _, e := range due {
		job := &delivery.Job{Entry: copyEntry(e)}
		if w, ok := s.webhooks[e.WebhookID.String()]; ok {
			job.Webhook = copyWebhook(w)
		}
		if d, ok := s.deliveries[e.DeliveryID.String()]; ok {
			job.Delivery = copyDelivery(d)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Claim deletes a queue entry and returns it. Only one caller wins.
func (s *Store) Claim(_ context.Context, entryID id.ID) (*delivery.QueueEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.queue[entryID.String()]
	if !ok {
		return nil, false, nil
	}
	delete(s.queue, entryID.String())
	return e, true, nil
}

// Requeue inserts a follow-up queue entry.
func (s *Store) Requeue(_ context.Context, e *delivery.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[e.DeliveryID.String()]; !ok {
		return ubtrippin.ErrDeliveryNotFound
	}
	s.queue[e.ID.String()] = copyEntry(e)
	return nil
}

// Reschedule updates a delivery and inserts its follow-up entry under one lock.
func (s *Store) Reschedule(_ context.Context, d *delivery.Delivery, follow *delivery.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[d.ID.String()]; !ok {
		return ubtrippin.ErrDeliveryNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	s.deliveries[d.ID.String()] = copyDelivery(d)
	s.queue[follow.ID.String()] = copyEntry(follow)
	return nil
}

// UpdateDelivery modifies a delivery.
func (s *Store) UpdateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[d.ID.String()]; !ok {
		return ubtrippin.ErrDeliveryNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	s.deliveries[d.ID.String()] = copyDelivery(d)
	return nil
}

// GetDelivery returns a copy of the delivery by ID.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, ubtrippin.ErrDeliveryNotFound
	}
	return copyDelivery(d), nil
}

// ListByWebhook returns delivery history for a webhook.
func (s *Store) ListByWebhook(_ context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		if d.WebhookID.String() != whID.String() {
			continue
		}
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		result = append(result, copyDelivery(d))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// CountQueued returns the number of queue entries.
func (s *Store) CountQueued(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.queue)), nil
}

// CountByStatus returns the number of deliveries per status.
func (s *Store) CountByStatus(_ context.Context) (map[delivery.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[delivery.Status]int64, 3)
	for _, d := range s.deliveries {
		counts[d.Status]++
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// retention.Store
// ──────────────────────────────────────────────────

// PurgeDeliveries deletes deliveries created before the cutoff and their
// queue entries.
func (s *Store) PurgeDeliveries(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for k, d := range s.deliveries {
		if d.CreatedAt.Before(before) {
			delete(s.deliveries, k)
			count++
		}
	}
	for k, e := range s.queue {
		if _, ok := s.deliveries[e.DeliveryID.String()]; !ok {
			delete(s.queue, k)
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// participant.Store
// ──────────────────────────────────────────────────

// AcceptedCollaborators returns the accepted collaborators of a trip.
func (s *Store) AcceptedCollaborators(_ context.Context, tripID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*participant.Collaborator
	for _, c := range s.collaborators {
		if c.TripID == tripID && c.Status == participant.StatusAccepted {
			result = append(result, c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	users := make([]string, 0, len(result))
	for _, c := range result {
		users = append(users, c.UserID)
	}
	return users, nil
}

// UpsertCollaborator records or updates a trip collaborator.
func (s *Store) UpsertCollaborator(_ context.Context, c *participant.Collaborator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.collaborators[c.TripID+"/"+c.UserID] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyWebhook(w *webhook.Webhook) *webhook.Webhook {
	cp := *w
	cp.Events = append([]string(nil), w.Events...)
	return &cp
}

func copyDelivery(d *delivery.Delivery) *delivery.Delivery {
	cp := *d
	if d.LastAttemptAt != nil {
		t := *d.LastAttemptAt
		cp.LastAttemptAt = &t
	}
	if d.LastResponseCode != nil {
		c := *d.LastResponseCode
		cp.LastResponseCode = &c
	}
	return &cp
}

func copyEntry(e *delivery.QueueEntry) *delivery.QueueEntry {
	cp := *e
	return &cp
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
