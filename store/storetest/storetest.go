// Package storetest holds the behavior every store.Store backend must share.
// Backends call Run from their own tests with a factory that returns an
// empty, migrated store.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/participant"
	"github.com/fistfulayen/ubtrippin-sub001/store"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// Factory returns an empty store with migrations applied.
type Factory func(t *testing.T) store.Store

// Timestamps are compared at millisecond precision; mongo keeps no finer.
const precision = time.Millisecond

// Run exercises s against the shared behavior, one subtest per concern.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"WebhookCRUD", testWebhookCRUD},
		{"ListWebhooks", testListWebhooks},
		{"DueEntriesOrderAndJoin", testDueEntriesOrderAndJoin},
		{"PayloadBytesPreserved", testPayloadBytesPreserved},
		{"ClaimIsIdempotent", testClaimIsIdempotent},
		{"ConcurrentClaimsSucceedOnce", testConcurrentClaimsSucceedOnce},
		{"RequeueAndUpdateDelivery", testRequeueAndUpdateDelivery},
		{"RescheduleWritesDeliveryAndEntry", testRescheduleWritesDeliveryAndEntry},
		{"RescheduleMissingDelivery", testRescheduleMissingDelivery},
		{"TimestampsRoundTrip", testTimestampsRoundTrip},
		{"ListByWebhookAndStats", testListByWebhookAndStats},
		{"DeleteWebhookCascades", testDeleteWebhookCascades},
		{"PurgeDeliveries", testPurgeDeliveries},
		{"AcceptedCollaborators", testAcceptedCollaborators},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// NewWebhook returns an unsaved webhook subscribed to trip.created and
// item.created.
func NewWebhook(userID string, enabled bool) *webhook.Webhook {
	return &webhook.Webhook{
		Entity:          entity.New(),
		ID:              id.NewWebhookID(),
		UserID:          userID,
		URL:             "https://example.com/hooks",
		SecretEncrypted: "v1.sealed",
		SecretMask:      "whsec_...abcd",
		Events:          []string{"trip.created", "item.created"},
		Enabled:         enabled,
	}
}

// NewDelivery returns an unsaved pending trip.created delivery.
func NewDelivery(whID id.ID, createdAt time.Time) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:    entity.Entity{CreatedAt: createdAt, UpdatedAt: createdAt},
		ID:        id.NewDeliveryID(),
		WebhookID: whID,
		Event:     "trip.created",
		Payload:   []byte(`{"event":"trip.created","data":{"name":"Lisbon"}}`),
		Status:    delivery.StatusPending,
	}
}

// Seed creates a webhook plus n deliveries whose first entries become due
// one millisecond apart starting at at.
func Seed(t *testing.T, s store.Store, userID string, n int, at time.Time) (*webhook.Webhook, []*delivery.Delivery, []*delivery.QueueEntry) {
	t.Helper()
	ctx := context.Background()

	w := NewWebhook(userID, true)
	require.NoError(t, s.CreateWebhook(ctx, w))

	var ds []*delivery.Delivery
	var es []*delivery.QueueEntry
	for i := 0; i < n; i++ {
		d := NewDelivery(w.ID, time.Now().UTC())
		ds = append(ds, d)
		es = append(es, delivery.NewQueueEntry(d, 1, at.Add(time.Duration(i)*time.Millisecond)))
	}
	require.NoError(t, s.EnqueueBatch(ctx, ds, es))
	return w, ds, es
}

func testWebhookCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()

	w := NewWebhook("u1", true)
	require.NoError(t, s.CreateWebhook(ctx, w))

	got, err := s.GetWebhook(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)
	assert.Equal(t, []string{"trip.created", "item.created"}, got.Events)
	assert.True(t, got.Enabled)

	got.Description = "itinerary sync"
	require.NoError(t, s.UpdateWebhook(ctx, got))

	again, err := s.GetWebhook(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "itinerary sync", again.Description)

	require.NoError(t, s.SetEnabled(ctx, w.ID, false))
	again, err = s.GetWebhook(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, again.Enabled)

	_, err = s.GetWebhook(ctx, id.NewWebhookID())
	assert.ErrorIs(t, err, ubtrippin.ErrWebhookNotFound)
	assert.ErrorIs(t, s.SetEnabled(ctx, id.NewWebhookID(), true), ubtrippin.ErrWebhookNotFound)
	assert.ErrorIs(t, s.DeleteWebhook(ctx, id.NewWebhookID()), ubtrippin.ErrWebhookNotFound)
}

func testListWebhooks(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		w := NewWebhook("u1", i != 1)
		w.CreatedAt = w.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.CreateWebhook(ctx, w))
	}
	require.NoError(t, s.CreateWebhook(ctx, NewWebhook("u2", true)))
	require.NoError(t, s.CreateWebhook(ctx, NewWebhook("u3", false)))

	all, err := s.ListWebhooks(ctx, "u1", webhook.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[2].CreatedAt), "newest first")

	enabled := true
	onlyEnabled, err := s.ListWebhooks(ctx, "u1", webhook.ListOpts{Enabled: &enabled})
	require.NoError(t, err)
	assert.Len(t, onlyEnabled, 2)

	page, err := s.ListWebhooks(ctx, "u1", webhook.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	hot, err := s.ListEnabledByUsers(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Len(t, hot, 3)
	for _, w := range hot {
		assert.True(t, w.Enabled)
	}

	none, err := s.ListEnabledByUsers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testDueEntriesOrderAndJoin(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	w, _, past := Seed(t, s, "u1", 3, now.Add(-time.Minute))
	Seed(t, s, "u1", 2, now.Add(time.Hour))

	jobs, err := s.DueEntries(ctx, now, 500)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	for i, j := range jobs {
		assert.Equal(t, past[i].ID, j.Entry.ID, "readiness order")
		require.NotNil(t, j.Webhook)
		require.NotNil(t, j.Delivery)
		assert.Equal(t, w.ID, j.Webhook.ID)
		assert.Equal(t, j.Entry.DeliveryID, j.Delivery.ID)
		assert.Equal(t, 1, j.Entry.Attempt)
	}

	limited, err := s.DueEntries(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	queued, err := s.CountQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), queued)
}

func testPayloadBytesPreserved(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, ds, _ := Seed(t, s, "u1", 1, time.Now().UTC())
	want := `{"z":1,  "a":"spaced"}`
	ds[0].Payload = []byte(want)
	require.NoError(t, s.UpdateDelivery(ctx, ds[0]))

	got, err := s.GetDelivery(ctx, ds[0].ID)
	require.NoError(t, err)
	assert.Equal(t, want, string(got.Payload))
}

func testClaimIsIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, _, es := Seed(t, s, "u1", 1, time.Now().UTC())

	e, ok, err := s.Claim(ctx, es[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, es[0].DeliveryID, e.DeliveryID)

	_, ok, err = s.Claim(ctx, es[0].ID)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	queued, err := s.CountQueued(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued)
}

func testConcurrentClaimsSucceedOnce(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, _, es := Seed(t, s, "u1", 1, time.Now().UTC())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Claim(ctx, es[0].ID)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func testRequeueAndUpdateDelivery(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	_, ds, es := Seed(t, s, "u1", 1, now)
	_, ok, err := s.Claim(ctx, es[0].ID)
	require.NoError(t, err)
	require.True(t, ok)

	next := delivery.NewQueueEntry(ds[0], 2, now.Add(time.Second))
	require.NoError(t, s.Requeue(ctx, next))

	code := 503
	attemptAt := now
	ds[0].Attempts = 1
	ds[0].LastAttemptAt = &attemptAt
	ds[0].LastResponseCode = &code
	ds[0].LastResponseBody = "unavailable"
	require.NoError(t, s.UpdateDelivery(ctx, ds[0]))

	got, err := s.GetDelivery(ctx, ds[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastResponseCode)
	assert.Equal(t, 503, *got.LastResponseCode)
	assert.Equal(t, "unavailable", got.LastResponseBody)
	require.NotNil(t, got.LastAttemptAt)
	assert.WithinDuration(t, now, *got.LastAttemptAt, precision)

	notYet, err := s.DueEntries(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, notYet)

	due, err := s.DueEntries(ctx, now.Add(2*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 2, due[0].Entry.Attempt)

	missing := NewDelivery(id.NewWebhookID(), now)
	assert.ErrorIs(t, s.UpdateDelivery(ctx, missing), ubtrippin.ErrDeliveryNotFound)
	_, err = s.GetDelivery(ctx, missing.ID)
	assert.ErrorIs(t, err, ubtrippin.ErrDeliveryNotFound)
}

func testRescheduleWritesDeliveryAndEntry(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	_, ds, es := Seed(t, s, "u1", 1, now)
	_, ok, err := s.Claim(ctx, es[0].ID)
	require.NoError(t, err)
	require.True(t, ok)

	ds[0].Attempts = 1
	ds[0].LastResponseBody = "bad gateway"
	follow := delivery.NewQueueEntry(ds[0], 2, now.Add(10*time.Second))
	require.NoError(t, s.Reschedule(ctx, ds[0], follow))

	got, err := s.GetDelivery(ctx, ds[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "bad gateway", got.LastResponseBody)

	due, err := s.DueEntries(ctx, now.Add(10*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, follow.ID, due[0].Entry.ID)
	assert.Equal(t, 2, due[0].Entry.Attempt)
}

func testRescheduleMissingDelivery(t *testing.T, s store.Store) {
	ctx := context.Background()

	missing := NewDelivery(id.NewWebhookID(), time.Now().UTC())
	follow := delivery.NewQueueEntry(missing, 2, time.Now())
	assert.ErrorIs(t, s.Reschedule(ctx, missing, follow), ubtrippin.ErrDeliveryNotFound)

	queued, err := s.CountQueued(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued, "follow-up entry must not survive")
}

func testTimestampsRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()

	at := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)
	_, ds, es := Seed(t, s, "u1", 1, at)

	got, err := s.GetDelivery(ctx, ds[0].ID)
	require.NoError(t, err)
	assert.WithinDuration(t, ds[0].CreatedAt, got.CreatedAt, precision)

	e, ok, err := s.Claim(ctx, es[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(e.DeliverAfter), "got %s", e.DeliverAfter)

	// An entry due exactly now is ready.
	require.NoError(t, s.Requeue(ctx, es[0]))
	due, err := s.DueEntries(ctx, at, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
	due, err = s.DueEntries(ctx, at.Add(-precision), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func testListByWebhookAndStats(t *testing.T, s store.Store) {
	ctx := context.Background()

	w, ds, _ := Seed(t, s, "u1", 4, time.Now().UTC())
	ds[0].Status = delivery.StatusSuccess
	ds[1].Status = delivery.StatusFailed
	require.NoError(t, s.UpdateDelivery(ctx, ds[0]))
	require.NoError(t, s.UpdateDelivery(ctx, ds[1]))

	all, err := s.ListByWebhook(ctx, w.ID, delivery.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	pending := delivery.StatusPending
	onlyPending, err := s.ListByWebhook(ctx, w.ID, delivery.ListOpts{Status: &pending})
	require.NoError(t, err)
	assert.Len(t, onlyPending, 2)

	page, err := s.ListByWebhook(ctx, w.ID, delivery.ListOpts{Limit: 3, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[delivery.StatusPending])
	assert.Equal(t, int64(1), counts[delivery.StatusSuccess])
	assert.Equal(t, int64(1), counts[delivery.StatusFailed])
}

func testDeleteWebhookCascades(t *testing.T, s store.Store) {
	ctx := context.Background()

	w, ds, _ := Seed(t, s, "u1", 2, time.Now().UTC())
	other, _, _ := Seed(t, s, "u2", 1, time.Now().UTC())

	require.NoError(t, s.DeleteWebhook(ctx, w.ID))

	_, err := s.GetWebhook(ctx, w.ID)
	assert.ErrorIs(t, err, ubtrippin.ErrWebhookNotFound)
	_, err = s.GetDelivery(ctx, ds[0].ID)
	assert.ErrorIs(t, err, ubtrippin.ErrDeliveryNotFound)

	queued, err := s.CountQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), queued)

	_, err = s.GetWebhook(ctx, other.ID)
	assert.NoError(t, err)
}

func testPurgeDeliveries(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	w := NewWebhook("u1", true)
	require.NoError(t, s.CreateWebhook(ctx, w))

	old := NewDelivery(w.ID, now.Add(-91*24*time.Hour))
	fresh := NewDelivery(w.ID, now.Add(-time.Hour))
	require.NoError(t, s.EnqueueBatch(ctx,
		[]*delivery.Delivery{old, fresh},
		[]*delivery.QueueEntry{
			delivery.NewQueueEntry(old, 1, now),
			delivery.NewQueueEntry(fresh, 1, now),
		},
	))

	n, err := s.PurgeDeliveries(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetDelivery(ctx, old.ID)
	assert.ErrorIs(t, err, ubtrippin.ErrDeliveryNotFound)
	_, err = s.GetDelivery(ctx, fresh.ID)
	assert.NoError(t, err)

	queued, err := s.CountQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), queued)

	n, err = s.PurgeDeliveries(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testAcceptedCollaborators(t *testing.T, s store.Store) {
	ctx := context.Background()

	base := time.Now().UTC()
	for i, c := range []participant.Collaborator{
		{TripID: "trip-1", UserID: "alice", Status: participant.StatusAccepted},
		{TripID: "trip-1", UserID: "bob", Status: participant.StatusPending},
		{TripID: "trip-1", UserID: "carol", Status: participant.StatusAccepted},
		{TripID: "trip-2", UserID: "dave", Status: participant.StatusAccepted},
	} {
		c.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.UpsertCollaborator(ctx, &c))
	}

	users, err := s.AcceptedCollaborators(ctx, "trip-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "carol"}, users)

	require.NoError(t, s.UpsertCollaborator(ctx, &participant.Collaborator{
		TripID: "trip-1", UserID: "bob", Status: participant.StatusAccepted,
	}))
	users, err = s.AcceptedCollaborators(ctx, "trip-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, users)
}
