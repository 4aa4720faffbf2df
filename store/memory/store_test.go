package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/participant"
	"github.com/fistfulayen/ubtrippin-sub001/store/memory"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

func ctx() context.Context { return context.Background() }

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := memory.New()

	if err := s.Migrate(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, ubtrippin.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Webhooks
// ──────────────────────────────────────────────────

func newWebhook(userID string, events ...string) *webhook.Webhook {
	return &webhook.Webhook{
		Entity:          entity.New(),
		ID:              id.NewWebhookID(),
		UserID:          userID,
		URL:             "https://example.com/hooks",
		SecretEncrypted: "v1.sealed",
		SecretMask:      "whsec_...abcd",
		Events:          events,
		Enabled:         true,
	}
}

func TestWebhookCRUD(t *testing.T) {
	s := memory.New()
	w := newWebhook("u1", "trip.created")

	if err := s.CreateWebhook(ctx(), w); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetWebhook(ctx(), w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u1" || got.Events[0] != "trip.created" {
		t.Fatalf("unexpected webhook %+v", got)
	}

	got.Description = "changed"
	if err := s.UpdateWebhook(ctx(), got); err != nil {
		t.Fatal(err)
	}
	again, _ := s.GetWebhook(ctx(), w.ID)
	if again.Description != "changed" {
		t.Fatal("update not persisted")
	}

	if err := s.DeleteWebhook(ctx(), w.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetWebhook(ctx(), w.ID); !errors.Is(err, ubtrippin.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
	if err := s.DeleteWebhook(ctx(), w.ID); !errors.Is(err, ubtrippin.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound on second delete, got %v", err)
	}
}

func TestWebhookReadsAreCopies(t *testing.T) {
	s := memory.New()
	w := newWebhook("u1", "trip.created")
	_ = s.CreateWebhook(ctx(), w)

	got, _ := s.GetWebhook(ctx(), w.ID)
	got.Enabled = false
	got.Events[0] = "item.created"

	again, _ := s.GetWebhook(ctx(), w.ID)
	if !again.Enabled || again.Events[0] != "trip.created" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestListEnabledByUsers(t *testing.T) {
	s := memory.New()

	a := newWebhook("alice")
	b := newWebhook("bob")
	c := newWebhook("carol")
	off := newWebhook("alice")
	off.Enabled = false
	for _, w := range []*webhook.Webhook{a, b, c, off} {
		_ = s.CreateWebhook(ctx(), w)
	}

	got, err := s.ListEnabledByUsers(ctx(), []string{"alice", "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 enabled webhooks, got %d", len(got))
	}
	for _, w := range got {
		if w.UserID == "carol" || !w.Enabled {
			t.Fatalf("unexpected webhook %+v", w)
		}
	}
}

func TestListWebhooksFiltersAndPaginates(t *testing.T) {
	s := memory.New()
	for i := 0; i < 5; i++ {
		w := newWebhook("u1")
		w.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		w.Enabled = i%2 == 0
		_ = s.CreateWebhook(ctx(), w)
	}

	enabled := true
	got, _ := s.ListWebhooks(ctx(), "u1", webhook.ListOpts{Enabled: &enabled})
	if len(got) != 3 {
		t.Fatalf("expected 3 enabled, got %d", len(got))
	}

	page, _ := s.ListWebhooks(ctx(), "u1", webhook.ListOpts{Offset: 1, Limit: 2})
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}

	none, _ := s.ListWebhooks(ctx(), "nobody", webhook.ListOpts{})
	if len(none) != 0 {
		t.Fatalf("expected no webhooks, got %d", len(none))
	}
}

// ──────────────────────────────────────────────────
// Queue
// ──────────────────────────────────────────────────

func newDelivery(whID id.ID) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:    entity.New(),
		ID:        id.NewDeliveryID(),
		WebhookID: whID,
		Event:     "trip.created",
		Payload:   []byte(`{"version":"1"}`),
		Status:    delivery.StatusPending,
	}
}

func seed(t *testing.T, s *memory.Store, n int, at time.Time) (*webhook.Webhook, []*delivery.QueueEntry) {
	t.Helper()
	w := newWebhook("u1")
	if err := s.CreateWebhook(ctx(), w); err != nil {
		t.Fatal(err)
	}

	var ds []*delivery.Delivery
	var es []*delivery.QueueEntry
	for i := 0; i < n; i++ {
		d := newDelivery(w.ID)
		ds = append(ds, d)
		es = append(es, delivery.NewQueueEntry(d, 1, at.Add(time.Duration(i)*time.Millisecond)))
	}
	if err := s.EnqueueBatch(ctx(), ds, es); err != nil {
		t.Fatal(err)
	}
	return w, es
}

func TestDueEntriesOrderAndReadiness(t *testing.T) {
	s := memory.New()
	now := time.Now().UTC()

	_, past := seed(t, s, 3, now.Add(-time.Minute))
	seed(t, s, 2, now.Add(time.Hour))

	jobs, err := s.DueEntries(ctx(), now, 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 due entries, got %d", len(jobs))
	}
	for i, j := range jobs {
		if j.Entry.ID != past[i].ID {
			t.Fatalf("entry %d out of readiness order", i)
		}
		if j.Webhook == nil || j.Delivery == nil {
			t.Fatal("expected joined webhook and delivery")
		}
	}

	limited, _ := s.DueEntries(ctx(), now, 2)
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	queued, _ := s.CountQueued(ctx())
	if queued != 5 {
		t.Fatalf("DueEntries must not remove entries, queued=%d", queued)
	}
}

func TestDueEntriesDanglingJoin(t *testing.T) {
	s := memory.New()
	d := newDelivery(id.NewWebhookID())
	e := delivery.NewQueueEntry(d, 1, time.Now().Add(-time.Second))
	if err := s.EnqueueBatch(ctx(), nil, []*delivery.QueueEntry{e}); err != nil {
		t.Fatal(err)
	}

	jobs, _ := s.DueEntries(ctx(), time.Now(), 10)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Webhook != nil || jobs[0].Delivery != nil {
		t.Fatal("expected nil joins for missing rows")
	}
}

func TestClaimIsIdempotent(t *testing.T) {
	s := memory.New()
	_, es := seed(t, s, 1, time.Now().Add(-time.Second))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Claim(ctx(), es[0].ID)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", wins.Load())
	}

	_, ok, err := s.Claim(ctx(), es[0].ID)
	if err != nil || ok {
		t.Fatalf("claim after win: ok=%v err=%v", ok, err)
	}
}

func TestRequeueNeedsDelivery(t *testing.T) {
	s := memory.New()
	_, es := seed(t, s, 1, time.Now())

	entry, ok, _ := s.Claim(ctx(), es[0].ID)
	if !ok {
		t.Fatal("claim failed")
	}

	follow := &delivery.QueueEntry{
		ID:           id.NewQueueEntryID(),
		WebhookID:    entry.WebhookID,
		DeliveryID:   entry.DeliveryID,
		Attempt:      2,
		DeliverAfter: time.Now().Add(time.Second),
	}
	if err := s.Requeue(ctx(), follow); err != nil {
		t.Fatal(err)
	}

	orphan := delivery.NewQueueEntry(newDelivery(entry.WebhookID), 2, time.Now())
	if err := s.Requeue(ctx(), orphan); !errors.Is(err, ubtrippin.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestRescheduleWritesBoth(t *testing.T) {
	s := memory.New()
	_, es := seed(t, s, 1, time.Now())

	if _, ok, _ := s.Claim(ctx(), es[0].ID); !ok {
		t.Fatal("claim failed")
	}
	d, err := s.GetDelivery(ctx(), es[0].DeliveryID)
	if err != nil {
		t.Fatal(err)
	}

	d.Attempts = 1
	follow := delivery.NewQueueEntry(d, 2, time.Now().Add(time.Second))
	if err := s.Reschedule(ctx(), d, follow); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetDelivery(ctx(), d.ID)
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}
	if n, _ := s.CountQueued(ctx()); n != 1 {
		t.Fatalf("queued = %d, want 1", n)
	}

	orphan := newDelivery(d.WebhookID)
	err = s.Reschedule(ctx(), orphan, delivery.NewQueueEntry(orphan, 2, time.Now()))
	if !errors.Is(err, ubtrippin.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
	if n, _ := s.CountQueued(ctx()); n != 1 {
		t.Fatalf("failed reschedule left an entry: queued = %d", n)
	}
}

func TestDeliveryUpdateAndStats(t *testing.T) {
	s := memory.New()
	w, es := seed(t, s, 3, time.Now())

	d, err := s.GetDelivery(ctx(), es[0].DeliveryID)
	if err != nil {
		t.Fatal(err)
	}
	code := 200
	d.Status = delivery.StatusSuccess
	d.Attempts = 1
	d.LastResponseCode = &code
	if err := s.UpdateDelivery(ctx(), d); err != nil {
		t.Fatal(err)
	}

	counts, _ := s.CountByStatus(ctx())
	if counts[delivery.StatusSuccess] != 1 || counts[delivery.StatusPending] != 2 {
		t.Fatalf("unexpected counts %v", counts)
	}

	success := delivery.StatusSuccess
	list, _ := s.ListByWebhook(ctx(), w.ID, delivery.ListOpts{Status: &success})
	if len(list) != 1 || *list[0].LastResponseCode != 200 {
		t.Fatalf("unexpected filtered history %+v", list)
	}

	missing := newDelivery(w.ID)
	if err := s.UpdateDelivery(ctx(), missing); !errors.Is(err, ubtrippin.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestDeleteWebhookCascades(t *testing.T) {
	s := memory.New()
	w, es := seed(t, s, 2, time.Now())
	other, _ := seed(t, s, 1, time.Now())

	if err := s.DeleteWebhook(ctx(), w.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetDelivery(ctx(), es[0].DeliveryID); !errors.Is(err, ubtrippin.ErrDeliveryNotFound) {
		t.Fatalf("expected delivery removed, got %v", err)
	}
	queued, _ := s.CountQueued(ctx())
	if queued != 1 {
		t.Fatalf("expected only the other webhook's entry left, got %d", queued)
	}
	if list, _ := s.ListByWebhook(ctx(), other.ID, delivery.ListOpts{}); len(list) != 1 {
		t.Fatal("unrelated deliveries must survive")
	}
}

// ──────────────────────────────────────────────────
// Retention
// ──────────────────────────────────────────────────

func TestPurgeDeliveries(t *testing.T) {
	s := memory.New()
	w := newWebhook("u1")
	_ = s.CreateWebhook(ctx(), w)

	old := newDelivery(w.ID)
	old.CreatedAt = time.Now().UTC().Add(-91 * 24 * time.Hour)
	fresh := newDelivery(w.ID)

	entries := []*delivery.QueueEntry{
		delivery.NewQueueEntry(old, 1, time.Now()),
		delivery.NewQueueEntry(fresh, 1, time.Now()),
	}
	if err := s.EnqueueBatch(ctx(), []*delivery.Delivery{old, fresh}, entries); err != nil {
		t.Fatal(err)
	}

	n, err := s.PurgeDeliveries(ctx(), time.Now().UTC().Add(-90*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	if _, err := s.GetDelivery(ctx(), fresh.ID); err != nil {
		t.Fatal("fresh delivery must survive")
	}
	queued, _ := s.CountQueued(ctx())
	if queued != 1 {
		t.Fatalf("expected the old entry to be purged, got %d queued", queued)
	}
}

// ──────────────────────────────────────────────────
// Collaborators
// ──────────────────────────────────────────────────

func TestAcceptedCollaborators(t *testing.T) {
	s := memory.New()
	base := time.Now().UTC()

	rows := []participant.Collaborator{
		{TripID: "trip-1", UserID: "bob", Status: participant.StatusAccepted, CreatedAt: base.Add(2 * time.Second)},
		{TripID: "trip-1", UserID: "alice", Status: participant.StatusAccepted, CreatedAt: base.Add(time.Second)},
		{TripID: "trip-1", UserID: "dave", Status: participant.StatusPending},
		{TripID: "trip-1", UserID: "erin", Status: participant.StatusDeclined},
		{TripID: "trip-2", UserID: "frank", Status: participant.StatusAccepted},
	}
	for i := range rows {
		if err := s.UpsertCollaborator(ctx(), &rows[i]); err != nil {
			t.Fatal(err)
		}
	}

	users, err := s.AcceptedCollaborators(ctx(), "trip-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Fatalf("unexpected collaborators %v", users)
	}

	// Accepting later widens the set.
	_ = s.UpsertCollaborator(ctx(), &participant.Collaborator{TripID: "trip-1", UserID: "dave", Status: participant.StatusAccepted, CreatedAt: base.Add(3 * time.Second)})
	users, _ = s.AcceptedCollaborators(ctx(), "trip-1")
	if len(users) != 3 {
		t.Fatalf("expected 3 collaborators after accept, got %v", users)
	}
}
