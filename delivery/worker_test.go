package delivery_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/event"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/retention"
	"github.com/fistfulayen/ubtrippin-sub001/signature"
	"github.com/fistfulayen/ubtrippin-sub001/store/memory"
	"github.com/fistfulayen/ubtrippin-sub001/vault"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// testClock is a settable clock shared by concurrent attempts.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.NewFromString("worker-test-master-key-0123456789")
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func addWebhook(t *testing.T, s *memory.Store, v *vault.Vault, userID, url string, enabled bool) *webhook.Webhook {
	t.Helper()
	sealed, err := v.Encrypt(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	w := &webhook.Webhook{
		Entity:          entity.New(),
		ID:              id.NewWebhookID(),
		UserID:          userID,
		URL:             url,
		SecretEncrypted: sealed,
		SecretMask:      v.Mask(testSecret),
		Enabled:         enabled,
	}
	if err := s.CreateWebhook(context.Background(), w); err != nil {
		t.Fatal(err)
	}
	return w
}

func enqueue(t *testing.T, s *memory.Store, w *webhook.Webhook, at time.Time) *delivery.Delivery {
	t.Helper()
	delID := id.NewDeliveryID()
	body, err := event.NewEnvelope(event.TripUpdated, w.ID, delID, at, map[string]any{"trip_id": "trip-1"}).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	d := &delivery.Delivery{
		Entity:    entity.Entity{CreatedAt: at, UpdatedAt: at},
		ID:        delID,
		WebhookID: w.ID,
		Event:     event.TripUpdated,
		Payload:   body,
		Status:    delivery.StatusPending,
	}
	entry := delivery.NewQueueEntry(d, 1, at)
	if err := s.EnqueueBatch(context.Background(), []*delivery.Delivery{d}, []*delivery.QueueEntry{entry}); err != nil {
		t.Fatal(err)
	}
	return d
}

func newWorker(s delivery.WorkerStore, v *vault.Vault, clock *testClock, sweeper delivery.Sweeper) *delivery.Worker {
	cfg := delivery.DefaultWorkerConfig()
	cfg.Concurrency = 4
	cfg.RequestTimeout = 2 * time.Second
	cfg.Now = clock.Now
	return delivery.NewWorker(s, v, sweeper, cfg, nil)
}

// queued returns every queue entry regardless of readiness.
func queued(t *testing.T, s *memory.Store) []*delivery.QueueEntry {
	t.Helper()
	jobs, err := s.DueEntries(context.Background(), time.Now().Add(100*365*24*time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]*delivery.QueueEntry, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Entry)
	}
	return out
}

func TestWorkerDeliversSuccessfully(t *testing.T) {
	var hits atomic.Int32
	var gotSig, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotSig = r.Header.Get(signature.HeaderSignature)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", srv.URL, true)
	d := enqueue(t, s, wh, clock.Now())

	res, err := newWorker(s, v, clock, nil).ProcessBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := delivery.BatchResult{Fetched: 1, Processed: 1, Success: 1}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 request, got %d", hits.Load())
	}
	if gotBody != string(d.Payload) {
		t.Fatal("body differs from the stored envelope")
	}
	if !signature.Verify([]byte(gotBody), testSecret, gotSig) {
		t.Fatal("signature does not verify with the webhook secret")
	}

	got, _ := s.GetDelivery(context.Background(), d.ID)
	if got.Status != delivery.StatusSuccess || got.Attempts != 1 {
		t.Fatalf("unexpected delivery state %s attempts=%d", got.Status, got.Attempts)
	}
	if got.LastResponseCode == nil || *got.LastResponseCode != 204 {
		t.Fatalf("unexpected response code %v", got.LastResponseCode)
	}
	if got.LastAttemptAt == nil || !got.LastAttemptAt.Equal(clock.Now()) {
		t.Fatal("last attempt time not recorded")
	}
	if len(queued(t, s)) != 0 {
		t.Fatal("queue should be empty after success")
	}
}

func TestWorkerBackoffScheduleIsExact(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", srv.URL, true)
	d := enqueue(t, s, wh, clock.Now())
	worker := newWorker(s, v, clock, nil)

	steps := []struct {
		nextAttempt int
		delay       time.Duration
	}{
		{2, 1 * time.Second},
		{3, 10 * time.Second},
		{4, 60 * time.Second},
	}

	for _, step := range steps {
		res, err := worker.ProcessBatch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.Requeued != 1 {
			t.Fatalf("attempt %d: expected requeue, got %+v", step.nextAttempt-1, res)
		}

		entries := queued(t, s)
		if len(entries) != 1 {
			t.Fatalf("expected exactly one queue entry, got %d", len(entries))
		}
		e := entries[0]
		if e.Attempt != step.nextAttempt {
			t.Fatalf("expected attempt %d, got %d", step.nextAttempt, e.Attempt)
		}
		if want := clock.Now().Add(step.delay); !e.DeliverAfter.Equal(want) {
			t.Fatalf("attempt %d due at %v, want %v", e.Attempt, e.DeliverAfter, want)
		}

		// Not due yet: nothing happens.
		if early, _ := worker.ProcessBatch(context.Background()); early.Fetched != 0 {
			t.Fatalf("entry fetched before it was due: %+v", early)
		}

		clock.Advance(step.delay)
	}

	res, err := worker.ProcessBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Fatalf("expected terminal failure on attempt 4, got %+v", res)
	}
	if len(queued(t, s)) != 0 {
		t.Fatal("no requeue after the final attempt")
	}
	if hits.Load() != 4 {
		t.Fatalf("expected 4 HTTP attempts, got %d", hits.Load())
	}

	got, _ := s.GetDelivery(context.Background(), d.ID)
	if got.Status != delivery.StatusFailed || got.Attempts != 4 {
		t.Fatalf("unexpected final state %s attempts=%d", got.Status, got.Attempts)
	}
	if got.LastResponseCode == nil || *got.LastResponseCode != 500 {
		t.Fatal("last response code not recorded")
	}
}

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", srv.URL, true)
	d := enqueue(t, s, wh, clock.Now())
	worker := newWorker(s, v, clock, nil)

	for i := 0; i < 3; i++ {
		if _, err := worker.ProcessBatch(context.Background()); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Minute)
	}

	got, _ := s.GetDelivery(context.Background(), d.ID)
	if got.Status != delivery.StatusSuccess || got.Attempts != 3 {
		t.Fatalf("expected success on attempt 3, got %s attempts=%d", got.Status, got.Attempts)
	}
}

func TestWorkerTransportErrorIsRetried(t *testing.T) {
	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", "http://127.0.0.1:1", true) // port 1 should refuse connections
	d := enqueue(t, s, wh, clock.Now())

	res, err := newWorker(s, v, clock, nil).ProcessBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Requeued != 1 {
		t.Fatalf("expected requeue, got %+v", res)
	}

	got, _ := s.GetDelivery(context.Background(), d.ID)
	if got.LastResponseCode != nil {
		t.Fatal("no response code expected for a transport error")
	}
	if got.LastResponseBody == "" {
		t.Fatal("error message should be recorded as the response body")
	}
}

func TestWorkerDecryptFailureCountsAsAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", srv.URL, true)
	wh.SecretEncrypted = "v1.garbage"
	_ = s.UpdateWebhook(context.Background(), wh)
	d := enqueue(t, s, wh, clock.Now())

	res, _ := newWorker(s, v, clock, nil).ProcessBatch(context.Background())
	if res.Requeued != 1 {
		t.Fatalf("expected requeue, got %+v", res)
	}
	if hits.Load() != 0 {
		t.Fatal("nothing may be sent without a secret")
	}

	got, _ := s.GetDelivery(context.Background(), d.ID)
	if got.Attempts != 1 || !strings.Contains(got.LastResponseBody, "decrypt") {
		t.Fatalf("unexpected delivery %+v", got)
	}
}

func TestWorkerDisabledWebhookPauses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", srv.URL, false)
	d := enqueue(t, s, wh, clock.Now())
	worker := newWorker(s, v, clock, nil)

	for i := 0; i < 3; i++ {
		res, err := worker.ProcessBatch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.Requeued != 1 {
			t.Fatalf("cycle %d: expected pause requeue, got %+v", i, res)
		}

		entries := queued(t, s)
		if len(entries) != 1 || entries[0].Attempt != 1 {
			t.Fatalf("pause must keep attempt 1, got %+v", entries)
		}
		if want := clock.Now().Add(30 * time.Second); !entries[0].DeliverAfter.Equal(want) {
			t.Fatalf("paused entry due at %v, want %v", entries[0].DeliverAfter, want)
		}
		clock.Advance(30 * time.Second)
	}

	if hits.Load() != 0 {
		t.Fatal("disabled webhooks must not be called")
	}
	got, _ := s.GetDelivery(context.Background(), d.ID)
	if got.Attempts != 0 || got.Status != delivery.StatusPending {
		t.Fatalf("pause consumed an attempt: %+v", got)
	}

	// Re-enabling resumes with attempt 1.
	if err := s.SetEnabled(context.Background(), wh.ID, true); err != nil {
		t.Fatal(err)
	}
	res, _ := worker.ProcessBatch(context.Background())
	if res.Success != 1 || hits.Load() != 1 {
		t.Fatalf("expected delivery after re-enable, got %+v", res)
	}
	got, _ = s.GetDelivery(context.Background(), d.ID)
	if got.Attempts != 1 {
		t.Fatalf("expected attempt 1 after resume, got %d", got.Attempts)
	}
}

func TestWorkerPausedDeliveryExpires(t *testing.T) {
	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", "https://example.com/hooks", false)
	d := enqueue(t, s, wh, clock.Now().Add(-8*24*time.Hour))

	res, err := newWorker(s, v, clock, nil).ProcessBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Fatalf("expected paused delivery to expire, got %+v", res)
	}
	if len(queued(t, s)) != 0 {
		t.Fatal("expired delivery must not be requeued")
	}

	got, _ := s.GetDelivery(context.Background(), d.ID)
	if got.Status != delivery.StatusFailed || got.Attempts != 0 {
		t.Fatalf("unexpected state %+v", got)
	}
}

func TestWorkerTerminalDeliveryIsClosed(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", srv.URL, true)
	d := enqueue(t, s, wh, clock.Now())

	d.Status = delivery.StatusSuccess
	d.Attempts = 1
	if err := s.UpdateDelivery(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	res, _ := newWorker(s, v, clock, nil).ProcessBatch(context.Background())
	if res.Skipped != 1 {
		t.Fatalf("expected skip, got %+v", res)
	}
	if hits.Load() != 0 {
		t.Fatal("terminal deliveries must not be sent again")
	}
	if len(queued(t, s)) != 0 {
		t.Fatal("no queue entry may be created for a terminal delivery")
	}
}

func TestWorkerSkipsDanglingEntries(t *testing.T) {
	s, v, clock := memory.New(), testVault(t), newTestClock()

	ghost := &delivery.Delivery{ID: id.NewDeliveryID(), WebhookID: id.NewWebhookID()}
	entry := delivery.NewQueueEntry(ghost, 1, clock.Now())
	if err := s.EnqueueBatch(context.Background(), nil, []*delivery.QueueEntry{entry}); err != nil {
		t.Fatal(err)
	}

	res, err := newWorker(s, v, clock, nil).ProcessBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Processed != 1 {
		t.Fatalf("expected one skipped entry, got %+v", res)
	}
	if len(queued(t, s)) != 0 {
		t.Fatal("dangling entry should be claimed away")
	}
}

func TestWorkerTruncatesResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(strings.Repeat("a", 10000)))
	}))
	defer srv.Close()

	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", srv.URL, true)
	d := enqueue(t, s, wh, clock.Now())

	if _, err := newWorker(s, v, clock, nil).ProcessBatch(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetDelivery(context.Background(), d.ID)
	if len(got.LastResponseBody) != 500 {
		t.Fatalf("expected 500 stored characters, got %d", len(got.LastResponseBody))
	}
}

func TestWorkerPerTenantFairness(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, v, clock := memory.New(), testVault(t), newTestClock()
	noisy := addWebhook(t, s, v, "noisy", srv.URL, true)
	quiet := addWebhook(t, s, v, "quiet", srv.URL, true)

	for i := 0; i < 15; i++ {
		enqueue(t, s, noisy, clock.Now().Add(-time.Duration(30-i)*time.Second))
	}
	enqueue(t, s, quiet, clock.Now())
	enqueue(t, s, quiet, clock.Now())

	worker := newWorker(s, v, clock, nil)
	res, err := worker.ProcessBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := delivery.BatchResult{Fetched: 17, Processed: 12, Success: 12}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
	if left := len(queued(t, s)); left != 5 {
		t.Fatalf("expected 5 entries held back, got %d", left)
	}

	res, _ = worker.ProcessBatch(context.Background())
	if res.Success != 5 {
		t.Fatalf("held back entries should go out next cycle, got %+v", res)
	}
}

// racingStore loses every claim, as if another worker got there first.
type racingStore struct {
	*memory.Store
}

func (r racingStore) Claim(context.Context, id.ID) (*delivery.QueueEntry, bool, error) {
	return nil, false, nil
}

func TestWorkerLostClaimIsSkipped(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", srv.URL, true)
	enqueue(t, s, wh, clock.Now())

	res, err := newWorker(racingStore{s}, v, clock, nil).ProcessBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || hits.Load() != 0 {
		t.Fatalf("lost claim must be skipped without sending, got %+v", res)
	}
}

// faultyStore fails selected writes.
type faultyStore struct {
	*memory.Store
	failReschedule bool
	failRequeue    bool
	failUpdate     bool
}

var errStoreDown = errors.New("store down")

func (f faultyStore) Reschedule(ctx context.Context, d *delivery.Delivery, follow *delivery.QueueEntry) error {
	if f.failReschedule {
		return errStoreDown
	}
	return f.Store.Reschedule(ctx, d, follow)
}

func (f faultyStore) Requeue(ctx context.Context, e *delivery.QueueEntry) error {
	if f.failRequeue {
		return errStoreDown
	}
	return f.Store.Requeue(ctx, e)
}

func (f faultyStore) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	if f.failUpdate {
		return errStoreDown
	}
	return f.Store.UpdateDelivery(ctx, d)
}

func failingReceiver(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWorkerRestoresEntryWhenRescheduleFails(t *testing.T) {
	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", failingReceiver(t).URL, true)
	d := enqueue(t, s, wh, clock.Now())

	res, err := newWorker(faultyStore{Store: s, failReschedule: true}, v, clock, nil).ProcessBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 {
		t.Fatalf("expected skip, got %+v", res)
	}

	entries := queued(t, s)
	if len(entries) != 1 || entries[0].DeliveryID != d.ID || entries[0].Attempt != 1 {
		t.Fatalf("claimed entry should be back in the queue, got %+v", entries)
	}
	got, _ := s.GetDelivery(context.Background(), d.ID)
	if got.Status != delivery.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
}

func TestWorkerFinalizesWhenEntryCannotBeRestored(t *testing.T) {
	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", failingReceiver(t).URL, true)
	d := enqueue(t, s, wh, clock.Now())

	store := faultyStore{Store: s, failReschedule: true, failRequeue: true}
	res, err := newWorker(store, v, clock, nil).ProcessBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Fatalf("expected failure, got %+v", res)
	}

	got, _ := s.GetDelivery(context.Background(), d.ID)
	if got.Status != delivery.StatusFailed {
		t.Fatalf("a delivery without a queue entry must be terminal, got %s", got.Status)
	}
	if !strings.Contains(got.LastResponseBody, "store down") {
		t.Fatalf("cause not recorded: %q", got.LastResponseBody)
	}
	if n := len(queued(t, s)); n != 0 {
		t.Fatalf("queued = %d, want 0", n)
	}
}

func TestWorkerPauseFallsBackWhenRequeueFails(t *testing.T) {
	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", "https://example.com/hooks", false)
	d := enqueue(t, s, wh, clock.Now())

	res, _ := newWorker(faultyStore{Store: s, failRequeue: true}, v, clock, nil).ProcessBatch(context.Background())
	if res.Failed != 1 {
		t.Fatalf("expected failure, got %+v", res)
	}
	got, _ := s.GetDelivery(context.Background(), d.ID)
	if got.Status != delivery.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestWorkerKeepsExpiredPauseQueuedWhenUpdateFails(t *testing.T) {
	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", "https://example.com/hooks", false)
	d := enqueue(t, s, wh, clock.Now().Add(-8*24*time.Hour))

	res, _ := newWorker(faultyStore{Store: s, failUpdate: true}, v, clock, nil).ProcessBatch(context.Background())
	if res.Skipped != 1 {
		t.Fatalf("expected skip, got %+v", res)
	}

	entries := queued(t, s)
	if len(entries) != 1 || entries[0].DeliveryID != d.ID {
		t.Fatalf("entry should be restored so expiry runs again, got %+v", entries)
	}
	got, _ := s.GetDelivery(context.Background(), d.ID)
	if got.Status != delivery.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
}

func TestWorkerRestoresEntryWhenUpdateFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", srv.URL, true)
	d := enqueue(t, s, wh, clock.Now())

	res, _ := newWorker(faultyStore{Store: s, failUpdate: true}, v, clock, nil).ProcessBatch(context.Background())
	if res.Skipped != 1 || hits.Load() != 1 {
		t.Fatalf("expected one send and a skip, got %+v hits=%d", res, hits.Load())
	}

	entries := queued(t, s)
	if len(entries) != 1 || entries[0].DeliveryID != d.ID {
		t.Fatalf("entry should be restored for another attempt, got %+v", entries)
	}
}

func TestWorkersRacingDeliverOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		time.Sleep(10 * time.Millisecond)
	}))
	defer srv.Close()

	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", srv.URL, true)
	for i := 0; i < 5; i++ {
		enqueue(t, s, wh, clock.Now())
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := newWorker(s, v, clock, nil).ProcessBatch(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if hits.Load() != 5 {
		t.Fatalf("expected each delivery sent once, got %d requests", hits.Load())
	}
}

func TestWorkerRunsRetentionSweep(t *testing.T) {
	s, v, clock := memory.New(), testVault(t), newTestClock()
	wh := addWebhook(t, s, v, "u1", "https://example.com/hooks", true)
	old := enqueue(t, s, wh, clock.Now().Add(-100*24*time.Hour))
	old.Status = delivery.StatusFailed
	_ = s.UpdateDelivery(context.Background(), old)

	sweeper := retention.NewSweeper(s, retention.WithClock(clock.Now))
	res, err := newWorker(s, v, clock, sweeper).ProcessBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 0 {
		t.Fatalf("swept entries must not be fetched, got %+v", res)
	}
	if _, err := s.GetDelivery(context.Background(), old.ID); err == nil {
		t.Fatal("expected expired delivery to be swept")
	}
}
