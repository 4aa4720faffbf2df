package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fistfulayen/ubtrippin-sub001/fairness"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/observability"
)

// Outcome is what happened to one admitted queue entry.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeRequeued Outcome = "requeued"
	OutcomeSkipped  Outcome = "skipped"
)

// BatchResult summarizes one worker cycle. Processed counts the entries
// admitted by the fairness cap.
type BatchResult struct {
	Fetched   int `json:"fetched"`
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Requeued  int `json:"requeued"`
	Skipped   int `json:"skipped"`
}

// Add counts one outcome.
func (r *BatchResult) Add(o Outcome) {
	switch o {
	case OutcomeSuccess:
		r.Success++
	case OutcomeFailed:
		r.Failed++
	case OutcomeRequeued:
		r.Requeued++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// WorkerStore is the part of the store the worker needs.
type WorkerStore interface {
	DueEntries(ctx context.Context, now time.Time, limit int) ([]*Job, error)
	Claim(ctx context.Context, entryID id.ID) (*QueueEntry, bool, error)
	Requeue(ctx context.Context, entry *QueueEntry) error
	Reschedule(ctx context.Context, d *Delivery, follow *QueueEntry) error
	UpdateDelivery(ctx context.Context, d *Delivery) error
}

// SecretOpener decrypts webhook signing secrets.
type SecretOpener interface {
	Decrypt(ciphertext string) (string, error)
}

// Sweeper is run opportunistically at the start of every cycle.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	// BatchSize is the maximum number of due entries fetched per cycle.
	BatchSize int

	// PerTenantLimit caps admitted entries per webhook owner per cycle.
	PerTenantLimit int

	// Concurrency bounds parallel attempts within a cycle.
	Concurrency int

	// RequestTimeout is the HTTP timeout per attempt.
	RequestTimeout time.Duration

	// RetrySchedule holds the delays before attempts 2, 3, ...
	RetrySchedule []time.Duration

	// MaxAttempts is the attempt limit per delivery.
	MaxAttempts int

	// DisabledRequeueDelay is how long a delivery to a disabled webhook waits
	// before it is looked at again.
	DisabledRequeueDelay time.Duration

	// MaxPause bounds how long a delivery may wait on a disabled webhook,
	// measured from its creation. Zero means no bound.
	MaxPause time.Duration

	// HTTPClient overrides the client used for attempts.
	HTTPClient *http.Client

	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Worker defaults.
const (
	DefaultBatchSize            = 500
	DefaultConcurrency          = 50
	DefaultRequestTimeout       = 10 * time.Second
	DefaultDisabledRequeueDelay = 30 * time.Second
	DefaultMaxPause             = 7 * 24 * time.Hour
)

// DefaultWorkerConfig returns the production worker settings.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:            DefaultBatchSize,
		PerTenantLimit:       fairness.DefaultPerTenantLimit,
		Concurrency:          DefaultConcurrency,
		RequestTimeout:       DefaultRequestTimeout,
		RetrySchedule:        DefaultRetrySchedule,
		MaxAttempts:          DefaultMaxAttempts,
		DisabledRequeueDelay: DefaultDisabledRequeueDelay,
		MaxPause:             DefaultMaxPause,
	}
}

// Worker claims due queue entries and attempts them. It keeps no state
// between cycles; any number of workers may run ProcessBatch at once.
type Worker struct {
	store   WorkerStore
	secrets SecretOpener
	sweeper Sweeper
	sender  *Sender
	retrier *Retrier
	config  WorkerConfig
	logger  *slog.Logger
}

// NewWorker creates a delivery worker. sweeper may be nil.
func NewWorker(store WorkerStore, secrets SecretOpener, sweeper Sweeper, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWorkerConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.DisabledRequeueDelay <= 0 {
		cfg.DisabledRequeueDelay = def.DisabledRequeueDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	sender := NewSender(cfg.RequestTimeout)
	if cfg.HTTPClient != nil {
		sender = NewSenderWithClient(cfg.HTTPClient, cfg.RequestTimeout)
	}

	return &Worker{
		store:   store,
		secrets: secrets,
		sweeper: sweeper,
		sender:  sender,
		retrier: NewRetrier(cfg.RetrySchedule, cfg.MaxAttempts),
		config:  cfg,
		logger:  logger,
	}
}

func (w *Worker) now() time.Time { return w.config.Now().UTC() }

// ProcessBatch runs one cycle: sweep, fetch due entries, admit per tenant,
// and attempt the admitted entries concurrently. An error is returned only
// when the due entries could not be fetched.
func (w *Worker) ProcessBatch(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	var span trace.Span
	if w.config.Tracer != nil {
		ctx, span = w.config.Tracer.StartBatchSpan(ctx)
		defer func() { w.config.Tracer.EndBatchSpan(span, res.Fetched, res.Processed) }()
	}

	if w.sweeper != nil {
		n, err := w.sweeper.Sweep(ctx)
		if err != nil {
			w.logger.WarnContext(ctx, "retention sweep failed", "error", err)
		}
		w.config.Metrics.RecordSweep(n)
	}

	jobs, err := w.store.DueEntries(ctx, w.now(), w.config.BatchSize)
	if err != nil {
		return res, fmt.Errorf("delivery: fetch due entries: %w", err)
	}
	res.Fetched = len(jobs)
	w.config.Metrics.RecordBatch(len(jobs))

	admitted := fairness.Select(jobs, w.config.PerTenantLimit, (*Job).TenantKey)
	res.Processed = len(admitted)

	outcomes := make([]Outcome, len(admitted))

	var g errgroup.Group
	g.SetLimit(w.config.Concurrency)
	for i, job := range admitted {
		g.Go(func() error {
			outcomes[i] = w.deliverOne(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		res.Add(o)
	}

	if res.Fetched > 0 {
		w.logger.InfoContext(ctx, "batch processed",
			"fetched", res.Fetched,
			"processed", res.Processed,
			"success", res.Success,
			"failed", res.Failed,
			"requeued", res.Requeued,
			"skipped", res.Skipped,
		)
	}

	return res, nil
}

// deliverOne claims one entry and carries it to its next state.
func (w *Worker) deliverOne(ctx context.Context, job *Job) Outcome {
	entry, ok, err := w.store.Claim(ctx, job.Entry.ID)
	if err != nil {
		w.logger.ErrorContext(ctx, "claim failed", "queue_id", job.Entry.ID, "error", err)
		w.config.Metrics.RecordDelivery(string(OutcomeSkipped), -1)
		return OutcomeSkipped
	}
	if !ok {
		w.config.Metrics.RecordClaimLost()
		w.config.Metrics.RecordDelivery(string(OutcomeSkipped), -1)
		return OutcomeSkipped
	}

	wh, d := job.Webhook, job.Delivery
	if wh == nil || d == nil {
		w.logger.WarnContext(ctx, "dangling queue entry dropped",
			"queue_id", entry.ID,
			"webhook_id", entry.WebhookID,
			"delivery_id", entry.DeliveryID,
			"webhook_found", wh != nil,
			"delivery_found", d != nil,
		)
		w.config.Metrics.RecordDelivery(string(OutcomeSkipped), -1)
		return OutcomeSkipped
	}

	if d.Terminal() {
		w.logger.DebugContext(ctx, "delivery already terminal",
			"delivery_id", d.ID, "status", d.Status)
		w.config.Metrics.RecordDelivery(string(OutcomeSkipped), -1)
		return OutcomeSkipped
	}

	now := w.now()

	if !wh.Enabled {
		return w.pause(ctx, entry, d, now)
	}

	var span trace.Span
	if w.config.Tracer != nil {
		ctx, span = w.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), wh.ID.String(), entry.Attempt)
	}

	var result Result
	secret, err := w.secrets.Decrypt(wh.SecretEncrypted)
	if err != nil {
		result = Result{Error: "decrypt webhook secret: " + err.Error()}
	} else {
		result = w.sender.Send(ctx, Request{
			URL:        wh.URL,
			Event:      d.Event,
			DeliveryID: d.ID,
			Payload:    d.Payload,
			Secret:     secret,
			Timestamp:  now,
		})
	}

	if entry.Attempt > d.Attempts {
		d.Attempts = entry.Attempt
	}
	d.LastAttemptAt = &now
	d.LastResponseCode = nil
	if result.StatusCode > 0 {
		code := result.StatusCode
		d.LastResponseCode = &code
	}
	d.LastResponseBody = result.Body()

	var outcome Outcome
	switch w.retrier.Decide(result, entry.Attempt) {
	case Succeeded:
		d.Status = StatusSuccess
		outcome = OutcomeSuccess
		w.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "webhook_id", wh.ID, "attempt", entry.Attempt,
			"status", result.StatusCode, "latency_ms", result.LatencyMs)

	case Retry:
		d.Status = StatusPending
		outcome = OutcomeRequeued
	case Fail:
		d.Status = StatusFailed
		outcome = OutcomeFailed
		w.logger.WarnContext(ctx, "delivery failed permanently",
			"delivery_id", d.ID, "webhook_id", wh.ID, "user_id", wh.UserID,
			"attempt", entry.Attempt, "status", result.StatusCode, "error", result.Error)
	}

	d.Touch()
	if outcome == OutcomeRequeued {
		next := entry.Attempt + 1
		follow := NewQueueEntry(d, next, w.retrier.NextAttemptAt(now, next))
		if err := w.store.Reschedule(ctx, d, follow); err != nil {
			w.logger.ErrorContext(ctx, "reschedule failed",
				"delivery_id", d.ID, "attempt", next, "error", err)
			outcome = w.restore(ctx, entry, d, err)
		} else {
			w.logger.DebugContext(ctx, "retry scheduled",
				"delivery_id", d.ID, "attempt", next, "deliver_after", follow.DeliverAfter,
				"status", result.StatusCode, "error", result.Error)
		}
	} else if err := w.store.UpdateDelivery(ctx, d); err != nil {
		w.logger.ErrorContext(ctx, "update delivery failed",
			"delivery_id", d.ID, "error", err)
		if err := w.store.Requeue(ctx, entry); err != nil {
			w.logger.ErrorContext(ctx, "delivery left without queue entry",
				"delivery_id", d.ID, "queue_id", entry.ID, "error", err)
		}
		outcome = OutcomeSkipped
	}

	w.config.Metrics.RecordDelivery(string(outcome), float64(result.LatencyMs)/1000.0)
	if span != nil {
		w.config.Tracer.EndDeliverySpan(span, string(outcome), result.StatusCode, result.LatencyMs, result.Error)
	}

	return outcome
}

// pause handles an entry whose webhook is disabled: the same attempt is
// queued again later, until the delivery has waited longer than MaxPause.
func (w *Worker) pause(ctx context.Context, entry *QueueEntry, d *Delivery, now time.Time) Outcome {
	if w.config.MaxPause > 0 && d.Age(now) > w.config.MaxPause {
		d.Status = StatusFailed
		d.LastResponseBody = "webhook disabled"
		d.Touch()
		if err := w.store.UpdateDelivery(ctx, d); err != nil {
			w.logger.ErrorContext(ctx, "update delivery failed",
				"delivery_id", d.ID, "error", err)
			if err := w.store.Requeue(ctx, entry); err != nil {
				w.logger.ErrorContext(ctx, "delivery left without queue entry",
					"delivery_id", d.ID, "queue_id", entry.ID, "error", err)
			}
			w.config.Metrics.RecordDelivery(string(OutcomeSkipped), -1)
			return OutcomeSkipped
		}
		w.logger.WarnContext(ctx, "paused delivery expired",
			"delivery_id", d.ID, "webhook_id", d.WebhookID, "age", d.Age(now))
		w.config.Metrics.RecordDelivery(string(OutcomeFailed), -1)
		return OutcomeFailed
	}

	follow := NewQueueEntry(d, entry.Attempt, now.Add(w.config.DisabledRequeueDelay))
	if err := w.store.Requeue(ctx, follow); err != nil {
		w.logger.ErrorContext(ctx, "requeue failed",
			"delivery_id", d.ID, "attempt", entry.Attempt, "error", err)
		outcome := w.restore(ctx, entry, d, err)
		w.config.Metrics.RecordDelivery(string(outcome), -1)
		return outcome
	}

	w.logger.DebugContext(ctx, "webhook disabled, delivery paused",
		"delivery_id", d.ID, "webhook_id", d.WebhookID, "deliver_after", follow.DeliverAfter)
	w.config.Metrics.RecordDelivery(string(OutcomeRequeued), -1)
	return OutcomeRequeued
}

// restore runs after a claimed entry could not be followed up. The claimed
// entry is put back so the same attempt runs again. When that also fails the
// delivery is finalized, since a pending delivery without a queue entry is
// never picked up again.
func (w *Worker) restore(ctx context.Context, entry *QueueEntry, d *Delivery, cause error) Outcome {
	if err := w.store.Requeue(ctx, entry); err == nil {
		w.logger.WarnContext(ctx, "claimed entry restored",
			"queue_id", entry.ID, "delivery_id", d.ID, "attempt", entry.Attempt)
		return OutcomeSkipped
	}

	d.Status = StatusFailed
	d.LastResponseBody = Truncate("requeue failed: " + cause.Error())
	d.Touch()
	if err := w.store.UpdateDelivery(ctx, d); err != nil {
		w.logger.ErrorContext(ctx, "delivery left without queue entry",
			"delivery_id", d.ID, "queue_id", entry.ID, "error", err)
		return OutcomeSkipped
	}
	return OutcomeFailed
}
