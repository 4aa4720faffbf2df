package ubtrippin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fistfulayen/ubtrippin-sub001/catalog"
	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/observability"
	"github.com/fistfulayen/ubtrippin-sub001/participant"
	"github.com/fistfulayen/ubtrippin-sub001/retention"
	"github.com/fistfulayen/ubtrippin-sub001/store"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// SecretVault seals webhook secrets at rest and opens them for signing.
type SecretVault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	Mask(plaintext string) string
}

// Hooks is the root of the webhook subsystem: the dispatcher, the webhook
// registry and the delivery worker over one store.
type Hooks struct {
	config     Config
	store      store.Store
	vault      SecretVault
	catalog    *catalog.Catalog
	validator  *catalog.Validator
	resolver   *participant.Resolver
	webhookSvc *webhook.Service
	sweeper    *retention.Sweeper
	worker     *delivery.Worker
	runner     *delivery.Runner
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	httpClient *http.Client
	logger     *slog.Logger
}

// wireServices initializes the internal services after options have been applied.
func (h *Hooks) wireServices() {
	h.validator = catalog.NewValidator()

	h.resolver = participant.NewResolver(h.store)

	h.webhookSvc = webhook.NewService(h.store, h.vault, h.catalog, h.logger)

	h.sweeper = retention.NewSweeper(h.store,
		retention.WithHorizon(h.config.Retention),
		retention.WithLogger(h.logger),
	)

	h.worker = delivery.NewWorker(h.store, h.vault, h.sweeper, delivery.WorkerConfig{
		BatchSize:            h.config.BatchSize,
		PerTenantLimit:       h.config.PerTenantLimit,
		Concurrency:          h.config.Concurrency,
		RequestTimeout:       h.config.RequestTimeout,
		RetrySchedule:        h.config.RetrySchedule,
		MaxAttempts:          h.config.MaxAttempts,
		DisabledRequeueDelay: h.config.DisabledRequeueDelay,
		MaxPause:             h.config.MaxPause,
		HTTPClient:           h.httpClient,
		Metrics:              h.metrics,
		Tracer:               h.tracer,
	}, h.logger)

	h.runner = delivery.NewRunner(h.worker, h.config.PollInterval, h.logger)
}

// Start begins polling the queue in-process.
func (h *Hooks) Start(ctx context.Context) {
	h.runner.Start(ctx)
}

// Stop stops the in-process runner and waits for the running cycle until
// ctx is done.
func (h *Hooks) Stop(ctx context.Context) error {
	return h.runner.Stop(ctx)
}

// ProcessBatch runs one worker cycle. It is the entry point for cron-driven
// deployments.
func (h *Hooks) ProcessBatch(ctx context.Context) (delivery.BatchResult, error) {
	return h.worker.ProcessBatch(ctx)
}

// Sweep removes deliveries past the retention horizon.
func (h *Hooks) Sweep(ctx context.Context) (int64, error) {
	n, err := h.sweeper.Sweep(ctx)
	h.metrics.RecordSweep(n)
	return n, err
}

// Stats summarizes the delivery tables.
func (h *Hooks) Stats(ctx context.Context) (delivery.Stats, error) {
	counts, err := h.store.CountByStatus(ctx)
	if err != nil {
		return delivery.Stats{}, fmt.Errorf("ubtrippin: count deliveries: %w", err)
	}
	queued, err := h.store.CountQueued(ctx)
	if err != nil {
		return delivery.Stats{}, fmt.Errorf("ubtrippin: count queue: %w", err)
	}
	return delivery.Stats{
		Pending: counts[delivery.StatusPending],
		Success: counts[delivery.StatusSuccess],
		Failed:  counts[delivery.StatusFailed],
		Queued:  queued,
	}, nil
}

// Deliveries returns the delivery history of a webhook.
func (h *Hooks) Deliveries(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	return h.store.ListByWebhook(ctx, whID, opts)
}

// GetDelivery returns a delivery by ID.
func (h *Hooks) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	return h.store.GetDelivery(ctx, delID)
}

// Webhooks returns the webhook management service.
func (h *Hooks) Webhooks() *webhook.Service {
	return h.webhookSvc
}

// Catalog returns the event catalog.
func (h *Hooks) Catalog() *catalog.Catalog {
	return h.catalog
}

// Worker returns the delivery worker.
func (h *Hooks) Worker() *delivery.Worker {
	return h.worker
}

// Store returns the underlying store.
func (h *Hooks) Store() store.Store {
	return h.store
}

// Config returns the effective configuration.
func (h *Hooks) Config() Config {
	return h.config
}
