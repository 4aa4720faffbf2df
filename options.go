package ubtrippin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fistfulayen/ubtrippin-sub001/catalog"
	"github.com/fistfulayen/ubtrippin-sub001/observability"
	"github.com/fistfulayen/ubtrippin-sub001/store"
)

// Option configures a Hooks instance.
type Option func(*Hooks) error

// New creates a new Hooks instance with the given options.
func New(opts ...Option) (*Hooks, error) {
	h := &Hooks{
		config:  DefaultConfig(),
		catalog: catalog.Default(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	if h.store == nil {
		return nil, ErrNoStore
	}
	if h.vault == nil {
		return nil, ErrNoVault
	}
	h.wireServices()
	return h, nil
}

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(h *Hooks) error {
		h.store = s
		return nil
	}
}

// WithVault sets the vault that seals and opens webhook secrets.
func WithVault(v SecretVault) Option {
	return func(h *Hooks) error {
		h.vault = v
		return nil
	}
}

// WithCatalog replaces the default event catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(h *Hooks) error {
		h.catalog = c
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hooks) error {
		h.logger = logger
		return nil
	}
}

// WithBatchSize sets the maximum number of due entries fetched per cycle.
func WithBatchSize(n int) Option {
	return func(h *Hooks) error {
		h.config.BatchSize = n
		return nil
	}
}

// WithPerTenantLimit sets how many entries of one owner a cycle admits.
func WithPerTenantLimit(n int) Option {
	return func(h *Hooks) error {
		h.config.PerTenantLimit = n
		return nil
	}
}

// WithConcurrency sets the number of parallel attempts per cycle.
func WithConcurrency(n int) Option {
	return func(h *Hooks) error {
		h.config.Concurrency = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Hooks) error {
		h.config.RequestTimeout = d
		return nil
	}
}

// WithRetrySchedule sets the delays before attempts 2, 3, ...
func WithRetrySchedule(schedule []time.Duration) Option {
	return func(h *Hooks) error {
		h.config.RetrySchedule = schedule
		return nil
	}
}

// WithMaxAttempts sets the number of attempts before a delivery fails.
func WithMaxAttempts(n int) Option {
	return func(h *Hooks) error {
		h.config.MaxAttempts = n
		return nil
	}
}

// WithDisabledRequeueDelay sets how long deliveries to a disabled webhook wait.
func WithDisabledRequeueDelay(d time.Duration) Option {
	return func(h *Hooks) error {
		h.config.DisabledRequeueDelay = d
		return nil
	}
}

// WithMaxPause bounds how long a delivery may wait on a disabled webhook.
func WithMaxPause(d time.Duration) Option {
	return func(h *Hooks) error {
		h.config.MaxPause = d
		return nil
	}
}

// WithRetention sets how long deliveries are kept.
func WithRetention(d time.Duration) Option {
	return func(h *Hooks) error {
		h.config.Retention = d
		return nil
	}
}

// WithPollInterval sets how often the in-process runner starts a cycle.
func WithPollInterval(d time.Duration) Option {
	return func(h *Hooks) error {
		h.config.PollInterval = d
		return nil
	}
}

// WithPayloadValidation turns catalog schema checks on dispatch on or off.
func WithPayloadValidation(enabled bool) Option {
	return func(h *Hooks) error {
		h.config.ValidatePayloads = enabled
		return nil
	}
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Hooks) error {
		h.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(h *Hooks) error {
		h.tracer = t
		return nil
	}
}

// WithHTTPClient sets the client used for delivery attempts.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Hooks) error {
		h.httpClient = c
		return nil
	}
}
