package ubtrippin

import (
	"time"

	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/fairness"
	"github.com/fistfulayen/ubtrippin-sub001/retention"
)

// Config holds the configuration for a Hooks instance.
type Config struct {
	// BatchSize is the maximum number of due queue entries fetched per cycle.
	BatchSize int

	// PerTenantLimit caps how many entries of one webhook owner a cycle admits.
	PerTenantLimit int

	// Concurrency bounds parallel HTTP attempts within a cycle.
	Concurrency int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// RetrySchedule holds the delays before attempts 2, 3, ...
	RetrySchedule []time.Duration

	// MaxAttempts is the number of attempts before a delivery fails.
	MaxAttempts int

	// DisabledRequeueDelay is how long deliveries to a disabled webhook wait
	// before they are looked at again. Attempts are not consumed.
	DisabledRequeueDelay time.Duration

	// MaxPause bounds how long a delivery may wait on a disabled webhook.
	// Zero means no bound other than retention.
	MaxPause time.Duration

	// Retention is how long deliveries are kept.
	Retention time.Duration

	// PollInterval is how often the in-process runner starts a cycle.
	PollInterval time.Duration

	// ValidatePayloads checks event data against the catalog schema on dispatch.
	ValidatePayloads bool
}

// DefaultConfig returns a Config with the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:            delivery.DefaultBatchSize,
		PerTenantLimit:       fairness.DefaultPerTenantLimit,
		Concurrency:          delivery.DefaultConcurrency,
		RequestTimeout:       delivery.DefaultRequestTimeout,
		RetrySchedule:        delivery.DefaultRetrySchedule,
		MaxAttempts:          delivery.DefaultMaxAttempts,
		DisabledRequeueDelay: delivery.DefaultDisabledRequeueDelay,
		MaxPause:             delivery.DefaultMaxPause,
		Retention:            retention.DefaultHorizon,
		PollInterval:         delivery.DefaultPollInterval,
		ValidatePayloads:     true,
	}
}
