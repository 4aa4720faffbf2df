package delivery

import "time"

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Succeeded means the receiver answered 2xx.
	Succeeded Decision = iota

	// Retry means another attempt should be queued.
	Retry

	// Fail means the delivery ran out of attempts.
	Fail
)

func (d Decision) String() string {
	switch d {
	case Succeeded:
		return "success"
	case Retry:
		return "retry"
	case Fail:
		return "failed"
	default:
		return "unknown"
	}
}

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Error      string
	Response   string
	LatencyMs  int
}

// OK reports whether the attempt got a 2xx response.
func (r Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Body returns what is recorded as the last response body: the response
// text, or the error message when no response was received.
func (r Result) Body() string {
	if r.StatusCode == 0 && r.Error != "" {
		return Truncate(r.Error)
	}
	return Truncate(r.Response)
}

// DefaultRetrySchedule holds the delays before attempts 2, 3 and 4.
var DefaultRetrySchedule = []time.Duration{
	1 * time.Second,
	10 * time.Second,
	60 * time.Second,
}

// DefaultMaxAttempts is the number of attempts before a delivery fails.
const DefaultMaxAttempts = 4

// Retrier decides what to do after a delivery attempt.
type Retrier struct {
	schedule    []time.Duration
	maxAttempts int
}

// NewRetrier creates a retrier. schedule[i] is the delay before attempt i+2.
func NewRetrier(schedule []time.Duration, maxAttempts int) *Retrier {
	if len(schedule) == 0 {
		schedule = DefaultRetrySchedule
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Retrier{schedule: schedule, maxAttempts: maxAttempts}
}

// MaxAttempts returns the attempt limit.
func (r *Retrier) MaxAttempts() int { return r.maxAttempts }

// Decide classifies an attempt. Every non-2xx outcome, including transport
// errors, is retried until the attempt limit is reached.
func (r *Retrier) Decide(res Result, attempt int) Decision {
	if res.OK() {
		return Succeeded
	}
	if attempt < r.maxAttempts {
		return Retry
	}
	return Fail
}

// Delay returns the wait before the given attempt number. Attempts past the
// end of the schedule reuse its last entry.
func (r *Retrier) Delay(attempt int) time.Duration {
	idx := attempt - 2
	if idx < 0 {
		return 0
	}
	if idx >= len(r.schedule) {
		idx = len(r.schedule) - 1
	}
	return r.schedule[idx]
}

// NextAttemptAt returns when the given attempt number becomes due.
func (r *Retrier) NextAttemptAt(now time.Time, attempt int) time.Time {
	return now.UTC().Add(r.Delay(attempt))
}
