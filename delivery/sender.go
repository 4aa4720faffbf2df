package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/signature"
)

// UserAgent is sent with every delivery.
const UserAgent = "UBTrippin-Webhooks/1.0"

// Enough bytes to hold MaxResponseBody characters of any UTF-8 text.
const maxResponseRead = MaxResponseBody * utf8.UTFMax

// Request is one signed POST to a webhook.
type Request struct {
	URL        string
	Event      string
	DeliveryID id.ID
	Payload    []byte
	Secret     string
	Timestamp  time.Time
}

// Sender performs HTTP webhook delivery.
type Sender struct {
	client  *http.Client
	timeout time.Duration
}

// NewSender creates a sender with the given per-attempt timeout.
func NewSender(timeout time.Duration) *Sender {
	return NewSenderWithClient(&http.Client{Timeout: timeout}, timeout)
}

// NewSenderWithClient creates a sender on a caller-supplied client. The
// timeout is applied to every attempt through the request context.
func NewSenderWithClient(client *http.Client, timeout time.Duration) *Sender {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Sender{client: client, timeout: timeout}
}

// Send posts the payload and returns the result. Transport failures are
// reported in Result.Error with a zero StatusCode.
func (s *Sender) Send(ctx context.Context, r Request) Result {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(r.Payload))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(signature.HeaderSignature, signature.Sign(r.Payload, r.Secret))
	req.Header.Set(signature.HeaderEvent, r.Event)
	req.Header.Set(signature.HeaderDelivery, r.DeliveryID.String())
	req.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G704: URL is a user-configured webhook destination validated at registration.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseRead))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			Response:   Truncate(string(respBody)),
			LatencyMs:  int(latency),
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Response:   Truncate(string(respBody)),
		LatencyMs:  int(latency),
	}
}

// Truncate cuts s to MaxResponseBody characters.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxResponseBody {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxResponseBody {
			return s[:i]
		}
		n++
	}
	return s
}
