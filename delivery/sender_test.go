package delivery_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/event"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/signature"
)

const testSecret = "whsec_test_secret_1234567890abcdef1234567890abcdef"

func newTestRequest(url string) delivery.Request {
	return delivery.Request{
		URL:        url,
		Event:      event.TripCreated,
		DeliveryID: id.NewDeliveryID(),
		Payload:    []byte(`{"version":"1","event":"trip.created","data":{"hello":"world"}}`),
		Secret:     testSecret,
		Timestamp:  time.Unix(1767225600, 0),
	}
}

func TestSenderHappyPath(t *testing.T) {
	var receivedHeaders http.Header
	var receivedBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			t.Error(err)
		}
		receivedBody = string(bodyBytes)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sender := delivery.NewSender(5 * time.Second)
	req := newTestRequest(srv.URL)

	result := sender.Send(context.Background(), req)

	if result.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", result.StatusCode)
	}
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Response != `{"ok":true}` {
		t.Fatalf("unexpected response: %s", result.Response)
	}
	if result.LatencyMs < 0 {
		t.Fatal("latency should be non-negative")
	}

	// Body is the stored envelope, byte for byte.
	if receivedBody != string(req.Payload) {
		t.Fatalf("body: got %q, want %q", receivedBody, req.Payload)
	}

	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Fatal("missing Content-Type")
	}
	if receivedHeaders.Get("User-Agent") != delivery.UserAgent {
		t.Fatal("missing User-Agent")
	}
	if receivedHeaders.Get("X-Ubt-Event") != event.TripCreated {
		t.Fatal("missing x-ubt-event")
	}
	if receivedHeaders.Get("X-Ubt-Delivery") != req.DeliveryID.String() {
		t.Fatal("missing x-ubt-delivery")
	}
	if receivedHeaders.Get("X-Ubt-Timestamp") != "1767225600" {
		t.Fatalf("unexpected x-ubt-timestamp %q", receivedHeaders.Get("X-Ubt-Timestamp"))
	}
}

func TestSenderVerifiesSignature(t *testing.T) {
	var receivedSig string
	var receivedTS string
	var receivedBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedSig = r.Header.Get(signature.HeaderSignature)
		receivedTS = r.Header.Get(signature.HeaderTimestamp)
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := delivery.NewSender(5 * time.Second)
	req := newTestRequest(srv.URL)
	req.Timestamp = time.Time{}

	sender.Send(context.Background(), req)

	if !signature.Verify(receivedBody, testSecret, receivedSig) {
		t.Fatal("signature verification failed")
	}
	if receivedSig != signature.Sign(req.Payload, testSecret) {
		t.Fatal("signature is not the hex HMAC of the body")
	}

	ts, err := strconv.ParseInt(receivedTS, 10, 64)
	if err != nil {
		t.Fatalf("timestamp is not unix seconds: %v", err)
	}
	if time.Since(time.Unix(ts, 0)) > time.Minute {
		t.Fatalf("timestamp %d is not current", ts)
	}
}

func TestSenderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// Very short timeout.
	sender := delivery.NewSender(50 * time.Millisecond)

	result := sender.Send(context.Background(), newTestRequest(srv.URL))

	if result.StatusCode != 0 {
		t.Fatalf("expected status 0 on timeout, got %d", result.StatusCode)
	}
	if result.Error == "" {
		t.Fatal("expected error on timeout")
	}
	if result.LatencyMs <= 0 {
		t.Fatal("expected positive latency")
	}
}

func TestSenderTimeoutWithCustomClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := delivery.NewSenderWithClient(&http.Client{}, 50*time.Millisecond)

	result := sender.Send(context.Background(), newTestRequest(srv.URL))
	if result.StatusCode != 0 || result.Error == "" {
		t.Fatalf("expected timeout error, got %+v", result)
	}
}

func TestSenderConnectionRefused(t *testing.T) {
	sender := delivery.NewSender(5 * time.Second)

	result := sender.Send(context.Background(), newTestRequest("http://127.0.0.1:1")) // port 1 should refuse connections

	if result.StatusCode != 0 {
		t.Fatalf("expected status 0 on connection refused, got %d", result.StatusCode)
	}
	if result.Error == "" {
		t.Fatal("expected error on connection refused")
	}
	if result.Body() != result.Error {
		t.Fatal("exception message should be recorded as the response body")
	}
}

func TestSenderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	sender := delivery.NewSender(5 * time.Second)

	result := sender.Send(context.Background(), newTestRequest(srv.URL))

	if result.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", result.StatusCode)
	}
	if result.Response != "internal error" {
		t.Fatalf("unexpected response: %s", result.Response)
	}
}

func TestSenderTruncatesLongBody(t *testing.T) {
	long := strings.Repeat("x", 10000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(long))
	}))
	defer srv.Close()

	result := delivery.NewSender(5*time.Second).Send(context.Background(), newTestRequest(srv.URL))

	if len(result.Response) != delivery.MaxResponseBody {
		t.Fatalf("expected %d chars, got %d", delivery.MaxResponseBody, len(result.Response))
	}
}

func TestTruncateCountsCharacters(t *testing.T) {
	s := strings.Repeat("é", 600)
	got := delivery.Truncate(s)
	if n := utf8.RuneCountInString(got); n != delivery.MaxResponseBody {
		t.Fatalf("expected %d runes, got %d", delivery.MaxResponseBody, n)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation split a rune")
	}

	short := "ok"
	if delivery.Truncate(short) != short {
		t.Fatal("short strings must be kept as is")
	}
}
