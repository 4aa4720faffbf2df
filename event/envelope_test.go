package event_test

import (
	"testing"
	"time"

	"github.com/fistfulayen/ubtrippin-sub001/event"
	"github.com/fistfulayen/ubtrippin-sub001/id"
)

func TestEnvelopeWireFormat(t *testing.T) {
	whID := id.MustParse("wh_01h455vb4pex5vsknk084sn02q")
	delID := id.MustParse("del_01h455vb4pex5vsknk084sn02r")
	at := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

	env := event.NewEnvelope(event.TripUpdated, whID, delID, at, map[string]any{"trip_id": "t<1>"})

	body, err := env.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	want := `{"version":"1","event":"trip.updated","webhook_id":"wh_01h455vb4pex5vsknk084sn02q",` +
		`"delivery_id":"del_01h455vb4pex5vsknk084sn02r","timestamp":"2025-03-14T09:26:53.589Z","data":{"trip_id":"t<1>"}}`
	if string(body) != want {
		t.Fatalf("body =\n%s\nwant\n%s", body, want)
	}
}

func TestEnvelopeNilDataIsObject(t *testing.T) {
	env := event.NewEnvelope(event.Ping, id.NewWebhookID(), id.NewDeliveryID(), time.Now(), nil)

	body, err := env.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if got := string(body); got[len(got)-10:] != `"data":{}}` {
		t.Fatalf("expected empty data object, got %s", got)
	}
}
