package ubtrippin

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/event"
	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/internal/entity"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// DispatchResult acknowledges that an event was fanned out and queued.
type DispatchResult struct {
	WebhookCount  int `json:"webhook_count"`
	DeliveryCount int `json:"delivery_count"`
}

// Dispatch fans an event out to the webhooks of its owner and, when tripID is
// set, of the trip's accepted collaborators.
func (h *Hooks) Dispatch(ctx context.Context, eventType, ownerUserID, tripID string, data any) (DispatchResult, error) {
	return h.Publish(ctx, &event.Event{
		Type:        eventType,
		OwnerUserID: ownerUserID,
		TripID:      tripID,
		Data:        data,
	})
}

// Publish validates an event, then fans it out to matching webhooks.
// It returns once the deliveries are queued; HTTP delivery happens later in
// the worker.
//
// The critical path:
//  1. Look up the event type in the catalog (reject unknown and internal types).
//  2. Redact the payload and validate it against the catalog schema.
//  3. Resolve participants: the owner plus accepted trip collaborators.
//  4. Load the participants' enabled webhooks and keep the subscribed ones.
//  5. Build one signed-envelope delivery and one queue entry per webhook.
//  6. Insert them together.
//
// Any failure aborts the dispatch with zero counts. Nothing is retried here.
func (h *Hooks) Publish(ctx context.Context, evt *event.Event) (res DispatchResult, err error) {
	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.StartDispatchSpan(ctx, evt.Type, evt.OwnerUserID)
		defer func() { h.tracer.EndDispatchSpan(span, res.WebhookCount, res.DeliveryCount, err) }()
	}

	res, err = h.publish(ctx, evt)
	if err != nil {
		h.logger.ErrorContext(ctx, "dispatch failed",
			"event", evt.Type,
			"user_id", evt.OwnerUserID,
			"trip_id", evt.TripID,
			"error", err,
		)
		return DispatchResult{}, err
	}
	return res, nil
}

func (h *Hooks) publish(ctx context.Context, evt *event.Event) (DispatchResult, error) {
	// 1. Validate event type.
	def, ok := h.catalog.Lookup(evt.Type)
	if !ok {
		return DispatchResult{}, fmt.Errorf("%w: %s", ErrUnknownEventType, evt.Type)
	}
	if !def.Subscribable {
		return DispatchResult{}, fmt.Errorf("%w: %s", ErrEventNotSubscribable, evt.Type)
	}
	if evt.OwnerUserID == "" {
		return DispatchResult{}, ErrOwnerRequired
	}

	// 2. Redact, then validate what will actually be sent.
	data, err := event.RedactPayload(evt.Data)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("%w: %s", ErrPayloadInvalid, err.Error())
	}
	if h.config.ValidatePayloads {
		if validateErr := h.validator.ValidateEvent(def, data); validateErr != nil {
			return DispatchResult{}, fmt.Errorf("%w: %s", ErrPayloadInvalid, validateErr.Error())
		}
	}

	// 3. Participants.
	users, err := h.resolver.Participants(ctx, evt.OwnerUserID, evt.TripID)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("ubtrippin: resolve participants: %w", err)
	}

	// 4. Subscribed webhooks.
	candidates, err := h.store.ListEnabledByUsers(ctx, users)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("ubtrippin: list webhooks: %w", err)
	}

	matched := make([]*webhook.Webhook, 0, len(candidates))
	for _, w := range candidates {
		if w.Enabled && w.Subscribes(evt.Type) {
			matched = append(matched, w)
		}
	}

	if len(matched) == 0 {
		h.metrics.RecordDispatch(evt.Type, 0)
		return DispatchResult{}, nil
	}

	// 5. Fan out.
	now := time.Now().UTC()
	at := evt.OccurredAt
	if at.IsZero() {
		at = now
	}

	ds, entries, err := buildDeliveries(evt.Type, matched, data, at, now)
	if err != nil {
		return DispatchResult{}, err
	}

	// 6. Persist.
	if err := h.store.EnqueueBatch(ctx, ds, entries); err != nil {
		return DispatchResult{}, fmt.Errorf("ubtrippin: enqueue deliveries: %w", err)
	}

	h.metrics.RecordDispatch(evt.Type, len(ds))

	h.logger.DebugContext(ctx, "event dispatched",
		"event", evt.Type,
		"user_id", evt.OwnerUserID,
		"participants", len(users),
		"webhooks", len(matched),
	)

	return DispatchResult{WebhookCount: len(matched), DeliveryCount: len(ds)}, nil
}

// Ping queues a connectivity test for one webhook, regardless of its
// subscriptions. It goes through the worker like any other delivery.
func (h *Hooks) Ping(ctx context.Context, whID id.ID) (*delivery.Delivery, error) {
	w, err := h.store.GetWebhook(ctx, whID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	data := map[string]any{
		"message":    "UBTrippin webhook connectivity test",
		"webhook_id": w.ID.String(),
	}

	ds, entries, err := buildDeliveries(event.Ping, []*webhook.Webhook{w}, data, now, now)
	if err != nil {
		return nil, err
	}

	if err := h.store.EnqueueBatch(ctx, ds, entries); err != nil {
		return nil, fmt.Errorf("ubtrippin: enqueue ping: %w", err)
	}

	h.logger.InfoContext(ctx, "ping queued", "webhook_id", w.ID, "delivery_id", ds[0].ID)

	return ds[0], nil
}

// buildDeliveries serializes one envelope per webhook and pairs each
// delivery with its first queue entry, due immediately.
func buildDeliveries(eventType string, ws []*webhook.Webhook, data any, at, now time.Time) ([]*delivery.Delivery, []*delivery.QueueEntry, error) {
	ds := make([]*delivery.Delivery, 0, len(ws))
	entries := make([]*delivery.QueueEntry, 0, len(ws))

	for _, w := range ws {
		delID := id.NewDeliveryID()

		body, err := event.NewEnvelope(eventType, w.ID, delID, at, data).Marshal()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrPayloadInvalid, err.Error())
		}

		d := &delivery.Delivery{
			Entity:    entity.New(),
			ID:        delID,
			WebhookID: w.ID,
			Event:     eventType,
			Payload:   body,
			Status:    delivery.StatusPending,
		}
		ds = append(ds, d)
		entries = append(entries, delivery.NewQueueEntry(d, 1, now))
	}

	return ds, entries, nil
}
