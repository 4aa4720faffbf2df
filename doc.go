// Package ubtrippin delivers UBTrippin domain events to customer webhooks.
//
// Domain code publishes events; the dispatcher fans each one out to the
// enabled webhooks of the owner and of the trip's accepted collaborators,
// storing one signed-envelope delivery and one queue entry per webhook. A
// stateless batch worker later claims due queue entries, POSTs them with an
// HMAC-SHA256 signature, and retries failures on a short fixed schedule.
//
// Quick start:
//
//	v, err := vault.NewFromString(os.Getenv("UBTRIPPIN_VAULT_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	h, err := ubtrippin.New(
//	    ubtrippin.WithStore(memory.New()),
//	    ubtrippin.WithVault(v),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := h.Dispatch(ctx, event.ItemCreated, "user_123", "trip_456",
//	    map[string]any{"item_id": "itm_789"})
//
//	// From a cron job or a Runner:
//	batch, err := h.ProcessBatch(ctx)
package ubtrippin
