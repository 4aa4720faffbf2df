package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/id"
)

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	whID, ok := h.webhookID(w, r)
	if !ok {
		return
	}

	// 404 for unknown webhooks rather than an empty history.
	if _, err := h.hooks.Webhooks().Get(r.Context(), whID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	opts := delivery.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}

	switch st := delivery.Status(queryParam(r, "status")); st {
	case "":
	case delivery.StatusPending, delivery.StatusSuccess, delivery.StatusFailed:
		opts.Status = &st
	default:
		writeError(w, http.StatusBadRequest, "status must be pending, success or failed")
		return
	}

	ds, err := h.hooks.Deliveries(r.Context(), whID, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if ds == nil {
		ds = []*delivery.Delivery{}
	}

	writeJSON(w, http.StatusOK, ds)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	delID, err := id.ParseDeliveryID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery ID")
		return
	}

	d, err := h.hooks.GetDelivery(r.Context(), delID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// processBatch runs one worker cycle. It is the HTTP counterpart of the
// process-batch command for schedulers that can only call URLs.
func (h *Handler) processBatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.hooks.ProcessBatch(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
