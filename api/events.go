package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fistfulayen/ubtrippin-sub001/event"
)

type publishEventRequest struct {
	Type        string          `json:"type"`
	OwnerUserID string          `json:"owner_user_id"`
	TripID      string          `json:"trip_id,omitempty"`
	Data        json.RawMessage `json:"data"`
	OccurredAt  time.Time       `json:"occurred_at,omitzero"`
}

func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	if req.OwnerUserID == "" {
		writeError(w, http.StatusBadRequest, "owner_user_id is required")
		return
	}

	evt := &event.Event{
		Type:        req.Type,
		OwnerUserID: req.OwnerUserID,
		TripID:      req.TripID,
		OccurredAt:  req.OccurredAt,
	}
	if len(req.Data) > 0 {
		evt.Data = req.Data
	}

	res, err := h.hooks.Publish(r.Context(), evt)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, res)
}
