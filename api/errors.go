package api

import (
	"errors"
	"net/http"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// writeServiceError maps domain errors to HTTP statuses. Anything unknown is
// logged and reported as a 500 without its message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *webhook.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ubtrippin.ErrWebhookNotFound):
		writeError(w, http.StatusNotFound, "webhook not found")
	case errors.Is(err, ubtrippin.ErrDeliveryNotFound):
		writeError(w, http.StatusNotFound, "delivery not found")
	case errors.Is(err, ubtrippin.ErrUnknownEventType),
		errors.Is(err, ubtrippin.ErrEventNotSubscribable),
		errors.Is(err, ubtrippin.ErrOwnerRequired),
		errors.Is(err, ubtrippin.ErrPayloadInvalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "api error",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
