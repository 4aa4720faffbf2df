package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fistfulayen/ubtrippin-sub001/id"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

type createWebhookRequest struct {
	UserID      string   `json:"user_id"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Secret      string   `json:"secret,omitempty"`
	Events      []string `json:"events"`
}

type updateWebhookRequest struct {
	URL         *string   `json:"url,omitempty"`
	Description *string   `json:"description,omitempty"`
	Events      *[]string `json:"events,omitempty"`
}

// secretResponse carries a plaintext signing secret. It is only ever
// returned by create and rotate.
type secretResponse struct {
	Webhook *webhook.Webhook `json:"webhook"`
	Secret  string           `json:"secret"`
}

func (h *Handler) webhookID(w http.ResponseWriter, r *http.Request) (id.ID, bool) {
	whID, err := id.ParseWebhookID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return id.Nil, false
	}
	return whID, true
}

func (h *Handler) createWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wh, secret, err := h.hooks.Webhooks().Create(r.Context(), webhook.Input{
		UserID:      req.UserID,
		URL:         req.URL,
		Description: req.Description,
		Secret:      req.Secret,
		Events:      req.Events,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, secretResponse{Webhook: wh, Secret: secret})
}

func (h *Handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	userID := queryParam(r, "user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	opts := webhook.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	switch queryParam(r, "enabled") {
	case "true":
		enabled := true
		opts.Enabled = &enabled
	case "false":
		enabled := false
		opts.Enabled = &enabled
	}

	ws, err := h.hooks.Webhooks().List(r.Context(), userID, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if ws == nil {
		ws = []*webhook.Webhook{}
	}

	writeJSON(w, http.StatusOK, ws)
}

func (h *Handler) getWebhook(w http.ResponseWriter, r *http.Request) {
	whID, ok := h.webhookID(w, r)
	if !ok {
		return
	}

	wh, err := h.hooks.Webhooks().Get(r.Context(), whID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, wh)
}

func (h *Handler) updateWebhook(w http.ResponseWriter, r *http.Request) {
	whID, ok := h.webhookID(w, r)
	if !ok {
		return
	}

	var req updateWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wh, err := h.hooks.Webhooks().Update(r.Context(), whID, webhook.UpdateInput{
		URL:         req.URL,
		Description: req.Description,
		Events:      req.Events,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, wh)
}

func (h *Handler) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	whID, ok := h.webhookID(w, r)
	if !ok {
		return
	}

	if err := h.hooks.Webhooks().Delete(r.Context(), whID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) enableWebhook(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *Handler) disableWebhook(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	whID, ok := h.webhookID(w, r)
	if !ok {
		return
	}

	if err := h.hooks.Webhooks().SetEnabled(r.Context(), whID, enabled); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	wh, err := h.hooks.Webhooks().Get(r.Context(), whID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, wh)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	whID, ok := h.webhookID(w, r)
	if !ok {
		return
	}

	secret, err := h.hooks.Webhooks().RotateSecret(r.Context(), whID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	wh, err := h.hooks.Webhooks().Get(r.Context(), whID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, secretResponse{Webhook: wh, Secret: secret})
}

func (h *Handler) pingWebhook(w http.ResponseWriter, r *http.Request) {
	whID, ok := h.webhookID(w, r)
	if !ok {
		return
	}

	d, err := h.hooks.Ping(r.Context(), whID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, d)
}
