package api

import "net/http"

// listEventTypes returns the subscribable event types. ?all=true includes
// internal types such as ping.
func (h *Handler) listEventTypes(w http.ResponseWriter, r *http.Request) {
	all := queryParam(r, "all") == "true"
	writeJSON(w, http.StatusOK, h.hooks.Catalog().List(!all))
}
