// Package api provides the admin HTTP API for UBTrippin webhook management.
//
// The handler is a chi router. Callers mount it wherever they like; the CLI
// serves it at the root.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
)

// Handler is the root HTTP handler for the admin API.
type Handler struct {
	hooks  *ubtrippin.Hooks
	logger *slog.Logger
	router chi.Router
}

// NewHandler creates a new admin API handler.
func NewHandler(hooks *ubtrippin.Hooks, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		hooks:  hooks,
		logger: logger,
		router: chi.NewRouter(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	r := h.router
	r.Use(middleware.RequestID)
	r.Use(h.logging)
	r.Use(h.panicRecovery)

	// Webhooks
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/", h.createWebhook)
		r.Get("/", h.listWebhooks)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getWebhook)
			r.Patch("/", h.updateWebhook)
			r.Delete("/", h.deleteWebhook)
			r.Post("/enable", h.enableWebhook)
			r.Post("/disable", h.disableWebhook)
			r.Post("/rotate-secret", h.rotateSecret)
			r.Post("/ping", h.pingWebhook)
			r.Get("/deliveries", h.listDeliveries)
		})
	})

	// Deliveries
	r.Get("/deliveries/{id}", h.getDelivery)
	r.Post("/deliveries/process", h.processBatch)

	// Events
	r.Post("/events", h.publishEvent)
	r.Get("/event-types", h.listEventTypes)

	// Stats
	r.Get("/stats", h.getStats)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.InfoContext(r.Context(), "api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.ErrorContext(r.Context(), "panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	var n int
	for _, c := range v {
		if c < '0' || c > '9' {
			return defaultVal
		}
		n = n*10 + int(c-'0')
	}
	return n
}
