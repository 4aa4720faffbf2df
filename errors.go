package ubtrippin

import "errors"

// Sentinel errors returned by webhook operations.
var (
	// ErrNoStore is returned when Hooks are created without a store.
	ErrNoStore = errors.New("ubtrippin: store is required")

	// ErrNoVault is returned when Hooks are created without a secret vault.
	ErrNoVault = errors.New("ubtrippin: secret vault is required")

	// ErrWebhookNotFound is returned when a webhook cannot be found.
	ErrWebhookNotFound = errors.New("ubtrippin: webhook not found")

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = errors.New("ubtrippin: delivery not found")

	// ErrUnknownEventType is returned when dispatching an event type outside the catalog.
	ErrUnknownEventType = errors.New("ubtrippin: unknown event type")

	// ErrEventNotSubscribable is returned when dispatching an internal event type such as ping.
	ErrEventNotSubscribable = errors.New("ubtrippin: event type cannot be dispatched")

	// ErrOwnerRequired is returned when an event has no owning user.
	ErrOwnerRequired = errors.New("ubtrippin: owner user id is required")

	// ErrPayloadInvalid is returned when event data cannot be encoded or fails schema validation.
	ErrPayloadInvalid = errors.New("ubtrippin: invalid event payload")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("ubtrippin: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("ubtrippin: migration failed")
)
