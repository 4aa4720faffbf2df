// Package store defines the composite Store interface for all webhook
// persistence.
//
// Each subsystem defines its own store interface, and the aggregate Store
// composes them all. Backends live in the sub-packages.
package store

import (
	"context"

	"github.com/fistfulayen/ubtrippin-sub001/delivery"
	"github.com/fistfulayen/ubtrippin-sub001/participant"
	"github.com/fistfulayen/ubtrippin-sub001/retention"
	"github.com/fistfulayen/ubtrippin-sub001/webhook"
)

// Store is the aggregate persistence interface.
type Store interface {
	webhook.Store
	delivery.Store
	participant.Store
	retention.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
