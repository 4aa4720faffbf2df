// Package participant resolves who takes part in a trip, so that events on
// shared trips reach every accepted collaborator's webhooks.
package participant

import (
	"context"
	"fmt"
	"time"
)

// Status is the state of a trip invitation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Collaborator links a user to a trip they were invited to. Rows are owned
// by the trip application and only read here.
type Collaborator struct {
	TripID    string    `json:"trip_id"`
	UserID    string    `json:"user_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Store reads trip collaborators.
type Store interface {
	// AcceptedCollaborators returns the user IDs of accepted collaborators of a trip.
	AcceptedCollaborators(ctx context.Context, tripID string) ([]string, error)
}

// Resolver builds participant sets.
type Resolver struct {
	store Store
}

// NewResolver returns a resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Participants returns the owner followed by the accepted collaborators of
// tripID, without duplicates. An empty tripID yields only the owner.
func (r *Resolver) Participants(ctx context.Context, ownerUserID, tripID string) ([]string, error) {
	users := []string{ownerUserID}
	if tripID == "" || r.store == nil {
		return users, nil
	}

	collaborators, err := r.store.AcceptedCollaborators(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("participant: collaborators of trip %s: %w", tripID, err)
	}

	seen := map[string]struct{}{ownerUserID: {}}
	for _, u := range collaborators {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		users = append(users, u)
	}

	return users, nil
}
