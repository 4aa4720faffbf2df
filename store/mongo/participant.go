package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/fistfulayen/ubtrippin-sub001/participant"
)

// AcceptedCollaborators returns the users who accepted an invitation to a trip.
func (s *Store) AcceptedCollaborators(ctx context.Context, tripID string) ([]string, error) {
	var models []collaboratorModel

	if err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"trip_id": tripID,
			"status":  string(participant.StatusAccepted),
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ubtrippin/mongo: accepted collaborators: %w", err)
	}

	users := make([]string, len(models))
	for i := range models {
		users[i] = models[i].UserID
	}

	return users, nil
}

// UpsertCollaborator records a trip membership.
func (s *Store) UpsertCollaborator(ctx context.Context, c *participant.Collaborator) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}

	_, err := s.mdb.Collection(colCollaborators).UpdateOne(ctx,
		bson.M{"_id": c.TripID + "/" + c.UserID},
		bson.M{
			"$set": bson.M{"status": string(c.Status)},
			"$setOnInsert": bson.M{
				"trip_id":    c.TripID,
				"user_id":    c.UserID,
				"created_at": createdAt,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ubtrippin/mongo: upsert collaborator: %w", err)
	}

	return nil
}
