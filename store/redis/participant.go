package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/fistfulayen/ubtrippin-sub001/participant"
)

func (s *Store) AcceptedCollaborators(ctx context.Context, tripID string) ([]string, error) {
	members, err := s.rdb.HGetAll(ctx, hCollaborators+tripID).Result()
	if err != nil {
		return nil, fmt.Errorf("ubtrippin/redis: accepted collaborators: %w", err)
	}

	users := make([]string, 0, len(members))
	for userID, status := range members {
		if participant.Status(status) == participant.StatusAccepted {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users, nil
}

// UpsertCollaborator records a trip membership.
func (s *Store) UpsertCollaborator(ctx context.Context, c *participant.Collaborator) error {
	if err := s.rdb.HSet(ctx, hCollaborators+c.TripID, c.UserID, string(c.Status)).Err(); err != nil {
		return fmt.Errorf("ubtrippin/redis: upsert collaborator: %w", err)
	}
	return nil
}
