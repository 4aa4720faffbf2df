package participant_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fistfulayen/ubtrippin-sub001/participant"
)

type stubStore struct {
	byTrip map[string][]string
	err    error
	calls  int
}

func (s *stubStore) AcceptedCollaborators(_ context.Context, tripID string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.byTrip[tripID], nil
}

func TestParticipantsOwnerOnly(t *testing.T) {
	store := &stubStore{}
	r := participant.NewResolver(store)

	users, err := r.Participants(context.Background(), "owner", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner"}, users)
	assert.Zero(t, store.calls, "no trip means no collaborator lookup")
}

func TestParticipantsWidensAndDedupes(t *testing.T) {
	store := &stubStore{byTrip: map[string][]string{
		"trip-1": {"alice", "owner", "bob", "alice", ""},
	}}
	r := participant.NewResolver(store)

	users, err := r.Participants(context.Background(), "owner", "trip-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner", "alice", "bob"}, users)
}

func TestParticipantsLookupFailure(t *testing.T) {
	boom := errors.New("db down")
	r := participant.NewResolver(&stubStore{err: boom})

	_, err := r.Participants(context.Background(), "owner", "trip-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
