package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/utils"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	s.Seed(&EventData{
		Event: &models.Event{ID: 1, Name: gofakeit.Company(), Status: models.EventStatusRunning},
		Divisions: []*models.Division{
			{ID: 10, EventID: 1, Name: "Open Doubles", Format: models.FormatSingleElimination, ScheduleStatus: models.SchedulePending},
		},
		Courts: []*models.Court{
			{ID: 1, EventID: 1, Label: "Court 1", Status: models.CourtAvailable},
			{ID: 2, EventID: 1, Label: "Court 2", Status: models.CourtAvailable},
		},
		Matches: []*models.Match{
			{ID: 100, EventID: 1, DivisionID: 10, Status: models.MatchInProgress, CourtID: utils.Ptr(1),
				Games: []*models.Game{{ID: 500, MatchID: 100, GameNumber: 1}}},
			{ID: 101, EventID: 1, DivisionID: 10, Status: models.MatchReady},
		},
	})
	return s
}

func TestMemoryStore_Lookups(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	eventID, err := s.EventIDForDivision(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, eventID)

	eventID, err = s.EventIDForGame(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, eventID)

	_, err = s.EventIDForDivision(ctx, 99)
	assert.ErrorIs(t, err, ErrDivisionNotFound)
	_, err = s.LoadEvent(ctx, 99)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	data, err := s.LoadEvent(ctx, 1)
	require.NoError(t, err)
	data.Matches[0].Status = models.MatchCancelled
	data.Event.Name = "changed"

	again, err := s.LoadEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.MatchInProgress, again.Matches[0].Status)
	assert.NotEqual(t, "changed", again.Event.Name)
}

func TestMemoryStore_NextIDsAreUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.NextIDs(ctx, IDKindMatch, 3)
	require.NoError(t, err)
	second, err := s.NextIDs(ctx, IDKindMatch, 2)
	require.NoError(t, err)
	assert.Len(t, first, 3)
	assert.Len(t, second, 2)
	assert.Less(t, first[2], second[0])

	_, err = s.NextIDs(ctx, IDKind("courts"), 1)
	assert.Error(t, err)
}

func TestMemoryStore_CommitRejectsSecondCourtHolder(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	err := s.Commit(ctx, ChangeSet{Matches: []*models.Match{
		{ID: 101, EventID: 1, DivisionID: 10, Status: models.MatchQueued, CourtID: utils.Ptr(1)},
	}})
	require.ErrorIs(t, err, ErrCourtConflict)

	data, err := s.LoadEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.MatchReady, data.Matches[1].Status)

	// Releasing the court in the same change set is fine.
	err = s.Commit(ctx, ChangeSet{Matches: []*models.Match{
		{ID: 100, EventID: 1, DivisionID: 10, Status: models.MatchCompleted, PlayedCourtID: utils.Ptr(1)},
		{ID: 101, EventID: 1, DivisionID: 10, Status: models.MatchQueued, CourtID: utils.Ptr(1)},
	}})
	require.NoError(t, err)
}

func TestMemoryStore_CommitRejectsReusedSequence(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	ev := &models.BroadcastEvent{EventID: 1, SequenceNumber: 1, Kind: models.KindPolicyChanged}
	require.NoError(t, s.Commit(ctx, ChangeSet{Broadcast: ev}))
	require.ErrorIs(t, s.Commit(ctx, ChangeSet{Broadcast: ev}), ErrSequenceConflict)

	// Division scopes count independently of the event scope.
	divEv := &models.BroadcastEvent{EventID: 1, DivisionID: utils.Ptr(10), SequenceNumber: 1, Kind: models.KindDrawingStarted}
	require.NoError(t, s.Commit(ctx, ChangeSet{Broadcast: divEv}))

	events, err := s.ListBroadcasts(ctx, 1, models.EventScope, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.KindPolicyChanged, events[0].Kind)

	events, err = s.ListBroadcasts(ctx, 1, "division:10", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.KindDrawingStarted, events[0].Kind)
}

func TestMemoryStore_FailNextCommit(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	boom := errors.New("disk full")

	s.FailNextCommit(boom)
	err := s.Commit(ctx, ChangeSet{Event: &models.Event{ID: 1, Name: "renamed", Status: models.EventStatusRunning}})
	require.ErrorIs(t, err, boom)

	data, err := s.LoadEvent(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, "renamed", data.Event.Name)

	require.NoError(t, s.Commit(ctx, ChangeSet{Event: &models.Event{ID: 1, Name: "renamed", Status: models.EventStatusRunning}}))
}

func TestMemoryStore_ListBroadcastsPaging(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()
	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, s.Commit(ctx, ChangeSet{Broadcast: &models.BroadcastEvent{EventID: 1, SequenceNumber: seq, Kind: models.KindMatchQueued}}))
	}

	page, err := s.ListBroadcasts(ctx, 1, models.EventScope, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].SequenceNumber)
	assert.Equal(t, uint64(4), page[1].SequenceNumber)
}
