package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/utils"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotPlusEventsEqualsFreshSnapshot(t *testing.T) {
	ctx := context.Background()
	data := eventData(models.EventStatusRunning, models.SchedulingPolicy{AutoAssign: true}, 8, 2)
	data.Matches = append(data.Matches, readyMatch(201, 1, 2), readyMatch(202, 3, 4), readyMatch(203, 5, 6))
	f := newFixture(t, data, withDrawOptions(WithPicker(firstRemaining)))

	start := f.snapshot(t)
	require.Equal(t, uint64(0), start.Sequences[models.EventScope])

	gameID := startOnCourt(t, f, 201, 2).Games[0].ID
	_, err := f.courts.QueueMatch(ctx, testEventID, 202, nil)
	require.NoError(t, err)
	_, err = f.courts.QueueMatch(ctx, testEventID, 203, nil)
	require.NoError(t, err)
	for _, user := range []int{userOf(1), userOf(2)} {
		_, err = f.matches.SubmitScore(ctx, user, gameID, 11, 3)
		require.NoError(t, err)
	}
	_, err = f.courts.SetCourtStatus(ctx, testEventID, 1, models.CourtOffline)
	require.NoError(t, err)
	_, err = f.events.SetPolicy(ctx, testEventID, models.SchedulingPolicy{AutoAssign: true, MinRestInterval: 5 * time.Minute})
	require.NoError(t, err)
	_, err = f.draws.StartDrawing(ctx, testDivisionID)
	require.NoError(t, err)
	_, err = f.draws.DrawNext(ctx, testDivisionID, 1)
	require.NoError(t, err)

	eventSeq := uint64(0)
	for _, ev := range f.hub.Events() {
		if ev.DivisionID == nil {
			eventSeq++
			assert.Equal(t, eventSeq, ev.SequenceNumber, "event scope must be gapless")
		}
		require.True(t, start.Apply(ev), "no gap expected at %s %d", ev.Scope(), ev.SequenceNumber)
	}

	fresh := f.snapshot(t)
	if diff := cmp.Diff(fresh, start); diff != "" {
		t.Fatalf("replayed snapshot differs (-fresh +replayed):\n%s", diff)
	}
	requireCourtInvariant(t, fresh)
}

func TestDivisionSnapshotPlusEventsEqualsFreshSnapshot(t *testing.T) {
	ctx := context.Background()
	const otherDivisionID = 20
	data := eventData(models.EventStatusRunning, models.SchedulingPolicy{AutoAssign: true}, 4, 2)
	data.Divisions = append(data.Divisions, &models.Division{
		ID: otherDivisionID, EventID: testEventID, Name: "Men's Singles 4.0", TeamSize: 1,
		Format: models.FormatSingleElimination, BestOf: 1, ScheduleStatus: models.ScheduleUnitsAssigned,
	})
	for id := 11; id <= 12; id++ {
		data.Units = append(data.Units, &models.Unit{ID: id, DivisionID: otherDivisionID, DisplayName: gofakeit.Name(), MemberUserIDs: []int{userOf(id)}})
	}
	other := readyMatch(301, 11, 12)
	other.DivisionID = otherDivisionID
	data.Matches = append(data.Matches, other)
	f := newFixture(t, data, withDrawOptions(WithPicker(firstRemaining)))

	viewers := map[int]*models.Snapshot{}
	for _, id := range []int{testDivisionID, otherDivisionID} {
		snap, err := f.events.GetSnapshot(ctx, testEventID, utils.Ptr(id))
		require.NoError(t, err)
		viewers[id] = snap
	}
	require.Len(t, viewers[otherDivisionID].Matches, 1)
	require.Empty(t, viewers[testDivisionID].Matches)

	_, err := f.draws.StartDrawing(ctx, testDivisionID)
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		_, err = f.draws.DrawNext(ctx, testDivisionID, i)
		require.NoError(t, err)
	}
	_, err = f.draws.CompleteDrawing(ctx, testDivisionID)
	require.NoError(t, err)
	_, err = f.courts.QueueMatch(ctx, testEventID, 301, nil)
	require.NoError(t, err)
	_, err = f.matches.StartMatch(ctx, testEventID, 301)
	require.NoError(t, err)

	for id, snap := range viewers {
		for _, ev := range f.hub.Events() {
			if ev.DivisionID != nil && *ev.DivisionID != id {
				continue
			}
			require.True(t, snap.Apply(ev), "no gap expected at %s %d", ev.Scope(), ev.SequenceNumber)
		}
		fresh, err := f.events.GetSnapshot(ctx, testEventID, utils.Ptr(id))
		require.NoError(t, err)
		if diff := cmp.Diff(fresh, snap); diff != "" {
			t.Fatalf("division %d replay differs (-fresh +replayed):\n%s", id, diff)
		}
		for _, m := range snap.Matches {
			assert.Equal(t, id, m.DivisionID)
		}
	}
	assert.Len(t, viewers[testDivisionID].Matches, 3)
	require.Len(t, viewers[otherDivisionID].Matches, 1)
	assert.Equal(t, models.MatchInProgress, viewers[otherDivisionID].Matches[0].Status)
	assert.Len(t, f.snapshot(t).Matches, 4)
}

func TestSnapshotApply_DetectsGap(t *testing.T) {
	f := newFixture(t, eventData(models.EventStatusRunning, models.SchedulingPolicy{}, 2, 1))
	snap := f.snapshot(t)

	assert.True(t, snap.Apply(models.BroadcastEvent{EventID: testEventID, SequenceNumber: 1, Kind: models.KindPolicyChanged}))
	assert.True(t, snap.Apply(models.BroadcastEvent{EventID: testEventID, SequenceNumber: 1, Kind: models.KindPolicyChanged}), "duplicates are ignored")
	assert.False(t, snap.Apply(models.BroadcastEvent{EventID: testEventID, SequenceNumber: 3, Kind: models.KindPolicyChanged}))
}

func TestPersistFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	data := eventData(models.EventStatusRunning, models.SchedulingPolicy{AutoAssign: true}, 4, 1)
	data.Matches = append(data.Matches, readyMatch(201, 1, 2))
	f := newFixture(t, data)
	before := f.snapshot(t)

	f.store.FailNextCommit(errors.New("connection reset"))
	_, err := f.courts.QueueMatch(ctx, testEventID, 201, nil)
	require.Error(t, err)
	assert.Zero(t, f.hub.Len())
	assert.Empty(t, f.notifier.Kind(models.NotifyCourtAssigned))

	after := f.snapshot(t)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("state changed after a failed commit:\n%s", diff)
	}

	_, err = f.courts.QueueMatch(ctx, testEventID, 201, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.hub.Last().SequenceNumber)
}

func TestGetSnapshot_DivisionFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, eventData(models.EventStatusRegistrationClosed, models.DefaultSchedulingPolicy(), 3, 2))

	snap, err := f.events.GetSnapshot(ctx, testEventID, utils.Ptr(testDivisionID))
	require.NoError(t, err)
	require.Len(t, snap.Divisions, 1)
	assert.Len(t, snap.Divisions[0].Units, 3)
	assert.Len(t, snap.Courts, 2)
	assert.Contains(t, snap.Sequences, models.EventScope)
	assert.Contains(t, snap.Sequences, models.ScopeKey(utils.Ptr(testDivisionID)))

	_, err = f.events.GetSnapshot(ctx, testEventID, utils.Ptr(404))
	require.ErrorIs(t, err, ErrDivisionNotFound)

	_, err = f.events.GetSnapshot(ctx, 404, nil)
	require.ErrorIs(t, err, ErrEventNotFound)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubscribe_PropagatesRegisterError(t *testing.T) {
	f := newFixture(t, eventData(models.EventStatusRunning, models.SchedulingPolicy{}, 2, 1))
	boom := errors.New("outbox closed")
	err := f.events.Subscribe(context.Background(), testEventID, nil, func(*models.Snapshot) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, eventData(models.EventStatusRegistrationClosed, models.SchedulingPolicy{}, 2, 1))

	_, err := f.events.SetStatus(ctx, testEventID, models.EventStatusDraft)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.events.SetStatus(ctx, testEventID, "paused")
	require.ErrorIs(t, err, ErrValidationFailed)

	ev, err := f.events.SetStatus(ctx, testEventID, models.EventStatusRunning)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusRunning, ev.Status)
	assert.Equal(t, models.KindEventStatusChanged, f.hub.Last().Kind)

	published := f.hub.Len()
	_, err = f.events.SetStatus(ctx, testEventID, models.EventStatusRunning)
	require.NoError(t, err)
	assert.Equal(t, published, f.hub.Len())
}

func TestSetPolicy_DispatchesWhenAutoAssignTurnsOn(t *testing.T) {
	ctx := context.Background()
	data := eventData(models.EventStatusRunning, models.SchedulingPolicy{}, 4, 1)
	data.Matches = append(data.Matches, readyMatch(201, 1, 2))
	f := newFixture(t, data)

	m, err := f.courts.QueueMatch(ctx, testEventID, 201, nil)
	require.NoError(t, err)
	assert.Nil(t, m.CourtID)

	_, err = f.events.SetPolicy(ctx, testEventID, models.SchedulingPolicy{MinRestInterval: -time.Second})
	require.ErrorIs(t, err, ErrValidationFailed)

	ev, err := f.events.SetPolicy(ctx, testEventID, models.SchedulingPolicy{AutoAssign: true})
	require.NoError(t, err)
	assert.True(t, ev.Policy.AutoAssign)
	assert.Empty(t, ev.Queue)
	assert.NotNil(t, f.match(t, 201).CourtID)
}

func TestListBroadcasts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, eventData(models.EventStatusRegistrationClosed, models.DefaultSchedulingPolicy(), 3, 1))

	_, err := f.draws.StartDrawing(ctx, testDivisionID)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err = f.draws.DrawNext(ctx, testDivisionID, i)
		require.NoError(t, err)
	}
	_, err = f.events.SetStatus(ctx, testEventID, models.EventStatusRunning)
	require.NoError(t, err)

	div, err := f.events.ListBroadcasts(ctx, testEventID, utils.Ptr(testDivisionID), 1, 0)
	require.NoError(t, err)
	require.Len(t, div, 3)
	for _, ev := range div {
		assert.Equal(t, models.KindUnitDrawn, ev.Kind)
	}

	event, err := f.events.ListBroadcasts(ctx, testEventID, nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, event, 1)
	assert.Equal(t, models.KindEventStatusChanged, event[0].Kind)
}
