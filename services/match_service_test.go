package services

import (
	"context"
	"testing"

	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startOnCourt queues a ready match on a free court and starts it.
func startOnCourt(t *testing.T, f *fixture, matchID, courtID int) *models.Match {
	t.Helper()
	ctx := context.Background()
	m, err := f.courts.QueueMatch(ctx, testEventID, matchID, utils.Ptr(courtID))
	require.NoError(t, err)
	require.NotNil(t, m.CourtID)
	m, err = f.matches.StartMatch(ctx, testEventID, matchID)
	require.NoError(t, err)
	require.Equal(t, models.MatchInProgress, m.Status)
	require.Len(t, m.Games, 1)
	return m
}

func TestSubmitScore_ConfirmCompletesAndAdvances(t *testing.T) {
	ctx := context.Background()
	semi := readyMatch(201, 1, 2)
	semi.NextMatchID = utils.Ptr(205)
	semi.NextSlot = utils.Ptr(2)
	final := readyMatch(205, 3, 0)
	final.Unit2ID = nil
	final.Status = models.MatchScheduled
	f := newFixture(t, runningEvent(models.SchedulingPolicy{AutoAssign: true}, 1, semi, final))

	m := startOnCourt(t, f, 201, 1)
	gameID := m.Games[0].ID
	assert.Equal(t, models.CourtInUse, f.court(t, 1).Status)

	_, err := f.matches.MarkReady(ctx, testEventID, 205, true)
	require.ErrorIs(t, err, ErrInvalidState, "the final still waits for a winner")

	res, err := f.matches.SubmitScore(ctx, userOf(1), gameID, 11, 7)
	require.NoError(t, err)
	assert.False(t, res.Confirmed)
	assert.Equal(t, models.MatchInProgress, res.Match.Status)
	assert.Equal(t, models.KindScoreSubmitted, f.hub.Last().Kind)

	res, err = f.matches.SubmitScore(ctx, userOf(2), gameID, 11, 7)
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.True(t, res.Completed)
	assert.Equal(t, models.KindMatchCompleted, f.hub.Last().Kind)

	done := res.Match
	assert.Equal(t, models.MatchCompleted, done.Status)
	require.NotNil(t, done.WinnerUnitID)
	assert.Equal(t, 1, *done.WinnerUnitID)
	assert.Nil(t, done.CourtID)
	require.NotNil(t, done.PlayedCourtID)
	assert.Equal(t, 1, *done.PlayedCourtID)
	require.NotNil(t, done.CompletedAt)

	court := f.court(t, 1)
	assert.True(t, court.Free())

	next := f.match(t, 205)
	require.NotNil(t, next.Unit2ID)
	assert.Equal(t, 1, *next.Unit2ID)
	next, err = f.matches.MarkReady(ctx, testEventID, 205, true)
	require.NoError(t, err)
	assert.Equal(t, models.MatchReady, next.Status)

	assert.Len(t, f.notifier.Kind(models.NotifyMatchCompleted), 2)
	requireCourtInvariant(t, f.snapshot(t))
}

func TestSubmitScore_DisputeIsSettledByAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, runningEvent(models.SchedulingPolicy{AutoAssign: true}, 1, readyMatch(201, 1, 2)))
	gameID := startOnCourt(t, f, 201, 1).Games[0].ID

	_, err := f.matches.SubmitScore(ctx, userOf(1), gameID, 11, 7)
	require.NoError(t, err)

	res, err := f.matches.SubmitScore(ctx, userOf(2), gameID, 7, 11)
	require.ErrorIs(t, err, ErrScoreDisputed)
	assert.True(t, IsSoftError(err))
	require.NotNil(t, res)
	assert.True(t, res.Disputed)
	assert.True(t, res.Match.Games[0].IsDisputed)
	assert.Equal(t, models.KindScoreDisputed, f.hub.Last().Kind)
	assert.Len(t, f.notifier.Kind(models.NotifyScoreDisputed), 2)

	res, err = f.matches.SubmitScore(ctx, userOf(1), gameID, 11, 8)
	require.ErrorIs(t, err, ErrScoreDisputed)
	assert.Nil(t, res)

	m, err := f.matches.EditGameScore(ctx, testEventID, gameID, 11, 9)
	require.NoError(t, err)
	assert.Equal(t, models.MatchCompleted, m.Status)
	assert.Equal(t, 1, *m.WinnerUnitID)
	g := m.Games[0]
	assert.False(t, g.IsDisputed)
	assert.True(t, g.Confirmed)
	require.NotNil(t, g.ConfirmedBy)
	assert.Equal(t, models.SideAdmin, *g.ConfirmedBy)
	assert.Equal(t, 11, g.Unit1Score)
	assert.Equal(t, 9, g.Unit2Score)
}

func TestSubmitScore_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, runningEvent(models.SchedulingPolicy{AutoAssign: true}, 1, readyMatch(201, 1, 2)))
	gameID := startOnCourt(t, f, 201, 1).Games[0].ID
	published := f.hub.Len()

	_, err := f.matches.SubmitScore(ctx, userOf(5), gameID, 11, 7)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.matches.SubmitScore(ctx, userOf(1), gameID, 11, 11)
	require.ErrorIs(t, err, ErrValidationFailed)

	_, err = f.matches.SubmitScore(ctx, userOf(1), gameID, -1, 11)
	require.ErrorIs(t, err, ErrValidationFailed)

	_, err = f.matches.SubmitScore(ctx, userOf(1), 99999, 11, 7)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, published, f.hub.Len())
}

func TestSubmitScore_BestOfThreeOpensNextGame(t *testing.T) {
	ctx := context.Background()
	m := readyMatch(201, 1, 2)
	m.BestOf = 3
	f := newFixture(t, runningEvent(models.SchedulingPolicy{AutoAssign: true}, 1, m))
	first := startOnCourt(t, f, 201, 1).Games[0].ID

	for _, user := range []int{userOf(2), userOf(1)} {
		_, err := f.matches.SubmitScore(ctx, user, first, 11, 5)
		require.NoError(t, err)
	}
	m = f.match(t, 201)
	assert.Equal(t, models.MatchInProgress, m.Status)
	require.Len(t, m.Games, 2)
	second := m.Games[1]
	assert.Equal(t, 2, second.GameNumber)
	assert.NotEqual(t, first, second.ID)

	var res *ScoreResult
	for _, user := range []int{userOf(1), userOf(2)} {
		var err error
		res, err = f.matches.SubmitScore(ctx, user, second.ID, 11, 8)
		require.NoError(t, err)
	}
	assert.True(t, res.Completed)
	assert.Len(t, res.Match.Games, 2)
	assert.Equal(t, 1, *res.Match.WinnerUnitID)
}

func TestEditGameScore_CompletedMatchKeepsWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, runningEvent(models.SchedulingPolicy{AutoAssign: true}, 1, readyMatch(201, 1, 2)))
	gameID := startOnCourt(t, f, 201, 1).Games[0].ID
	for _, user := range []int{userOf(1), userOf(2)} {
		_, err := f.matches.SubmitScore(ctx, user, gameID, 11, 7)
		require.NoError(t, err)
	}

	_, err := f.matches.EditGameScore(ctx, testEventID, gameID, 7, 11)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 11, f.match(t, 201).Games[0].Unit1Score)

	m, err := f.matches.EditGameScore(ctx, testEventID, gameID, 11, 9)
	require.NoError(t, err)
	assert.Equal(t, 9, m.Games[0].Unit2Score)
	assert.Equal(t, models.KindGameScoreEdited, f.hub.Last().Kind)
}

func TestMarkReady(t *testing.T) {
	ctx := context.Background()
	scheduled := readyMatch(201, 1, 2)
	scheduled.Status = models.MatchScheduled
	f := newFixture(t, runningEvent(models.SchedulingPolicy{}, 1, scheduled))

	m, err := f.matches.MarkReady(ctx, testEventID, 201, true)
	require.NoError(t, err)
	assert.Equal(t, models.MatchReady, m.Status)

	published := f.hub.Len()
	_, err = f.matches.MarkReady(ctx, testEventID, 201, true)
	require.NoError(t, err)
	assert.Equal(t, published, f.hub.Len())

	m, err = f.matches.MarkReady(ctx, testEventID, 201, false)
	require.NoError(t, err)
	assert.Equal(t, models.MatchScheduled, m.Status)
}

func TestCancelMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, runningEvent(models.SchedulingPolicy{AutoAssign: true}, 1,
		readyMatch(201, 1, 2), readyMatch(202, 3, 4)))

	startOnCourt(t, f, 201, 1)
	m, err := f.courts.QueueMatch(ctx, testEventID, 202, nil)
	require.NoError(t, err)
	assert.Nil(t, m.CourtID)

	m, err = f.matches.CancelMatch(ctx, testEventID, 201)
	require.NoError(t, err)
	assert.Equal(t, models.MatchCancelled, m.Status)
	assert.Nil(t, m.CourtID)

	next := f.match(t, 202)
	require.NotNil(t, next.CourtID, "the freed court goes to the queue")
	assert.Equal(t, 1, *next.CourtID)

	_, err = f.matches.CancelMatch(ctx, testEventID, 201)
	require.ErrorIs(t, err, ErrInvalidState)
	requireCourtInvariant(t, f.snapshot(t))
}
