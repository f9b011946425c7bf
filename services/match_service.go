package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/repositories"
)

// ScoreResult reports the outcome of one score submission.
type ScoreResult struct {
	Match     *models.Match `json:"match"`
	GameID    int           `json:"game_id"`
	Confirmed bool          `json:"confirmed"`
	Disputed  bool          `json:"disputed"`
	Completed bool          `json:"completed"`
}

type MatchService interface {
	GetMatch(ctx context.Context, eventID, matchID int) (*models.Match, error)
	MarkReady(ctx context.Context, eventID, matchID int, ready bool) (*models.Match, error)
	StartMatch(ctx context.Context, eventID, matchID int) (*models.Match, error)
	SubmitScore(ctx context.Context, userID, gameID, unit1Score, unit2Score int) (*ScoreResult, error)
	EditGameScore(ctx context.Context, eventID, gameID, unit1Score, unit2Score int) (*models.Match, error)
	CancelMatch(ctx context.Context, eventID, matchID int) (*models.Match, error)
}

type matchService struct {
	rt     *Runtime
	logger *slog.Logger
}

func NewMatchService(rt *Runtime, logger *slog.Logger) MatchService {
	return &matchService{rt: rt, logger: logger}
}

func (s *matchService) GetMatch(ctx context.Context, eventID, matchID int) (*models.Match, error) {
	st, err := s.rt.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.matches[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m.Clone(), nil
}

// MarkReady records the check-in signal for a match. ready=false withdraws it.
func (s *matchService) MarkReady(ctx context.Context, eventID, matchID int, ready bool) (*models.Match, error) {
	const command = "mark_ready"
	st, err := s.rt.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := requireRunning(st); err != nil {
		return nil, s.rt.reject(command, err)
	}
	tx := newEventTxn(st, s.rt.now())
	m, err := tx.editMatch(matchID)
	if err != nil {
		return nil, err
	}

	switch {
	case ready && m.Status == models.MatchReady, !ready && m.Status == models.MatchScheduled:
		return m, nil
	case ready && m.Status == models.MatchScheduled:
		if m.Unit1ID == nil || m.Unit2ID == nil {
			return nil, s.rt.reject(command, invalidState("match %d is still waiting for its units", matchID))
		}
		m.Status = models.MatchReady
	case !ready && m.Status == models.MatchReady:
		m.Status = models.MatchScheduled
	default:
		return nil, s.rt.reject(command, invalidState("match %d is %s", matchID, m.Status))
	}

	if _, err := s.rt.commit(ctx, pending{event: st, tx: tx, kind: models.KindMatchReady}); err != nil {
		return nil, err
	}
	return st.matches[matchID].Clone(), nil
}

// StartMatch moves a queued match onto its court and opens game 1.
func (s *matchService) StartMatch(ctx context.Context, eventID, matchID int) (*models.Match, error) {
	const command = "start_match"
	st, err := s.rt.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := requireRunning(st); err != nil {
		return nil, s.rt.reject(command, err)
	}
	tx := newEventTxn(st, s.rt.now())
	m, err := tx.editMatch(matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MatchQueued {
		return nil, s.rt.reject(command, invalidState("match %d is %s, only queued matches can start", matchID, m.Status))
	}
	if m.CourtID == nil {
		return nil, s.rt.reject(command, fmt.Errorf("%w: match %d", ErrCourtRequired, matchID))
	}
	court, err := tx.editCourt(*m.CourtID)
	if err != nil {
		return nil, err
	}
	if court.Status == models.CourtOffline {
		return nil, s.rt.reject(command, fmt.Errorf("%w: court %d is offline", ErrCourtUnavailable, court.ID))
	}

	now := tx.now
	m.Status = models.MatchInProgress
	m.StartedAt = &now
	court.Status = models.CourtInUse
	if err := s.openGame(ctx, m); err != nil {
		return nil, err
	}

	if _, err := s.rt.commit(ctx, pending{event: st, tx: tx, kind: models.KindMatchStarted}); err != nil {
		return nil, err
	}
	s.logger.Info("match started", slog.Int("event_id", eventID), slog.Int("match_id", matchID), slog.Int("court_id", court.ID))
	return st.matches[matchID].Clone(), nil
}

// SubmitScore records one side's claim for a game. A matching claim from
// the other side confirms the game; a conflicting one disputes it.
func (s *matchService) SubmitScore(ctx context.Context, userID, gameID, unit1Score, unit2Score int) (*ScoreResult, error) {
	const command = "submit_score"
	if err := validateScore(unit1Score, unit2Score); err != nil {
		return nil, s.rt.reject(command, err)
	}
	st, err := s.rt.eventForGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := requireRunning(st); err != nil {
		return nil, s.rt.reject(command, err)
	}
	matchID, ok := st.gameMatch[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	tx := newEventTxn(st, s.rt.now())
	m, err := tx.editMatch(matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MatchInProgress {
		return nil, s.rt.reject(command, invalidState("match %d is %s", matchID, m.Status))
	}
	g := m.Game(gameID)
	if g == nil {
		return nil, ErrGameNotFound
	}
	if g.Confirmed {
		return nil, s.rt.reject(command, invalidState("game %d is already confirmed", gameID))
	}
	if g.IsDisputed {
		return nil, s.rt.reject(command, fmt.Errorf("%w: game %d awaits an admin decision", ErrScoreDisputed, gameID))
	}

	side, err := s.sideOf(st, m, userID)
	if err != nil {
		return nil, s.rt.reject(command, err)
	}
	other := models.SideUnit2
	if side == models.SideUnit2 {
		other = models.SideUnit1
	}

	claim := &models.ScoreSubmission{
		Unit1Score:  unit1Score,
		Unit2Score:  unit2Score,
		SubmittedBy: userID,
		SubmittedAt: tx.now,
	}
	g.SetClaim(side, claim)
	g.Unit1Score, g.Unit2Score = unit1Score, unit2Score

	result := &ScoreResult{GameID: gameID}
	kind := models.KindScoreSubmitted
	counter := g.Claim(other)
	switch {
	case counter == nil:
		by := side
		g.SubmittedBy = &by
	case claim.Matches(counter):
		by := side
		g.ConfirmedBy = &by
		g.Confirmed = true
		result.Confirmed = true
		kind = models.KindGameConfirmed
		completed, err := s.settle(ctx, tx, m)
		if err != nil {
			return nil, err
		}
		if completed {
			result.Completed = true
			kind = models.KindMatchCompleted
		}
	default:
		g.IsDisputed = true
		result.Disputed = true
		kind = models.KindScoreDisputed
		tx.notify(s.rt.unitNotes(st, m, models.NotifyScoreDisputed,
			fmt.Sprintf("The score of game %d is disputed and will be settled by the tournament desk.", g.GameNumber))...)
	}

	gid := gameID
	if _, err := s.rt.commit(ctx, pending{event: st, tx: tx, kind: kind, diff: models.Diff{GameID: &gid}}); err != nil {
		return nil, err
	}
	result.Match = st.matches[matchID].Clone()
	if result.Disputed {
		s.logger.Warn("game score disputed",
			slog.Int("event_id", st.event.ID), slog.Int("match_id", matchID), slog.Int("game_id", gameID))
		return result, fmt.Errorf("%w: game %d", ErrScoreDisputed, gameID)
	}
	return result, nil
}

// EditGameScore is the authoritative admin correction. It confirms the game
// and clears any dispute. On a completed match only the final game may be
// corrected, and only without changing the winner.
func (s *matchService) EditGameScore(ctx context.Context, eventID, gameID, unit1Score, unit2Score int) (*models.Match, error) {
	const command = "edit_game_score"
	if err := validateScore(unit1Score, unit2Score); err != nil {
		return nil, s.rt.reject(command, err)
	}
	st, err := s.rt.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	matchID, ok := st.gameMatch[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	tx := newEventTxn(st, s.rt.now())
	m, err := tx.editMatch(matchID)
	if err != nil {
		return nil, err
	}
	g := m.Game(gameID)
	if g == nil {
		return nil, ErrGameNotFound
	}

	applyAdminScore(g, unit1Score, unit2Score)
	kind := models.KindGameScoreEdited

	switch m.Status {
	case models.MatchInProgress:
		if err := requireRunning(st); err != nil {
			return nil, s.rt.reject(command, err)
		}
		completed, err := s.settle(ctx, tx, m)
		if err != nil {
			return nil, err
		}
		if completed {
			kind = models.KindMatchCompleted
		}
	case models.MatchCompleted:
		if g != m.CurrentGame() {
			return nil, s.rt.reject(command, invalidState("only the final game of a completed match can be corrected"))
		}
		u1, u2 := m.Tally()
		winner := m.Unit2ID
		if u1 > u2 {
			winner = m.Unit1ID
		}
		if winner == nil || m.WinnerUnitID == nil || *winner != *m.WinnerUnitID {
			return nil, s.rt.reject(command, invalidState("correction would change the winner of match %d", matchID))
		}
	default:
		return nil, s.rt.reject(command, invalidState("match %d is %s", matchID, m.Status))
	}

	gid := gameID
	if _, err := s.rt.commit(ctx, pending{event: st, tx: tx, kind: kind, diff: models.Diff{GameID: &gid}}); err != nil {
		return nil, err
	}
	s.logger.Info("game score edited by admin",
		slog.Int("event_id", eventID), slog.Int("match_id", matchID), slog.Int("game_id", gameID))
	return st.matches[matchID].Clone(), nil
}

// CancelMatch withdraws a match that has not completed. It is terminal.
func (s *matchService) CancelMatch(ctx context.Context, eventID, matchID int) (*models.Match, error) {
	const command = "cancel_match"
	st, err := s.rt.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	tx := newEventTxn(st, s.rt.now())
	m, err := tx.editMatch(matchID)
	if err != nil {
		return nil, err
	}
	if m.Status.Terminal() {
		return nil, s.rt.reject(command, invalidState("match %d is already %s", matchID, m.Status))
	}

	released := m.CourtID != nil
	if err := s.rt.releaseCourt(tx, m); err != nil {
		return nil, err
	}
	tx.dequeue(matchID)
	m.Status = models.MatchCancelled
	if released && st.event.Status == models.EventStatusRunning && tx.policy().AutoAssign {
		if err := s.rt.dispatch(tx); err != nil {
			return nil, err
		}
	}

	if _, err := s.rt.commit(ctx, pending{event: st, tx: tx, kind: models.KindMatchCancelled}); err != nil {
		return nil, err
	}
	return st.matches[matchID].Clone(), nil
}

// settle completes the match once a side has won enough confirmed games, or
// opens the next game when the current one is confirmed. It reports whether
// the match completed.
func (s *matchService) settle(ctx context.Context, tx *eventTxn, m *models.Match) (bool, error) {
	u1, u2 := m.Tally()
	need := m.GamesToWin()
	switch {
	case u1 >= need:
		return true, s.complete(tx, m, *m.Unit1ID)
	case u2 >= need:
		return true, s.complete(tx, m, *m.Unit2ID)
	}
	if cur := m.CurrentGame(); cur != nil && cur.Confirmed && !cur.IsDisputed {
		return false, s.openGame(ctx, m)
	}
	return false, nil
}

func (s *matchService) complete(tx *eventTxn, m *models.Match, winnerUnitID int) error {
	now := tx.now
	winner := winnerUnitID
	m.Status = models.MatchCompleted
	m.WinnerUnitID = &winner
	m.CompletedAt = &now
	if m.CourtID != nil {
		played := *m.CourtID
		m.PlayedCourtID = &played
	}
	if err := s.rt.releaseCourt(tx, m); err != nil {
		return err
	}

	if m.NextMatchID != nil && m.NextSlot != nil {
		next, err := tx.editMatch(*m.NextMatchID)
		if err != nil {
			return fmt.Errorf("failed to advance winner of match %d: %w", m.ID, err)
		}
		if *m.NextSlot == 1 {
			next.Unit1ID = &winner
		} else {
			next.Unit2ID = &winner
		}
	}

	tx.notify(s.rt.unitNotes(tx.st, m, models.NotifyMatchCompleted, "Your match is complete. Thanks for playing!")...)
	if tx.policy().AutoAssign {
		return s.rt.dispatch(tx)
	}
	return nil
}

func (s *matchService) openGame(ctx context.Context, m *models.Match) error {
	if len(m.Games) >= max(m.BestOf, 1) {
		return nil
	}
	ids, err := s.rt.store.NextIDs(ctx, repositories.IDKindGame, 1)
	if err != nil {
		return fmt.Errorf("failed to allocate game id: %w", err)
	}
	m.Games = append(m.Games, &models.Game{
		ID:         ids[0],
		MatchID:    m.ID,
		GameNumber: len(m.Games) + 1,
	})
	return nil
}

// sideOf derives which unit the caller plays for.
func (s *matchService) sideOf(st *eventState, m *models.Match, userID int) (models.Side, error) {
	if m.Unit1ID != nil {
		if u, ok := st.units[*m.Unit1ID]; ok && u.HasMember(userID) {
			return models.SideUnit1, nil
		}
	}
	if m.Unit2ID != nil {
		if u, ok := st.units[*m.Unit2ID]; ok && u.HasMember(userID) {
			return models.SideUnit2, nil
		}
	}
	return "", fmt.Errorf("%w: user %d does not play in match %d", ErrUnauthorized, userID, m.ID)
}

func applyAdminScore(g *models.Game, unit1Score, unit2Score int) {
	admin := models.SideAdmin
	g.Unit1Score, g.Unit2Score = unit1Score, unit2Score
	g.Confirmed = true
	g.ConfirmedBy = &admin
	g.IsDisputed = false
}

func validateScore(unit1Score, unit2Score int) error {
	if unit1Score < 0 || unit2Score < 0 {
		return validationError("scores must not be negative")
	}
	if unit1Score == unit2Score {
		return validationError("a game cannot end tied")
	}
	return nil
}

// IsSoftError reports errors that may accompany a result. The command took
// effect only when a result is returned with it.
func IsSoftError(err error) bool {
	return errors.Is(err, ErrScoreDisputed)
}
