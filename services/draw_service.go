package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/utils"
)

const drawArchiveTimeout = 30 * time.Second

// DrawArchiver stores a completed draw and returns its public location.
type DrawArchiver interface {
	ArchiveDraw(ctx context.Context, rec *models.DrawRecord) (string, error)
}

// DrawResult is the outcome of one draw step.
type DrawResult struct {
	UnitID    int  `json:"unit_id"`
	Position  int  `json:"position"`
	Replayed  bool `json:"replayed"`
	Remaining int  `json:"remaining"`
}

type DrawService interface {
	StartDrawing(ctx context.Context, divisionID int) (*models.Division, error)
	DrawNext(ctx context.Context, divisionID int, expectedPosition int) (*DrawResult, error)
	CompleteDrawing(ctx context.Context, divisionID int) (*models.Division, error)
	CancelDrawing(ctx context.Context, divisionID int) (*models.Division, error)
}

type DrawOption func(*drawService)

// WithPicker replaces the uniform generator used by DrawNext. pick(n) must
// return a value in [0, n).
func WithPicker(pick func(n int) int) DrawOption {
	return func(s *drawService) { s.pick = pick }
}

type drawService struct {
	rt       *Runtime
	archiver DrawArchiver
	pick     func(n int) int
	logger   *slog.Logger
}

// NewDrawService wires the draw state machine. archiver may be nil, in which
// case completed draws are not archived.
func NewDrawService(rt *Runtime, archiver DrawArchiver, logger *slog.Logger, opts ...DrawOption) DrawService {
	s := &drawService{
		rt:       rt,
		archiver: archiver,
		pick:     rand.IntN,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *drawService) StartDrawing(ctx context.Context, divisionID int) (*models.Division, error) {
	const command = "start_drawing"
	st, ds, err := s.rt.divisionState(ctx, divisionID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !st.event.Status.AllowsDraw() {
		return nil, s.rt.reject(command, invalidState("event %d is %s, draws are not open", st.id, st.event.Status))
	}
	div := ds.division
	switch {
	case div.ScheduleStatus == models.ScheduleUnitsAssigned || len(div.Positions) > 0:
		return nil, s.rt.reject(command, fmt.Errorf("%w: %w", ErrInvalidState, ErrAlreadyDrawn))
	case div.ScheduleStatus != models.SchedulePending:
		return nil, s.rt.reject(command, invalidState("division %d is %s", divisionID, div.ScheduleStatus))
	case len(ds.unitIDs) < 2:
		return nil, s.rt.reject(command, invalidState("division %d has %d units, at least 2 are needed", divisionID, len(ds.unitIDs)))
	}

	next := div.Clone()
	next.ScheduleStatus = models.ScheduleDrawing
	next.Session = models.NewDrawSession(ds.unitIDs, s.rt.now())

	if _, err := s.rt.commit(ctx, pending{event: st, division: ds, div: next, kind: models.KindDrawingStarted}); err != nil {
		return nil, err
	}
	s.logger.Info("drawing started", slog.Int("division_id", divisionID), slog.Int("units", len(ds.unitIDs)))
	return ds.division.Clone(), nil
}

// DrawNext reveals the unit for expectedPosition. A position that is already
// drawn returns the recorded draw and emits nothing, so concurrent or retried
// requests for the same position draw exactly one unit.
func (s *drawService) DrawNext(ctx context.Context, divisionID int, expectedPosition int) (*DrawResult, error) {
	const command = "draw_next"
	if expectedPosition < 1 {
		return nil, s.rt.reject(command, validationError("position must be at least 1"))
	}
	st, ds, err := s.rt.divisionState(ctx, divisionID)
	if err != nil {
		return nil, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if status := st.status(); !status.AllowsDraw() {
		return nil, s.rt.reject(command, invalidState("event %d is %s, draws are not open", st.id, status))
	}
	div := ds.division
	if div.ScheduleStatus != models.ScheduleDrawing || div.Session == nil {
		return nil, s.rt.reject(command, invalidState("division %d has no drawing in progress", divisionID))
	}
	session := div.Session
	drawn := len(session.DrawOrder)

	switch {
	case expectedPosition <= drawn:
		return &DrawResult{
			UnitID:    session.DrawOrder[expectedPosition-1],
			Position:  expectedPosition,
			Replayed:  true,
			Remaining: len(session.Remaining),
		}, nil
	case expectedPosition > drawn+1 && len(session.Remaining) > 0:
		return nil, s.rt.reject(command, invalidState("position %d requested but the next position is %d", expectedPosition, drawn+1))
	}
	if len(session.Remaining) == 0 {
		return nil, s.rt.reject(command, fmt.Errorf("%w: division %d", ErrDrawExhausted, divisionID))
	}

	next := div.Clone()
	unitID, position := next.Session.Take(s.pick(len(next.Session.Remaining)))

	diff := models.Diff{UnitID: utils.Ptr(unitID), Position: utils.Ptr(position)}
	if _, err := s.rt.commit(ctx, pending{event: st, division: ds, div: next, kind: models.KindUnitDrawn, diff: diff}); err != nil {
		return nil, err
	}
	s.logger.Info("unit drawn",
		slog.Int("division_id", divisionID), slog.Int("unit_id", unitID), slog.Int("position", position))
	return &DrawResult{
		UnitID:    unitID,
		Position:  position,
		Remaining: len(next.Session.Remaining),
	}, nil
}

// CompleteDrawing fixes the drawn order as bracket positions and creates the
// division's matches. Completing an already assigned division is a no-op.
func (s *drawService) CompleteDrawing(ctx context.Context, divisionID int) (*models.Division, error) {
	const command = "complete_drawing"
	st, ds, err := s.rt.divisionState(ctx, divisionID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	ds.mu.Lock()
	defer ds.mu.Unlock()

	div := ds.division
	if div.ScheduleStatus == models.ScheduleUnitsAssigned {
		return div.Clone(), nil
	}
	if !st.event.Status.AllowsDraw() {
		return nil, s.rt.reject(command, invalidState("event %d is %s, draws are not open", st.id, st.event.Status))
	}
	if div.ScheduleStatus != models.ScheduleDrawing || div.Session == nil {
		return nil, s.rt.reject(command, invalidState("division %d has no drawing in progress", divisionID))
	}
	if n := len(div.Session.Remaining); n > 0 {
		return nil, s.rt.reject(command, invalidState("%d units of division %d are still to be drawn", n, divisionID))
	}

	session := div.Session
	next := div.Clone()
	next.Positions = slices.Clone(session.DrawOrder)
	next.ScheduleStatus = models.ScheduleUnitsAssigned
	next.Session = nil

	matches, err := s.rt.buildMatches(ctx, next, next.Positions)
	if err != nil {
		return nil, fmt.Errorf("failed to build matches for division %d: %w", divisionID, err)
	}
	now := s.rt.now()
	tx := newEventTxn(st, now)
	for _, m := range matches {
		tx.addMatch(m)
	}

	note := s.rt.eventNote(st, models.NotifyDrawingComplete, fmt.Sprintf("The draw for %s is complete.", div.Name))
	if _, err := s.rt.commit(ctx, pending{
		event:    st,
		division: ds,
		tx:       tx,
		div:      next,
		kind:     models.KindDrawingCompleted,
		notes:    []models.Notification{note},
	}); err != nil {
		return nil, err
	}
	s.logger.Info("drawing completed", slog.Int("division_id", divisionID), slog.Int("matches", len(matches)))

	if s.archiver != nil {
		rec := &models.DrawRecord{
			EventID:     st.id,
			DivisionID:  divisionID,
			Division:    div.Name,
			DrawOrder:   slices.Clone(next.Positions),
			StartedAt:   session.StartedAt,
			CompletedAt: now,
		}
		for _, id := range ds.unitIDs {
			u := *st.units[id]
			rec.Units = append(rec.Units, &u)
		}
		s.rt.goBackground(func() { s.archive(st, ds, rec) })
	}
	return ds.division.Clone(), nil
}

// archive uploads the draw record and stores its location on the division.
// Failures are logged; the draw itself is already final.
func (s *drawService) archive(st *eventState, ds *divisionState, rec *models.DrawRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), drawArchiveTimeout)
	defer cancel()

	url, err := s.archiver.ArchiveDraw(ctx, rec)
	if err != nil {
		s.logger.Error("failed to archive draw",
			slog.Int("division_id", rec.DivisionID), slog.Any("error", err))
		return
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	next := ds.division.Clone()
	next.DrawArchiveURL = &url
	if _, err := s.rt.commit(ctx, pending{event: st, division: ds, div: next, kind: models.KindDrawArchived}); err != nil {
		return
	}
	s.logger.Info("draw archived", slog.Int("division_id", rec.DivisionID), slog.String("url", url))
}

// CancelDrawing discards the session and all drawn positions.
func (s *drawService) CancelDrawing(ctx context.Context, divisionID int) (*models.Division, error) {
	const command = "cancel_drawing"
	st, ds, err := s.rt.divisionState(ctx, divisionID)
	if err != nil {
		return nil, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	div := ds.division
	if div.ScheduleStatus != models.ScheduleDrawing {
		return nil, s.rt.reject(command, invalidState("division %d is %s, only a drawing can be cancelled", divisionID, div.ScheduleStatus))
	}
	drawn := 0
	if div.Session != nil {
		drawn = len(div.Session.DrawOrder)
	}

	next := div.Clone()
	next.ScheduleStatus = models.SchedulePending
	next.Session = nil

	if _, err := s.rt.commit(ctx, pending{event: st, division: ds, div: next, kind: models.KindDrawingCancelled}); err != nil {
		return nil, err
	}
	s.logger.Warn("drawing cancelled", slog.Int("division_id", divisionID), slog.Int("discarded", drawn))
	return ds.division.Clone(), nil
}
