package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dosada05/pickleball-eventday/models"
)

type CourtService interface {
	QueueMatch(ctx context.Context, eventID, matchID int, preferredCourtID *int) (*models.Match, error)
	AssignCourt(ctx context.Context, eventID, matchID, courtID int) (*models.Match, error)
	SetCourtStatus(ctx context.Context, eventID, courtID int, status models.CourtStatus) (*models.Court, error)
}

type courtService struct {
	rt     *Runtime
	logger *slog.Logger
}

func NewCourtService(rt *Runtime, logger *slog.Logger) CourtService {
	return &courtService{rt: rt, logger: logger}
}

// QueueMatch admits a ready match. A free preferred court is taken at once;
// otherwise the match joins the tail of the admission queue.
func (s *courtService) QueueMatch(ctx context.Context, eventID, matchID int, preferredCourtID *int) (*models.Match, error) {
	const command = "queue_match"
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
	if m.Status != models.MatchReady {
		return nil, s.rt.reject(command, invalidState("match %d is %s, only ready matches can be queued", matchID, m.Status))
	}

	now := tx.now
	m.Status = models.MatchQueued
	m.QueuedAt = &now

	placed := false
	if preferredCourtID != nil {
		court, err := tx.court(*preferredCourtID)
		if err != nil {
			return nil, err
		}
		if court.Free() {
			if err := s.rt.place(tx, m, court.ID); err != nil {
				return nil, err
			}
			placed = true
		}
	}
	if !placed {
		tx.enqueue(m.ID)
	}
	if tx.policy().AutoAssign {
		if err := s.rt.dispatch(tx); err != nil {
			return nil, err
		}
	}

	if _, err := s.rt.commit(ctx, pending{event: st, tx: tx, kind: models.KindMatchQueued}); err != nil {
		return nil, err
	}
	return st.matches[matchID].Clone(), nil
}

// AssignCourt is the admin override: it places a queued match on a court
// regardless of its position in the queue.
func (s *courtService) AssignCourt(ctx context.Context, eventID, matchID, courtID int) (*models.Match, error) {
	const command = "assign_court"
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
		return nil, s.rt.reject(command, fmt.Errorf("%w: match %d is %s", ErrMatchNotQueued, matchID, m.Status))
	}
	court, err := tx.court(courtID)
	if err != nil {
		return nil, err
	}
	if m.CourtID != nil && *m.CourtID == courtID {
		return m, nil
	}
	if !court.Free() {
		return nil, s.rt.reject(command, fmt.Errorf("%w: court %d is %s", ErrCourtUnavailable, courtID, court.Status))
	}

	if m.CourtID != nil {
		if err := s.rt.releaseCourt(tx, m); err != nil {
			return nil, err
		}
	}
	if err := s.rt.place(tx, m, courtID); err != nil {
		return nil, err
	}
	if tx.policy().AutoAssign {
		if err := s.rt.dispatch(tx); err != nil {
			return nil, err
		}
	}

	if _, err := s.rt.commit(ctx, pending{event: st, tx: tx, kind: models.KindCourtAssigned}); err != nil {
		return nil, err
	}
	return st.matches[matchID].Clone(), nil
}

// SetCourtStatus takes a court offline or brings it back. A queued match
// holding an offline court goes back to the head of the queue; a match in
// progress keeps playing and the court stays offline once it finishes.
func (s *courtService) SetCourtStatus(ctx context.Context, eventID, courtID int, status models.CourtStatus) (*models.Court, error) {
	if status != models.CourtAvailable && status != models.CourtOffline {
		return nil, validationError("court status must be %q or %q", models.CourtAvailable, models.CourtOffline)
	}
	st, err := s.rt.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	tx := newEventTxn(st, s.rt.now())
	court, err := tx.editCourt(courtID)
	if err != nil {
		return nil, err
	}

	var holder *models.Match
	if court.CurrentMatchID != nil {
		holder, err = tx.editMatch(*court.CurrentMatchID)
		if err != nil {
			return nil, err
		}
	}

	switch status {
	case models.CourtOffline:
		if court.Status == models.CourtOffline {
			return court, nil
		}
		court.Status = models.CourtOffline
		if holder != nil && holder.Status == models.MatchQueued {
			holder.CourtID = nil
			court.CurrentMatchID = nil
			tx.enqueueFront(holder.ID)
		}
	case models.CourtAvailable:
		if court.Status != models.CourtOffline {
			return court, nil
		}
		if holder != nil && holder.Status == models.MatchInProgress {
			court.Status = models.CourtInUse
		} else {
			court.Status = models.CourtAvailable
		}
	}

	if st.event.Status == models.EventStatusRunning && tx.policy().AutoAssign {
		if err := s.rt.dispatch(tx); err != nil {
			return nil, err
		}
	}
	if _, err := s.rt.commit(ctx, pending{event: st, tx: tx, kind: models.KindCourtStatusChanged}); err != nil {
		return nil, err
	}
	s.logger.Info("court status changed",
		slog.Int("event_id", eventID), slog.Int("court_id", courtID), slog.String("status", string(status)))
	return st.courts[courtID].Clone(), nil
}

// place puts a queued match on a free court.
func (r *Runtime) place(tx *eventTxn, m *models.Match, courtID int) error {
	court, err := tx.editCourt(courtID)
	if err != nil {
		return err
	}
	if !court.Free() {
		return fmt.Errorf("%w: court %d", ErrCourtUnavailable, courtID)
	}
	id := m.ID
	court.CurrentMatchID = &id
	cid := courtID
	m.CourtID = &cid
	tx.dequeue(m.ID)
	tx.assignments = append(tx.assignments, models.CourtAssignment{MatchID: m.ID, CourtID: courtID})
	tx.notify(r.unitNotes(tx.st, m, models.NotifyCourtAssigned, fmt.Sprintf("Your match is on court %s.", court.Label))...)
	return nil
}

// releaseCourt detaches a match from the court it holds.
func (r *Runtime) releaseCourt(tx *eventTxn, m *models.Match) error {
	if m.CourtID == nil {
		return nil
	}
	court, err := tx.editCourt(*m.CourtID)
	if err != nil {
		return err
	}
	if court.CurrentMatchID != nil && *court.CurrentMatchID == m.ID {
		court.CurrentMatchID = nil
	}
	if court.Status == models.CourtInUse {
		court.Status = models.CourtAvailable
	}
	m.CourtID = nil
	return nil
}

// dispatch fills free courts from the admission queue. For each free court,
// in court id order, the queue is scanned head to tail and the first
// eligible match is placed. Ineligible matches keep their place.
func (r *Runtime) dispatch(tx *eventTxn) error {
	for _, courtID := range tx.st.courtIDs {
		court, err := tx.court(courtID)
		if err != nil {
			return err
		}
		if !court.Free() {
			continue
		}
		for _, matchID := range tx.queue() {
			m, err := tx.match(matchID)
			if err != nil {
				return err
			}
			if !r.eligible(tx, m, courtID) {
				continue
			}
			em, err := tx.editMatch(matchID)
			if err != nil {
				return err
			}
			if err := r.place(tx, em, courtID); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// eligible applies the admission constraints for placing m on courtID.
func (r *Runtime) eligible(tx *eventTxn, m *models.Match, courtID int) bool {
	if m.Status != models.MatchQueued || m.CourtID != nil {
		return false
	}
	policy := tx.policy()
	units := m.UnitIDs()
	ok := true
	tx.eachMatch(func(other *models.Match) {
		if !ok || other.ID == m.ID {
			return
		}
		for _, u := range units {
			if !other.HasUnit(u) {
				continue
			}
			switch {
			case other.Status == models.MatchInProgress:
				ok = false
			case other.Status == models.MatchQueued && other.CourtID != nil:
				ok = false
			case other.Status == models.MatchCompleted && other.CompletedAt != nil && policy.MinRestInterval > 0:
				if tx.now.Sub(*other.CompletedAt) < policy.MinRestInterval {
					ok = false
				}
				if policy.AvoidSameCourtRepeat && other.PlayedCourtID != nil && *other.PlayedCourtID == courtID &&
					tx.now.Sub(*other.CompletedAt) < 2*policy.MinRestInterval {
					ok = false
				}
			}
		}
	})
	return ok
}
