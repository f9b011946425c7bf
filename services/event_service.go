package services

import (
	"context"
	"log/slog"
	"slices"

	"github.com/Dosada05/pickleball-eventday/models"
)

// PresenceSource reports who is currently watching an event.
type PresenceSource interface {
	Presence(eventID int) models.Presence
}

const maxLogPage = 500

type EventService interface {
	GetSnapshot(ctx context.Context, eventID int, divisionID *int) (*models.Snapshot, error)
	Subscribe(ctx context.Context, eventID int, divisionID *int, register func(*models.Snapshot) error) error
	SetStatus(ctx context.Context, eventID int, status models.EventStatus) (*models.Event, error)
	SetPolicy(ctx context.Context, eventID int, policy models.SchedulingPolicy) (*models.Event, error)
	ListBroadcasts(ctx context.Context, eventID int, divisionID *int, after uint64, limit int) ([]models.BroadcastEvent, error)
	Presence(ctx context.Context, eventID int) (*models.Presence, error)
}

type eventService struct {
	rt       *Runtime
	presence PresenceSource
	logger   *slog.Logger
}

func NewEventService(rt *Runtime, presence PresenceSource, logger *slog.Logger) EventService {
	return &eventService{rt: rt, presence: presence, logger: logger}
}

func (s *eventService) GetSnapshot(ctx context.Context, eventID int, divisionID *int) (*models.Snapshot, error) {
	var snap *models.Snapshot
	err := s.Subscribe(ctx, eventID, divisionID, func(sn *models.Snapshot) error {
		snap = sn
		return nil
	})
	return snap, err
}

// Subscribe builds a snapshot and hands it to register while every scope of
// the event is locked. No broadcast can be published between the snapshot
// and the registration, so a viewer registered there misses nothing.
func (s *eventService) Subscribe(ctx context.Context, eventID int, divisionID *int, register func(*models.Snapshot) error) error {
	st, err := s.rt.event(ctx, eventID)
	if err != nil {
		return err
	}
	if divisionID != nil {
		if _, ok := st.divisions[*divisionID]; !ok {
			return ErrDivisionNotFound
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for _, id := range st.divisionIDs {
		ds := st.divisions[id]
		ds.mu.Lock()
		defer ds.mu.Unlock()
	}

	return register(s.snapshot(st, divisionID))
}

// snapshot copies the state of one event, or of one division with the
// event-wide courts and queue. Callers hold every scope lock.
func (s *eventService) snapshot(st *eventState, divisionID *int) *models.Snapshot {
	snap := &models.Snapshot{
		Event:     st.event.Clone(),
		Divisions: []*models.DivisionSnapshot{},
		Matches:   make([]*models.Match, 0, len(st.matches)),
		Courts:    make([]*models.Court, 0, len(st.courts)),
		Sequences: map[string]uint64{models.EventScope: st.seq},
	}
	for _, id := range st.divisionIDs {
		if divisionID != nil && *divisionID != id {
			continue
		}
		ds := st.divisions[id]
		dsnap := &models.DivisionSnapshot{Division: ds.division.Clone(), Units: make([]*models.Unit, 0, len(ds.unitIDs))}
		for _, unitID := range ds.unitIDs {
			u := *st.units[unitID]
			u.MemberNames = slices.Clone(u.MemberNames)
			u.MemberUserIDs = slices.Clone(u.MemberUserIDs)
			dsnap.Units = append(dsnap.Units, &u)
		}
		snap.Divisions = append(snap.Divisions, dsnap)
		snap.Sequences[models.ScopeKey(&ds.division.ID)] = ds.seq
	}
	if divisionID != nil {
		id := *divisionID
		snap.DivisionID = &id
	}
	for _, m := range st.matches {
		if divisionID != nil && m.DivisionID != *divisionID {
			continue
		}
		snap.Matches = append(snap.Matches, m.Clone())
	}
	slices.SortFunc(snap.Matches, func(a, b *models.Match) int { return a.ID - b.ID })
	for _, id := range st.courtIDs {
		snap.Courts = append(snap.Courts, st.courts[id].Clone())
	}
	return snap
}

func (s *eventService) SetStatus(ctx context.Context, eventID int, status models.EventStatus) (*models.Event, error) {
	const command = "set_event_status"
	if !status.Valid() {
		return nil, s.rt.reject(command, validationError("unknown event status %q", status))
	}
	st, err := s.rt.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	current := st.event.Status
	if current == status {
		return st.event.Clone(), nil
	}
	if !current.CanTransitionTo(status) {
		return nil, s.rt.reject(command, invalidState("event %d cannot move from %s to %s", eventID, current, status))
	}

	tx := newEventTxn(st, s.rt.now())
	tx.editEvent().Status = status
	if status == models.EventStatusRunning && tx.policy().AutoAssign {
		if err := s.rt.dispatch(tx); err != nil {
			return nil, err
		}
	}
	if _, err := s.rt.commit(ctx, pending{event: st, tx: tx, kind: models.KindEventStatusChanged}); err != nil {
		return nil, err
	}
	s.logger.Info("event status changed",
		slog.Int("event_id", eventID), slog.String("from", string(current)), slog.String("to", string(status)))
	return st.event.Clone(), nil
}

func (s *eventService) SetPolicy(ctx context.Context, eventID int, policy models.SchedulingPolicy) (*models.Event, error) {
	const command = "set_policy"
	if policy.MinRestInterval < 0 {
		return nil, s.rt.reject(command, validationError("min rest interval must not be negative"))
	}
	st, err := s.rt.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.event.Policy == policy {
		return st.event.Clone(), nil
	}
	tx := newEventTxn(st, s.rt.now())
	tx.editEvent().Policy = policy
	if st.event.Status == models.EventStatusRunning && policy.AutoAssign {
		if err := s.rt.dispatch(tx); err != nil {
			return nil, err
		}
	}
	if _, err := s.rt.commit(ctx, pending{event: st, tx: tx, kind: models.KindPolicyChanged}); err != nil {
		return nil, err
	}
	return st.event.Clone(), nil
}

// ListBroadcasts returns committed events of one scope after a sequence number.
func (s *eventService) ListBroadcasts(ctx context.Context, eventID int, divisionID *int, after uint64, limit int) ([]models.BroadcastEvent, error) {
	st, err := s.rt.event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if divisionID != nil {
		if _, ok := st.divisions[*divisionID]; !ok {
			return nil, ErrDivisionNotFound
		}
	}
	if limit <= 0 || limit > maxLogPage {
		limit = maxLogPage
	}
	return s.rt.store.ListBroadcasts(ctx, eventID, models.ScopeKey(divisionID), after, limit)
}

func (s *eventService) Presence(ctx context.Context, eventID int) (*models.Presence, error) {
	if _, err := s.rt.event(ctx, eventID); err != nil {
		return nil, err
	}
	p := s.presence.Presence(eventID)
	return &p, nil
}
