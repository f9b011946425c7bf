package repositories

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Dosada05/pickleball-eventday/models"
)

// MemoryStore keeps everything in process. It backs tests and local demos.
type MemoryStore struct {
	mu         sync.Mutex
	events     map[int]*EventData
	divisionTo map[int]int
	gameTo     map[int]int
	broadcasts map[int][]models.BroadcastEvent
	nextID     map[IDKind]int
	failNext   error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:     make(map[int]*EventData),
		divisionTo: make(map[int]int),
		gameTo:     make(map[int]int),
		broadcasts: make(map[int][]models.BroadcastEvent),
		nextID:     map[IDKind]int{IDKindMatch: 1000, IDKindGame: 5000},
	}
}

// Seed installs the full state of one event, replacing any previous copy.
func (s *MemoryStore) Seed(data *EventData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneEventData(data)
	if cp.Sequences == nil {
		cp.Sequences = make(map[string]uint64)
	}
	s.events[cp.Event.ID] = cp
	for _, d := range cp.Divisions {
		s.divisionTo[d.ID] = cp.Event.ID
	}
	for _, m := range cp.Matches {
		for _, g := range m.Games {
			s.gameTo[g.ID] = cp.Event.ID
		}
	}
}

// FailNextCommit makes the next Commit return err without writing anything.
func (s *MemoryStore) FailNextCommit(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *MemoryStore) LoadEvent(ctx context.Context, eventID int) (*EventData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return cloneEventData(data), nil
}

func (s *MemoryStore) EventIDForDivision(ctx context.Context, divisionID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eventID, ok := s.divisionTo[divisionID]
	if !ok {
		return 0, ErrDivisionNotFound
	}
	return eventID, nil
}

func (s *MemoryStore) EventIDForGame(ctx context.Context, gameID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eventID, ok := s.gameTo[gameID]
	if !ok {
		return 0, ErrGameNotFound
	}
	return eventID, nil
}

func (s *MemoryStore) NextIDs(ctx context.Context, kind IDKind, n int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nextID[kind]; !ok {
		return nil, fmt.Errorf("unknown id kind %q", kind)
	}
	ids := make([]int, n)
	for i := range ids {
		s.nextID[kind]++
		ids[i] = s.nextID[kind]
	}
	return ids, nil
}

func (s *MemoryStore) Commit(ctx context.Context, cs ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	if cs.Empty() {
		return nil
	}

	eventID := 0
	switch {
	case cs.Event != nil:
		eventID = cs.Event.ID
	case cs.Broadcast != nil:
		eventID = cs.Broadcast.EventID
	case len(cs.Divisions) > 0:
		eventID = cs.Divisions[0].EventID
	case len(cs.Matches) > 0:
		eventID = cs.Matches[0].EventID
	case len(cs.Courts) > 0:
		eventID = cs.Courts[0].EventID
	}
	data, ok := s.events[eventID]
	if !ok {
		return ErrEventNotFound
	}

	if cs.Broadcast != nil {
		scope := cs.Broadcast.Scope()
		if cs.Broadcast.SequenceNumber <= data.Sequences[scope] {
			return ErrSequenceConflict
		}
	}
	if err := checkCourtHolders(data.Matches, cs.Matches); err != nil {
		return err
	}

	if cs.Event != nil {
		data.Event = cs.Event.Clone()
	}
	for _, d := range cs.Divisions {
		i := slices.IndexFunc(data.Divisions, func(x *models.Division) bool { return x.ID == d.ID })
		if i < 0 {
			return ErrDivisionNotFound
		}
		data.Divisions[i] = d.Clone()
	}
	for _, m := range cs.Matches {
		cp := m.Clone()
		if i := slices.IndexFunc(data.Matches, func(x *models.Match) bool { return x.ID == m.ID }); i >= 0 {
			data.Matches[i] = cp
		} else {
			data.Matches = append(data.Matches, cp)
		}
		for _, g := range m.Games {
			s.gameTo[g.ID] = eventID
		}
	}
	for _, c := range cs.Courts {
		i := slices.IndexFunc(data.Courts, func(x *models.Court) bool { return x.ID == c.ID })
		if i < 0 {
			return ErrCourtNotFound
		}
		data.Courts[i] = c.Clone()
	}
	if cs.Broadcast != nil {
		data.Sequences[cs.Broadcast.Scope()] = cs.Broadcast.SequenceNumber
		s.broadcasts[eventID] = append(s.broadcasts[eventID], *cs.Broadcast)
	}
	return nil
}

// checkCourtHolders mirrors the court holder index of the postgres schema.
func checkCourtHolders(current, changed []*models.Match) error {
	merged := make(map[int]*models.Match, len(current))
	for _, m := range current {
		merged[m.ID] = m
	}
	for _, m := range changed {
		merged[m.ID] = m
	}
	holders := make(map[int]int)
	for _, m := range merged {
		if m.CourtID == nil || !m.Status.HoldsCourt() {
			continue
		}
		if other, taken := holders[*m.CourtID]; taken && other != m.ID {
			return ErrCourtConflict
		}
		holders[*m.CourtID] = m.ID
	}
	return nil
}

func (s *MemoryStore) ListBroadcasts(ctx context.Context, eventID int, scope string, after uint64, limit int) ([]models.BroadcastEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.BroadcastEvent{}
	for _, ev := range s.broadcasts[eventID] {
		if ev.Scope() != scope || ev.SequenceNumber <= after {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneEventData(data *EventData) *EventData {
	cp := &EventData{
		Event:     data.Event.Clone(),
		Sequences: make(map[string]uint64, len(data.Sequences)),
	}
	for k, v := range data.Sequences {
		cp.Sequences[k] = v
	}
	for _, d := range data.Divisions {
		cp.Divisions = append(cp.Divisions, d.Clone())
	}
	for _, u := range data.Units {
		uc := *u
		uc.MemberNames = slices.Clone(u.MemberNames)
		uc.MemberUserIDs = slices.Clone(u.MemberUserIDs)
		cp.Units = append(cp.Units, &uc)
	}
	for _, c := range data.Courts {
		cp.Courts = append(cp.Courts, c.Clone())
	}
	for _, m := range data.Matches {
		cp.Matches = append(cp.Matches, m.Clone())
	}
	return cp
}
