package models

import (
	"fmt"
	"slices"
	"time"
)

// BroadcastKind is the closed set of state changes pushed to viewers.
type BroadcastKind string

const (
	KindDrawingStarted     BroadcastKind = "drawing_started"
	KindUnitDrawn          BroadcastKind = "unit_drawn"
	KindDrawingCompleted   BroadcastKind = "drawing_completed"
	KindDrawingCancelled   BroadcastKind = "drawing_cancelled"
	KindDrawArchived       BroadcastKind = "draw_archived"
	KindMatchReady         BroadcastKind = "match_ready"
	KindMatchQueued        BroadcastKind = "match_queued"
	KindCourtAssigned      BroadcastKind = "court_assigned"
	KindMatchStarted       BroadcastKind = "match_started"
	KindScoreSubmitted     BroadcastKind = "score_submitted"
	KindGameConfirmed      BroadcastKind = "game_confirmed"
	KindScoreDisputed      BroadcastKind = "score_disputed"
	KindGameScoreEdited    BroadcastKind = "game_score_edited"
	KindMatchCompleted     BroadcastKind = "match_completed"
	KindMatchCancelled     BroadcastKind = "match_cancelled"
	KindCourtStatusChanged BroadcastKind = "court_status_changed"
	KindEventStatusChanged BroadcastKind = "event_status_changed"
	KindPolicyChanged      BroadcastKind = "policy_changed"
)

// EventScope is the scope key of event-wide broadcasts (courts, queue, matches).
const EventScope = "event"

// ScopeKey names the sequence scope for a division, or the event scope when divisionID is nil.
func ScopeKey(divisionID *int) string {
	if divisionID == nil {
		return EventScope
	}
	return fmt.Sprintf("division:%d", *divisionID)
}

// CourtAssignment records a match placed on a court by a command or a dispatch pass.
type CourtAssignment struct {
	MatchID int `json:"match_id"`
	CourtID int `json:"court_id"`
}

// Diff carries the full new value of every entity a command touched.
type Diff struct {
	Event       *Event            `json:"event,omitempty"`
	Division    *Division         `json:"division,omitempty"`
	Matches     []*Match          `json:"matches,omitempty"`
	Courts      []*Court          `json:"courts,omitempty"`
	Assignments []CourtAssignment `json:"assignments,omitempty"`
	UnitID      *int              `json:"unit_id,omitempty"`
	Position    *int              `json:"position,omitempty"`
	GameID      *int              `json:"game_id,omitempty"`
}

type BroadcastEvent struct {
	EventID        int           `json:"event_id" db:"event_id"`
	DivisionID     *int          `json:"division_id,omitempty" db:"division_id"`
	SequenceNumber uint64        `json:"sequence_number" db:"sequence_number"`
	Kind           BroadcastKind `json:"kind" db:"kind"`
	Payload        Diff          `json:"payload" db:"-"`
	OccurredAt     time.Time     `json:"occurred_at" db:"occurred_at"`
}

func (e BroadcastEvent) Scope() string {
	return ScopeKey(e.DivisionID)
}

type DivisionSnapshot struct {
	Division *Division `json:"division"`
	Units    []*Unit   `json:"units"`
}

// Snapshot is the full state a viewer starts from, with the last sequence
// number already reflected in it for every covered scope. A division
// snapshot holds only that division's matches, next to every court.
type Snapshot struct {
	DivisionID *int                `json:"division_id,omitempty"`
	Event      *Event              `json:"event"`
	Divisions  []*DivisionSnapshot `json:"divisions"`
	Matches    []*Match            `json:"matches"`
	Courts     []*Court            `json:"courts"`
	Sequences  map[string]uint64   `json:"sequences"`
}

// Apply folds a broadcast event into the snapshot. Events already reflected
// are ignored. It returns false when the event reveals a gap, in which case
// the caller must fetch a new snapshot.
func (s *Snapshot) Apply(ev BroadcastEvent) bool {
	scope := ev.Scope()
	last, ok := s.Sequences[scope]
	if !ok {
		return true
	}
	if ev.SequenceNumber <= last {
		return true
	}
	if ev.SequenceNumber != last+1 {
		return false
	}
	s.Sequences[scope] = ev.SequenceNumber

	p := ev.Payload
	if p.Event != nil {
		s.Event = p.Event.Clone()
	}
	if p.Division != nil {
		for _, ds := range s.Divisions {
			if ds.Division.ID == p.Division.ID {
				ds.Division = p.Division.Clone()
			}
		}
	}
	for _, m := range p.Matches {
		if s.DivisionID != nil && m.DivisionID != *s.DivisionID {
			continue
		}
		s.Matches = upsertByID(s.Matches, m.Clone(), func(x *Match) int { return x.ID })
	}
	for _, c := range p.Courts {
		s.Courts = upsertByID(s.Courts, c.Clone(), func(x *Court) int { return x.ID })
	}
	return true
}

func upsertByID[T any](items []T, v T, id func(T) int) []T {
	i, found := slices.BinarySearchFunc(items, id(v), func(x T, target int) int { return id(x) - target })
	if found {
		items[i] = v
		return items
	}
	return slices.Insert(items, i, v)
}
