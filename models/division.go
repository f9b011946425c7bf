package models

import (
	"slices"
	"time"
)

type BracketFormat string

const (
	FormatSingleElimination BracketFormat = "single_elimination"
	FormatRoundRobin        BracketFormat = "round_robin"
)

// ScheduleStatus tracks the draw lifecycle of a division.
type ScheduleStatus string

const (
	SchedulePending       ScheduleStatus = "pending"
	ScheduleDrawing       ScheduleStatus = "drawing"
	ScheduleUnitsAssigned ScheduleStatus = "units_assigned"
)

type Division struct {
	ID             int            `json:"id" db:"id"`
	EventID        int            `json:"event_id" db:"event_id"`
	Name           string         `json:"name" db:"name"`
	TeamSize       int            `json:"team_size" db:"team_size"`
	Format         BracketFormat  `json:"format" db:"format"`
	BestOf         int            `json:"best_of" db:"best_of"`
	ScheduleStatus ScheduleStatus `json:"schedule_status" db:"schedule_status"`
	Positions      []int          `json:"positions,omitempty" db:"-"`
	DrawArchiveURL *string        `json:"draw_archive_url,omitempty" db:"draw_archive_url"`
	Session        *DrawSession   `json:"draw_session,omitempty" db:"-"`
}

func (d *Division) Clone() *Division {
	if d == nil {
		return nil
	}
	c := *d
	c.Positions = slices.Clone(d.Positions)
	c.Session = d.Session.Clone()
	if d.DrawArchiveURL != nil {
		u := *d.DrawArchiveURL
		c.DrawArchiveURL = &u
	}
	return &c
}

// DrawSession is the in-flight random reveal of a division's units.
// DrawOrder is always a prefix of one permutation of the division's units.
type DrawSession struct {
	DrawOrder  []int     `json:"draw_order"`
	Remaining  []int     `json:"remaining"`
	InProgress bool      `json:"in_progress"`
	StartedAt  time.Time `json:"started_at"`
}

func NewDrawSession(unitIDs []int, now time.Time) *DrawSession {
	remaining := slices.Clone(unitIDs)
	slices.Sort(remaining)
	return &DrawSession{
		DrawOrder:  []int{},
		Remaining:  remaining,
		InProgress: true,
		StartedAt:  now,
	}
}

func (s *DrawSession) Clone() *DrawSession {
	if s == nil {
		return nil
	}
	c := *s
	c.DrawOrder = slices.Clone(s.DrawOrder)
	c.Remaining = slices.Clone(s.Remaining)
	return &c
}

// Take moves the unit at index i of Remaining to the end of DrawOrder and
// returns it with its 1-based position.
func (s *DrawSession) Take(i int) (unitID, position int) {
	unitID = s.Remaining[i]
	s.Remaining = slices.Delete(s.Remaining, i, i+1)
	s.DrawOrder = append(s.DrawOrder, unitID)
	return unitID, len(s.DrawOrder)
}

// Unit is a registered competing entity (a player or a team).
type Unit struct {
	ID            int      `json:"id" db:"id"`
	DivisionID    int      `json:"division_id" db:"division_id"`
	DisplayName   string   `json:"display_name" db:"display_name"`
	MemberNames   []string `json:"member_names" db:"-"`
	MemberUserIDs []int    `json:"member_user_ids" db:"-"`
}

func (u *Unit) HasMember(userID int) bool {
	return slices.Contains(u.MemberUserIDs, userID)
}
