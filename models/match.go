package models

import "time"

type MatchStatus string

const (
	MatchScheduled  MatchStatus = "scheduled"
	MatchReady      MatchStatus = "ready"
	MatchQueued     MatchStatus = "queued"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchCancelled  MatchStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

// HoldsCourt reports whether a match in this status may reference a court.
func (s MatchStatus) HoldsCourt() bool {
	return s == MatchQueued || s == MatchInProgress
}

// Side identifies which unit of a match acted.
type Side string

const (
	SideUnit1 Side = "unit1"
	SideUnit2 Side = "unit2"
	SideAdmin Side = "admin"
)

type Match struct {
	ID            int         `json:"id" db:"id"`
	EventID       int         `json:"event_id" db:"event_id"`
	DivisionID    int         `json:"division_id" db:"division_id"`
	Round         int         `json:"round" db:"round"`
	OrderInRound  int         `json:"order_in_round" db:"order_in_round"`
	Unit1ID       *int        `json:"unit1_id,omitempty" db:"unit1_id"`
	Unit2ID       *int        `json:"unit2_id,omitempty" db:"unit2_id"`
	Status        MatchStatus `json:"status" db:"status"`
	CourtID       *int        `json:"court_id,omitempty" db:"court_id"`
	PlayedCourtID *int        `json:"played_court_id,omitempty" db:"played_court_id"`
	BestOf        int         `json:"best_of" db:"best_of"`
	WinnerUnitID  *int        `json:"winner_unit_id,omitempty" db:"winner_unit_id"`
	NextMatchID   *int        `json:"next_match_id,omitempty" db:"next_match_id"`
	NextSlot      *int        `json:"next_slot,omitempty" db:"next_slot"`
	QueuedAt      *time.Time  `json:"queued_at,omitempty" db:"queued_at"`
	StartedAt     *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	Games         []*Game     `json:"games" db:"-"`
}

// HasUnit reports whether unitID plays in this match.
func (m *Match) HasUnit(unitID int) bool {
	return (m.Unit1ID != nil && *m.Unit1ID == unitID) || (m.Unit2ID != nil && *m.Unit2ID == unitID)
}

// UnitIDs returns the known units of the match.
func (m *Match) UnitIDs() []int {
	ids := make([]int, 0, 2)
	if m.Unit1ID != nil {
		ids = append(ids, *m.Unit1ID)
	}
	if m.Unit2ID != nil {
		ids = append(ids, *m.Unit2ID)
	}
	return ids
}

// GamesToWin is the number of confirmed games needed to take the series.
func (m *Match) GamesToWin() int {
	if m.BestOf <= 1 {
		return 1
	}
	return m.BestOf/2 + 1
}

// Tally counts confirmed undisputed games won by each side.
func (m *Match) Tally() (unit1Wins, unit2Wins int) {
	for _, g := range m.Games {
		if !g.Confirmed || g.IsDisputed {
			continue
		}
		if g.Unit1Score > g.Unit2Score {
			unit1Wins++
		} else {
			unit2Wins++
		}
	}
	return unit1Wins, unit2Wins
}

// CurrentGame returns the highest-numbered game, or nil before the match starts.
func (m *Match) CurrentGame() *Game {
	if len(m.Games) == 0 {
		return nil
	}
	return m.Games[len(m.Games)-1]
}

func (m *Match) Game(gameID int) *Game {
	for _, g := range m.Games {
		if g.ID == gameID {
			return g
		}
	}
	return nil
}

func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Unit1ID = clonePtr(m.Unit1ID)
	c.Unit2ID = clonePtr(m.Unit2ID)
	c.CourtID = clonePtr(m.CourtID)
	c.PlayedCourtID = clonePtr(m.PlayedCourtID)
	c.WinnerUnitID = clonePtr(m.WinnerUnitID)
	c.NextMatchID = clonePtr(m.NextMatchID)
	c.NextSlot = clonePtr(m.NextSlot)
	c.QueuedAt = clonePtr(m.QueuedAt)
	c.StartedAt = clonePtr(m.StartedAt)
	c.CompletedAt = clonePtr(m.CompletedAt)
	c.Games = make([]*Game, len(m.Games))
	for i, g := range m.Games {
		c.Games[i] = g.Clone()
	}
	return &c
}

// ScoreSubmission is one side's claim of a game result.
type ScoreSubmission struct {
	Unit1Score  int       `json:"unit1_score"`
	Unit2Score  int       `json:"unit2_score"`
	SubmittedBy int       `json:"submitted_by"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func (s *ScoreSubmission) Matches(other *ScoreSubmission) bool {
	return other != nil && s.Unit1Score == other.Unit1Score && s.Unit2Score == other.Unit2Score
}

type Game struct {
	ID          int              `json:"id" db:"id"`
	MatchID     int              `json:"match_id" db:"match_id"`
	GameNumber  int              `json:"game_number" db:"game_number"`
	Unit1Score  int              `json:"unit1_score" db:"unit1_score"`
	Unit2Score  int              `json:"unit2_score" db:"unit2_score"`
	Unit1Claim  *ScoreSubmission `json:"unit1_claim,omitempty" db:"-"`
	Unit2Claim  *ScoreSubmission `json:"unit2_claim,omitempty" db:"-"`
	SubmittedBy *Side            `json:"submitted_by,omitempty" db:"submitted_by"`
	ConfirmedBy *Side            `json:"confirmed_by,omitempty" db:"confirmed_by"`
	IsDisputed  bool             `json:"is_disputed" db:"is_disputed"`
	Confirmed   bool             `json:"confirmed" db:"confirmed"`
}

// Claim returns the pending submission for a side.
func (g *Game) Claim(side Side) *ScoreSubmission {
	if side == SideUnit1 {
		return g.Unit1Claim
	}
	return g.Unit2Claim
}

func (g *Game) SetClaim(side Side, s *ScoreSubmission) {
	if side == SideUnit1 {
		g.Unit1Claim = s
	} else {
		g.Unit2Claim = s
	}
}

func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	c.Unit1Claim = clonePtr(g.Unit1Claim)
	c.Unit2Claim = clonePtr(g.Unit2Claim)
	c.SubmittedBy = clonePtr(g.SubmittedBy)
	c.ConfirmedBy = clonePtr(g.ConfirmedBy)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
