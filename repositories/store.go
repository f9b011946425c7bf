package repositories

import (
	"context"
	"errors"

	"github.com/Dosada05/pickleball-eventday/models"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrDivisionNotFound = errors.New("division not found")
	ErrGameNotFound     = errors.New("game not found")
	ErrCourtNotFound    = errors.New("court not found")
	ErrCourtConflict    = errors.New("court is already held by another match")
	ErrSequenceConflict = errors.New("broadcast sequence number already recorded")
)

// IDKind names an id sequence the store hands out ahead of insertion.
type IDKind string

const (
	IDKindMatch IDKind = "matches"
	IDKindGame  IDKind = "games"
)

// EventData is everything the engine needs to run one event.
type EventData struct {
	Event     *models.Event
	Divisions []*models.Division
	Units     []*models.Unit
	Courts    []*models.Court
	Matches   []*models.Match
	Sequences map[string]uint64
}

// ChangeSet is the unit of persistence for one command. Everything in it is
// written atomically, together with the broadcast event it produced.
type ChangeSet struct {
	Event     *models.Event
	Divisions []*models.Division
	Matches   []*models.Match
	Courts    []*models.Court
	Broadcast *models.BroadcastEvent
}

func (cs ChangeSet) Empty() bool {
	return cs.Event == nil && len(cs.Divisions) == 0 && len(cs.Matches) == 0 && len(cs.Courts) == 0 && cs.Broadcast == nil
}

type Store interface {
	LoadEvent(ctx context.Context, eventID int) (*EventData, error)
	EventIDForDivision(ctx context.Context, divisionID int) (int, error)
	EventIDForGame(ctx context.Context, gameID int) (int, error)
	NextIDs(ctx context.Context, kind IDKind, n int) ([]int, error)
	Commit(ctx context.Context, cs ChangeSet) error
	ListBroadcasts(ctx context.Context, eventID int, scope string, after uint64, limit int) ([]models.BroadcastEvent, error)
}
