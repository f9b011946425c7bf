package models

import "time"

type NotificationKind string

const (
	NotifyCourtAssigned   NotificationKind = "court_assigned"
	NotifyMatchNext       NotificationKind = "match_next"
	NotifyDrawingComplete NotificationKind = "drawing_complete"
	NotifyScoreDisputed   NotificationKind = "score_disputed"
	NotifyMatchCompleted  NotificationKind = "match_completed"
)

// Notification is a best-effort message to the members of a unit, or to the
// whole event when UnitID is nil.
type Notification struct {
	ID        string           `json:"id"`
	EventID   int              `json:"event_id"`
	MatchID   *int             `json:"match_id,omitempty"`
	UnitID    *int             `json:"unit_id,omitempty"`
	UserIDs   []int            `json:"user_ids,omitempty"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}
