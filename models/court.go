package models

type CourtStatus string

const (
	CourtAvailable CourtStatus = "available"
	CourtInUse     CourtStatus = "in_use"
	CourtOffline   CourtStatus = "offline"
)

type Court struct {
	ID             int         `json:"id" db:"id"`
	EventID        int         `json:"event_id" db:"event_id"`
	Label          string      `json:"label" db:"label"`
	Status         CourtStatus `json:"status" db:"status"`
	CurrentMatchID *int        `json:"current_match_id,omitempty" db:"current_match_id"`
}

// Free reports whether the court can take a new match right now.
func (c *Court) Free() bool {
	return c.Status == CourtAvailable && c.CurrentMatchID == nil
}

func (c *Court) Clone() *Court {
	if c == nil {
		return nil
	}
	cp := *c
	if c.CurrentMatchID != nil {
		id := *c.CurrentMatchID
		cp.CurrentMatchID = &id
	}
	return &cp
}
