package models

import "time"

// ViewerSession is one live websocket subscription. It is never persisted.
type ViewerSession struct {
	ConnectionID    string    `json:"connection_id"`
	EventID         int       `json:"event_id"`
	DivisionID      *int      `json:"division_id,omitempty"`
	UserID          *int      `json:"user_id,omitempty"`
	DisplayName     string    `json:"display_name,omitempty"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	IsAuthenticated bool      `json:"is_authenticated"`
	JoinedAt        time.Time `json:"joined_at"`
}

type PresenceCount struct {
	Authenticated int `json:"authenticated"`
	Anonymous     int `json:"anonymous"`
}

func (p PresenceCount) Total() int {
	return p.Authenticated + p.Anonymous
}

// Presence is derived from the live sessions of one event.
type Presence struct {
	EventID    int                   `json:"event_id"`
	Event      PresenceCount         `json:"event"`
	Divisions  map[int]PresenceCount `json:"divisions"`
	Viewers    []ViewerSession       `json:"viewers,omitempty"`
	ComputedAt time.Time             `json:"computed_at"`
}
