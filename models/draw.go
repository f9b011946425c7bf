package models

import "time"

// DrawRecord is the archived result of a completed draw.
type DrawRecord struct {
	EventID     int       `json:"event_id"`
	DivisionID  int       `json:"division_id"`
	Division    string    `json:"division"`
	DrawOrder   []int     `json:"draw_order"`
	Units       []*Unit   `json:"units"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}
