package models

import "time"

// EventStatus представляет статусы события, соответствующие ENUM в БД.
type EventStatus string

const (
	EventStatusDraft              EventStatus = "draft"
	EventStatusRegistrationOpen   EventStatus = "registration_open"
	EventStatusRegistrationClosed EventStatus = "registration_closed"
	EventStatusRunning            EventStatus = "running"
	EventStatusCompleted          EventStatus = "completed"
	EventStatusCancelled          EventStatus = "cancelled"
)

// eventTransitions lists the statuses reachable from each status.
var eventTransitions = map[EventStatus][]EventStatus{
	EventStatusDraft:              {EventStatusRegistrationOpen, EventStatusCancelled},
	EventStatusRegistrationOpen:   {EventStatusRegistrationClosed, EventStatusCancelled},
	EventStatusRegistrationClosed: {EventStatusRunning, EventStatusCancelled},
	EventStatusRunning:            {EventStatusCompleted, EventStatusCancelled},
}

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusDraft, EventStatusRegistrationOpen, EventStatusRegistrationClosed,
		EventStatusRunning, EventStatusCompleted, EventStatusCancelled:
		return true
	}
	return false
}

func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	for _, allowed := range eventTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowsDraw reports whether divisions of an event in this status may be drawn.
func (s EventStatus) AllowsDraw() bool {
	return s == EventStatusRegistrationClosed || s == EventStatusRunning
}

// SchedulingPolicy tunes the court dispatch pass of one event.
type SchedulingPolicy struct {
	MinRestInterval      time.Duration `json:"min_rest_interval" yaml:"min_rest_interval"`
	AvoidSameCourtRepeat bool          `json:"avoid_same_court_repeat" yaml:"avoid_same_court_repeat"`
	AutoAssign           bool          `json:"auto_assign" yaml:"auto_assign"`
}

func DefaultSchedulingPolicy() SchedulingPolicy {
	return SchedulingPolicy{AutoAssign: true}
}

// Event is one day of competition. It owns divisions and the shared court pool.
type Event struct {
	ID        int              `json:"id" db:"id"`
	Name      string           `json:"name" db:"name"`
	Status    EventStatus      `json:"status" db:"status"`
	Policy    SchedulingPolicy `json:"policy" db:"-"`
	Queue     []int            `json:"queue" db:"-"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Queue = append([]int(nil), e.Queue...)
	return &c
}
