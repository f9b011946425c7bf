package services

import (
	"slices"
	"time"

	"github.com/Dosada05/pickleball-eventday/models"
)

// eventTxn stages copy-on-write changes to an event's matches, courts and
// admission queue. Reads see staged values first. Nothing is visible to
// other commands until Runtime.commit applies it.
type eventTxn struct {
	st          *eventState
	now         time.Time
	event       *models.Event
	matches     map[int]*models.Match
	courts      map[int]*models.Court
	assignments []models.CourtAssignment
	notes       []models.Notification
}

func newEventTxn(st *eventState, now time.Time) *eventTxn {
	return &eventTxn{
		st:      st,
		now:     now,
		matches: make(map[int]*models.Match),
		courts:  make(map[int]*models.Court),
	}
}

func (t *eventTxn) peekEvent() *models.Event {
	if t.event != nil {
		return t.event
	}
	return t.st.event
}

func (t *eventTxn) editEvent() *models.Event {
	if t.event == nil {
		t.event = t.st.event.Clone()
	}
	return t.event
}

func (t *eventTxn) policy() models.SchedulingPolicy {
	return t.peekEvent().Policy
}

func (t *eventTxn) queue() []int {
	return t.peekEvent().Queue
}

func (t *eventTxn) enqueue(matchID int) {
	ev := t.editEvent()
	ev.Queue = append(ev.Queue, matchID)
}

func (t *eventTxn) enqueueFront(matchID int) {
	ev := t.editEvent()
	ev.Queue = slices.Insert(ev.Queue, 0, matchID)
}

// dequeue removes a match from the admission queue if present.
func (t *eventTxn) dequeue(matchID int) {
	i := slices.Index(t.queue(), matchID)
	if i < 0 {
		return
	}
	ev := t.editEvent()
	ev.Queue = slices.Delete(ev.Queue, i, i+1)
}

func (t *eventTxn) match(id int) (*models.Match, error) {
	if m, ok := t.matches[id]; ok {
		return m, nil
	}
	if m, ok := t.st.matches[id]; ok {
		return m, nil
	}
	return nil, ErrMatchNotFound
}

func (t *eventTxn) editMatch(id int) (*models.Match, error) {
	if m, ok := t.matches[id]; ok {
		return m, nil
	}
	m, ok := t.st.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	cp := m.Clone()
	t.matches[id] = cp
	return cp, nil
}

func (t *eventTxn) addMatch(m *models.Match) {
	t.matches[m.ID] = m
}

// eachMatch visits every match of the event with staged values taking precedence.
func (t *eventTxn) eachMatch(fn func(m *models.Match)) {
	for id, m := range t.st.matches {
		if staged, ok := t.matches[id]; ok {
			fn(staged)
			continue
		}
		fn(m)
	}
	for id, m := range t.matches {
		if _, live := t.st.matches[id]; !live {
			fn(m)
		}
	}
}

func (t *eventTxn) court(id int) (*models.Court, error) {
	if c, ok := t.courts[id]; ok {
		return c, nil
	}
	if c, ok := t.st.courts[id]; ok {
		return c, nil
	}
	return nil, ErrCourtNotFound
}

func (t *eventTxn) editCourt(id int) (*models.Court, error) {
	if c, ok := t.courts[id]; ok {
		return c, nil
	}
	c, ok := t.st.courts[id]
	if !ok {
		return nil, ErrCourtNotFound
	}
	cp := c.Clone()
	t.courts[id] = cp
	return cp, nil
}

func (t *eventTxn) touchedMatches() []*models.Match {
	out := make([]*models.Match, 0, len(t.matches))
	for _, m := range t.matches {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *models.Match) int { return a.ID - b.ID })
	return out
}

func (t *eventTxn) touchedCourts() []*models.Court {
	out := make([]*models.Court, 0, len(t.courts))
	for _, c := range t.courts {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *models.Court) int { return a.ID - b.ID })
	return out
}

func (t *eventTxn) notify(notes ...models.Notification) {
	t.notes = append(t.notes, notes...)
}
