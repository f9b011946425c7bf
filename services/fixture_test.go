package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/pickleball-eventday/metrics"
	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/repositories"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
)

const (
	testEventID    = 1
	testDivisionID = 10
)

type recordingHub struct {
	mu     sync.Mutex
	events []models.BroadcastEvent
}

func (h *recordingHub) Publish(ev models.BroadcastEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHub) Events() []models.BroadcastEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.events)
}

func (h *recordingHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *recordingHub) Last() models.BroadcastEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (n *recordingNotifier) Notify(note models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *recordingNotifier) Kind(kind models.NotificationKind) []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Notification
	for _, note := range n.notes {
		if note.Kind == kind {
			out = append(out, note)
		}
	}
	return out
}

type noPresence struct{}

func (noPresence) Presence(eventID int) models.Presence {
	return models.Presence{EventID: eventID, Divisions: map[int]models.PresenceCount{}}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *repositories.MemoryStore
	hub      *recordingHub
	notifier *recordingNotifier
	clock    *fakeClock
	rt       *Runtime

	draws   DrawService
	matches MatchService
	courts  CourtService
	events  EventService
}

type fixtureOptions struct {
	archiver DrawArchiver
	draw     []DrawOption
}

func newFixture(t *testing.T, data *repositories.EventData, opts ...func(*fixtureOptions)) *fixture {
	t.Helper()
	var o fixtureOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:    repositories.NewMemoryStore(),
		hub:      &recordingHub{},
		notifier: &recordingNotifier{},
		clock:    &fakeClock{now: time.Date(2026, 5, 16, 9, 0, 0, 0, time.UTC)},
	}
	f.store.Seed(data)
	f.rt = NewRuntime(f.store, f.hub, f.notifier, metrics.New(), logger, WithClock(f.clock.Now))
	f.draws = NewDrawService(f.rt, o.archiver, logger, o.draw...)
	f.matches = NewMatchService(f.rt, logger)
	f.courts = NewCourtService(f.rt, logger)
	f.events = NewEventService(f.rt, noPresence{}, logger)
	t.Cleanup(f.rt.Wait)
	return f
}

func withArchiver(a DrawArchiver) func(*fixtureOptions) {
	return func(o *fixtureOptions) { o.archiver = a }
}

func withDrawOptions(opts ...DrawOption) func(*fixtureOptions) {
	return func(o *fixtureOptions) { o.draw = append(o.draw, opts...) }
}

// userOf is the single member of a test unit.
func userOf(unitID int) int {
	return 100 + unitID
}

// eventData builds an event with one single elimination division holding
// units 1..units and courts 1..courts.
func eventData(status models.EventStatus, policy models.SchedulingPolicy, units, courts int) *repositories.EventData {
	data := &repositories.EventData{
		Event: &models.Event{ID: testEventID, Name: gofakeit.Company() + " Open", Status: status, Policy: policy},
		Divisions: []*models.Division{{
			ID:             testDivisionID,
			EventID:        testEventID,
			Name:           "Mixed Doubles 3.5",
			TeamSize:       1,
			Format:         models.FormatSingleElimination,
			BestOf:         1,
			ScheduleStatus: models.SchedulePending,
		}},
	}
	for id := 1; id <= units; id++ {
		name := gofakeit.Name()
		data.Units = append(data.Units, &models.Unit{
			ID:            id,
			DivisionID:    testDivisionID,
			DisplayName:   name,
			MemberNames:   []string{name},
			MemberUserIDs: []int{userOf(id)},
		})
	}
	for id := 1; id <= courts; id++ {
		data.Courts = append(data.Courts, &models.Court{
			ID:      id,
			EventID: testEventID,
			Label:   fmt.Sprintf("Court %d", id),
			Status:  models.CourtAvailable,
		})
	}
	return data
}

func readyMatch(id, unit1, unit2 int) *models.Match {
	u1, u2 := unit1, unit2
	return &models.Match{
		ID:           id,
		EventID:      testEventID,
		DivisionID:   testDivisionID,
		Round:        1,
		OrderInRound: id,
		Unit1ID:      &u1,
		Unit2ID:      &u2,
		Status:       models.MatchReady,
		BestOf:       1,
		Games:        []*models.Game{},
	}
}

func (f *fixture) snapshot(t *testing.T) *models.Snapshot {
	t.Helper()
	snap, err := f.events.GetSnapshot(context.Background(), testEventID, nil)
	require.NoError(t, err)
	return snap
}

func (f *fixture) match(t *testing.T, id int) *models.Match {
	t.Helper()
	m, err := f.matches.GetMatch(context.Background(), testEventID, id)
	require.NoError(t, err)
	return m
}

func (f *fixture) court(t *testing.T, id int) *models.Court {
	t.Helper()
	for _, c := range f.snapshot(t).Courts {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("court %d not in snapshot", id)
	return nil
}

// requireCourtInvariant checks that courts and matches agree on who holds what.
func requireCourtInvariant(t *testing.T, snap *models.Snapshot) {
	t.Helper()
	holders := map[int]int{}
	for _, m := range snap.Matches {
		if m.CourtID == nil {
			continue
		}
		require.True(t, m.Status.HoldsCourt(), "match %d is %s but holds court %d", m.ID, m.Status, *m.CourtID)
		other, taken := holders[*m.CourtID]
		require.False(t, taken, "court %d held by matches %d and %d", *m.CourtID, other, m.ID)
		holders[*m.CourtID] = m.ID
	}
	for _, c := range snap.Courts {
		if c.CurrentMatchID == nil {
			_, held := holders[c.ID]
			require.False(t, held, "court %d has no current match but match %d holds it", c.ID, holders[c.ID])
			continue
		}
		require.Equal(t, *c.CurrentMatchID, holders[c.ID], "court %d", c.ID)
	}
}
