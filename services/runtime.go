package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dosada05/pickleball-eventday/metrics"
	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/repositories"
)

// Broadcaster fans committed events out to viewers. Publish must not block.
type Broadcaster interface {
	Publish(ev models.BroadcastEvent)
}

// Notifier accepts fire-and-forget notifications. Notify must not block.
type Notifier interface {
	Notify(n models.Notification)
}

// PolicySource supplies the scheduling policy of events whose stored policy
// was never customised.
type PolicySource interface {
	PolicyFor(eventID int) models.SchedulingPolicy
}

// Runtime owns the live state of every loaded event and the serialization
// points guarding it. Lock order is always event before division.
type Runtime struct {
	store    repositories.Store
	hub      Broadcaster
	notifier Notifier
	policies PolicySource
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	background sync.WaitGroup

	mu            sync.Mutex
	events        map[int]*eventState
	divisionEvent map[int]int
	gameEvent     map[int]int
}

type RuntimeOption func(*Runtime)

// WithClock replaces the wall clock, mainly for tests of rest intervals.
func WithClock(now func() time.Time) RuntimeOption {
	return func(r *Runtime) { r.now = now }
}

func WithPolicySource(p PolicySource) RuntimeOption {
	return func(r *Runtime) { r.policies = p }
}

func NewRuntime(store repositories.Store, hub Broadcaster, notifier Notifier, m *metrics.Metrics, logger *slog.Logger, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		store:         store,
		hub:           hub,
		notifier:      notifier,
		metrics:       m,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		events:        make(map[int]*eventState),
		divisionEvent: make(map[int]int),
		gameEvent:     make(map[int]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type eventState struct {
	id          int
	mu          sync.Mutex
	event       *models.Event
	courts      map[int]*models.Court
	courtIDs    []int
	matches     map[int]*models.Match
	gameMatch   map[int]int
	units       map[int]*models.Unit
	divisions   map[int]*divisionState
	divisionIDs []int
	seq         uint64

	// current mirrors event.Status for readers holding only a division lock.
	current atomic.Value
}

func (st *eventState) status() models.EventStatus {
	return st.current.Load().(models.EventStatus)
}

type divisionState struct {
	mu       sync.Mutex
	division *models.Division
	unitIDs  []int
	seq      uint64
}

// event returns the live state of an event, loading it on first use. The
// store is read without holding r.mu; when two callers race on the first
// load, the state stored first wins.
func (r *Runtime) event(ctx context.Context, eventID int) (*eventState, error) {
	r.mu.Lock()
	st, ok := r.events[eventID]
	r.mu.Unlock()
	if ok {
		return st, nil
	}

	data, err := r.store.LoadEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, repositories.ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to load event %d: %w", eventID, err)
	}
	loaded := r.buildState(data)

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.events[eventID]; ok {
		return st, nil
	}
	r.events[eventID] = loaded
	for id := range loaded.divisions {
		r.divisionEvent[id] = eventID
	}
	for gameID := range loaded.gameMatch {
		r.gameEvent[gameID] = eventID
	}
	r.metrics.SetQueueLength(strconv.Itoa(eventID), len(loaded.event.Queue))
	r.logger.Info("event loaded",
		slog.Int("event_id", eventID),
		slog.Int("divisions", len(loaded.divisions)),
		slog.Int("matches", len(loaded.matches)),
		slog.Int("courts", len(loaded.courts)))
	return loaded, nil
}

func (r *Runtime) buildState(data *repositories.EventData) *eventState {
	st := &eventState{
		id:        data.Event.ID,
		event:     data.Event,
		courts:    make(map[int]*models.Court, len(data.Courts)),
		matches:   make(map[int]*models.Match, len(data.Matches)),
		gameMatch: make(map[int]int),
		units:     make(map[int]*models.Unit, len(data.Units)),
		divisions: make(map[int]*divisionState, len(data.Divisions)),
		seq:       data.Sequences[models.EventScope],
	}
	if st.event.Queue == nil {
		st.event.Queue = []int{}
	}
	st.current.Store(st.event.Status)
	if r.policies != nil && st.event.Policy == models.DefaultSchedulingPolicy() {
		st.event.Policy = r.policies.PolicyFor(st.event.ID)
	}
	for _, c := range data.Courts {
		st.courts[c.ID] = c
		st.courtIDs = append(st.courtIDs, c.ID)
	}
	slices.Sort(st.courtIDs)
	for _, m := range data.Matches {
		if m.Games == nil {
			m.Games = []*models.Game{}
		}
		st.matches[m.ID] = m
		for _, g := range m.Games {
			st.gameMatch[g.ID] = m.ID
		}
	}
	for _, d := range data.Divisions {
		ds := &divisionState{division: d, seq: data.Sequences[models.ScopeKey(&d.ID)]}
		st.divisions[d.ID] = ds
		st.divisionIDs = append(st.divisionIDs, d.ID)
	}
	slices.Sort(st.divisionIDs)
	for _, u := range data.Units {
		st.units[u.ID] = u
		if ds, ok := st.divisions[u.DivisionID]; ok {
			ds.unitIDs = append(ds.unitIDs, u.ID)
		}
	}
	for _, ds := range st.divisions {
		slices.Sort(ds.unitIDs)
	}
	return st
}

func (r *Runtime) divisionState(ctx context.Context, divisionID int) (*eventState, *divisionState, error) {
	r.mu.Lock()
	eventID, ok := r.divisionEvent[divisionID]
	r.mu.Unlock()
	if !ok {
		var err error
		eventID, err = r.store.EventIDForDivision(ctx, divisionID)
		if err != nil {
			if errors.Is(err, repositories.ErrDivisionNotFound) {
				return nil, nil, ErrDivisionNotFound
			}
			return nil, nil, fmt.Errorf("failed to resolve division %d: %w", divisionID, err)
		}
	}
	st, err := r.event(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	ds, ok := st.divisions[divisionID]
	if !ok {
		return nil, nil, ErrDivisionNotFound
	}
	return st, ds, nil
}

func (r *Runtime) eventForGame(ctx context.Context, gameID int) (*eventState, error) {
	r.mu.Lock()
	eventID, ok := r.gameEvent[gameID]
	r.mu.Unlock()
	if !ok {
		var err error
		eventID, err = r.store.EventIDForGame(ctx, gameID)
		if err != nil {
			if errors.Is(err, repositories.ErrGameNotFound) {
				return nil, ErrGameNotFound
			}
			return nil, fmt.Errorf("failed to resolve game %d: %w", gameID, err)
		}
	}
	return r.event(ctx, eventID)
}

func requireRunning(st *eventState) error {
	if st.event.Status != models.EventStatusRunning {
		return invalidState("event %d is %s, not running", st.event.ID, st.event.Status)
	}
	return nil
}

// pending describes one command ready to be persisted and broadcast.
type pending struct {
	event    *eventState
	division *divisionState
	tx       *eventTxn
	div      *models.Division
	kind     models.BroadcastKind
	diff     models.Diff
	notes    []models.Notification
}

// commit persists a command with its broadcast event, then swaps the staged
// values into live state and publishes. On a persistence error live state is
// left untouched and nothing is published. Callers hold the scope locks.
func (r *Runtime) commit(ctx context.Context, p pending) (models.BroadcastEvent, error) {
	st := p.event
	now := r.now()
	ev := models.BroadcastEvent{
		EventID:    st.id,
		Kind:       p.kind,
		Payload:    p.diff,
		OccurredAt: now,
	}
	if p.division != nil {
		id := p.division.division.ID
		ev.DivisionID = &id
		ev.SequenceNumber = p.division.seq + 1
	} else {
		ev.SequenceNumber = st.seq + 1
	}

	cs := repositories.ChangeSet{Broadcast: &ev}
	if p.div != nil {
		ev.Payload.Division = p.div.Clone()
		cs.Divisions = []*models.Division{p.div}
	}
	var headBefore int
	if p.tx != nil {
		headBefore = queueHead(st.event.Queue)
		tx := p.tx
		if tx.event != nil {
			tx.event.UpdatedAt = now
			cs.Event = tx.event
			ev.Payload.Event = tx.event.Clone()
		}
		cs.Matches = tx.touchedMatches()
		cs.Courts = tx.touchedCourts()
		for _, m := range cs.Matches {
			ev.Payload.Matches = append(ev.Payload.Matches, m.Clone())
		}
		for _, c := range cs.Courts {
			ev.Payload.Courts = append(ev.Payload.Courts, c.Clone())
		}
		ev.Payload.Assignments = append(ev.Payload.Assignments, tx.assignments...)
	}

	if err := r.store.Commit(ctx, cs); err != nil {
		r.metrics.Command(string(p.kind), "persist_failed")
		r.logger.Error("failed to persist command",
			slog.Int("event_id", st.id),
			slog.String("kind", string(p.kind)),
			slog.Any("error", err))
		return ev, fmt.Errorf("failed to persist %s: %w", p.kind, err)
	}

	if p.div != nil {
		p.division.division = p.div
	}
	if p.division != nil {
		p.division.seq = ev.SequenceNumber
	} else {
		st.seq = ev.SequenceNumber
	}
	notes := p.notes
	if p.tx != nil {
		r.apply(st, p.tx)
		notes = append(notes, p.tx.notes...)
		if head := queueHead(st.event.Queue); head != 0 && head != headBefore {
			notes = append(notes, r.unitNotes(st, st.matches[head], models.NotifyMatchNext, "Your match is next in line for a court.")...)
		}
	}

	r.hub.Publish(ev)
	r.metrics.Command(string(p.kind), "ok")
	for _, n := range notes {
		r.notifier.Notify(n)
	}
	return ev, nil
}

func (r *Runtime) apply(st *eventState, tx *eventTxn) {
	if tx.event != nil {
		st.event = tx.event
		st.current.Store(st.event.Status)
		r.metrics.SetQueueLength(strconv.Itoa(st.event.ID), len(st.event.Queue))
	}
	for id, m := range tx.matches {
		st.matches[id] = m
		for _, g := range m.Games {
			if _, known := st.gameMatch[g.ID]; !known {
				st.gameMatch[g.ID] = id
				r.mu.Lock()
				r.gameEvent[g.ID] = st.id
				r.mu.Unlock()
			}
		}
	}
	for id, c := range tx.courts {
		st.courts[id] = c
	}
}

func queueHead(q []int) int {
	if len(q) == 0 {
		return 0
	}
	return q[0]
}

// unitNotes builds one notification per known unit of a match.
func (r *Runtime) unitNotes(st *eventState, m *models.Match, kind models.NotificationKind, message string) []models.Notification {
	if m == nil {
		return nil
	}
	var notes []models.Notification
	for _, unitID := range m.UnitIDs() {
		unit, ok := st.units[unitID]
		if !ok {
			continue
		}
		matchID, uid := m.ID, unitID
		notes = append(notes, models.Notification{
			ID:        newNotificationID(),
			EventID:   st.id,
			MatchID:   &matchID,
			UnitID:    &uid,
			UserIDs:   slices.Clone(unit.MemberUserIDs),
			Kind:      kind,
			Message:   message,
			CreatedAt: r.now(),
		})
	}
	return notes
}

func (r *Runtime) eventNote(st *eventState, kind models.NotificationKind, message string) models.Notification {
	return models.Notification{
		ID:        newNotificationID(),
		EventID:   st.id,
		Kind:      kind,
		Message:   message,
		CreatedAt: r.now(),
	}
}

func (r *Runtime) reject(command string, err error) error {
	r.metrics.Command(command, "rejected")
	return err
}

// goBackground runs fn outside the command path. Wait blocks until every
// such task has returned.
func (r *Runtime) goBackground(fn func()) {
	r.background.Add(1)
	go func() {
		defer r.background.Done()
		fn()
	}()
}

func (r *Runtime) Wait() {
	r.background.Wait()
}
