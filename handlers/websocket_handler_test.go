package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/pickleball-eventday/metrics"
	"github.com/Dosada05/pickleball-eventday/middleware"
	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/realtime"
	"github.com/Dosada05/pickleball-eventday/repositories"
	"github.com/Dosada05/pickleball-eventday/services"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wsEventID       = 1
	wsDivisionID    = 10
	wsOtherDivision = 20
)

type nopNotifier struct{}

func (nopNotifier) Notify(models.Notification) {}

type liveEvent struct {
	hub    *realtime.Hub
	events services.EventService
	draws  services.DrawService
	auth   *middleware.Authenticator
	server *httptest.Server
	router http.Handler
}

func newLiveEvent(t *testing.T) *liveEvent {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := repositories.NewMemoryStore()
	data := &repositories.EventData{
		Event:  &models.Event{ID: wsEventID, Name: gofakeit.City() + " Open", Status: models.EventStatusRegistrationClosed},
		Courts: []*models.Court{{ID: 1, EventID: wsEventID, Label: "Court 1", Status: models.CourtAvailable}},
	}
	for _, id := range []int{wsDivisionID, wsOtherDivision} {
		data.Divisions = append(data.Divisions, &models.Division{
			ID: id, EventID: wsEventID, Name: gofakeit.Adjective() + " Doubles", TeamSize: 2,
			Format: models.FormatSingleElimination, BestOf: 1, ScheduleStatus: models.SchedulePending,
		})
	}
	for id := 1; id <= 4; id++ {
		data.Units = append(data.Units, &models.Unit{ID: id, DivisionID: wsDivisionID, DisplayName: gofakeit.Name()})
	}
	store.Seed(data)

	m := metrics.New()
	hub := realtime.NewHub(logger, m, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	rt := services.NewRuntime(store, hub, nopNotifier{}, m, logger)
	t.Cleanup(rt.Wait)
	events := services.NewEventService(rt, hub, logger)
	auth := middleware.NewAuthenticator("ws-test-secret")

	router := chi.NewRouter()
	router.With(auth.OptionalAuthenticate).Get("/ws/events/{eventID}", NewWebSocketHandler(hub, events, nil, 64, logger).ServeWs)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &liveEvent{
		hub:    hub,
		events: events,
		draws:  services.NewDrawService(rt, nil, logger),
		auth:   auth,
		server: server,
		router: router,
	}
}

func (l *liveEvent) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(l.server.URL, "http") + "/ws/events/1"
	if query != "" {
		url += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireFrame struct {
	Type    string          `json:"type"`
	EventID int             `json:"event_id"`
	Payload json.RawMessage `json:"payload"`
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f wireFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func readSnapshot(t *testing.T, conn *websocket.Conn) models.Snapshot {
	t.Helper()
	f := readFrame(t, conn)
	require.Equal(t, realtime.FrameSnapshot, f.Type, "the first frame must be a snapshot")
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(f.Payload, &snap))
	return snap
}

func readEvent(t *testing.T, conn *websocket.Conn) models.BroadcastEvent {
	t.Helper()
	for {
		f := readFrame(t, conn)
		if f.Type != realtime.FrameEvent {
			continue
		}
		var ev models.BroadcastEvent
		require.NoError(t, json.Unmarshal(f.Payload, &ev))
		return ev
	}
}

func TestServeWs_SnapshotThenEvents(t *testing.T) {
	l := newLiveEvent(t)
	ctx := context.Background()

	conn := l.dial(t, "display_name=Courtside")
	snap := readSnapshot(t, conn)
	assert.Equal(t, wsEventID, snap.Event.ID)
	assert.Len(t, snap.Divisions, 2)
	assert.Equal(t, uint64(0), snap.Sequences[models.ScopeKey(nil)])

	_, err := l.draws.StartDrawing(ctx, wsDivisionID)
	require.NoError(t, err)

	ev := readEvent(t, conn)
	assert.Equal(t, models.KindDrawingStarted, ev.Kind)
	require.NotNil(t, ev.DivisionID)
	assert.Equal(t, wsDivisionID, *ev.DivisionID)
	assert.Equal(t, uint64(1), ev.SequenceNumber)
	assert.True(t, snap.Apply(ev))
}

func TestServeWs_DivisionViewerSkipsOtherDivisions(t *testing.T) {
	l := newLiveEvent(t)
	ctx := context.Background()

	conn := l.dial(t, "division_id=20")
	snap := readSnapshot(t, conn)
	require.NotNil(t, snap.DivisionID)
	assert.Equal(t, wsOtherDivision, *snap.DivisionID)
	require.Len(t, snap.Divisions, 1)

	_, err := l.draws.StartDrawing(ctx, wsDivisionID)
	require.NoError(t, err)
	_, err = l.events.SetPolicy(ctx, wsEventID, models.SchedulingPolicy{AutoAssign: true, MinRestInterval: time.Minute})
	require.NoError(t, err)

	ev := readEvent(t, conn)
	assert.Equal(t, models.KindPolicyChanged, ev.Kind, "division 10 draw events must not reach a division 20 viewer")
	assert.Nil(t, ev.DivisionID)
	assert.True(t, snap.Apply(ev))
}

func TestServeWs_NoEventFallsBetweenSnapshotAndStream(t *testing.T) {
	l := newLiveEvent(t)
	ctx := context.Background()

	policies := []models.SchedulingPolicy{
		{AutoAssign: true},
		{AutoAssign: true, MinRestInterval: time.Minute},
	}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := l.events.SetPolicy(ctx, wsEventID, policies[i%2]); err != nil {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()
	t.Cleanup(func() {
		close(stop)
		wg.Wait()
	})

	conn := l.dial(t, "")
	snap := readSnapshot(t, conn)
	last := snap.Sequences[models.EventScope]
	for range 5 {
		ev := readEvent(t, conn)
		require.Equal(t, last+1, ev.SequenceNumber, "event frames must continue the snapshot without a gap")
		require.True(t, snap.Apply(ev))
		last = ev.SequenceNumber
	}
}

func TestServeWs_Presence(t *testing.T) {
	l := newLiveEvent(t)

	token, err := l.auth.Sign(jwt.MapClaims{"user_id": 42, "role": "player", "name": "Dana"})
	require.NoError(t, err)

	anon := l.dial(t, "")
	readSnapshot(t, anon)
	signed := l.dial(t, "division_id=10&token="+token)
	readSnapshot(t, signed)

	p := l.hub.Presence(wsEventID)
	assert.Equal(t, 1, p.Event.Anonymous)
	assert.Equal(t, 1, p.Event.Authenticated)
	assert.Equal(t, 1, p.Divisions[wsDivisionID].Authenticated)
	require.Len(t, p.Viewers, 1)
	assert.Equal(t, "Dana", p.Viewers[0].DisplayName)
}

func TestServeWs_FailedUpgradeLeaves(t *testing.T) {
	l := newLiveEvent(t)

	// A plain GET passes the subscription but cannot be upgraded.
	rec := httptest.NewRecorder()
	l.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/events/1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, l.hub.Presence(wsEventID).Event.Total())
}

func TestServeWs_Rejections(t *testing.T) {
	l := newLiveEvent(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown event", "/ws/events/404", http.StatusNotFound},
		{"unknown division", "/ws/events/1?division_id=99", http.StatusNotFound},
		{"bad division", "/ws/events/1?division_id=x", http.StatusBadRequest},
		{"bad token", "/ws/events/1?token=nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			l.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Zero(t, l.hub.Presence(wsEventID).Event.Total())
}
