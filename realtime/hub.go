package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/pickleball-eventday/metrics"
	"github.com/Dosada05/pickleball-eventday/models"
)

// Frame types pushed to viewers.
const (
	FrameSnapshot     = "SNAPSHOT"
	FrameEvent        = "EVENT"
	FramePresence     = "PRESENCE_UPDATED"
	FrameNotification = "NOTIFICATION"
)

type Frame struct {
	Type    string      `json:"type"`
	EventID int         `json:"event_id"`
	Payload interface{} `json:"payload"`
}

// Hub fans broadcast events out to the viewers of each event. Publishing
// never blocks: a viewer whose outbox is full is disconnected and has to
// resync from a snapshot.
type Hub struct {
	rooms      map[int]map[*Client]bool
	Unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	presenceInterval time.Duration
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

func NewHub(logger *slog.Logger, m *metrics.Metrics, presenceInterval time.Duration) *Hub {
	return &Hub{
		rooms:            make(map[int]map[*Client]bool),
		Unregister:       make(chan *Client),
		done:             make(chan struct{}),
		presenceInterval: presenceInterval,
		logger:           logger,
		metrics:          m,
	}
}

// Run processes disconnects and pushes presence counts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var tick <-chan time.Time
	if h.presenceInterval > 0 {
		ticker := time.NewTicker(h.presenceInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.Unregister:
			h.remove(client)
		case <-tick:
			h.pushPresence()
		}
	}
}

// Register adds a client to its event room. It is synchronous so that a
// caller holding the state locks can register and enqueue a snapshot before
// any later event is published.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := client.Session.EventID
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	h.metrics.ViewerJoined(client.Session.IsAuthenticated)
	h.logger.Debug("viewer registered",
		slog.Int("event_id", room),
		slog.String("connection_id", client.Session.ConnectionID),
		slog.Int("viewers", len(h.rooms[room])))
}

// Leave removes a client that never got its pumps started.
func (h *Hub) Leave(client *Client) {
	h.remove(client)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := client.Session.EventID
	roomClients, ok := h.rooms[room]
	if !ok || !roomClients[client] {
		return
	}
	client.close()
	delete(roomClients, client)
	h.metrics.ViewerLeft(client.Session.IsAuthenticated)
	if len(roomClients) == 0 {
		delete(h.rooms, room)
	}
	h.logger.Debug("viewer unregistered",
		slog.Int("event_id", room),
		slog.String("connection_id", client.Session.ConnectionID))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, roomClients := range h.rooms {
		for client := range roomClients {
			client.close()
			h.metrics.ViewerLeft(client.Session.IsAuthenticated)
		}
		delete(h.rooms, room)
	}
}

// Publish delivers a broadcast event to every viewer whose subscription covers its scope.
func (h *Hub) Publish(ev models.BroadcastEvent) {
	messageBytes, err := json.Marshal(Frame{Type: FrameEvent, EventID: ev.EventID, Payload: ev})
	if err != nil {
		h.logger.Error("failed to marshal broadcast event", slog.Int("event_id", ev.EventID), slog.Any("error", err))
		return
	}
	h.metrics.Broadcast(string(ev.Kind))
	h.deliver(ev.EventID, messageBytes, func(c *Client) bool { return c.Covers(ev.DivisionID) })
}

// BroadcastToRoom sends an unsequenced frame to every viewer of an event.
func (h *Hub) BroadcastToRoom(eventID int, frame Frame) int {
	messageBytes, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal frame", slog.String("type", frame.Type), slog.Any("error", err))
		return 0
	}
	return h.deliver(eventID, messageBytes, func(*Client) bool { return true })
}

// DeliverNotification pushes a notification to the signed-in members it
// targets, or to the whole room when it names no users.
func (h *Hub) DeliverNotification(n models.Notification) int {
	frame := Frame{Type: FrameNotification, EventID: n.EventID, Payload: n}
	if len(n.UserIDs) == 0 {
		return h.BroadcastToRoom(n.EventID, frame)
	}
	return h.SendToUsers(n.EventID, n.UserIDs, frame)
}

// SendToUsers sends a frame to the viewers of an event signed in as one of userIDs.
func (h *Hub) SendToUsers(eventID int, userIDs []int, frame Frame) int {
	messageBytes, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal frame", slog.String("type", frame.Type), slog.Any("error", err))
		return 0
	}
	wanted := make(map[int]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	return h.deliver(eventID, messageBytes, func(c *Client) bool {
		return c.Session.UserID != nil && wanted[*c.Session.UserID]
	})
}

// Enqueue sends a frame to a single client, dropping the client if it cannot keep up.
func (h *Hub) Enqueue(client *Client, frame Frame) bool {
	messageBytes, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal frame", slog.String("type", frame.Type), slog.Any("error", err))
		return false
	}
	if !client.offer(messageBytes) {
		h.drop(client)
		return false
	}
	return true
}

func (h *Hub) deliver(eventID int, messageBytes []byte, match func(*Client) bool) int {
	var slow []*Client
	delivered := 0

	h.mu.RLock()
	for client := range h.rooms[eventID] {
		if !match(client) {
			continue
		}
		if client.offer(messageBytes) {
			delivered++
		} else {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.drop(client)
	}
	return delivered
}

func (h *Hub) drop(client *Client) {
	h.logger.Warn("dropping slow viewer",
		slog.Int("event_id", client.Session.EventID),
		slog.String("connection_id", client.Session.ConnectionID))
	h.metrics.ViewerDropped()
	h.remove(client)
}

// Presence derives viewer counts for one event from the live sessions.
func (h *Hub) Presence(eventID int) models.Presence {
	h.mu.RLock()
	defer h.mu.RUnlock()

	p := models.Presence{
		EventID:    eventID,
		Divisions:  make(map[int]models.PresenceCount),
		Viewers:    []models.ViewerSession{},
		ComputedAt: time.Now().UTC(),
	}
	for client := range h.rooms[eventID] {
		s := client.Session
		p.Event = bump(p.Event, s.IsAuthenticated)
		if s.DivisionID != nil {
			p.Divisions[*s.DivisionID] = bump(p.Divisions[*s.DivisionID], s.IsAuthenticated)
		}
		if s.IsAuthenticated {
			p.Viewers = append(p.Viewers, s)
		}
	}
	sort.Slice(p.Viewers, func(i, j int) bool { return p.Viewers[i].JoinedAt.Before(p.Viewers[j].JoinedAt) })
	return p
}

func bump(c models.PresenceCount, authenticated bool) models.PresenceCount {
	if authenticated {
		c.Authenticated++
	} else {
		c.Anonymous++
	}
	return c
}

func (h *Hub) pushPresence() {
	h.mu.RLock()
	rooms := make([]int, 0, len(h.rooms))
	for room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.RUnlock()

	for _, room := range rooms {
		p := h.Presence(room)
		p.Viewers = nil
		h.BroadcastToRoom(room, Frame{Type: FramePresence, EventID: room, Payload: p})
	}
}
