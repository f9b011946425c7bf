package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/pickleball-eventday/middleware"
	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/realtime"
	"github.com/Dosada05/pickleball-eventday/services"
	"github.com/Dosada05/pickleball-eventday/utils"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var errSnapshotTooLarge = errors.New("viewer outbox rejected the snapshot")

type WebSocketHandler struct {
	hub          *realtime.Hub
	eventService services.EventService
	upgrader     websocket.Upgrader
	outbox       int
	logger       *slog.Logger
}

// NewWebSocketHandler accepts upgrades from allowedOrigins only; an empty
// list accepts any origin.
func NewWebSocketHandler(hub *realtime.Hub, es services.EventService, allowedOrigins []string, outbox int, logger *slog.Logger) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &WebSocketHandler{
		hub:          hub,
		eventService: es,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
		outbox: outbox,
		logger: logger,
	}
}

// ServeWs joins a viewer to an event, optionally narrowed to one division.
// The first frame is always a snapshot; every later EVENT frame follows it
// in sequence order. A viewer that sees a gap must reconnect.
// @Summary Live event channel
// @Tags realtime
// @Param eventID path int true "Event ID"
// @Param division_id query int false "Division to follow"
// @Param display_name query string false "Name shown in presence lists"
// @Param avatar_url query string false "Avatar shown in presence lists"
// @Param token query string false "Access token for signed-in viewers"
// @Router /ws/events/{eventID} [get]
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	divisionID, err := optionalIDQuery(r, "division_id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	session := viewerSession(r, eventID, divisionID)
	client := realtime.NewClient(h.hub, nil, session, h.outbox)

	// Registration happens under the event's locks so no event can slip
	// between the snapshot and the first live frame.
	err = h.eventService.Subscribe(r.Context(), eventID, divisionID, func(snap *models.Snapshot) error {
		if !h.hub.Enqueue(client, realtime.Frame{Type: realtime.FrameSnapshot, EventID: eventID, Payload: snap}) {
			return errSnapshotTooLarge
		}
		h.hub.Register(client)
		return nil
	})
	if err != nil {
		if errors.Is(err, errSnapshotTooLarge) {
			serverErrorResponse(w, r, err)
			return
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade viewer connection",
			slog.Int("event_id", eventID), slog.Any("error", err))
		h.hub.Leave(client)
		return
	}
	client.Conn = conn

	h.logger.Info("viewer joined",
		slog.Int("event_id", eventID),
		slog.String("connection_id", session.ConnectionID),
		slog.Bool("authenticated", session.IsAuthenticated))

	go client.WritePump()
	go client.ReadPump()
}

func viewerSession(r *http.Request, eventID int, divisionID *int) models.ViewerSession {
	session := models.ViewerSession{
		ConnectionID: uuid.NewString(),
		EventID:      eventID,
		DivisionID:   divisionID,
		JoinedAt:     time.Now().UTC(),
	}
	if userID, err := middleware.GetUserIDFromContext(r.Context()); err == nil {
		session.UserID = &userID
		session.IsAuthenticated = true
		session.DisplayName, session.AvatarURL = middleware.GetProfileFromContext(r.Context())
	}
	query := r.URL.Query()
	if name := utils.StringOrNil(query.Get("display_name")); name != nil {
		session.DisplayName = *name
	}
	if avatar := utils.StringOrNil(query.Get("avatar_url")); avatar != nil {
		session.AvatarURL = *avatar
	}
	return session
}
