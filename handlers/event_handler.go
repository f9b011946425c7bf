package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/services"
)

type EventHandler struct {
	eventService services.EventService
	courtService services.CourtService
}

func NewEventHandler(es services.EventService, cs services.CourtService) *EventHandler {
	return &EventHandler{eventService: es, courtService: cs}
}

type statusInput struct {
	Status models.EventStatus `json:"status"`
}

type courtStatusInput struct {
	Status models.CourtStatus `json:"status"`
}

// policyInput takes the rest interval as a Go duration string ("10m").
type policyInput struct {
	MinRestInterval      string `json:"min_rest_interval"`
	AvoidSameCourtRepeat bool   `json:"avoid_same_court_repeat"`
	AutoAssign           *bool  `json:"auto_assign"`
}

func (in policyInput) toPolicy() (models.SchedulingPolicy, error) {
	policy := models.DefaultSchedulingPolicy()
	if in.MinRestInterval != "" {
		d, err := time.ParseDuration(in.MinRestInterval)
		if err != nil {
			return policy, fmt.Errorf("invalid min_rest_interval: %w", err)
		}
		policy.MinRestInterval = d
	}
	policy.AvoidSameCourtRepeat = in.AvoidSameCourtRepeat
	if in.AutoAssign != nil {
		policy.AutoAssign = *in.AutoAssign
	}
	return policy, nil
}

// GetSnapshot godoc
// @Summary Full state of an event for (re)synchronising viewers
// @Tags events
// @Produce json
// @Param eventID path int true "Event ID"
// @Param division_id query int false "Restrict divisions to one"
// @Success 200 {object} map[string]interface{} "Snapshot with sequence numbers"
// @Failure 404 {object} map[string]string "Event or division not found"
// @Router /events/{eventID}/snapshot [get]
func (h *EventHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
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

	snapshot, err := h.eventService.GetSnapshot(r.Context(), eventID, divisionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"snapshot": snapshot}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateStatus godoc
// @Summary Move an event through its lifecycle
// @Tags events
// @Accept json
// @Produce json
// @Param eventID path int true "Event ID"
// @Success 200 {object} map[string]interface{} "Event"
// @Failure 409 {object} map[string]string "Transition not allowed"
// @Security BearerAuth
// @Router /events/{eventID}/status [put]
func (h *EventHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input statusInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	event, err := h.eventService.SetStatus(r.Context(), eventID, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"event": event}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdatePolicy godoc
// @Summary Tune the court assignment policy of an event
// @Tags events
// @Accept json
// @Produce json
// @Param eventID path int true "Event ID"
// @Success 200 {object} map[string]interface{} "Event"
// @Failure 400 {object} map[string]string "Invalid policy"
// @Security BearerAuth
// @Router /events/{eventID}/policy [put]
func (h *EventHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input policyInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	policy, err := input.toPolicy()
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	event, err := h.eventService.SetPolicy(r.Context(), eventID, policy)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"event": event}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SetCourtStatus godoc
// @Summary Take a court offline or bring it back
// @Tags courts
// @Accept json
// @Produce json
// @Param eventID path int true "Event ID"
// @Param courtID path int true "Court ID"
// @Success 200 {object} map[string]interface{} "Court"
// @Failure 400 {object} map[string]string "Unknown status"
// @Security BearerAuth
// @Router /events/{eventID}/courts/{courtID}/status [put]
func (h *EventHandler) SetCourtStatus(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	courtID, err := getIDFromURL(r, "courtID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input courtStatusInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	court, err := h.courtService.SetCourtStatus(r.Context(), eventID, courtID, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"court": court}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListBroadcasts godoc
// @Summary Committed broadcast events of one scope after a sequence number
// @Tags events
// @Produce json
// @Param eventID path int true "Event ID"
// @Param division_id query int false "Division scope; event scope when absent"
// @Param after query int false "Return events with a greater sequence number"
// @Param limit query int false "Page size"
// @Success 200 {object} map[string]interface{} "Events in sequence order"
// @Router /events/{eventID}/log [get]
func (h *EventHandler) ListBroadcasts(w http.ResponseWriter, r *http.Request) {
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
	query := r.URL.Query()
	var after uint64
	if v := query.Get("after"); v != "" {
		if after, err = strconv.ParseUint(v, 10, 64); err != nil {
			badRequestResponse(w, r, errors.New("invalid after query parameter"))
			return
		}
	}
	limit := 0
	if v := query.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			badRequestResponse(w, r, errors.New("invalid limit query parameter"))
			return
		}
	}

	events, err := h.eventService.ListBroadcasts(r.Context(), eventID, divisionID, after, limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"events": events}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetPresence godoc
// @Summary Viewer counts of an event
// @Tags events
// @Produce json
// @Param eventID path int true "Event ID"
// @Success 200 {object} map[string]interface{} "Presence"
// @Router /events/{eventID}/presence [get]
func (h *EventHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	presence, err := h.eventService.Presence(r.Context(), eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"presence": presence}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
