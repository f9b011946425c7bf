package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/pickleball-eventday/middleware"
	"github.com/Dosada05/pickleball-eventday/services"
)

type MatchHandler struct {
	matchService services.MatchService
	courtService services.CourtService
}

func NewMatchHandler(ms services.MatchService, cs services.CourtService) *MatchHandler {
	return &MatchHandler{matchService: ms, courtService: cs}
}

type readyInput struct {
	Ready bool `json:"ready"`
}

type queueInput struct {
	CourtID *int `json:"court_id"`
}

type assignCourtInput struct {
	CourtID int `json:"court_id"`
}

type scoreInput struct {
	Unit1Score *int `json:"unit1_score"`
	Unit2Score *int `json:"unit2_score"`
}

func (in scoreInput) validate() error {
	if in.Unit1Score == nil || in.Unit2Score == nil {
		return errors.New("unit1_score and unit2_score are required")
	}
	return nil
}

// eventAndMatch reads the {eventID} and {matchID} path parameters.
func eventAndMatch(r *http.Request) (int, int, error) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		return 0, 0, err
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		return 0, 0, err
	}
	return eventID, matchID, nil
}

// GetMatch godoc
// @Summary Get one match with its games
// @Tags matches
// @Produce json
// @Param eventID path int true "Event ID"
// @Param matchID path int true "Match ID"
// @Success 200 {object} map[string]interface{} "Match"
// @Failure 404 {object} map[string]string "Match not found"
// @Router /events/{eventID}/matches/{matchID} [get]
func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	eventID, matchID, err := eventAndMatch(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.GetMatch(r.Context(), eventID, matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// MarkReady godoc
// @Summary Record or withdraw the both-sides-checked-in signal
// @Tags matches
// @Accept json
// @Produce json
// @Param eventID path int true "Event ID"
// @Param matchID path int true "Match ID"
// @Success 200 {object} map[string]interface{} "Match"
// @Failure 409 {object} map[string]string "Match not in a state that can change readiness"
// @Security BearerAuth
// @Router /events/{eventID}/matches/{matchID}/ready [put]
func (h *MatchHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	eventID, matchID, err := eventAndMatch(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input readyInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.MarkReady(r.Context(), eventID, matchID, input.Ready)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// QueueMatch godoc
// @Summary Admit a ready match to the court queue
// @Description A free preferred court is assigned at once; otherwise the match waits in the queue.
// @Tags courts
// @Accept json
// @Produce json
// @Param eventID path int true "Event ID"
// @Param matchID path int true "Match ID"
// @Success 200 {object} map[string]interface{} "Queued match"
// @Failure 409 {object} map[string]string "Match is not ready"
// @Security BearerAuth
// @Router /events/{eventID}/matches/{matchID}/queue [post]
func (h *MatchHandler) QueueMatch(w http.ResponseWriter, r *http.Request) {
	eventID, matchID, err := eventAndMatch(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input queueInput
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}

	match, err := h.courtService.QueueMatch(r.Context(), eventID, matchID, input.CourtID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AssignCourt godoc
// @Summary Place a queued match on a court, bypassing the queue order
// @Tags courts
// @Accept json
// @Produce json
// @Param eventID path int true "Event ID"
// @Param matchID path int true "Match ID"
// @Success 200 {object} map[string]interface{} "Assigned match"
// @Failure 409 {object} map[string]string "Court unavailable or match not queued"
// @Security BearerAuth
// @Router /events/{eventID}/matches/{matchID}/court [put]
func (h *MatchHandler) AssignCourt(w http.ResponseWriter, r *http.Request) {
	eventID, matchID, err := eventAndMatch(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input assignCourtInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.CourtID <= 0 {
		badRequestResponse(w, r, errors.New("court_id is required"))
		return
	}

	match, err := h.courtService.AssignCourt(r.Context(), eventID, matchID, input.CourtID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StartMatch godoc
// @Summary Start a queued match on its court
// @Tags matches
// @Produce json
// @Param eventID path int true "Event ID"
// @Param matchID path int true "Match ID"
// @Success 200 {object} map[string]interface{} "Match in progress"
// @Failure 409 {object} map[string]string "Match has no court or is not queued"
// @Security BearerAuth
// @Router /events/{eventID}/matches/{matchID}/start [post]
func (h *MatchHandler) StartMatch(w http.ResponseWriter, r *http.Request) {
	eventID, matchID, err := eventAndMatch(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.StartMatch(r.Context(), eventID, matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CancelMatch godoc
// @Summary Cancel a match that has not completed
// @Tags matches
// @Produce json
// @Param eventID path int true "Event ID"
// @Param matchID path int true "Match ID"
// @Success 200 {object} map[string]interface{} "Cancelled match"
// @Failure 409 {object} map[string]string "Match already completed or cancelled"
// @Security BearerAuth
// @Router /events/{eventID}/matches/{matchID}/cancel [post]
func (h *MatchHandler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	eventID, matchID, err := eventAndMatch(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.CancelMatch(r.Context(), eventID, matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SubmitScore godoc
// @Summary Submit a game score for the caller's side
// @Description A matching submission from the other side confirms the game. A conflicting one disputes it; the response then carries a warning.
// @Tags scores
// @Accept json
// @Produce json
// @Param gameID path int true "Game ID"
// @Success 200 {object} map[string]interface{} "Score result"
// @Failure 403 {object} map[string]string "Caller does not play in this match"
// @Failure 409 {object} map[string]string "Game already confirmed or awaiting admin decision"
// @Security BearerAuth
// @Router /games/{gameID}/score [post]
func (h *MatchHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	var input scoreInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := input.validate(); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.matchService.SubmitScore(r.Context(), currentUserID, gameID, *input.Unit1Score, *input.Unit2Score)
	if err != nil && !(services.IsSoftError(err) && result != nil) {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	env := jsonResponse{"result": result}
	if err != nil {
		env["warning"] = err.Error()
	}
	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// EditGameScore godoc
// @Summary Set a game score with admin authority
// @Description Always authoritative: confirms the game and resolves any dispute.
// @Tags scores
// @Accept json
// @Produce json
// @Param eventID path int true "Event ID"
// @Param gameID path int true "Game ID"
// @Success 200 {object} map[string]interface{} "Match"
// @Failure 409 {object} map[string]string "Correction not allowed"
// @Security BearerAuth
// @Router /events/{eventID}/games/{gameID}/score [put]
func (h *MatchHandler) EditGameScore(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input scoreInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := input.validate(); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.EditGameScore(r.Context(), eventID, gameID, *input.Unit1Score, *input.Unit2Score)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
