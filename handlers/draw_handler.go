package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/pickleball-eventday/services"
)

type DrawHandler struct {
	drawService services.DrawService
}

func NewDrawHandler(ds services.DrawService) *DrawHandler {
	return &DrawHandler{drawService: ds}
}

type drawNextInput struct {
	ExpectedPosition *int `json:"expected_position"`
}

// StartDrawing godoc
// @Summary Start the live draw of a division
// @Tags draw
// @Produce json
// @Param divisionID path int true "Division ID"
// @Success 200 {object} map[string]interface{} "Division in drawing state"
// @Failure 404 {object} map[string]string "Division not found"
// @Failure 409 {object} map[string]string "Division already drawn or drawing"
// @Security BearerAuth
// @Router /divisions/{divisionID}/draw/start [post]
func (h *DrawHandler) StartDrawing(w http.ResponseWriter, r *http.Request) {
	divisionID, err := getIDFromURL(r, "divisionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	division, err := h.drawService.StartDrawing(r.Context(), divisionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"division": division}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DrawNext godoc
// @Summary Reveal the next unit of a division's draw
// @Description expected_position is required. A position that is already drawn returns the recorded unit, so retries never draw twice.
// @Tags draw
// @Accept json
// @Produce json
// @Param divisionID path int true "Division ID"
// @Success 200 {object} map[string]interface{} "Drawn unit and position"
// @Failure 400 {object} map[string]string "Missing expected_position"
// @Failure 409 {object} map[string]string "No drawing in progress or draw exhausted"
// @Security BearerAuth
// @Router /divisions/{divisionID}/draw/next [post]
func (h *DrawHandler) DrawNext(w http.ResponseWriter, r *http.Request) {
	divisionID, err := getIDFromURL(r, "divisionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input drawNextInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.ExpectedPosition == nil {
		badRequestResponse(w, r, errors.New("expected_position is required"))
		return
	}

	result, err := h.drawService.DrawNext(r.Context(), divisionID, *input.ExpectedPosition)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"draw": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CompleteDrawing godoc
// @Summary Fix the drawn order and generate the division's matches
// @Tags draw
// @Produce json
// @Param divisionID path int true "Division ID"
// @Success 200 {object} map[string]interface{} "Division with assigned positions"
// @Failure 409 {object} map[string]string "Units remain to be drawn"
// @Security BearerAuth
// @Router /divisions/{divisionID}/draw/complete [post]
func (h *DrawHandler) CompleteDrawing(w http.ResponseWriter, r *http.Request) {
	divisionID, err := getIDFromURL(r, "divisionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	division, err := h.drawService.CompleteDrawing(r.Context(), divisionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"division": division}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CancelDrawing godoc
// @Summary Cancel a drawing and discard its progress
// @Tags draw
// @Produce json
// @Param divisionID path int true "Division ID"
// @Success 200 {object} map[string]interface{} "Division back in pending state"
// @Failure 409 {object} map[string]string "No drawing in progress"
// @Security BearerAuth
// @Router /divisions/{divisionID}/draw/cancel [post]
func (h *DrawHandler) CancelDrawing(w http.ResponseWriter, r *http.Request) {
	divisionID, err := getIDFromURL(r, "divisionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	division, err := h.drawService.CancelDrawing(r.Context(), divisionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"division": division}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
