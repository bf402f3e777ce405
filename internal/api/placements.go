/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pawmarkhq/placement/internal/models"
	"github.com/pawmarkhq/placement/internal/placement"
)

func (a *API) handlePlacementsList(w http.ResponseWriter, r *http.Request) {
	var placements []models.Placement
	err := a.db.WithContext(r.Context()).
		Where("program_id = ?", chi.URLParam(r, "programID")).
		Order("rank ASC").
		Find(&placements).Error
	if err != nil {
		a.logger.Error().Err(err).Msg("list placements failed")
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, placements)
}

// handlePlacementsCreate records a buyer's pick. The gating decision is made
// inside the service transaction at the server's clock; there is no "at"
// override on writes.
func (a *API) handlePlacementsCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BuyerID  string `json:"buyer_id"`
		AnimalID string `json:"animal_id"`
	}
	if err := decodeJSON(r, &body); err != nil || body.BuyerID == "" {
		writeError(w, http.StatusBadRequest, "buyer_id_required")
		return
	}

	record, err := a.placement.Record(r.Context(), placement.RecordRequest{
		ProgramID: chi.URLParam(r, "programID"),
		BuyerID:   body.BuyerID,
		AnimalID:  body.AnimalID,
	}, time.Now().UTC())
	if err != nil {
		var blocked *placement.BlockedError
		switch {
		case errors.As(err, &blocked):
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":   "placement_blocked",
				"code":    blocked.Code,
				"message": blocked.Message,
			})
		case errors.Is(err, placement.ErrProgramNotFound):
			writeError(w, http.StatusNotFound, "program_not_found")
		case errors.Is(err, placement.ErrEntryNotFound):
			writeError(w, http.StatusNotFound, "entry_not_found")
		case errors.Is(err, placement.ErrAlreadyPlaced):
			writeError(w, http.StatusConflict, "already_placed")
		default:
			a.logger.Error().Err(err).Msg("record placement failed")
			writeError(w, http.StatusInternalServerError, "record_failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, record)
}
