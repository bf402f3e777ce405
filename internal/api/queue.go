/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pawmarkhq/placement/internal/placement"
)

func (a *API) handleQueueList(w http.ResponseWriter, r *http.Request) {
	entries, err := a.placement.ListQueue(r.Context(), chi.URLParam(r, "programID"))
	if err != nil {
		a.logger.Error().Err(err).Msg("list queue failed")
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleQueueJoin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BuyerID      string `json:"buyer_id"`
		DisplayName  string `json:"display_name"`
		ContactEmail string `json:"contact_email"`
	}
	if err := decodeJSON(r, &body); err != nil || body.BuyerID == "" {
		writeError(w, http.StatusBadRequest, "buyer_id_required")
		return
	}

	entry, err := a.placement.JoinQueue(r.Context(), chi.URLParam(r, "programID"), body.BuyerID, body.DisplayName, body.ContactEmail)
	if err != nil {
		switch {
		case errors.Is(err, placement.ErrProgramNotFound):
			writeError(w, http.StatusNotFound, "program_not_found")
		case errors.Is(err, placement.ErrDuplicateBuyer):
			writeError(w, http.StatusConflict, "already_queued")
		default:
			a.logger.Error().Err(err).Msg("join queue failed")
			writeError(w, http.StatusInternalServerError, "join_failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleQueueLeave(w http.ResponseWriter, r *http.Request) {
	err := a.placement.LeaveQueue(r.Context(), chi.URLParam(r, "programID"), chi.URLParam(r, "buyerID"))
	if err != nil {
		switch {
		case errors.Is(err, placement.ErrEntryNotFound):
			writeError(w, http.StatusNotFound, "entry_not_found")
		case errors.Is(err, placement.ErrAlreadyPlaced):
			writeError(w, http.StatusConflict, "already_placed")
		default:
			a.logger.Error().Err(err).Msg("leave queue failed")
			writeError(w, http.StatusInternalServerError, "leave_failed")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQueueRanks replaces the program's ranking with the posted entry order.
func (a *API) handleQueueRanks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EntryIDs []string `json:"entry_ids"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if err := a.placement.AssignRanks(r.Context(), chi.URLParam(r, "programID"), body.EntryIDs); err != nil {
		if errors.Is(err, placement.ErrEntryNotFound) {
			writeError(w, http.StatusBadRequest, "unknown_entry")
			return
		}
		a.logger.Error().Err(err).Msg("assign ranks failed")
		writeError(w, http.StatusInternalServerError, "rank_failed")
		return
	}

	entries, err := a.placement.ListQueue(r.Context(), chi.URLParam(r, "programID"))
	if err != nil {
		a.logger.Error().Err(err).Msg("reload queue failed")
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
