/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pawmarkhq/placement/internal/placement"
)

// handleGatingCheck answers whether buyer_id may place right now (or at the
// optional RFC3339 "at" instant).
func (a *API) handleGatingCheck(w http.ResponseWriter, r *http.Request) {
	programID := chi.URLParam(r, "programID")
	buyerID := r.URL.Query().Get("buyer_id")
	if buyerID == "" {
		writeError(w, http.StatusBadRequest, "buyer_id_required")
		return
	}

	at, ok := parseAt(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_at")
		return
	}

	eval, err := a.placement.Evaluate(r.Context(), programID, buyerID, at)
	if err != nil {
		if errors.Is(err, placement.ErrProgramNotFound) {
			writeError(w, http.StatusNotFound, "program_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("gating evaluation failed")
		writeError(w, http.StatusInternalServerError, "evaluation_failed")
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// handleWindows returns the computed window table for the first N ranks.
func (a *API) handleWindows(w http.ResponseWriter, r *http.Request) {
	programID := chi.URLParam(r, "programID")

	ranks := 10
	if raw := r.URL.Query().Get("ranks"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "invalid_ranks")
			return
		}
		ranks = parsed
	}

	table, err := a.placement.WindowTable(r.Context(), programID, ranks)
	if err != nil {
		if errors.Is(err, placement.ErrProgramNotFound) {
			writeError(w, http.StatusNotFound, "program_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("window table failed")
		writeError(w, http.StatusInternalServerError, "windows_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": table})
}
