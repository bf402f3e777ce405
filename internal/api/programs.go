/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pawmarkhq/placement/internal/gating"
	"github.com/pawmarkhq/placement/internal/placement"
)

func (a *API) handleProgramsList(w http.ResponseWriter, r *http.Request) {
	programs, err := a.placement.ListPrograms(r.Context(), r.URL.Query().Get("tenant_id"))
	if err != nil {
		a.logger.Error().Err(err).Msg("list programs failed")
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, programs)
}

func (a *API) handleProgramsCreate(w http.ResponseWriter, r *http.Request) {
	var input placement.ProgramInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	program, err := a.placement.CreateProgram(r.Context(), input)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_program")
		return
	}
	writeJSON(w, http.StatusCreated, program)
}

func (a *API) handleProgramsGet(w http.ResponseWriter, r *http.Request) {
	program, err := a.placement.GetProgram(r.Context(), chi.URLParam(r, "programID"))
	if err != nil {
		if errors.Is(err, placement.ErrProgramNotFound) {
			writeError(w, http.StatusNotFound, "program_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("get program failed")
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}
	writeJSON(w, http.StatusOK, program)
}

func (a *API) handleProgramsUpdate(w http.ResponseWriter, r *http.Request) {
	var input placement.ProgramInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	program, err := a.placement.UpdateProgram(r.Context(), chi.URLParam(r, "programID"), input)
	if err != nil {
		if errors.Is(err, placement.ErrProgramNotFound) {
			writeError(w, http.StatusNotFound, "program_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("update program failed")
		writeError(w, http.StatusInternalServerError, "update_failed")
		return
	}
	writeJSON(w, http.StatusOK, program)
}

func (a *API) handlePolicyGet(w http.ResponseWriter, r *http.Request) {
	program, err := a.placement.GetProgram(r.Context(), chi.URLParam(r, "programID"))
	if err != nil {
		if errors.Is(err, placement.ErrProgramNotFound) {
			writeError(w, http.StatusNotFound, "program_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"policy":   program.PolicyJSON,
		"problems": gating.Validate(program.PolicyJSON),
	})
}

// handlePolicySet stores the raw blob and reports the advisory problem list.
// A blob with problems is still stored: enforcement fails open and the list
// is the authoring surface's warning, not a rejection.
func (a *API) handlePolicySet(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	problems, err := a.placement.SetPolicy(r.Context(), chi.URLParam(r, "programID"), raw)
	if err != nil {
		if errors.Is(err, placement.ErrProgramNotFound) {
			writeError(w, http.StatusNotFound, "program_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("set policy failed")
		writeError(w, http.StatusInternalServerError, "set_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stored":   true,
		"problems": problems,
	})
}

func (a *API) handlePolicyValidate(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	problems := gating.Validate(raw)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    len(problems) == 0,
		"problems": problems,
	})
}
