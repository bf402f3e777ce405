/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/models"
	"github.com/pawmarkhq/placement/internal/placement"
)

func (a *API) handleAnimalsList(w http.ResponseWriter, r *http.Request) {
	var animals []models.Animal
	err := a.db.WithContext(r.Context()).
		Where("program_id = ?", chi.URLParam(r, "programID")).
		Order("created_at ASC").
		Find(&animals).Error
	if err != nil {
		a.logger.Error().Err(err).Msg("list animals failed")
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, animals)
}

func (a *API) handleAnimalsCreate(w http.ResponseWriter, r *http.Request) {
	programID := chi.URLParam(r, "programID")
	if _, err := a.placement.GetProgram(r.Context(), programID); err != nil {
		if errors.Is(err, placement.ErrProgramNotFound) {
			writeError(w, http.StatusNotFound, "program_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}

	var body struct {
		Name     string         `json:"name"`
		Sex      string         `json:"sex"`
		Genetics map[string]any `json:"genetics"`
	}
	if err := decodeJSON(r, &body); err != nil || strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	animal := &models.Animal{
		ID:           uuid.NewString(),
		ProgramID:    programID,
		Name:         body.Name,
		Sex:          body.Sex,
		Available:    true,
		GeneticsJSON: body.Genetics,
	}
	if err := a.db.WithContext(r.Context()).Create(animal).Error; err != nil {
		a.logger.Error().Err(err).Msg("create animal failed")
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}
	writeJSON(w, http.StatusCreated, animal)
}

// handleAnimalLoci returns the normalized loci rows for one animal.
func (a *API) handleAnimalLoci(w http.ResponseWriter, r *http.Request) {
	animalID := chi.URLParam(r, "animalID")

	var animal models.Animal
	if err := a.db.WithContext(r.Context()).Select("id").First(&animal, "id = ?", animalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "animal_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}

	loci, err := a.genetics.LociFor(r.Context(), animalID)
	if err != nil {
		a.logger.Error().Err(err).Msg("load loci failed")
		writeError(w, http.StatusInternalServerError, "loci_failed")
		return
	}
	writeJSON(w, http.StatusOK, loci)
}

func (a *API) handleLociSearch(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	locus := r.URL.Query().Get("locus")
	if category == "" && locus == "" {
		writeError(w, http.StatusBadRequest, "filter_required")
		return
	}

	loci, err := a.genetics.Search(r.Context(), category, locus)
	if err != nil {
		a.logger.Error().Err(err).Msg("loci search failed")
		writeError(w, http.StatusInternalServerError, "search_failed")
		return
	}
	writeJSON(w, http.StatusOK, loci)
}

// handleGeneticsSync triggers an immediate full sync. dry_run=true reports
// without writing.
func (a *API) handleGeneticsSync(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"

	stats, err := a.genetics.SyncAll(r.Context(), dryRun)
	if err != nil {
		a.logger.Error().Err(err).Msg("genetics sync failed")
		writeError(w, http.StatusInternalServerError, "sync_failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
