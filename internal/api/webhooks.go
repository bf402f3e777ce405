/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/models"
	"github.com/pawmarkhq/placement/internal/placement"
)

func (a *API) handleWebhooksList(w http.ResponseWriter, r *http.Request) {
	programID := chi.URLParam(r, "programID")

	var targets []models.WebhookTarget
	if err := a.db.WithContext(r.Context()).
		Where("program_id = ?", programID).
		Order("created_at ASC").
		Find(&targets).Error; err != nil {
		a.logger.Error().Err(err).Msg("list webhooks failed")
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

func (a *API) handleWebhooksCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL    string `json:"url"`
		Events string `json:"events"`
		Secret string `json:"secret"`
	}
	if err := decodeJSON(r, &body); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, "url_required")
		return
	}
	if parsed, err := url.Parse(body.URL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		writeError(w, http.StatusBadRequest, "invalid_url")
		return
	}

	programID := chi.URLParam(r, "programID")
	if _, err := a.placement.GetProgram(r.Context(), programID); err != nil {
		if errors.Is(err, placement.ErrProgramNotFound) {
			writeError(w, http.StatusNotFound, "program_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("create webhook failed")
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}

	target := models.WebhookTarget{
		ID:        uuid.NewString(),
		ProgramID: programID,
		URL:       body.URL,
		Events:    body.Events,
		Secret:    body.Secret,
		Active:    true,
	}
	if err := a.db.WithContext(r.Context()).Create(&target).Error; err != nil {
		a.logger.Error().Err(err).Msg("create webhook failed")
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}
	writeJSON(w, http.StatusCreated, target)
}

func (a *API) handleWebhooksDelete(w http.ResponseWriter, r *http.Request) {
	result := a.db.WithContext(r.Context()).
		Where("id = ? AND program_id = ?", chi.URLParam(r, "webhookID"), chi.URLParam(r, "programID")).
		Delete(&models.WebhookTarget{})
	if result.Error != nil {
		a.logger.Error().Err(result.Error).Msg("delete webhook failed")
		writeError(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	if result.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "webhook_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWebhooksTest(w http.ResponseWriter, r *http.Request) {
	var target models.WebhookTarget
	err := a.db.WithContext(r.Context()).
		Where("id = ? AND program_id = ?", chi.URLParam(r, "webhookID"), chi.URLParam(r, "programID")).
		First(&target).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "webhook_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("test webhook failed")
		writeError(w, http.StatusInternalServerError, "test_failed")
		return
	}

	if err := a.webhooks.TestWebhook(&target); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "delivery_failed", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := a.audit.Recent(r.Context(), r.URL.Query().Get("program_id"), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list audit entries failed")
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
