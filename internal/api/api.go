/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the placement service over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/audit"
	"github.com/pawmarkhq/placement/internal/documents"
	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/genetics"
	"github.com/pawmarkhq/placement/internal/placement"
	"github.com/pawmarkhq/placement/internal/webhooks"
)

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	placement *placement.Service
	genetics  *genetics.Service
	documents *documents.Service
	audit     *audit.Service
	webhooks  *webhooks.Service
	bus       *events.Bus
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, placementSvc *placement.Service, geneticsSvc *genetics.Service, documentsSvc *documents.Service, auditSvc *audit.Service, webhookSvc *webhooks.Service, bus *events.Bus, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		placement: placementSvc,
		genetics:  geneticsSvc,
		documents: documentsSvc,
		audit:     auditSvc,
		webhooks:  webhookSvc,
		bus:       bus,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers all API endpoints.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/policy/validate", a.handlePolicyValidate)

		r.Route("/programs", func(r chi.Router) {
			r.Get("/", a.handleProgramsList)
			r.Post("/", a.handleProgramsCreate)
			r.Route("/{programID}", func(r chi.Router) {
				r.Get("/", a.handleProgramsGet)
				r.Put("/", a.handleProgramsUpdate)

				r.Get("/policy", a.handlePolicyGet)
				r.Put("/policy", a.handlePolicySet)

				r.Get("/gating", a.handleGatingCheck)
				r.Get("/windows", a.handleWindows)

				r.Route("/queue", func(r chi.Router) {
					r.Get("/", a.handleQueueList)
					r.Post("/", a.handleQueueJoin)
					r.Delete("/{buyerID}", a.handleQueueLeave)
					r.Put("/ranks", a.handleQueueRanks)
					r.Get("/ws", a.handleQueueFeed)
				})

				r.Route("/placements", func(r chi.Router) {
					r.Get("/", a.handlePlacementsList)
					r.Post("/", a.handlePlacementsCreate)
				})

				r.Route("/animals", func(r chi.Router) {
					r.Get("/", a.handleAnimalsList)
					r.Post("/", a.handleAnimalsCreate)
				})

				r.Route("/webhooks", func(r chi.Router) {
					r.Get("/", a.handleWebhooksList)
					r.Post("/", a.handleWebhooksCreate)
					r.Delete("/{webhookID}", a.handleWebhooksDelete)
					r.Post("/{webhookID}/test", a.handleWebhooksTest)
				})
			})
		})

		r.Get("/audit", a.handleAuditList)

		r.Route("/animals/{animalID}", func(r chi.Router) {
			r.Get("/loci", a.handleAnimalLoci)
			r.Route("/documents", func(r chi.Router) {
				r.Get("/", a.handleDocumentsList)
				r.Post("/", a.handleDocumentUpload)
			})
		})

		r.Route("/documents/{documentID}", func(r chi.Router) {
			r.Get("/", a.handleDocumentDownload)
			r.Delete("/", a.handleDocumentDelete)
		})

		r.Post("/genetics/sync", a.handleGeneticsSync)
		r.Get("/loci/search", a.handleLociSearch)
	})
}

// parseAt reads an optional RFC3339 "at" query parameter, defaulting to the
// server clock. The gating core itself never reads the clock; this is the one
// edge where wall time enters.
func parseAt(r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return time.Now().UTC(), true
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
