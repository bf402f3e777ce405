/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/models"
)

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to relevant events and logs them as audit entries.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	placementRecorded := s.bus.Subscribe(events.EventPlacementRecorded)
	queueUpdated := s.bus.Subscribe(events.EventQueueUpdated)
	policyUpdated := s.bus.Subscribe(events.EventPolicyUpdated)
	programUpdated := s.bus.Subscribe(events.EventProgramUpdated)
	geneticsSynced := s.bus.Subscribe(events.EventGeneticsSynced)

	defer func() {
		s.bus.Unsubscribe(events.EventPlacementRecorded, placementRecorded)
		s.bus.Unsubscribe(events.EventQueueUpdated, queueUpdated)
		s.bus.Unsubscribe(events.EventPolicyUpdated, policyUpdated)
		s.bus.Unsubscribe(events.EventProgramUpdated, programUpdated)
		s.bus.Unsubscribe(events.EventGeneticsSynced, geneticsSynced)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload := <-placementRecorded:
			s.logAuditEntry(ctx, models.AuditActionPlacementRecord, payload)

		case payload := <-queueUpdated:
			s.logAuditEntry(ctx, queueAction(payload), payload)

		case payload := <-policyUpdated:
			s.logAuditEntry(ctx, models.AuditActionPolicyUpdate, payload)

		case payload := <-programUpdated:
			s.logAuditEntry(ctx, programAction(payload), payload)

		case payload := <-geneticsSynced:
			s.logAuditEntry(ctx, models.AuditActionGeneticsSync, payload)
		}
	}
}

// queueAction maps a queue change payload to an audit action.
func queueAction(payload events.Payload) models.AuditAction {
	change, _ := payload["change"].(string)
	switch change {
	case "joined":
		return models.AuditActionQueueJoin
	case "withdrawn":
		return models.AuditActionQueueLeave
	case "expired":
		return models.AuditActionQueueExpire
	default:
		return models.AuditActionQueueRerank
	}
}

// programAction maps a program change payload to an audit action.
func programAction(payload events.Payload) models.AuditAction {
	if change, _ := payload["change"].(string); change == "created" {
		return models.AuditActionProgramCreate
	}
	return models.AuditActionProgramUpdate
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Action:    action,
		Details:   make(map[string]any),
		CreatedAt: time.Now(),
	}

	if actorID, ok := payload["actor_id"].(string); ok && actorID != "" {
		entry.ActorID = &actorID
	}
	if programID, ok := payload["program_id"].(string); ok && programID != "" {
		entry.ProgramID = &programID
	}
	if resourceType, ok := payload["resource_type"].(string); ok {
		entry.ResourceType = resourceType
	}
	if resourceID, ok := payload["resource_id"].(string); ok {
		entry.ResourceID = resourceID
	}

	// Copy remaining fields to details
	for k, v := range payload {
		switch k {
		case "actor_id", "program_id", "resource_type", "resource_id":
			// Already extracted
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	return s.db.WithContext(ctx).Create(entry).Error
}

// Recent returns the newest audit entries, optionally filtered by program.
func (s *Service) Recent(ctx context.Context, programID string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := s.db.WithContext(ctx).Order("timestamp DESC").Limit(limit)
	if programID != "" {
		query = query.Where("program_id = ?", programID)
	}

	var entries []models.AuditLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
