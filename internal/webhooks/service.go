/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/models"
)

// Event type constants for webhooks.
const (
	EventPlacementRecorded = "placement_recorded"
	EventQueueUpdated      = "queue_updated"
	EventPolicyUpdated     = "policy_updated"
)

// Payload is the body sent to webhook endpoints.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	ProgramID string         `json:"program_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Service handles webhook delivery.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
	client *http.Client
}

// NewService creates a new webhook service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Start begins listening for events to trigger webhooks.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("webhook service starting")

	placementRecorded := s.bus.Subscribe(events.EventPlacementRecorded)
	queueUpdated := s.bus.Subscribe(events.EventQueueUpdated)
	policyUpdated := s.bus.Subscribe(events.EventPolicyUpdated)

	defer func() {
		s.bus.Unsubscribe(events.EventPlacementRecorded, placementRecorded)
		s.bus.Unsubscribe(events.EventQueueUpdated, queueUpdated)
		s.bus.Unsubscribe(events.EventPolicyUpdated, policyUpdated)
	}()

	s.logger.Info().Msg("webhook service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("webhook service stopping")
			return

		case payload := <-placementRecorded:
			s.fireWebhooks(ctx, EventPlacementRecorded, payload)

		case payload := <-queueUpdated:
			s.fireWebhooks(ctx, EventQueueUpdated, payload)

		case payload := <-policyUpdated:
			s.fireWebhooks(ctx, EventPolicyUpdated, payload)
		}
	}
}

// fireWebhooks sends webhooks registered for the event's program.
func (s *Service) fireWebhooks(ctx context.Context, eventType string, payload events.Payload) {
	programID, ok := payload["program_id"].(string)
	if !ok || programID == "" {
		return
	}

	var targets []models.WebhookTarget
	if err := s.db.Where("program_id = ? AND active = ?", programID, true).Find(&targets).Error; err != nil {
		s.logger.Error().Err(err).Str("program_id", programID).Msg("failed to fetch webhooks")
		return
	}

	for _, target := range targets {
		if !s.targetHandlesEvent(target, eventType) {
			continue
		}

		go s.sendWebhook(ctx, target, eventType, programID, payload)
	}
}

// targetHandlesEvent checks if a webhook is subscribed to an event type.
func (s *Service) targetHandlesEvent(target models.WebhookTarget, eventType string) bool {
	if target.Events == "" {
		return true // Default: handle all events
	}
	for _, e := range strings.Split(target.Events, ",") {
		if strings.TrimSpace(e) == eventType {
			return true
		}
	}
	return false
}

// sendWebhook sends a single webhook request.
func (s *Service) sendWebhook(ctx context.Context, target models.WebhookTarget, eventType, programID string, data events.Payload) {
	payload := Payload{
		Event:     eventType,
		Timestamp: time.Now().UTC(),
		ProgramID: programID,
		Data:      data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", target.ID).Msg("failed to marshal webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", target.ID).Msg("failed to create webhook request")
		s.logDelivery(target, eventType, http.StatusInternalServerError, err.Error())
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Pawmark-Webhook/1.0")
	req.Header.Set("X-Pawmark-Event", eventType)
	req.Header.Set("X-Pawmark-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))

	// Add HMAC signature if secret is configured
	if target.Secret != "" {
		req.Header.Set("X-Pawmark-Signature", s.signPayload(body, target.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error().Err(err).Str("webhook", target.ID).Str("url", target.URL).Msg("webhook delivery failed")
		s.logDelivery(target, eventType, 0, err.Error())
		return
	}
	defer resp.Body.Close()

	s.logDelivery(target, eventType, resp.StatusCode, "")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.logger.Debug().Str("webhook", target.ID).Str("event", eventType).Int("status", resp.StatusCode).Msg("webhook delivered")
	} else {
		s.logger.Warn().Str("webhook", target.ID).Str("event", eventType).Int("status", resp.StatusCode).Msg("webhook returned error status")
	}
}

// signPayload creates an HMAC-SHA256 signature.
func (s *Service) signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// logDelivery records a webhook delivery attempt.
func (s *Service) logDelivery(target models.WebhookTarget, eventType string, statusCode int, errorMsg string) {
	log := &models.WebhookLog{
		ID:         uuid.NewString(),
		TargetID:   target.ID,
		Event:      eventType,
		StatusCode: statusCode,
		Error:      errorMsg,
	}

	if err := s.db.Create(log).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to log webhook delivery")
	}
}

// TestWebhook sends a test payload to a webhook.
func (s *Service) TestWebhook(target *models.WebhookTarget) error {
	payload := Payload{
		Event:     "test",
		Timestamp: time.Now().UTC(),
		ProgramID: target.ProgramID,
		Data:      map[string]any{"message": "This is a test webhook delivery"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Pawmark-Webhook/1.0")
	req.Header.Set("X-Pawmark-Event", "test")
	req.Header.Set("X-Pawmark-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))

	if target.Secret != "" {
		req.Header.Set("X-Pawmark-Signature", s.signPayload(body, target.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
