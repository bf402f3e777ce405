/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package notifications maintains the outbox the platform's sender drains.
// Rows are written in response to domain events and by the reminder ticker;
// delivery itself happens outside this service.
package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/models"
	"github.com/pawmarkhq/placement/internal/telemetry"
)

// Service writes notification outbox rows.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates the outbox service. bus may be nil when event-driven
// notifications are not wanted (tests, one-off commands).
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "notifications").Logger(),
	}
}

// Start subscribes to placement and queue events and writes outbox rows for
// them until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	if s.bus == nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	placements := s.bus.Subscribe(events.EventPlacementRecorded)
	queueChanges := s.bus.Subscribe(events.EventQueueUpdated)

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				s.bus.Unsubscribe(events.EventPlacementRecorded, placements)
				s.bus.Unsubscribe(events.EventQueueUpdated, queueChanges)
				return
			case payload, ok := <-placements:
				if !ok {
					return
				}
				if err := s.onPlacementRecorded(ctx, payload); err != nil {
					s.logger.Error().Err(err).Msg("placement notification failed")
				}
			case payload, ok := <-queueChanges:
				if !ok {
					return
				}
				if err := s.onQueueUpdated(ctx, payload); err != nil {
					s.logger.Error().Err(err).Msg("queue notification failed")
				}
			}
		}
	}()
}

// Stop halts event consumption.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

func (s *Service) onPlacementRecorded(ctx context.Context, payload events.Payload) error {
	buyerID, _ := payload["buyer_id"].(string)
	placementID, _ := payload["placement_id"].(string)
	programID, _ := payload["program_id"].(string)
	if buyerID == "" || placementID == "" {
		return nil
	}

	entry, email := s.lookupEntry(ctx, programID, buyerID)

	return s.Enqueue(ctx, &models.Notification{
		RecipientID:      buyerID,
		RecipientEmail:   email,
		NotificationType: models.NotificationTypePlacementMade,
		Channel:          models.NotificationChannelEmail,
		Subject:          "Your placement is confirmed",
		Body:             placementBody(entry),
		ReferenceType:    "placement",
		ReferenceID:      placementID,
	})
}

func (s *Service) onQueueUpdated(ctx context.Context, payload events.Payload) error {
	change, _ := payload["change"].(string)
	if change != "reranked" {
		return nil
	}
	programID, _ := payload["program_id"].(string)
	if programID == "" {
		return nil
	}

	var entries []models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("program_id = ? AND status = ? AND rank IS NOT NULL", programID, models.QueueStatusWaiting).
		Find(&entries).Error
	if err != nil {
		return fmt.Errorf("load ranked entries: %w", err)
	}

	for i := range entries {
		entry := &entries[i]
		notification := &models.Notification{
			RecipientID:      entry.BuyerID,
			RecipientEmail:   entry.ContactEmail,
			NotificationType: models.NotificationTypeQueueRankChanged,
			Channel:          models.NotificationChannelInApp,
			Subject:          "Your queue position was updated",
			Body:             fmt.Sprintf("You are now number %d in the placement queue.", *entry.Rank),
			ReferenceType:    "queue_entry",
			ReferenceID:      entry.ID,
		}
		if err := s.Enqueue(ctx, notification); err != nil {
			return err
		}
	}
	return nil
}

// Enqueue writes one pending outbox row.
func (s *Service) Enqueue(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	notification.Status = models.NotificationStatusPending

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	telemetry.NotificationsEnqueued.WithLabelValues(string(notification.NotificationType)).Inc()
	s.logger.Debug().
		Str("type", string(notification.NotificationType)).
		Str("recipient_id", notification.RecipientID).
		Msg("notification enqueued")
	return nil
}

// Pending returns up to limit undelivered rows, oldest first. The external
// sender polls this.
func (s *Service) Pending(ctx context.Context, limit int) ([]models.Notification, error) {
	var rows []models.Notification
	err := s.db.WithContext(ctx).
		Where("status = ?", models.NotificationStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load pending notifications: %w", err)
	}
	return rows, nil
}

func (s *Service) lookupEntry(ctx context.Context, programID, buyerID string) (*models.QueueEntry, string) {
	var entry models.QueueEntry
	err := s.db.WithContext(ctx).
		First(&entry, "program_id = ? AND buyer_id = ?", programID, buyerID).Error
	if err != nil {
		return nil, ""
	}
	return &entry, entry.ContactEmail
}

func placementBody(entry *models.QueueEntry) string {
	if entry == nil || entry.DisplayName == "" {
		return "Your placement has been recorded. The breeder will be in touch with next steps."
	}
	return fmt.Sprintf("%s, your placement has been recorded. The breeder will be in touch with next steps.", entry.DisplayName)
}
