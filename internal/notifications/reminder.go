/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/gating"
	"github.com/pawmarkhq/placement/internal/models"
)

// LeaderChecker reports whether this instance holds the worker lease.
type LeaderChecker interface {
	IsLeader() bool
}

// Reminder scans ranked queue entries and enqueues window notifications:
// "opens soon" when a window starts within the lead time, and "open now" once
// it has started. Each notification is sent at most once per entry.
type Reminder struct {
	db       *gorm.DB
	outbox   *Service
	election LeaderChecker
	interval time.Duration
	lead     time.Duration
	logger   zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReminder creates the reminder ticker. election may be nil in
// single-instance mode.
func NewReminder(db *gorm.DB, outbox *Service, election LeaderChecker, interval, lead time.Duration, logger zerolog.Logger) *Reminder {
	return &Reminder{
		db:       db,
		outbox:   outbox,
		election: election,
		interval: interval,
		lead:     lead,
		logger:   logger.With().Str("component", "reminders").Logger(),
	}
}

// Start begins the scan loop.
func (r *Reminder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.logger.Info().Dur("interval", r.interval).Dur("lead", r.lead).Msg("reminder ticker started")
		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("reminder ticker stopped")
				return
			case <-ticker.C:
				if r.election != nil && !r.election.IsLeader() {
					continue
				}
				if err := r.Scan(ctx, time.Now().UTC()); err != nil {
					r.logger.Error().Err(err).Msg("reminder scan failed")
				}
			}
		}
	}()
}

// Stop halts the loop.
func (r *Reminder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// Scan walks active gated programs and enqueues due window notifications.
// Exported so a one-off run can be triggered without the ticker.
func (r *Reminder) Scan(ctx context.Context, now time.Time) error {
	var programs []models.Program
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Find(&programs).Error
	if err != nil {
		return fmt.Errorf("load programs: %w", err)
	}

	for i := range programs {
		program := &programs[i]
		if len(program.PolicyJSON) == 0 {
			continue
		}
		policy, err := gating.Parse(program.PolicyJSON)
		if err != nil || !policy.Enabled {
			continue
		}
		if err := r.scanProgram(ctx, program.ID, *policy, now); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reminder) scanProgram(ctx context.Context, programID string, policy gating.Policy, now time.Time) error {
	var entries []models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("program_id = ? AND status = ? AND rank IS NOT NULL", programID, models.QueueStatusWaiting).
		Find(&entries).Error
	if err != nil {
		return fmt.Errorf("load ranked entries: %w", err)
	}

	for i := range entries {
		entry := &entries[i]
		window := gating.ComputeWindow(policy, *entry.Rank)
		if window == nil {
			continue
		}

		switch {
		case !now.Before(window.StartsAt) && !now.After(window.GraceEndsAt):
			if err := r.enqueueOnce(ctx, entry, models.NotificationTypeWindowOpen,
				"Your placement window is open",
				fmt.Sprintf("Your placement window is open until %s.", window.EndsAt.Format(time.RFC1123)),
			); err != nil {
				return err
			}
		case now.Before(window.StartsAt) && window.StartsAt.Sub(now) <= r.lead:
			if err := r.enqueueOnce(ctx, entry, models.NotificationTypeWindowOpening,
				"Your placement window opens soon",
				fmt.Sprintf("Your placement window opens at %s.", window.StartsAt.Format(time.RFC1123)),
			); err != nil {
				return err
			}
		}
	}
	return nil
}

// enqueueOnce writes the notification unless one of the same type already
// exists for the entry. Ranks can be reshuffled between scans; the dedupe is
// per entry and type, not per window.
func (r *Reminder) enqueueOnce(ctx context.Context, entry *models.QueueEntry, notificationType models.NotificationType, subject, body string) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("reference_type = ? AND reference_id = ? AND notification_type = ?",
			"queue_entry", entry.ID, notificationType).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check existing notification: %w", err)
	}
	if count > 0 {
		return nil
	}

	return r.outbox.Enqueue(ctx, &models.Notification{
		RecipientID:      entry.BuyerID,
		RecipientEmail:   entry.ContactEmail,
		NotificationType: notificationType,
		Channel:          models.NotificationChannelEmail,
		Subject:          subject,
		Body:             body,
		ReferenceType:    "queue_entry",
		ReferenceID:      entry.ID,
	})
}
