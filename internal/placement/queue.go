/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package placement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/cache"
	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/gating"
	"github.com/pawmarkhq/placement/internal/models"
)

// ErrDuplicateBuyer is returned when a buyer already has an entry in the
// program's queue.
var ErrDuplicateBuyer = errors.New("buyer already queued in program")

// ListQueue returns the program's queue ordered rank-first (unranked last,
// then by join time), and refreshes the cached snapshot.
func (s *Service) ListQueue(ctx context.Context, programID string) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.db.WithContext(ctx).
		Where("program_id = ?", programID).
		Order("rank IS NULL, rank ASC, created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.SetQueue(ctx, programID, snapshotOf(entries))
	}
	return entries, nil
}

// QueueSnapshot returns the compact queue view pushed to live feeds, served
// from cache when possible.
func (s *Service) QueueSnapshot(ctx context.Context, programID string) ([]cache.CachedQueueEntry, error) {
	if s.cache != nil {
		if cached, hit := s.cache.GetQueue(ctx, programID); hit {
			return cached, nil
		}
	}
	entries, err := s.ListQueue(ctx, programID)
	if err != nil {
		return nil, err
	}
	return snapshotOf(entries), nil
}

func snapshotOf(entries []models.QueueEntry) []cache.CachedQueueEntry {
	snapshot := make([]cache.CachedQueueEntry, 0, len(entries))
	for _, entry := range entries {
		snapshot = append(snapshot, cache.CachedQueueEntry{
			ID:          entry.ID,
			BuyerID:     entry.BuyerID,
			DisplayName: entry.DisplayName,
			Rank:        entry.Rank,
			Status:      string(entry.Status),
		})
	}
	return snapshot
}

// JoinQueue appends a buyer to the program's queue, unranked.
func (s *Service) JoinQueue(ctx context.Context, programID, buyerID, displayName, contactEmail string) (*models.QueueEntry, error) {
	var exists models.Program
	if err := s.db.WithContext(ctx).Select("id").First(&exists, "id = ?", programID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("load program: %w", err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("program_id = ? AND buyer_id = ?", programID, buyerID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check queue membership: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateBuyer
	}

	entry := &models.QueueEntry{
		ID:           uuid.NewString(),
		ProgramID:    programID,
		BuyerID:      buyerID,
		DisplayName:  displayName,
		ContactEmail: contactEmail,
		Status:       models.QueueStatusWaiting,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("create queue entry: %w", err)
	}

	s.queueChanged(ctx, programID, "joined", entry.ID)
	return entry, nil
}

// LeaveQueue marks a buyer's entry withdrawn. A placed entry cannot withdraw.
func (s *Service) LeaveQueue(ctx context.Context, programID, buyerID string) error {
	entry, err := s.EntryFor(ctx, programID, buyerID)
	if err != nil {
		return err
	}
	if entry.Status == models.QueueStatusPlaced {
		return ErrAlreadyPlaced
	}

	entry.Status = models.QueueStatusWithdrawn
	entry.Rank = nil
	if err := s.db.WithContext(ctx).Save(entry).Error; err != nil {
		return fmt.Errorf("withdraw queue entry: %w", err)
	}

	s.queueChanged(ctx, programID, "withdrawn", entry.ID)
	return nil
}

// AssignRanks replaces the program's ranking with the given entry order.
// Ranks are assigned densely from 1; entries not listed lose their rank.
// Placed entries keep their rank untouched.
func (s *Service) AssignRanks(ctx context.Context, programID string, orderedEntryIDs []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entries []models.QueueEntry
		if err := tx.Where("program_id = ?", programID).Find(&entries).Error; err != nil {
			return fmt.Errorf("load queue: %w", err)
		}

		byID := make(map[string]*models.QueueEntry, len(entries))
		for i := range entries {
			byID[entries[i].ID] = &entries[i]
		}

		rank := 0
		ranked := make(map[string]int, len(orderedEntryIDs))
		for _, id := range orderedEntryIDs {
			entry, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
			}
			if entry.Status == models.QueueStatusPlaced {
				continue
			}
			rank++
			ranked[id] = rank
		}

		for i := range entries {
			entry := &entries[i]
			if entry.Status == models.QueueStatusPlaced {
				continue
			}
			if newRank, ok := ranked[entry.ID]; ok {
				entry.Rank = &newRank
			} else {
				entry.Rank = nil
			}
			if err := tx.Model(&models.QueueEntry{}).
				Where("id = ?", entry.ID).
				Update("rank", entry.Rank).Error; err != nil {
				return fmt.Errorf("update rank: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.queueChanged(ctx, programID, "reranked", "")
	return nil
}

// ExpireOverdueEntries marks ranked, still-waiting entries whose grace period
// has fully elapsed as expired. Returns the number of entries expired. Run by
// the leader worker so stale queues converge without breeder action.
func (s *Service) ExpireOverdueEntries(ctx context.Context, programID string, now time.Time) (int, error) {
	policy, err := s.PolicyFor(ctx, programID)
	if err != nil {
		return 0, err
	}
	if policy == nil || !policy.Enabled {
		return 0, nil
	}

	entries, err := s.ListQueue(ctx, programID)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range entries {
		entry := &entries[i]
		if entry.Status != models.QueueStatusWaiting || entry.Rank == nil {
			continue
		}
		window := gating.ComputeWindow(*policy, *entry.Rank)
		if window == nil || !now.After(window.GraceEndsAt) {
			continue
		}
		if err := s.db.WithContext(ctx).Model(&models.QueueEntry{}).
			Where("id = ? AND status = ?", entry.ID, models.QueueStatusWaiting).
			Update("status", models.QueueStatusExpired).Error; err != nil {
			return expired, fmt.Errorf("expire queue entry: %w", err)
		}
		expired++
	}

	if expired > 0 {
		s.queueChanged(ctx, programID, "expired", "")
		s.logger.Info().Str("program_id", programID).Int("expired", expired).Msg("overdue queue entries expired")
	}
	return expired, nil
}

// ExpireAllOverdue sweeps every active program for entries past their grace
// end. Returns the total number of entries expired.
func (s *Service) ExpireAllOverdue(ctx context.Context, now time.Time) (int, error) {
	var programIDs []string
	if err := s.db.WithContext(ctx).Model(&models.Program{}).
		Where("active = ?", true).
		Pluck("id", &programIDs).Error; err != nil {
		return 0, err
	}

	total := 0
	for _, programID := range programIDs {
		expired, err := s.ExpireOverdueEntries(ctx, programID, now)
		if err != nil {
			s.logger.Error().Err(err).Str("program_id", programID).Msg("queue expiry sweep failed")
			continue
		}
		total += expired
	}
	return total, nil
}

func (s *Service) queueChanged(ctx context.Context, programID, change, entryID string) {
	if s.cache != nil {
		_ = s.cache.InvalidateQueue(ctx, programID)
	}
	payload := events.Payload{
		"program_id": programID,
		"change":     change,
	}
	if entryID != "" {
		payload["entry_id"] = entryID
	}
	s.bus.Publish(events.EventQueueUpdated, payload)
}
