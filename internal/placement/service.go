/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package placement wires the pure gating calculator to stored programs,
// queues and placements. The calculator never touches the database or the
// clock; this service feeds it and enforces its decisions transactionally.
package placement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/cache"
	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/gating"
	"github.com/pawmarkhq/placement/internal/models"
	"github.com/pawmarkhq/placement/internal/telemetry"
)

var (
	// ErrProgramNotFound is returned when a program ID does not exist.
	ErrProgramNotFound = errors.New("program not found")
	// ErrEntryNotFound is returned when a buyer has no queue entry in the program.
	ErrEntryNotFound = errors.New("queue entry not found")
	// ErrAlreadyPlaced is returned when a buyer's entry was already converted
	// to a placement.
	ErrAlreadyPlaced = errors.New("queue entry already placed")
)

// BlockedError reports a placement attempt refused by the gate.
type BlockedError struct {
	Code    gating.Code
	Message string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("placement blocked (%s): %s", e.Code, e.Message)
}

// Publisher is the bus surface the service needs. Satisfied by both the
// in-process bus and the Redis-backed bus.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Service evaluates and records placements.
type Service struct {
	db     *gorm.DB
	bus    Publisher
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewService creates a placement service. cache may be nil.
func NewService(db *gorm.DB, bus Publisher, cacheLayer *cache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		cache:  cacheLayer,
		logger: logger.With().Str("component", "placement").Logger(),
	}
}

// PolicyFor loads and parses the program's placement policy. A malformed or
// absent blob yields (nil, nil): the gate fails open on configuration errors
// rather than blocking every buyer because of a bad config write. The parsed
// result (including absence) is cached.
func (s *Service) PolicyFor(ctx context.Context, programID string) (*gating.Policy, error) {
	if s.cache != nil {
		if policy, hit := s.cache.GetPolicy(ctx, programID); hit {
			return policy, nil
		}
	}

	var program models.Program
	if err := s.db.WithContext(ctx).Select("id", "policy_json").First(&program, "id = ?", programID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("load program: %w", err)
	}

	policy := s.parsePolicy(programID, program.PolicyJSON)

	if s.cache != nil {
		_ = s.cache.SetPolicy(ctx, programID, policy)
	}
	return policy, nil
}

func (s *Service) parsePolicy(programID string, raw map[string]any) *gating.Policy {
	if len(raw) == 0 {
		return nil
	}
	policy, err := gating.Parse(raw)
	if err != nil {
		// Fail open: treat a malformed policy as no gating.
		s.logger.Debug().Err(err).Str("program_id", programID).Msg("placement policy unusable, gating disabled for program")
		return nil
	}
	return policy
}

// EntryFor returns the buyer's queue entry in the program, or ErrEntryNotFound.
func (s *Service) EntryFor(ctx context.Context, programID, buyerID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := s.db.WithContext(ctx).
		First(&entry, "program_id = ? AND buyer_id = ?", programID, buyerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load queue entry: %w", err)
	}
	return &entry, nil
}

// Evaluation is a gating decision with its supporting context.
type Evaluation struct {
	Allowed bool           `json:"allowed"`
	Code    gating.Code    `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Rank    *int           `json:"rank,omitempty"`
	Window  *gating.Window `json:"window,omitempty"`
}

// Evaluate answers whether the buyer may place in the program at now. A buyer
// with no queue entry at all is treated the same as an unranked one.
func (s *Service) Evaluate(ctx context.Context, programID, buyerID string, now time.Time) (*Evaluation, error) {
	policy, err := s.PolicyFor(ctx, programID)
	if err != nil {
		return nil, err
	}

	rank := 0
	var rankPtr *int
	entry, err := s.EntryFor(ctx, programID, buyerID)
	switch {
	case errors.Is(err, ErrEntryNotFound):
		// No entry: gate as unranked.
	case err != nil:
		return nil, err
	case entry.Rank != nil:
		rank = *entry.Rank
		rankPtr = entry.Rank
	}

	return s.evaluate(policy, rank, rankPtr, now), nil
}

func (s *Service) evaluate(policy *gating.Policy, rank int, rankPtr *int, now time.Time) *Evaluation {
	result := gating.Check(policy, rank, now)

	outcome := "allowed"
	if !result.Allowed {
		outcome = string(result.Code)
	}
	telemetry.GatingDecisions.WithLabelValues(outcome).Inc()

	eval := &Evaluation{
		Allowed: result.Allowed,
		Code:    result.Code,
		Rank:    rankPtr,
	}
	if policy != nil {
		eval.Window = gating.ComputeWindow(*policy, rank)
	}
	if !result.Allowed {
		eval.Message = gating.BlockedMessage(result.Code)
	}
	return eval
}

// RankedWindow pairs a rank with its computed window for the schedule table.
type RankedWindow struct {
	Rank   int           `json:"rank"`
	Window gating.Window `json:"window"`
}

// WindowTable computes the first n ranks' windows for a program. Returns an
// empty table when the program has no usable or enabled policy.
func (s *Service) WindowTable(ctx context.Context, programID string, n int) ([]RankedWindow, error) {
	policy, err := s.PolicyFor(ctx, programID)
	if err != nil {
		return nil, err
	}
	if policy == nil || !policy.Enabled {
		return []RankedWindow{}, nil
	}

	table := make([]RankedWindow, 0, n)
	for rank := 1; rank <= n; rank++ {
		window := gating.ComputeWindow(*policy, rank)
		if window == nil {
			break
		}
		table = append(table, RankedWindow{Rank: rank, Window: *window})
	}
	return table, nil
}

// RecordRequest describes a placement to record.
type RecordRequest struct {
	ProgramID string
	BuyerID   string
	AnimalID  string
}

// Record converts an open queue entry into a placement. The gating decision
// is re-checked inside the transaction with the caller-supplied now, so an
// allowed answer fetched earlier cannot be replayed after the window closes.
func (s *Service) Record(ctx context.Context, req RecordRequest, now time.Time) (*models.Placement, error) {
	var placement *models.Placement

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var program models.Program
		if err := tx.First(&program, "id = ?", req.ProgramID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProgramNotFound
			}
			return fmt.Errorf("load program: %w", err)
		}

		var entry models.QueueEntry
		err := tx.First(&entry, "program_id = ? AND buyer_id = ?", req.ProgramID, req.BuyerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("load queue entry: %w", err)
		}
		if entry.Status == models.QueueStatusPlaced {
			return ErrAlreadyPlaced
		}

		// Parse from the row inside the transaction, not the cache.
		policy := s.parsePolicy(req.ProgramID, program.PolicyJSON)

		rank := 0
		if entry.Rank != nil {
			rank = *entry.Rank
		}
		result := gating.Check(policy, rank, now)
		if !result.Allowed {
			telemetry.GatingDecisions.WithLabelValues(string(result.Code)).Inc()
			return &BlockedError{Code: result.Code, Message: gating.BlockedMessage(result.Code)}
		}
		telemetry.GatingDecisions.WithLabelValues("allowed").Inc()

		placement = &models.Placement{
			ID:           uuid.NewString(),
			ProgramID:    req.ProgramID,
			QueueEntryID: entry.ID,
			BuyerID:      req.BuyerID,
			AnimalID:     req.AnimalID,
			Rank:         rank,
			DecidedAt:    now,
		}
		if policy != nil {
			if window := gating.ComputeWindow(*policy, rank); window != nil {
				placement.WindowStartsAt = window.StartsAt
				placement.WindowEndsAt = window.EndsAt
				placement.GraceEndsAt = window.GraceEndsAt
			}
		}

		if err := tx.Create(placement).Error; err != nil {
			return fmt.Errorf("create placement: %w", err)
		}

		entry.Status = models.QueueStatusPlaced
		if err := tx.Save(&entry).Error; err != nil {
			return fmt.Errorf("update queue entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.PlacementsRecorded.Inc()

	if s.cache != nil {
		_ = s.cache.InvalidateQueue(ctx, req.ProgramID)
	}
	s.bus.Publish(events.EventPlacementRecorded, events.Payload{
		"program_id":   req.ProgramID,
		"buyer_id":     req.BuyerID,
		"animal_id":    req.AnimalID,
		"placement_id": placement.ID,
		"rank":         placement.Rank,
	})

	s.logger.Info().
		Str("program_id", req.ProgramID).
		Str("buyer_id", req.BuyerID).
		Int("rank", placement.Rank).
		Msg("placement recorded")

	return placement, nil
}
