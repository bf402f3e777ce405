/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package placement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/gating"
	"github.com/pawmarkhq/placement/internal/models"
)

// ProgramInput carries the writable fields of a program.
type ProgramInput struct {
	TenantID    string `json:"tenant_id"`
	BreederID   string `json:"breeder_id"`
	Name        string `json:"name"`
	Species     string `json:"species"`
	Breed       string `json:"breed"`
	Timezone    string `json:"timezone"`
	Active      *bool  `json:"active,omitempty"`
	Description string `json:"description"`
}

// CreateProgram stores a new program without a policy.
func (s *Service) CreateProgram(ctx context.Context, input ProgramInput) (*models.Program, error) {
	if input.TenantID == "" || input.Name == "" {
		return nil, errors.New("tenant_id and name are required")
	}

	program := &models.Program{
		ID:          uuid.NewString(),
		TenantID:    input.TenantID,
		BreederID:   input.BreederID,
		Name:        input.Name,
		Species:     input.Species,
		Breed:       input.Breed,
		Timezone:    input.Timezone,
		Active:      true,
		Description: input.Description,
	}
	if input.Active != nil {
		program.Active = *input.Active
	}

	if err := s.db.WithContext(ctx).Create(program).Error; err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}

	s.bus.Publish(events.EventProgramUpdated, events.Payload{"program_id": program.ID, "change": "created"})
	return program, nil
}

// GetProgram loads a program by ID.
func (s *Service) GetProgram(ctx context.Context, programID string) (*models.Program, error) {
	var program models.Program
	if err := s.db.WithContext(ctx).First(&program, "id = ?", programID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("load program: %w", err)
	}
	return &program, nil
}

// ListPrograms returns programs, optionally filtered to one tenant.
func (s *Service) ListPrograms(ctx context.Context, tenantID string) ([]models.Program, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}

	var programs []models.Program
	if err := query.Find(&programs).Error; err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

// UpdateProgram applies the writable fields to an existing program. TenantID
// is immutable once set.
func (s *Service) UpdateProgram(ctx context.Context, programID string, input ProgramInput) (*models.Program, error) {
	program, err := s.GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}

	if input.Name != "" {
		program.Name = input.Name
	}
	if input.BreederID != "" {
		program.BreederID = input.BreederID
	}
	if input.Species != "" {
		program.Species = input.Species
	}
	if input.Breed != "" {
		program.Breed = input.Breed
	}
	if input.Timezone != "" {
		program.Timezone = input.Timezone
	}
	if input.Description != "" {
		program.Description = input.Description
	}
	if input.Active != nil {
		program.Active = *input.Active
	}

	if err := s.db.WithContext(ctx).Save(program).Error; err != nil {
		return nil, fmt.Errorf("update program: %w", err)
	}

	s.bus.Publish(events.EventProgramUpdated, events.Payload{"program_id": program.ID, "change": "updated"})
	return program, nil
}

// SetPolicy stores the raw policy blob on the program and returns the advisory
// validation error list. The blob is stored even when invalid; the gate fails
// open at evaluation time, and the list lets the authoring surface warn.
func (s *Service) SetPolicy(ctx context.Context, programID string, raw map[string]any) ([]string, error) {
	program, err := s.GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}

	program.PolicyJSON = raw
	if err := s.db.WithContext(ctx).Save(program).Error; err != nil {
		return nil, fmt.Errorf("store policy: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.InvalidatePolicy(ctx, programID)
	}
	s.bus.Publish(events.EventPolicyUpdated, events.Payload{"program_id": programID})

	problems := gating.Validate(raw)
	if len(problems) > 0 {
		s.logger.Warn().
			Str("program_id", programID).
			Strs("problems", problems).
			Msg("placement policy stored with validation problems")
	}
	return problems, nil
}
