/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package documents

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/models"
)

// ErrDocumentNotFound is returned when a document ID does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// Service manages animal document metadata and bytes together.
type Service struct {
	db      *gorm.DB
	storage Storage
	logger  zerolog.Logger
}

// NewService creates a documents service.
func NewService(db *gorm.DB, storage Storage, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		storage: storage,
		logger:  logger.With().Str("component", "documents").Logger(),
	}
}

// Upload stores the bytes and writes the metadata row. The stored object is
// removed again if the row cannot be written.
func (s *Service) Upload(ctx context.Context, animalID string, kind models.DocumentKind, filename, contentType string, size int64, file io.Reader) (*models.AnimalDocument, error) {
	var animal models.Animal
	if err := s.db.WithContext(ctx).Select("id").First(&animal, "id = ?", animalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("animal %s not found", animalID)
		}
		return nil, fmt.Errorf("load animal: %w", err)
	}

	if kind == "" {
		kind = models.DocumentKindOther
	}

	documentID := uuid.NewString()
	key, err := s.storage.Store(ctx, animalID, documentID, filename, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	document := &models.AnimalDocument{
		ID:          documentID,
		AnimalID:    animalID,
		Kind:        kind,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   size,
		StorageKey:  key,
	}
	if err := s.db.WithContext(ctx).Create(document).Error; err != nil {
		if removeErr := s.storage.Delete(ctx, key); removeErr != nil {
			s.logger.Error().Err(removeErr).Str("key", key).Msg("orphaned document object after failed metadata write")
		}
		return nil, fmt.Errorf("create document record: %w", err)
	}

	s.logger.Info().
		Str("animal_id", animalID).
		Str("document_id", documentID).
		Str("kind", string(kind)).
		Msg("document uploaded")
	return document, nil
}

// Get returns the metadata row for a document.
func (s *Service) Get(ctx context.Context, documentID string) (*models.AnimalDocument, error) {
	var document models.AnimalDocument
	if err := s.db.WithContext(ctx).First(&document, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("load document: %w", err)
	}
	return &document, nil
}

// Open returns the document metadata and a reader over its bytes. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, documentID string) (*models.AnimalDocument, io.ReadCloser, error) {
	document, err := s.Get(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	reader, err := s.storage.Open(ctx, document.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open document bytes: %w", err)
	}
	return document, reader, nil
}

// List returns one animal's documents, newest first.
func (s *Service) List(ctx context.Context, animalID string) ([]models.AnimalDocument, error) {
	var documents []models.AnimalDocument
	err := s.db.WithContext(ctx).
		Where("animal_id = ?", animalID).
		Order("created_at DESC").
		Find(&documents).Error
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return documents, nil
}

// Delete removes the metadata row and then the stored bytes. A failed byte
// delete is logged, not surfaced: the row is gone and a retry cannot find it.
func (s *Service) Delete(ctx context.Context, documentID string) error {
	document, err := s.Get(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.AnimalDocument{}, "id = ?", documentID).Error; err != nil {
		return fmt.Errorf("delete document record: %w", err)
	}
	if err := s.storage.Delete(ctx, document.StorageKey); err != nil {
		s.logger.Error().Err(err).Str("key", document.StorageKey).Msg("orphaned document object after row delete")
	}
	return nil
}
