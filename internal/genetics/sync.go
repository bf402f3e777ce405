/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package genetics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/models"
	"github.com/pawmarkhq/placement/internal/telemetry"
)

// Publisher is the bus surface the sync needs.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Stats summarizes one sync run.
type Stats struct {
	AnimalsScanned int `json:"animals_scanned"`
	AnimalsSynced  int `json:"animals_synced"`
	LociWritten    int `json:"loci_written"`
	BlobsSkipped   int `json:"blobs_skipped"`
}

// Service flattens Animal.GeneticsJSON blobs into genetics_loci rows.
type Service struct {
	db       *gorm.DB
	bus      Publisher
	remapper *Remapper
	logger   zerolog.Logger
}

// NewService creates a genetics sync service.
func NewService(db *gorm.DB, bus Publisher, remapper *Remapper, logger zerolog.Logger) *Service {
	if remapper == nil {
		remapper = NewRemapper()
	}
	return &Service{
		db:       db,
		bus:      bus,
		remapper: remapper,
		logger:   logger.With().Str("component", "genetics").Logger(),
	}
}

// SyncAll resyncs every animal carrying a genetics blob. dryRun reports what
// would be written without touching the loci table.
func (s *Service) SyncAll(ctx context.Context, dryRun bool) (*Stats, error) {
	var animals []models.Animal
	if err := s.db.WithContext(ctx).Find(&animals).Error; err != nil {
		return nil, fmt.Errorf("load animals: %w", err)
	}

	stats := &Stats{}
	now := time.Now().UTC()
	for i := range animals {
		animal := &animals[i]
		stats.AnimalsScanned++
		if len(animal.GeneticsJSON) == 0 {
			continue
		}

		loci := s.flatten(animal, now)
		if len(loci) == 0 {
			stats.BlobsSkipped++
			s.logger.Debug().Str("animal_id", animal.ID).Msg("genetics blob yielded no loci")
			continue
		}

		if !dryRun {
			if err := s.rewrite(ctx, animal.ID, loci); err != nil {
				return stats, err
			}
		}
		stats.AnimalsSynced++
		stats.LociWritten += len(loci)
	}

	if !dryRun {
		telemetry.GeneticsLociSynced.Add(float64(stats.LociWritten))
		if s.bus != nil && stats.AnimalsSynced > 0 {
			s.bus.Publish(events.EventGeneticsSynced, events.Payload{
				"animals_synced": stats.AnimalsSynced,
				"loci_written":   stats.LociWritten,
			})
		}
	}

	s.logger.Info().
		Int("scanned", stats.AnimalsScanned).
		Int("synced", stats.AnimalsSynced).
		Int("loci", stats.LociWritten).
		Bool("dry_run", dryRun).
		Msg("genetics sync finished")
	return stats, nil
}

// SyncAnimal resyncs a single animal's loci rows.
func (s *Service) SyncAnimal(ctx context.Context, animalID string) (int, error) {
	var animal models.Animal
	if err := s.db.WithContext(ctx).First(&animal, "id = ?", animalID).Error; err != nil {
		return 0, fmt.Errorf("load animal: %w", err)
	}

	loci := s.flatten(&animal, time.Now().UTC())
	if err := s.rewrite(ctx, animal.ID, loci); err != nil {
		return 0, err
	}
	telemetry.GeneticsLociSynced.Add(float64(len(loci)))
	return len(loci), nil
}

// LociFor returns the normalized loci of one animal.
func (s *Service) LociFor(ctx context.Context, animalID string) ([]models.GeneticsLocus, error) {
	var loci []models.GeneticsLocus
	err := s.db.WithContext(ctx).
		Where("animal_id = ?", animalID).
		Order("category ASC, locus ASC").
		Find(&loci).Error
	if err != nil {
		return nil, fmt.Errorf("load loci: %w", err)
	}
	return loci, nil
}

// Search finds loci by canonical category and/or locus name.
func (s *Service) Search(ctx context.Context, category, locus string) ([]models.GeneticsLocus, error) {
	query := s.db.WithContext(ctx).Order("animal_id ASC, locus ASC")
	if category != "" {
		query = query.Where("category = ?", s.remapper.Resolve(category))
	}
	if locus != "" {
		query = query.Where("locus = ?", locus)
	}

	var loci []models.GeneticsLocus
	if err := query.Find(&loci).Error; err != nil {
		return nil, fmt.Errorf("search loci: %w", err)
	}
	return loci, nil
}

// rewrite replaces an animal's loci rows in one transaction. Delete and
// rewrite keeps the table exactly in step with the blob, including removals.
func (s *Service) rewrite(ctx context.Context, animalID string, loci []models.GeneticsLocus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("animal_id = ?", animalID).Delete(&models.GeneticsLocus{}).Error; err != nil {
			return fmt.Errorf("clear loci: %w", err)
		}
		if len(loci) == 0 {
			return nil
		}
		if err := tx.Create(&loci).Error; err != nil {
			return fmt.Errorf("write loci: %w", err)
		}
		return nil
	})
}

// flatten turns a genetics blob into loci rows. Two blob shapes are accepted
// per category key: a list of locus objects, or a single locus object. Other
// shapes are skipped with a debug log rather than failing the whole sync.
func (s *Service) flatten(animal *models.Animal, now time.Time) []models.GeneticsLocus {
	var loci []models.GeneticsLocus
	for rawKey, value := range animal.GeneticsJSON {
		category := s.remapper.Resolve(rawKey)

		var entries []map[string]any
		switch typed := value.(type) {
		case []any:
			for _, item := range typed {
				if entry, ok := item.(map[string]any); ok {
					entries = append(entries, entry)
				}
			}
		case map[string]any:
			entries = append(entries, typed)
		default:
			s.logger.Debug().
				Str("animal_id", animal.ID).
				Str("key", rawKey).
				Msg("unrecognized genetics blob shape")
			continue
		}

		for _, entry := range entries {
			locus, _ := entry["locus"].(string)
			if locus == "" {
				continue
			}
			alleles, _ := entry["alleles"].(string)
			loci = append(loci, models.GeneticsLocus{
				ID:        uuid.NewString(),
				AnimalID:  animal.ID,
				Category:  category,
				Locus:     locus,
				Alleles:   alleles,
				SourceKey: rawKey,
				SyncedAt:  now,
			})
		}
	}
	return loci
}
