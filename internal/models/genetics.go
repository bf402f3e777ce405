/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Animal is an offspring record attached to a program. GeneticsJSON carries
// the raw locus/allele blob exactly as the intake tooling stored it; the sync
// job flattens it into GeneticsLocus rows for searching.
type Animal struct {
	ID        string     `gorm:"type:uuid;primaryKey" json:"id"`
	ProgramID string     `gorm:"type:uuid;index:idx_animals_program;not null" json:"program_id"`
	Name      string     `gorm:"type:varchar(255)" json:"name"`
	Sex       string     `gorm:"type:varchar(16)" json:"sex,omitempty"`
	BornAt    *time.Time `json:"born_at,omitempty"`
	Available bool       `gorm:"not null;default:true" json:"available"`

	GeneticsJSON map[string]any `gorm:"type:jsonb;serializer:json" json:"genetics,omitempty"`

	Program *Program `gorm:"foreignKey:ProgramID" json:"program,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Animal) TableName() string {
	return "animals"
}

// GeneticsLocus is one normalized locus result for an animal, produced by the
// genetics sync job. SourceKey preserves the original blob key so a resync can
// detect renames.
type GeneticsLocus struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	AnimalID  string `gorm:"type:uuid;index:idx_genetics_loci_animal;not null" json:"animal_id"`
	Category  string `gorm:"type:varchar(64);index:idx_genetics_loci_category;not null" json:"category"`
	Locus     string `gorm:"type:varchar(128);index;not null" json:"locus"`
	Alleles   string `gorm:"type:varchar(128)" json:"alleles"`
	SourceKey string `gorm:"type:varchar(128)" json:"source_key,omitempty"`

	Animal *Animal `gorm:"foreignKey:AnimalID" json:"animal,omitempty"`

	SyncedAt  time.Time `gorm:"not null" json:"synced_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (GeneticsLocus) TableName() string {
	return "genetics_loci"
}
