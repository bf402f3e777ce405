/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// DocumentKind categorizes an animal attachment.
type DocumentKind string

const (
	DocumentKindPedigree     DocumentKind = "pedigree"
	DocumentKindHealthRecord DocumentKind = "health_record"
	DocumentKindContract     DocumentKind = "contract"
	DocumentKindOther        DocumentKind = "other"
)

// AnimalDocument is stored attachment metadata. The bytes live in the
// configured storage backend under StorageKey.
type AnimalDocument struct {
	ID          string       `gorm:"type:uuid;primaryKey" json:"id"`
	AnimalID    string       `gorm:"type:uuid;index:idx_animal_documents_animal;not null" json:"animal_id"`
	Kind        DocumentKind `gorm:"type:varchar(32);not null;default:'other'" json:"kind"`
	Filename    string       `gorm:"type:varchar(255);not null" json:"filename"`
	ContentType string       `gorm:"type:varchar(128)" json:"content_type"`
	SizeBytes   int64        `json:"size_bytes"`
	StorageKey  string       `gorm:"type:varchar(512);not null" json:"-"`

	Animal *Animal `gorm:"foreignKey:AnimalID" json:"animal,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (AnimalDocument) TableName() string {
	return "animal_documents"
}
