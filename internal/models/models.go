/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Program is a breeder's placement program: one litter (or planned litter)
// offered on the marketplace, with an ordered buyer queue. Tenant and breeder
// identifiers are opaque references into the platform's account system.
type Program struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    string `gorm:"type:uuid;index:idx_programs_tenant;not null" json:"tenant_id"`
	BreederID   string `gorm:"type:uuid;index" json:"breeder_id"`
	Name        string `gorm:"type:varchar(255);not null" json:"name"`
	Species     string `gorm:"type:varchar(64)" json:"species"`
	Breed       string `gorm:"type:varchar(128)" json:"breed"`
	Timezone    string `gorm:"type:varchar(64)" json:"timezone"`
	Active      bool   `gorm:"not null;default:true" json:"active"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	// PolicyJSON is the raw placement scheduling policy blob as written by the
	// policy-authoring UI. It is parsed (fail-open) on every gating evaluation.
	PolicyJSON map[string]any `gorm:"type:jsonb;serializer:json" json:"policy,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Program) TableName() string {
	return "programs"
}

// QueueStatus tracks a buyer's progress through a program queue.
type QueueStatus string

const (
	QueueStatusWaiting   QueueStatus = "waiting"
	QueueStatusOffered   QueueStatus = "offered"
	QueueStatusPlaced    QueueStatus = "placed"
	QueueStatusWithdrawn QueueStatus = "withdrawn"
	QueueStatusExpired   QueueStatus = "expired"
)

// QueueEntry is one buyer's position in a program's placement queue. Rank is
// nil until the breeder assigns positions; an unranked buyer is always blocked
// by the gate.
type QueueEntry struct {
	ID           string      `gorm:"type:uuid;primaryKey" json:"id"`
	ProgramID    string      `gorm:"type:uuid;index:idx_queue_entries_program;not null" json:"program_id"`
	BuyerID      string      `gorm:"type:uuid;index:idx_queue_entries_buyer;not null" json:"buyer_id"`
	DisplayName  string      `gorm:"type:varchar(255)" json:"display_name"`
	ContactEmail string      `gorm:"type:varchar(255)" json:"contact_email,omitempty"`
	Rank         *int        `gorm:"index" json:"rank,omitempty"`
	Status       QueueStatus `gorm:"type:varchar(32);not null;default:'waiting'" json:"status"`

	Program *Program `gorm:"foreignKey:ProgramID" json:"program,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (QueueEntry) TableName() string {
	return "queue_entries"
}

// Placement records a buyer's pick, made while their window was open. The
// window bounds are denormalized at decision time so the record stays
// meaningful if the policy is edited afterwards.
type Placement struct {
	ID           string `gorm:"type:uuid;primaryKey" json:"id"`
	ProgramID    string `gorm:"type:uuid;index:idx_placements_program;not null" json:"program_id"`
	QueueEntryID string `gorm:"type:uuid;uniqueIndex;not null" json:"queue_entry_id"`
	BuyerID      string `gorm:"type:uuid;index;not null" json:"buyer_id"`
	AnimalID     string `gorm:"type:uuid;index" json:"animal_id,omitempty"`
	Rank         int    `gorm:"not null" json:"rank"`

	WindowStartsAt time.Time `json:"window_starts_at"`
	WindowEndsAt   time.Time `json:"window_ends_at"`
	GraceEndsAt    time.Time `json:"grace_ends_at"`
	DecidedAt      time.Time `gorm:"not null" json:"decided_at"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (Placement) TableName() string {
	return "placements"
}
