/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// WebhookTarget is an outbound webhook endpoint registered for a program.
type WebhookTarget struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	ProgramID string `gorm:"type:uuid;index;not null" json:"program_id"`
	URL       string `gorm:"type:varchar(512);not null" json:"url"`
	Events    string `gorm:"type:varchar(255)" json:"events"` // comma-separated: placement_recorded,queue_updated,policy_updated
	Secret    string `gorm:"type:varchar(255)" json:"-"`      // for HMAC signing
	Active    bool   `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (WebhookTarget) TableName() string {
	return "webhook_targets"
}

// WebhookLog records a delivery attempt for a webhook target.
type WebhookLog struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	TargetID   string    `gorm:"type:uuid;index;not null" json:"target_id"`
	Event      string    `gorm:"type:varchar(64);not null" json:"event"`
	StatusCode int       `json:"status_code"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (WebhookLog) TableName() string {
	return "webhook_logs"
}
