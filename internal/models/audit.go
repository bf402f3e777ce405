/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for placement program operations.
const (
	AuditActionProgramCreate   AuditAction = "program.create"
	AuditActionProgramUpdate   AuditAction = "program.update"
	AuditActionPolicyUpdate    AuditAction = "policy.update"
	AuditActionQueueJoin       AuditAction = "queue.join"
	AuditActionQueueLeave      AuditAction = "queue.leave"
	AuditActionQueueRerank     AuditAction = "queue.rerank"
	AuditActionQueueExpire     AuditAction = "queue.expire"
	AuditActionPlacementRecord AuditAction = "placement.record"
	AuditActionGeneticsSync    AuditAction = "genetics.sync"
	AuditActionDocumentUpload  AuditAction = "document.upload"
	AuditActionDocumentDelete  AuditAction = "document.delete"
	AuditActionWebhookCreate   AuditAction = "webhook.create"
	AuditActionWebhookDelete   AuditAction = "webhook.delete"
)

// AuditLog records a sensitive operation for later review.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	ActorID      *string        `gorm:"type:uuid;index:idx_audit_actor"`   // NULL for system actions
	ProgramID    *string        `gorm:"type:uuid;index:idx_audit_program"` // NULL if tenant-wide
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	ResourceType string         `gorm:"type:varchar(64)"` // "program", "queue_entry", "placement", etc.
	ResourceID   string         `gorm:"type:uuid"`        // ID of the affected resource
	Details      map[string]any `gorm:"type:jsonb;serializer:json"` // Action-specific details
	CreatedAt    time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
