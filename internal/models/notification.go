/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// NotificationType defines the type of notification.
type NotificationType string

const (
	NotificationTypeWindowOpening    NotificationType = "window_opening"     // Buyer's window opens soon
	NotificationTypeWindowOpen       NotificationType = "window_open"        // Buyer's window is open now
	NotificationTypePlacementMade    NotificationType = "placement_made"     // Buyer completed a pick
	NotificationTypeQueueRankChanged NotificationType = "queue_rank_changed" // Ranks were (re)assigned
)

// NotificationChannel defines the delivery channel. Actual delivery is handled
// by the platform's sender; this service only writes outbox rows.
type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelInApp NotificationChannel = "in_app"
)

// NotificationStatus defines the outbox status.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification is an outbox entry for the external sender.
type Notification struct {
	ID               string              `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID      string              `gorm:"type:uuid;index:idx_notifications_recipient;not null" json:"recipient_id"`
	RecipientEmail   string              `gorm:"type:varchar(255)" json:"recipient_email,omitempty"`
	NotificationType NotificationType    `gorm:"type:varchar(64);index:idx_notifications_type;not null" json:"notification_type"`
	Channel          NotificationChannel `gorm:"type:varchar(32);not null" json:"channel"`
	Subject          string              `gorm:"type:varchar(255)" json:"subject,omitempty"`
	Body             string              `gorm:"type:text;not null" json:"body"`
	Status           NotificationStatus  `gorm:"type:varchar(32);not null;default:'pending';index:idx_notifications_status" json:"status"`
	SentAt           *time.Time          `json:"sent_at,omitempty"`
	Error            string              `gorm:"type:text" json:"error,omitempty"`

	// Reference to the related entity (program, queue entry, placement).
	ReferenceType string `gorm:"type:varchar(64)" json:"reference_type,omitempty"`
	ReferenceID   string `gorm:"type:uuid" json:"reference_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Notification) TableName() string {
	return "notifications"
}
