/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	return database.AutoMigrate(
		// Placement programs and queues
		&models.Program{},
		&models.QueueEntry{},
		&models.Placement{},

		// Offspring and genetics
		&models.Animal{},
		&models.GeneticsLocus{},
		&models.AnimalDocument{},

		// Notification outbox
		&models.Notification{},

		// Audit trail and outbound webhooks
		&models.AuditLog{},
		&models.WebhookTarget{},
		&models.WebhookLog{},
	)
}
