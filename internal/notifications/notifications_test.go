/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Program{}, &models.QueueEntry{}, &models.Notification{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedProgram(t *testing.T, db *gorm.DB, policy map[string]any) *models.Program {
	t.Helper()
	program := &models.Program{
		ID:         uuid.NewString(),
		TenantID:   uuid.NewString(),
		Name:       "Spring Litter",
		Active:     true,
		PolicyJSON: policy,
	}
	if err := db.Create(program).Error; err != nil {
		t.Fatalf("seed program: %v", err)
	}
	return program
}

func seedEntry(t *testing.T, db *gorm.DB, programID, buyerID string, rank int) *models.QueueEntry {
	t.Helper()
	entry := &models.QueueEntry{
		ID:           uuid.NewString(),
		ProgramID:    programID,
		BuyerID:      buyerID,
		ContactEmail: buyerID + "@example.com",
		Rank:         &rank,
		Status:       models.QueueStatusWaiting,
	}
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return entry
}

func gatedPolicy() map[string]any {
	return map[string]any{
		"enabled":                 true,
		"windowMinutesPerBuyer":   60,
		"startAt":                 "2026-01-15T10:00:00Z",
		"timezone":                "UTC",
		"gapMinutesBetweenRanks":  10,
		"graceMinutesAfterWindow": 15,
	}
}

func pendingByType(t *testing.T, db *gorm.DB, notificationType models.NotificationType) []models.Notification {
	t.Helper()
	var rows []models.Notification
	if err := db.Where("notification_type = ?", notificationType).Find(&rows).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	return rows
}

func TestPlacementRecordedWritesOutboxRow(t *testing.T) {
	db := testDB(t)
	bus := events.NewBus()
	svc := NewService(db, bus, zerolog.Nop())
	program := seedProgram(t, db, nil)
	seedEntry(t, db, program.ID, "buyer-1", 1)

	svc.Start(context.Background())
	defer svc.Stop()

	bus.Publish(events.EventPlacementRecorded, events.Payload{
		"program_id":   program.ID,
		"buyer_id":     "buyer-1",
		"placement_id": uuid.NewString(),
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		rows := pendingByType(t, db, models.NotificationTypePlacementMade)
		if len(rows) == 1 {
			if rows[0].RecipientID != "buyer-1" {
				t.Fatalf("recipient = %q, want buyer-1", rows[0].RecipientID)
			}
			if rows[0].Status != models.NotificationStatusPending {
				t.Fatalf("status = %q, want pending", rows[0].Status)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("placement notification not written, have %d rows", len(rows))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRerankNotifiesRankedEntries(t *testing.T) {
	db := testDB(t)
	bus := events.NewBus()
	svc := NewService(db, bus, zerolog.Nop())
	program := seedProgram(t, db, nil)
	seedEntry(t, db, program.ID, "buyer-1", 1)
	seedEntry(t, db, program.ID, "buyer-2", 2)

	svc.Start(context.Background())
	defer svc.Stop()

	bus.Publish(events.EventQueueUpdated, events.Payload{
		"program_id": program.ID,
		"change":     "reranked",
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		rows := pendingByType(t, db, models.NotificationTypeQueueRankChanged)
		if len(rows) == 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 rerank notifications, have %d", len(rows))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJoinEventDoesNotNotify(t *testing.T) {
	db := testDB(t)
	bus := events.NewBus()
	svc := NewService(db, bus, zerolog.Nop())
	program := seedProgram(t, db, nil)

	svc.Start(context.Background())
	bus.Publish(events.EventQueueUpdated, events.Payload{
		"program_id": program.ID,
		"change":     "joined",
	})
	time.Sleep(50 * time.Millisecond)
	svc.Stop()

	if rows := pendingByType(t, db, models.NotificationTypeQueueRankChanged); len(rows) != 0 {
		t.Fatalf("join event produced %d notifications", len(rows))
	}
}

func TestReminderScanWindowOpening(t *testing.T) {
	db := testDB(t)
	outbox := NewService(db, nil, zerolog.Nop())
	reminder := NewReminder(db, outbox, nil, time.Minute, 30*time.Minute, zerolog.Nop())
	program := seedProgram(t, db, gatedPolicy())
	seedEntry(t, db, program.ID, "buyer-1", 1) // window 10:00-11:00
	seedEntry(t, db, program.ID, "buyer-2", 3) // window 12:20-13:20, outside lead
	ctx := context.Background()

	now := time.Date(2026, 1, 15, 9, 45, 0, 0, time.UTC)
	if err := reminder.Scan(ctx, now); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	rows := pendingByType(t, db, models.NotificationTypeWindowOpening)
	if len(rows) != 1 {
		t.Fatalf("opening notifications = %d, want 1", len(rows))
	}
	if rows[0].RecipientID != "buyer-1" {
		t.Fatalf("recipient = %q, want buyer-1", rows[0].RecipientID)
	}
}

func TestReminderScanWindowOpen(t *testing.T) {
	db := testDB(t)
	outbox := NewService(db, nil, zerolog.Nop())
	reminder := NewReminder(db, outbox, nil, time.Minute, 30*time.Minute, zerolog.Nop())
	program := seedProgram(t, db, gatedPolicy())
	seedEntry(t, db, program.ID, "buyer-1", 1)
	ctx := context.Background()

	now := time.Date(2026, 1, 15, 10, 5, 0, 0, time.UTC)
	if err := reminder.Scan(ctx, now); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if rows := pendingByType(t, db, models.NotificationTypeWindowOpen); len(rows) != 1 {
		t.Fatalf("open notifications = %d, want 1", len(rows))
	}
}

func TestReminderScanDedupes(t *testing.T) {
	db := testDB(t)
	outbox := NewService(db, nil, zerolog.Nop())
	reminder := NewReminder(db, outbox, nil, time.Minute, 30*time.Minute, zerolog.Nop())
	program := seedProgram(t, db, gatedPolicy())
	seedEntry(t, db, program.ID, "buyer-1", 1)
	ctx := context.Background()

	now := time.Date(2026, 1, 15, 10, 5, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := reminder.Scan(ctx, now); err != nil {
			t.Fatalf("Scan %d: %v", i, err)
		}
	}

	if rows := pendingByType(t, db, models.NotificationTypeWindowOpen); len(rows) != 1 {
		t.Fatalf("repeated scans wrote %d rows, want 1", len(rows))
	}
}

func TestReminderIgnoresUngatedPrograms(t *testing.T) {
	db := testDB(t)
	outbox := NewService(db, nil, zerolog.Nop())
	reminder := NewReminder(db, outbox, nil, time.Minute, 30*time.Minute, zerolog.Nop())
	program := seedProgram(t, db, map[string]any{"enabled": false, "windowMinutesPerBuyer": 60, "startAt": "2026-01-15T10:00:00Z", "timezone": "UTC"})
	seedEntry(t, db, program.ID, "buyer-1", 1)

	if err := reminder.Scan(context.Background(), time.Date(2026, 1, 15, 10, 5, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var count int64
	db.Model(&models.Notification{}).Count(&count)
	if count != 0 {
		t.Fatalf("ungated program produced %d notifications", count)
	}
}

func TestPendingOrdering(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, nil, zerolog.Nop())
	ctx := context.Background()

	for _, recipient := range []string{"a", "b", "c"} {
		if err := svc.Enqueue(ctx, &models.Notification{
			RecipientID:      recipient,
			NotificationType: models.NotificationTypePlacementMade,
			Channel:          models.NotificationChannelEmail,
			Body:             "hello",
		}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rows, err := svc.Pending(ctx, 2)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	if rows[0].RecipientID != "a" || rows[1].RecipientID != "b" {
		t.Fatalf("unexpected order: %s, %s", rows[0].RecipientID, rows[1].RecipientID)
	}
}
