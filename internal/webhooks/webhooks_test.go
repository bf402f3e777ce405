/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
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
	if err := db.AutoMigrate(&models.WebhookTarget{}, &models.WebhookLog{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

type capturedRequest struct {
	body    []byte
	headers http.Header
}

// captureServer records webhook deliveries for inspection.
func captureServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, capturedRequest{body: body, headers: r.Header.Clone()})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]capturedRequest, len(requests))
		copy(out, requests)
		return out
	}
}

func seedTarget(t *testing.T, db *gorm.DB, programID, url, eventFilter, secret string) *models.WebhookTarget {
	t.Helper()
	target := &models.WebhookTarget{
		ID:        uuid.NewString(),
		ProgramID: programID,
		URL:       url,
		Events:    eventFilter,
		Secret:    secret,
		Active:    true,
	}
	if err := db.Create(target).Error; err != nil {
		t.Fatalf("seed webhook target: %v", err)
	}
	return target
}

func waitForRequests(t *testing.T, fetch func() []capturedRequest, want int) []capturedRequest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		requests := fetch()
		if len(requests) >= want {
			return requests
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d webhook deliveries, got %d", want, len(requests))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPlacementEventDeliversWebhook(t *testing.T) {
	db := testDB(t)
	bus := events.NewBus()
	svc := NewService(db, bus, zerolog.Nop())

	receiver, fetch := captureServer(t, http.StatusOK)
	programID := uuid.NewString()
	seedTarget(t, db, programID, receiver.URL, "", "hunter2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	bus.Publish(events.EventPlacementRecorded, events.Payload{
		"program_id": programID,
		"buyer_id":   "buyer-1",
	})

	requests := waitForRequests(t, fetch, 1)
	req := requests[0]

	if got := req.headers.Get("X-Pawmark-Event"); got != EventPlacementRecorded {
		t.Fatalf("expected event header %q, got %q", EventPlacementRecorded, got)
	}

	h := hmac.New(sha256.New, []byte("hunter2"))
	h.Write(req.body)
	wantSig := "sha256=" + hex.EncodeToString(h.Sum(nil))
	if got := req.headers.Get("X-Pawmark-Signature"); got != wantSig {
		t.Fatalf("signature mismatch: got %q want %q", got, wantSig)
	}

	var payload Payload
	if err := json.Unmarshal(req.body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Event != EventPlacementRecorded {
		t.Fatalf("expected event %q, got %q", EventPlacementRecorded, payload.Event)
	}
	if payload.ProgramID != programID {
		t.Fatalf("expected program %s, got %s", programID, payload.ProgramID)
	}
	if payload.Data["buyer_id"] != "buyer-1" {
		t.Fatalf("expected buyer_id in data, got %v", payload.Data)
	}
}

func TestEventFilterSkipsUnsubscribed(t *testing.T) {
	db := testDB(t)
	bus := events.NewBus()
	svc := NewService(db, bus, zerolog.Nop())

	receiver, fetch := captureServer(t, http.StatusOK)
	programID := uuid.NewString()
	seedTarget(t, db, programID, receiver.URL, EventPolicyUpdated, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	bus.Publish(events.EventPlacementRecorded, events.Payload{"program_id": programID})
	bus.Publish(events.EventPolicyUpdated, events.Payload{"program_id": programID})

	requests := waitForRequests(t, fetch, 1)
	if len(requests) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(requests))
	}
	if got := requests[0].headers.Get("X-Pawmark-Event"); got != EventPolicyUpdated {
		t.Fatalf("expected policy_updated delivery, got %q", got)
	}
}

func TestDeliveryLogged(t *testing.T) {
	db := testDB(t)
	bus := events.NewBus()
	svc := NewService(db, bus, zerolog.Nop())

	receiver, fetch := captureServer(t, http.StatusInternalServerError)
	programID := uuid.NewString()
	target := seedTarget(t, db, programID, receiver.URL, "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	bus.Publish(events.EventQueueUpdated, events.Payload{"program_id": programID, "change": "joined"})
	waitForRequests(t, fetch, 1)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var logs []models.WebhookLog
		if err := db.Where("target_id = ?", target.ID).Find(&logs).Error; err != nil {
			t.Fatalf("load webhook logs: %v", err)
		}
		if len(logs) > 0 {
			if logs[0].StatusCode != http.StatusInternalServerError {
				t.Fatalf("expected status 500 logged, got %d", logs[0].StatusCode)
			}
			if logs[0].Event != EventQueueUpdated {
				t.Fatalf("expected event %q logged, got %q", EventQueueUpdated, logs[0].Event)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("expected webhook delivery log row")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInactiveTargetSkipped(t *testing.T) {
	db := testDB(t)
	bus := events.NewBus()
	svc := NewService(db, bus, zerolog.Nop())

	receiver, fetch := captureServer(t, http.StatusOK)
	programID := uuid.NewString()
	target := seedTarget(t, db, programID, receiver.URL, "", "")
	if err := db.Model(target).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate target: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	bus.Publish(events.EventPlacementRecorded, events.Payload{"program_id": programID})
	time.Sleep(200 * time.Millisecond)

	if requests := fetch(); len(requests) != 0 {
		t.Fatalf("expected no deliveries to inactive target, got %d", len(requests))
	}
}

func TestWebhookSendsTestPayload(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, events.NewBus(), zerolog.Nop())

	receiver, fetch := captureServer(t, http.StatusOK)
	target := &models.WebhookTarget{
		ID:        uuid.NewString(),
		ProgramID: uuid.NewString(),
		URL:       receiver.URL,
		Secret:    "s3cret",
	}

	if err := svc.TestWebhook(target); err != nil {
		t.Fatalf("test webhook: %v", err)
	}

	requests := fetch()
	if len(requests) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(requests))
	}
	if got := requests[0].headers.Get("X-Pawmark-Event"); got != "test" {
		t.Fatalf("expected test event header, got %q", got)
	}
}

func TestWebhookReportsErrorStatus(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, events.NewBus(), zerolog.Nop())

	receiver, _ := captureServer(t, http.StatusForbidden)
	target := &models.WebhookTarget{
		ID:        uuid.NewString(),
		ProgramID: uuid.NewString(),
		URL:       receiver.URL,
	}

	if err := svc.TestWebhook(target); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
