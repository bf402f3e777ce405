/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pawmarkhq/placement/internal/models"
)

func TestWebhookLifecycle(t *testing.T) {
	server, db := testServer(t)
	programID := createProgram(t, server.URL)

	resp, created := doJSON(t, http.MethodPost, server.URL+"/api/v1/programs/"+programID+"/webhooks", map[string]any{
		"url":    "https://hooks.example.com/pawmark",
		"events": "placement_recorded",
		"secret": "s3cret",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create webhook status = %d", resp.StatusCode)
	}
	webhookID := created["id"].(string)
	if created["program_id"] != programID {
		t.Fatalf("expected program %s, got %v", programID, created["program_id"])
	}
	if _, leaked := created["secret"]; leaked {
		t.Fatal("secret must not appear in responses")
	}

	listResp, err := http.Get(server.URL + "/api/v1/programs/" + programID + "/webhooks")
	if err != nil {
		t.Fatalf("list webhooks: %v", err)
	}
	defer listResp.Body.Close()
	var targets []models.WebhookTarget
	if err := json.NewDecoder(listResp.Body).Decode(&targets); err != nil {
		t.Fatalf("decode webhook list: %v", err)
	}
	if len(targets) != 1 || targets[0].ID != webhookID {
		t.Fatalf("expected 1 webhook %s, got %+v", webhookID, targets)
	}

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/programs/"+programID+"/webhooks/"+webhookID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete webhook: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete webhook status = %d", delResp.StatusCode)
	}

	var count int64
	db.Model(&models.WebhookTarget{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected webhook row removed, found %d", count)
	}
}

func TestWebhookCreateRejectsBadURL(t *testing.T) {
	server, _ := testServer(t)
	programID := createProgram(t, server.URL)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/v1/programs/"+programID+"/webhooks", map[string]any{
		"url": "ftp://example.com/hook",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-http url, got %d", resp.StatusCode)
	}
}

func TestWebhookTestEndpoint(t *testing.T) {
	server, _ := testServer(t)
	programID := createProgram(t, server.URL)

	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	resp, created := doJSON(t, http.MethodPost, server.URL+"/api/v1/programs/"+programID+"/webhooks", map[string]any{
		"url": receiver.URL,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create webhook status = %d", resp.StatusCode)
	}
	webhookID := created["id"].(string)

	testResp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/programs/"+programID+"/webhooks/"+webhookID+"/test", nil)
	if testResp.StatusCode != http.StatusOK {
		t.Fatalf("test webhook status = %d", testResp.StatusCode)
	}
	if body["delivered"] != true {
		t.Fatalf("expected delivered=true, got %v", body)
	}
}

func TestAuditListEndpoint(t *testing.T) {
	server, db := testServer(t)
	programID := createProgram(t, server.URL)

	entry := &models.AuditLog{
		ProgramID:    &programID,
		Action:       models.AuditActionPolicyUpdate,
		ResourceType: "program",
		ResourceID:   programID,
	}
	if err := db.Create(&models.AuditLog{ID: "seed", Action: models.AuditActionGeneticsSync}).Error; err != nil {
		t.Fatalf("seed unrelated entry: %v", err)
	}
	entry.ID = "target"
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	resp, err := http.Get(server.URL + "/api/v1/audit?program_id=" + programID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit list status = %d", resp.StatusCode)
	}

	var entries []models.AuditLog
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode audit list: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "target" {
		t.Fatalf("expected only the program's entry, got %+v", entries)
	}
}
