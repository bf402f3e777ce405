/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pawmarkhq/placement/internal/audit"
	"github.com/pawmarkhq/placement/internal/documents"
	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/genetics"
	"github.com/pawmarkhq/placement/internal/models"
	"github.com/pawmarkhq/placement/internal/placement"
	"github.com/pawmarkhq/placement/internal/webhooks"
)

func testServer(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Program{}, &models.QueueEntry{}, &models.Placement{},
		&models.Animal{}, &models.GeneticsLocus{}, &models.AnimalDocument{},
		&models.AuditLog{}, &models.WebhookTarget{}, &models.WebhookLog{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	bus := events.NewBus()
	nop := zerolog.Nop()
	placementSvc := placement.NewService(db, bus, nil, nop)
	geneticsSvc := genetics.NewService(db, bus, nil, nop)
	storage := documents.NewFilesystemStorage(t.TempDir(), nop)
	documentsSvc := documents.NewService(db, storage, nop)
	auditSvc := audit.NewService(db, bus, nop)
	webhookSvc := webhooks.NewService(db, bus, nop)

	router := chi.NewRouter()
	New(db, placementSvc, geneticsSvc, documentsSvc, auditSvc, webhookSvc, bus, nop).Routes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, db
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func createProgram(t *testing.T, base string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/api/v1/programs", map[string]any{
		"tenant_id": "tenant-1",
		"name":      "Spring Litter",
		"species":   "dog",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create program status = %d", resp.StatusCode)
	}
	return body["id"].(string)
}

func testPolicyBlob() map[string]any {
	return map[string]any{
		"enabled":                 true,
		"windowMinutesPerBuyer":   60,
		"startAt":                 "2026-01-15T10:00:00Z",
		"timezone":                "UTC",
		"gapMinutesBetweenRanks":  10,
		"graceMinutesAfterWindow": 15,
	}
}

func TestPolicyValidateEndpoint(t *testing.T) {
	server, _ := testServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/policy/validate", testPolicyBlob())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["valid"] != true {
		t.Fatalf("valid policy rejected: %v", body["problems"])
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/v1/policy/validate", map[string]any{
		"enabled":               "yes",
		"windowMinutesPerBuyer": 0,
		"startAt":               "not a time",
		"timezone":              "",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["valid"] != false {
		t.Fatal("broken policy passed validation")
	}
	if problems := body["problems"].([]any); len(problems) != 4 {
		t.Fatalf("problems = %d, want 4: %v", len(problems), problems)
	}
}

func TestProgramLifecycle(t *testing.T) {
	server, _ := testServer(t)
	programID := createProgram(t, server.URL)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/v1/programs/"+programID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if body["name"] != "Spring Litter" {
		t.Fatalf("name = %v", body["name"])
	}

	resp, body = doJSON(t, http.MethodPut, server.URL+"/api/v1/programs/"+programID, map[string]any{
		"breed": "samoyed",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	if body["breed"] != "samoyed" {
		t.Fatalf("breed = %v", body["breed"])
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/v1/programs/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing program status = %d", resp.StatusCode)
	}
}

func TestPolicySetStoresWithProblems(t *testing.T) {
	server, _ := testServer(t)
	programID := createProgram(t, server.URL)

	resp, body := doJSON(t, http.MethodPut, server.URL+"/api/v1/programs/"+programID+"/policy", map[string]any{
		"enabled":               true,
		"windowMinutesPerBuyer": -5,
		"startAt":               "2026-01-15T10:00:00Z",
		"timezone":              "UTC",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["stored"] != true {
		t.Fatal("policy with problems must still be stored")
	}
	if problems := body["problems"].([]any); len(problems) != 1 {
		t.Fatalf("problems = %v", problems)
	}

	// Runtime fails open on the bad blob.
	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/v1/programs/"+programID+"/gating?buyer_id=buyer-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("gating status = %d", resp.StatusCode)
	}
	if body["allowed"] != true {
		t.Fatalf("bad policy must fail open, got %v", body)
	}
}

func queueJoin(t *testing.T, base, programID, buyerID string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/api/v1/programs/"+programID+"/queue", map[string]any{
		"buyer_id":     buyerID,
		"display_name": buyerID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("join status = %d", resp.StatusCode)
	}
	return body["id"].(string)
}

func TestGatingDecisionOverHTTP(t *testing.T) {
	server, _ := testServer(t)
	programID := createProgram(t, server.URL)

	resp, _ := doJSON(t, http.MethodPut, server.URL+"/api/v1/programs/"+programID+"/policy", testPolicyBlob())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set policy status = %d", resp.StatusCode)
	}

	entryID := queueJoin(t, server.URL, programID, "buyer-1")
	queueJoin(t, server.URL, programID, "buyer-2")

	// Unranked buyer is blocked.
	resp, body := doJSON(t, http.MethodGet,
		server.URL+"/api/v1/programs/"+programID+"/gating?buyer_id=buyer-1&at=2026-01-15T10:30:00Z", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["allowed"] != false || body["code"] != "NO_PLACEMENT_RANK" {
		t.Fatalf("unranked decision = %v", body)
	}

	// Rank buyer-1 first.
	resp, _ = doJSON(t, http.MethodPut, server.URL+"/api/v1/programs/"+programID+"/queue/ranks", map[string]any{
		"entry_ids": []string{entryID},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ranks status = %d", resp.StatusCode)
	}

	cases := []struct {
		at      string
		allowed bool
		code    string
	}{
		{"2026-01-15T09:59:00Z", false, "PLACEMENT_WINDOW_NOT_OPEN"},
		{"2026-01-15T10:00:00Z", true, ""},
		{"2026-01-15T11:15:00Z", true, ""},
		{"2026-01-15T11:16:00Z", false, "PLACEMENT_WINDOW_CLOSED"},
	}
	for _, tc := range cases {
		resp, body = doJSON(t, http.MethodGet,
			fmt.Sprintf("%s/api/v1/programs/%s/gating?buyer_id=buyer-1&at=%s", server.URL, programID, tc.at), nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("at %s: status = %d", tc.at, resp.StatusCode)
		}
		if body["allowed"] != tc.allowed {
			t.Fatalf("at %s: allowed = %v, want %v", tc.at, body["allowed"], tc.allowed)
		}
		if tc.code != "" && body["code"] != tc.code {
			t.Fatalf("at %s: code = %v, want %s", tc.at, body["code"], tc.code)
		}
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/v1/programs/"+programID+"/gating?buyer_id=buyer-1&at=garbage", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("garbage at: status = %d", resp.StatusCode)
	}
}

func TestWindowsEndpoint(t *testing.T) {
	server, _ := testServer(t)
	programID := createProgram(t, server.URL)
	doJSON(t, http.MethodPut, server.URL+"/api/v1/programs/"+programID+"/policy", testPolicyBlob())

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/v1/programs/"+programID+"/windows?ranks=3", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	windows := body["windows"].([]any)
	if len(windows) != 3 {
		t.Fatalf("windows = %d, want 3", len(windows))
	}
	first := windows[0].(map[string]any)
	if first["rank"] != float64(1) {
		t.Fatalf("first rank = %v", first["rank"])
	}
	window := first["window"].(map[string]any)
	if window["starts_at"] != "2026-01-15T10:00:00Z" {
		t.Fatalf("rank 1 starts_at = %v", window["starts_at"])
	}
}

func TestPlacementOverHTTP(t *testing.T) {
	server, db := testServer(t)
	programID := createProgram(t, server.URL)
	queueJoin(t, server.URL, programID, "buyer-1")

	// No policy stored: gate is open, placement succeeds.
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/programs/"+programID+"/placements", map[string]any{
		"buyer_id": "buyer-1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("placement status = %d: %v", resp.StatusCode, body)
	}

	// Second attempt conflicts.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/v1/programs/"+programID+"/placements", map[string]any{
		"buyer_id": "buyer-1",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second placement status = %d", resp.StatusCode)
	}

	var count int64
	db.Model(&models.Placement{}).Count(&count)
	if count != 1 {
		t.Fatalf("placements = %d, want 1", count)
	}
}

func TestPlacementBlockedOverHTTP(t *testing.T) {
	server, _ := testServer(t)
	programID := createProgram(t, server.URL)

	// Window far in the past; grace long expired.
	blob := testPolicyBlob()
	blob["startAt"] = "2020-01-01T00:00:00Z"
	doJSON(t, http.MethodPut, server.URL+"/api/v1/programs/"+programID+"/policy", blob)

	entryID := queueJoin(t, server.URL, programID, "buyer-1")
	doJSON(t, http.MethodPut, server.URL+"/api/v1/programs/"+programID+"/queue/ranks", map[string]any{
		"entry_ids": []string{entryID},
	})

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/programs/"+programID+"/placements", map[string]any{
		"buyer_id": "buyer-1",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if body["code"] != "PLACEMENT_WINDOW_CLOSED" {
		t.Fatalf("code = %v", body["code"])
	}
	if body["message"] == "" || body["message"] == nil {
		t.Fatal("blocked response must carry a buyer-facing message")
	}
}

func TestQueueLeaveOverHTTP(t *testing.T) {
	server, _ := testServer(t)
	programID := createProgram(t, server.URL)
	queueJoin(t, server.URL, programID, "buyer-1")

	resp, _ := doJSON(t, http.MethodDelete, server.URL+"/api/v1/programs/"+programID+"/queue/buyer-1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("leave status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/v1/programs/"+programID+"/queue/buyer-unknown", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown leave status = %d", resp.StatusCode)
	}
}

func TestGeneticsEndpoints(t *testing.T) {
	server, _ := testServer(t)
	programID := createProgram(t, server.URL)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/programs/"+programID+"/animals", map[string]any{
		"name": "Pepper",
		"sex":  "female",
		"genetics": map[string]any{
			"colour": map[string]any{"locus": "B", "alleles": "B/b"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create animal status = %d", resp.StatusCode)
	}
	animalID := body["id"].(string)

	resp, syncStats := doJSON(t, http.MethodPost, server.URL+"/api/v1/genetics/sync", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d", resp.StatusCode)
	}
	if syncStats["loci_written"] != float64(1) {
		t.Fatalf("loci_written = %v", syncStats["loci_written"])
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/v1/animals/"+animalID+"/loci", nil)
	lociResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get loci: %v", err)
	}
	defer lociResp.Body.Close()
	var loci []map[string]any
	if err := json.NewDecoder(lociResp.Body).Decode(&loci); err != nil {
		t.Fatalf("decode loci: %v", err)
	}
	if len(loci) != 1 || loci[0]["category"] != "coat_color" {
		t.Fatalf("loci = %v", loci)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/v1/loci/search", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unfiltered search status = %d", resp.StatusCode)
	}
}
