/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
)

func TestDocumentUploadAndDownload(t *testing.T) {
	server, _ := testServer(t)
	programID := createProgram(t, server.URL)

	resp, animal := doJSON(t, http.MethodPost, server.URL+"/api/v1/programs/"+programID+"/animals", map[string]any{
		"name": "Pepper",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create animal status = %d", resp.StatusCode)
	}
	animalID := animal["id"].(string)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("kind", "pedigree"); err != nil {
		t.Fatalf("write kind field: %v", err)
	}
	part, err := writer.CreateFormFile("file", "pedigree.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	content := "fake pdf bytes"
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/animals/"+animalID+"/documents", &buf)
	if err != nil {
		t.Fatalf("build upload request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	uploadResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer uploadResp.Body.Close()
	if uploadResp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", uploadResp.StatusCode)
	}

	listResp, err := http.Get(server.URL + "/api/v1/animals/" + animalID + "/documents")
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	defer listResp.Body.Close()
	var docs []map[string]any
	if err := json.NewDecoder(listResp.Body).Decode(&docs); err != nil {
		t.Fatalf("decode documents: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(docs))
	}
	if docs[0]["kind"] != "pedigree" {
		t.Fatalf("kind = %v", docs[0]["kind"])
	}
	documentID := docs[0]["id"].(string)

	downloadResp, err := http.Get(server.URL + "/api/v1/documents/" + documentID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer downloadResp.Body.Close()
	if downloadResp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", downloadResp.StatusCode)
	}
	data, err := io.ReadAll(downloadResp.Body)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != content {
		t.Fatalf("downloaded %q, want %q", data, content)
	}

	deleteResp, _ := doJSON(t, http.MethodDelete, server.URL+"/api/v1/documents/"+documentID, nil)
	if deleteResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", deleteResp.StatusCode)
	}
	gone, err := http.Get(server.URL + "/api/v1/documents/" + documentID)
	if err != nil {
		t.Fatalf("get deleted document: %v", err)
	}
	defer gone.Body.Close()
	if gone.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted document status = %d", gone.StatusCode)
	}
}
