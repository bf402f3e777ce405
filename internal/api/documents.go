/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pawmarkhq/placement/internal/documents"
	"github.com/pawmarkhq/placement/internal/models"
)

// maxDocumentBytes caps uploads at 32 MiB.
const maxDocumentBytes = 32 << 20

func (a *API) handleDocumentsList(w http.ResponseWriter, r *http.Request) {
	list, err := a.documents.List(r.Context(), chi.URLParam(r, "animalID"))
	if err != nil {
		a.logger.Error().Err(err).Msg("list documents failed")
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleDocumentUpload accepts a multipart upload with a "file" part and an
// optional "kind" field.
func (a *API) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	kind := models.DocumentKind(r.FormValue("kind"))
	contentType := header.Header.Get("Content-Type")

	document, err := a.documents.Upload(r.Context(), chi.URLParam(r, "animalID"), kind, header.Filename, contentType, header.Size, file)
	if err != nil {
		a.logger.Error().Err(err).Msg("document upload failed")
		writeError(w, http.StatusBadRequest, "upload_failed")
		return
	}
	writeJSON(w, http.StatusCreated, document)
}

func (a *API) handleDocumentDownload(w http.ResponseWriter, r *http.Request) {
	document, reader, err := a.documents.Open(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		if errors.Is(err, documents.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("document download failed")
		writeError(w, http.StatusInternalServerError, "download_failed")
		return
	}
	defer reader.Close()

	if document.ContentType != "" {
		w.Header().Set("Content-Type", document.ContentType)
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+document.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		a.logger.Debug().Err(err).Str("document_id", document.ID).Msg("document stream interrupted")
	}
}

func (a *API) handleDocumentDelete(w http.ResponseWriter, r *http.Request) {
	err := a.documents.Delete(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		if errors.Is(err, documents.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("document delete failed")
		writeError(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
