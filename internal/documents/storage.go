/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package documents stores pedigree and health attachments for animals. Bytes
// live behind the Storage interface; metadata rows live in the database.
package documents

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/rs/zerolog"

	"github.com/pawmarkhq/placement/internal/config"
)

// Storage abstracts where document bytes live.
type Storage interface {
	// Store writes the document and returns the storage key for later reads.
	Store(ctx context.Context, animalID, documentID, filename string, contentType string, file io.Reader) (string, error)
	// Open returns a reader for the stored document.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the stored document. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
	// CheckAccess verifies the backend is reachable and writable enough to use.
	CheckAccess(ctx context.Context) error
}

// NewStorage builds the configured backend.
func NewStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageFilesystem:
		return NewFilesystemStorage(cfg.DocumentRoot, logger), nil
	case config.StorageS3:
		return NewS3Storage(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

// buildDocumentKey lays documents out as animal/<id>/<document id><ext> so one
// animal's attachments sit together in either backend.
func buildDocumentKey(animalID, documentID, filename string) string {
	ext := path.Ext(filename)
	return path.Join("animals", animalID, documentID+ext)
}
