/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package documents

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FilesystemStorage implements Storage using the local filesystem.
type FilesystemStorage struct {
	rootDir string
	logger  zerolog.Logger
}

// NewFilesystemStorage creates a filesystem-based storage backend.
func NewFilesystemStorage(rootDir string, logger zerolog.Logger) *FilesystemStorage {
	return &FilesystemStorage{
		rootDir: rootDir,
		logger:  logger.With().Str("component", "document_storage").Logger(),
	}
}

// Store saves a document under the root directory and returns the relative
// key for database storage. The root is joined back on reads.
func (fs *FilesystemStorage) Store(ctx context.Context, animalID, documentID, filename, contentType string, file io.Reader) (string, error) {
	key := buildDocumentKey(animalID, documentID, filename)
	fullPath := filepath.Join(fs.rootDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("create directories: %w", err)
	}

	dest, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, file); err != nil {
		os.Remove(fullPath) // Clean up on failure
		return "", fmt.Errorf("write file: %w", err)
	}

	fs.logger.Debug().
		Str("path", fullPath).
		Str("key", key).
		Str("animal_id", animalID).
		Msg("filesystem storage: document stored")
	return key, nil
}

// Open returns a reader for the stored document.
func (fs *FilesystemStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath := filepath.Join(fs.rootDir, filepath.FromSlash(key))
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return f, nil
}

// Delete removes a document from the filesystem.
func (fs *FilesystemStorage) Delete(ctx context.Context, key string) error {
	fullPath := filepath.Join(fs.rootDir, filepath.FromSlash(key))
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove document: %w", err)
	}

	fs.logger.Debug().Str("path", fullPath).Msg("filesystem storage: document deleted")
	return nil
}

// CheckAccess verifies the root directory exists, creating it if needed.
func (fs *FilesystemStorage) CheckAccess(ctx context.Context) error {
	if err := os.MkdirAll(fs.rootDir, 0755); err != nil {
		return fmt.Errorf("create document root: %w", err)
	}
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		return fmt.Errorf("cannot access document root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("document root is not a directory: %s", fs.rootDir)
	}
	return nil
}
