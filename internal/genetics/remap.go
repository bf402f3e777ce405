/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package genetics normalizes the raw genetics blobs stored on animals into
// the searchable loci side table. Blobs arrive keyed by whatever category
// names the importing registry used; the remap table folds known aliases
// into canonical categories before the rows are written.
package genetics

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Canonical category names used by the loci table.
const (
	CategoryCoatColor       = "coat_color"
	CategoryCoatType        = "coat_type"
	CategoryBodySize        = "body_size"
	CategoryHealthScreening = "health_screening"
	CategoryOther           = "other"
)

// defaultAliases folds the category spellings seen in registry imports into
// canonical categories. A remap file extends or overrides these.
var defaultAliases = map[string]string{
	"color":       CategoryCoatColor,
	"colour":      CategoryCoatColor,
	"coat":        CategoryCoatColor,
	"coat_colour": CategoryCoatColor,
	"pattern":     CategoryCoatColor,
	"coat_length": CategoryCoatType,
	"furnishings": CategoryCoatType,
	"shedding":    CategoryCoatType,
	"size":        CategoryBodySize,
	"stature":     CategoryBodySize,
	"health":      CategoryHealthScreening,
	"screening":   CategoryHealthScreening,
	"disease":     CategoryHealthScreening,
}

// Remapper resolves raw blob category keys to canonical categories.
type Remapper struct {
	aliases map[string]string
}

// NewRemapper builds a remapper from the defaults.
func NewRemapper() *Remapper {
	aliases := make(map[string]string, len(defaultAliases))
	for alias, canonical := range defaultAliases {
		aliases[alias] = canonical
	}
	return &Remapper{aliases: aliases}
}

// LoadRemapper builds a remapper from the defaults plus a yaml file of
// alias: canonical pairs. File entries override defaults.
func LoadRemapper(path string) (*Remapper, error) {
	remapper := NewRemapper()
	if path == "" {
		return remapper, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read remap file: %w", err)
	}

	var fileAliases map[string]string
	if err := yaml.Unmarshal(data, &fileAliases); err != nil {
		return nil, fmt.Errorf("parse remap file: %w", err)
	}
	for alias, canonical := range fileAliases {
		remapper.aliases[normalizeKey(alias)] = canonical
	}
	return remapper, nil
}

// Resolve maps a raw category key to its canonical category. Keys that are
// already canonical pass through; unknown keys resolve to "other".
func (r *Remapper) Resolve(rawKey string) string {
	key := normalizeKey(rawKey)
	if canonical, ok := r.aliases[key]; ok {
		return canonical
	}
	switch key {
	case CategoryCoatColor, CategoryCoatType, CategoryBodySize, CategoryHealthScreening, CategoryOther:
		return key
	}
	return CategoryOther
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}
