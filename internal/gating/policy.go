/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package gating implements the placement-window calculator: given a program's
// scheduling policy and a buyer's placement rank it computes the buyer's
// exclusive ordering window and decides whether a placement action is allowed
// at a given instant. Everything in this package is pure; callers supply "now".
package gating

import (
	"errors"
	"fmt"
	"time"
)

// MaxGraceMinutes caps the grace period a policy may configure. Anything above
// a full day is treated as a configuration mistake.
const MaxGraceMinutes = 1440

// Policy is a validated placement scheduling policy for one program.
type Policy struct {
	Enabled                 bool      `json:"enabled"`
	WindowMinutesPerBuyer   int       `json:"windowMinutesPerBuyer"`
	StartAt                 time.Time `json:"startAt"`
	Timezone                string    `json:"timezone"`
	GapMinutesBetweenRanks  int       `json:"gapMinutesBetweenRanks"`
	GraceMinutesAfterWindow int       `json:"graceMinutesAfterWindow"`
}

// startAtLayouts are the accepted timestamp formats for startAt, tried in
// order. Bare layouts are interpreted as UTC.
var startAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Parse converts a raw, untyped policy blob into a Policy. On any structural
// defect it returns (nil, err) where err lists every problem found. Runtime
// callers are expected to fail open: a nil policy means "no gating enforced",
// so a bad config write never locks every buyer out. Missing optional fields
// (gap, grace) default to zero.
func Parse(raw map[string]any) (*Policy, error) {
	if raw == nil {
		return nil, errors.New("policy is absent")
	}

	reasons := collectReasons(raw)
	if len(reasons) > 0 {
		return nil, errors.New(joinReasons(reasons))
	}

	enabled, _ := asBool(raw["enabled"])
	window, _ := asInt(raw["windowMinutesPerBuyer"])
	startRaw, _ := asString(raw["startAt"])
	startAt, _ := parseStartAt(startRaw)
	timezone, _ := asString(raw["timezone"])
	gap := optionalInt(raw, "gapMinutesBetweenRanks")
	grace := optionalInt(raw, "graceMinutesAfterWindow")

	return &Policy{
		Enabled:                 enabled,
		WindowMinutesPerBuyer:   window,
		StartAt:                 startAt,
		Timezone:                timezone,
		GapMinutesBetweenRanks:  gap,
		GraceMinutesAfterWindow: grace,
	}, nil
}

// Validate returns every problem with a policy-like blob as human-readable
// strings. An empty slice means the policy is valid. Unlike Parse this is an
// advisory surface for policy authors, so it reports all problems at once.
func Validate(raw map[string]any) []string {
	if raw == nil {
		return []string{"policy is absent"}
	}
	return collectReasons(raw)
}

// collectReasons runs the shared field checks used by Parse and Validate.
func collectReasons(raw map[string]any) []string {
	var reasons []string

	if _, ok := asBool(raw["enabled"]); !ok {
		reasons = append(reasons, "enabled must be a boolean")
	}

	window, ok := asInt(raw["windowMinutesPerBuyer"])
	if !ok {
		reasons = append(reasons, "windowMinutesPerBuyer must be a number")
	} else if window <= 0 {
		reasons = append(reasons, "windowMinutesPerBuyer must be greater than zero")
	}

	startRaw, ok := asString(raw["startAt"])
	if !ok {
		reasons = append(reasons, "startAt must be a timestamp string")
	} else if _, err := parseStartAt(startRaw); err != nil {
		reasons = append(reasons, fmt.Sprintf("startAt %q is not a parseable timestamp", startRaw))
	}

	if tz, ok := asString(raw["timezone"]); !ok || tz == "" {
		reasons = append(reasons, "timezone must be a non-empty string")
	}

	if v, present := raw["gapMinutesBetweenRanks"]; present {
		gap, ok := asInt(v)
		if !ok {
			reasons = append(reasons, "gapMinutesBetweenRanks must be a number")
		} else if gap < 0 {
			reasons = append(reasons, "gapMinutesBetweenRanks must not be negative")
		}
	}

	if v, present := raw["graceMinutesAfterWindow"]; present {
		grace, ok := asInt(v)
		if !ok {
			reasons = append(reasons, "graceMinutesAfterWindow must be a number")
		} else if grace < 0 {
			reasons = append(reasons, "graceMinutesAfterWindow must not be negative")
		} else if grace > MaxGraceMinutes {
			reasons = append(reasons, fmt.Sprintf("graceMinutesAfterWindow must not exceed %d", MaxGraceMinutes))
		}
	}

	return reasons
}

func parseStartAt(value string) (time.Time, error) {
	for _, layout := range startAtLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}

func optionalInt(raw map[string]any, key string) int {
	v, present := raw[key]
	if !present {
		return 0
	}
	n, _ := asInt(v)
	return n
}

// asInt accepts the numeric shapes a JSON decode can produce. Fractional
// values are rejected: minute counts are whole numbers.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func joinReasons(reasons []string) string {
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return "invalid placement policy: " + out
}
