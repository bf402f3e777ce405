/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package gating

import "time"

// Window is one rank's exclusive ordering slot. StartsAt < EndsAt <= GraceEndsAt.
type Window struct {
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	GraceEndsAt time.Time `json:"grace_ends_at"`
}

// ComputeWindow derives rank's window from the policy. Ranks are served
// strictly sequentially with a fixed-size slot plus a fixed gap, so rank k's
// start is a linear function of k and any caller can compute any rank's window
// without shared scheduler state. Rank 1 starts exactly at the policy start.
// Returns nil when gating is disabled or rank is not a positive integer.
func ComputeWindow(p Policy, rank int) *Window {
	if !p.Enabled || rank < 1 {
		return nil
	}

	slot := time.Duration(p.WindowMinutesPerBuyer) * time.Minute
	gap := time.Duration(p.GapMinutesBetweenRanks) * time.Minute
	grace := time.Duration(p.GraceMinutesAfterWindow) * time.Minute

	start := p.StartAt.Add(time.Duration(rank-1) * (slot + gap))
	end := start.Add(slot)

	return &Window{
		StartsAt:    start,
		EndsAt:      end,
		GraceEndsAt: end.Add(grace),
	}
}
