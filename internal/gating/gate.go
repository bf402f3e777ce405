/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package gating

import "time"

// Code identifies why a placement action is blocked. Empty means not blocked.
type Code string

const (
	CodeNone          Code = ""
	CodeNoRank        Code = "NO_PLACEMENT_RANK"
	CodeWindowNotOpen Code = "PLACEMENT_WINDOW_NOT_OPEN"
	CodeWindowClosed  Code = "PLACEMENT_WINDOW_CLOSED"
)

// Result is a gating decision for one buyer at one instant.
type Result struct {
	Allowed bool `json:"allowed"`
	Code    Code `json:"code,omitempty"`
}

// Check decides whether a buyer with the given rank may place at now.
// A nil or disabled policy never blocks. A missing rank (zero or negative)
// always blocks regardless of time. Window boundaries are inclusive on both
// ends, and a rank whose grace period has elapsed stays blocked for good.
func Check(p *Policy, rank int, now time.Time) Result {
	if p == nil || !p.Enabled {
		return Result{Allowed: true}
	}

	if rank < 1 {
		return Result{Allowed: false, Code: CodeNoRank}
	}

	window := ComputeWindow(*p, rank)

	if now.Before(window.StartsAt) {
		return Result{Allowed: false, Code: CodeWindowNotOpen}
	}
	if now.After(window.GraceEndsAt) {
		return Result{Allowed: false, Code: CodeWindowClosed}
	}
	return Result{Allowed: true}
}

var blockedMessages = map[Code]string{
	CodeNoRank:        "You have not been assigned a placement position yet. You will be notified when your position is ready.",
	CodeWindowNotOpen: "Your placement window has not opened yet. Please check back when it is your turn.",
	CodeWindowClosed:  "Your placement window has closed. Please contact the breeder about remaining availability.",
}

const genericBlockedMessage = "Placement is not available right now."

// BlockedMessage maps a gating code to a stable, user-facing explanation.
// Unknown codes fall back to a generic message.
func BlockedMessage(code Code) string {
	if msg, ok := blockedMessages[code]; ok {
		return msg
	}
	return genericBlockedMessage
}
