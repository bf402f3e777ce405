/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	ws "nhooyr.io/websocket"

	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/placement"
	"github.com/pawmarkhq/placement/internal/telemetry"
)

// feedMessage is one frame on the queue live feed.
type feedMessage struct {
	Type      string    `json:"type"`
	ProgramID string    `json:"program_id"`
	Timestamp time.Time `json:"timestamp"`
	Queue     any       `json:"queue,omitempty"`
	Event     any       `json:"event,omitempty"`
}

// handleQueueFeed streams queue snapshots over a websocket. A snapshot is
// pushed on connect and after every queue or placement event for the program.
func (a *API) handleQueueFeed(w http.ResponseWriter, r *http.Request) {
	programID := chi.URLParam(r, "programID")

	if _, err := a.placement.GetProgram(r.Context(), programID); err != nil {
		if errors.Is(err, placement.ErrProgramNotFound) {
			writeError(w, http.StatusNotFound, "program_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get_failed")
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	a.logger.Debug().Str("program_id", programID).Msg("queue feed connected")

	queueCh := a.bus.Subscribe(events.EventQueueUpdated)
	placementCh := a.bus.Subscribe(events.EventPlacementRecorded)
	defer a.bus.Unsubscribe(events.EventQueueUpdated, queueCh)
	defer a.bus.Unsubscribe(events.EventPlacementRecorded, placementCh)

	ctx := r.Context()

	// Reads are discarded; the feed is one way. This also surfaces client
	// disconnects without a ping loop.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	if err := a.sendSnapshot(ctx, conn, programID, nil); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "server shutdown")
			return
		case <-readDone:
			conn.Close(ws.StatusNormalClosure, "client closed")
			return
		case payload, ok := <-queueCh:
			if !ok {
				return
			}
			if payload["program_id"] != programID {
				continue
			}
			if err := a.sendSnapshot(ctx, conn, programID, payload); err != nil {
				return
			}
		case payload, ok := <-placementCh:
			if !ok {
				return
			}
			if payload["program_id"] != programID {
				continue
			}
			if err := a.sendSnapshot(ctx, conn, programID, payload); err != nil {
				return
			}
		}
	}
}

func (a *API) sendSnapshot(ctx context.Context, conn *ws.Conn, programID string, event events.Payload) error {
	snapshot, err := a.placement.QueueSnapshot(ctx, programID)
	if err != nil {
		a.logger.Error().Err(err).Str("program_id", programID).Msg("queue snapshot failed")
		return err
	}

	message := feedMessage{
		Type:      "queue_snapshot",
		ProgramID: programID,
		Timestamp: time.Now().UTC(),
		Queue:     snapshot,
	}
	if event != nil {
		message.Event = event
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, ws.MessageText, data)
}
