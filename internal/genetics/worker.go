/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package genetics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LeaderChecker reports whether this instance currently holds the worker
// lease. A nil checker means single-instance mode: always run.
type LeaderChecker interface {
	IsLeader() bool
}

// Worker runs the genetics sync on an interval. When an election is supplied
// each tick is skipped on non-leader instances, so one instance syncs at a
// time across a deployment.
type Worker struct {
	service  *Service
	election LeaderChecker
	interval time.Duration
	logger   zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a periodic sync worker. election may be nil.
func NewWorker(service *Service, election LeaderChecker, interval time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		service:  service,
		election: election,
		interval: interval,
		logger:   logger.With().Str("component", "genetics_worker").Logger(),
	}
}

// Start begins the sync loop. The first sync happens after one interval.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Info().Dur("interval", w.interval).Msg("genetics sync worker started")
		for {
			select {
			case <-ctx.Done():
				w.logger.Info().Msg("genetics sync worker stopped")
				return
			case <-ticker.C:
				if w.election != nil && !w.election.IsLeader() {
					continue
				}
				if _, err := w.service.SyncAll(ctx, false); err != nil {
					w.logger.Error().Err(err).Msg("genetics sync run failed")
				}
			}
		}
	}()
}

// Stop terminates the loop and waits for the current run to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.done != nil {
		<-w.done
	}
}
