/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pawmarkhq/placement/internal/api"
	"github.com/pawmarkhq/placement/internal/audit"
	"github.com/pawmarkhq/placement/internal/cache"
	"github.com/pawmarkhq/placement/internal/config"
	"github.com/pawmarkhq/placement/internal/db"
	"github.com/pawmarkhq/placement/internal/documents"
	"github.com/pawmarkhq/placement/internal/eventbus"
	"github.com/pawmarkhq/placement/internal/events"
	"github.com/pawmarkhq/placement/internal/genetics"
	"github.com/pawmarkhq/placement/internal/leadership"
	"github.com/pawmarkhq/placement/internal/notifications"
	"github.com/pawmarkhq/placement/internal/placement"
	"github.com/pawmarkhq/placement/internal/telemetry"
	"github.com/pawmarkhq/placement/internal/webhooks"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db       *gorm.DB
	cache    *cache.Cache
	bus      *events.Bus
	redisBus *eventbus.RedisBus
	election *leadership.Election

	placementSvc    *placement.Service
	geneticsSvc     *genetics.Service
	geneticsWorker  *genetics.Worker
	notificationSvc *notifications.Service
	reminder        *notifications.Reminder
	documentsSvc    *documents.Service
	auditSvc        *audit.Service
	webhookSvc      *webhooks.Service
	api             *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("pawmark-placement-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for long-lived and large-body requests.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// WebSocket queue feeds stay open indefinitely.
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			// Document uploads can legitimately exceed the request timeout.
			if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/documents") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.router,
		// Keep header deadline to protect against slowloris, but do not enforce a full-body
		// read deadline so document uploads are not terminated mid-request.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		// WriteTimeout set to 0 for websocket support - handlers manage their own deadlines.
		// The middleware timeout (60s) handles plain routes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())
	srv.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	// Redis-backed policy/queue cache reduces per-request database load.
	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		entityCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = entityCache
			s.DeferClose(func() error { return s.cache.Close() })
		}
	}

	// Multi-instance mode: Redis leader election plus a Redis event relay so
	// queue feeds and cache invalidation work across instances.
	var publisher placement.Publisher = s.bus
	if s.cfg.LeaderElectionEnabled {
		electionCfg := leadership.DefaultConfig()
		electionCfg.RedisAddr = s.cfg.RedisAddr
		electionCfg.RedisPassword = s.cfg.RedisPassword
		electionCfg.RedisDB = s.cfg.RedisDB
		if s.cfg.InstanceID != "" {
			electionCfg.InstanceID = s.cfg.InstanceID
		}
		election, err := leadership.NewElection(electionCfg, s.logger)
		if err != nil {
			return fmt.Errorf("leader election setup: %w", err)
		}
		s.election = election
		s.DeferClose(election.Stop)

		busCfg := eventbus.DefaultRedisConfig()
		busCfg.Addr = s.cfg.RedisAddr
		busCfg.Password = s.cfg.RedisPassword
		busCfg.DB = s.cfg.RedisDB
		s.redisBus = eventbus.NewRedisBus(busCfg, electionCfg.InstanceID, s.bus, s.logger)
		s.redisBus.Relay(
			events.EventPlacementRecorded,
			events.EventQueueUpdated,
			events.EventPolicyUpdated,
			events.EventProgramUpdated,
			events.EventGeneticsSynced,
			events.EventCachePolicyInvalidate,
			events.EventCacheQueueInvalidate,
		)
		s.DeferClose(s.redisBus.Close)
		publisher = s.redisBus
	}

	storage, err := documents.NewStorage(context.Background(), s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("document storage setup: %w", err)
	}
	if err := storage.CheckAccess(context.Background()); err != nil {
		return fmt.Errorf("document storage access check: %w", err)
	}

	remapper, err := genetics.LoadRemapper(s.cfg.GeneticsRemapPath)
	if err != nil {
		return fmt.Errorf("genetics remap table: %w", err)
	}

	s.placementSvc = placement.NewService(s.db, publisher, s.cache, s.logger)
	s.geneticsSvc = genetics.NewService(s.db, publisher, remapper, s.logger)
	s.documentsSvc = documents.NewService(s.db, storage, s.logger)
	s.notificationSvc = notifications.NewService(s.db, s.bus, s.logger)
	s.auditSvc = audit.NewService(s.db, s.bus, s.logger)
	s.webhookSvc = webhooks.NewService(s.db, s.bus, s.logger)

	// A nil checker means single-instance mode: workers always run.
	var geneticsLeader genetics.LeaderChecker
	var reminderLeader notifications.LeaderChecker
	if s.election != nil {
		geneticsLeader = s.election
		reminderLeader = s.election
	}
	s.geneticsWorker = genetics.NewWorker(s.geneticsSvc, geneticsLeader, s.cfg.GeneticsSyncInterval, s.logger)
	s.reminder = notifications.NewReminder(
		s.db,
		s.notificationSvc,
		reminderLeader,
		s.cfg.ReminderCheckInterval,
		time.Duration(s.cfg.ReminderLeadMinutes)*time.Minute,
		s.logger,
	)

	s.api = api.New(s.db, s.placementSvc, s.geneticsSvc, s.documentsSvc, s.auditSvc, s.webhookSvc, s.bus, s.logger)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the Prometheus endpoint server, bound separately
// so metrics are not reachable through the public listener.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.election != nil {
		s.election.Start(ctx)
	}

	s.geneticsWorker.Start(ctx)
	s.notificationSvc.Start(ctx)
	s.reminder.Start(ctx)

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.webhookSvc.Start(ctx)
	}()

	// Sweep overdue queue entries so stale queues converge without breeder
	// action. Leader-gated in multi-instance mode.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(s.cfg.ReminderCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.election != nil && !s.election.IsLeader() {
					continue
				}
				if _, err := s.placementSvc.ExpireAllOverdue(ctx, time.Now().UTC()); err != nil {
					s.logger.Error().Err(err).Msg("queue expiry sweep failed")
				}
			}
		}
	}()

	// Periodic connection pool metrics.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	if s.cache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}
}

// runCacheInvalidationListener drops cached policies and queues when they
// change, including changes relayed from other instances.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	policyUpdated := s.bus.Subscribe(events.EventPolicyUpdated)
	policyInvalidate := s.bus.Subscribe(events.EventCachePolicyInvalidate)
	queueUpdated := s.bus.Subscribe(events.EventQueueUpdated)
	queueInvalidate := s.bus.Subscribe(events.EventCacheQueueInvalidate)
	placementRecorded := s.bus.Subscribe(events.EventPlacementRecorded)

	defer func() {
		s.bus.Unsubscribe(events.EventPolicyUpdated, policyUpdated)
		s.bus.Unsubscribe(events.EventCachePolicyInvalidate, policyInvalidate)
		s.bus.Unsubscribe(events.EventQueueUpdated, queueUpdated)
		s.bus.Unsubscribe(events.EventCacheQueueInvalidate, queueInvalidate)
		s.bus.Unsubscribe(events.EventPlacementRecorded, placementRecorded)
	}()

	s.logger.Info().Msg("cache invalidation listener started")

	invalidatePolicy := func(payload events.Payload) {
		if programID, ok := payload["program_id"].(string); ok && programID != "" {
			s.logger.Debug().Str("program_id", programID).Msg("invalidating policy cache")
			s.cache.InvalidatePolicy(ctx, programID)
		}
	}
	invalidateQueue := func(payload events.Payload) {
		if programID, ok := payload["program_id"].(string); ok && programID != "" {
			s.logger.Debug().Str("program_id", programID).Msg("invalidating queue cache")
			s.cache.InvalidateQueue(ctx, programID)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return

		case payload := <-policyUpdated:
			invalidatePolicy(payload)

		case payload := <-policyInvalidate:
			invalidatePolicy(payload)

		case payload := <-queueUpdated:
			invalidateQueue(payload)

		case payload := <-queueInvalidate:
			invalidateQueue(payload)

		case payload := <-placementRecorded:
			invalidateQueue(payload)
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.reminder.Stop()
	s.notificationSvc.Stop()
	s.geneticsWorker.Stop()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`

		// Add leader status if leader election is enabled
		if s.election != nil {
			if s.election.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}

		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.api.Routes(s.router)
}
