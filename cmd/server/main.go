// Command server wires the security and GDPR services behind one HTTP
// server. Business logic lives in the internal packages; this file only
// assembles dependencies and manages the process lifecycle.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"batisecure/internal/crypto/pii"
	gdprservice "batisecure/internal/gdpr/service"
	gdprstore "batisecure/internal/gdpr/store"
	gdprtracer "batisecure/internal/gdpr/tracer"
	"batisecure/internal/platform/config"
	"batisecure/internal/platform/database"
	"batisecure/internal/platform/health"
	"batisecure/internal/platform/logger"
	"batisecure/internal/platform/metrics"
	"batisecure/internal/security/anomaly"
	"batisecure/internal/security/events"
	"batisecure/internal/security/guard"
	"batisecure/internal/security/permissions"
	"batisecure/internal/security/ratelimit"
	httptransport "batisecure/internal/transport/http"
)

func main() {
	log := logger.New()

	if len(os.Args) > 1 && os.Args[1] == "gen-service-key" {
		if err := genServiceKey(os.Stdout); err != nil {
			log.Error("service key generation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	cipher, err := pii.NewCipher(cfg.PIIMasterKey)
	if err != nil {
		log.Error("pii cipher initialization failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	pool, err := database.New(database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    database.DefaultConfig().MaxOpenConns,
		MaxIdleConns:    database.DefaultConfig().MaxIdleConns,
		ConnMaxLifetime: database.DefaultConfig().ConnMaxLifetime,
	})
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	// Security event pipeline. HIGH/CRITICAL entries also reach the alert
	// sink; the async buffer keeps event persistence off the hot path.
	var eventStore events.Store
	if pool != nil {
		eventStore = events.NewPostgres(pool.DB())
	} else {
		eventStore = events.NewInMemoryStore()
	}
	eventLog := events.NewLogger(eventStore, log,
		events.WithMetrics(m),
		events.WithAlertSink(&events.SlogAlertSink{Logger: log}),
		events.WithAsyncBuffer(256),
	)
	defer eventLog.Close()

	var roleStore permissions.RoleStore
	if pool != nil {
		// the scheduler's service account row is seeded by migration
		roleStore = permissions.NewPostgresRoleStore(pool.DB())
	} else {
		memRoles := permissions.NewInMemoryRoleStore()
		memRoles.SetRole(httptransport.ServiceAccountID, permissions.RoleAdmin)
		roleStore = memRoles
	}

	g := guard.New(
		ratelimit.NewLimiter(ratelimit.NewInMemoryBucketStore(), eventLog,
			ratelimit.WithLimit(cfg.RateLimitMax),
			ratelimit.WithWindow(cfg.RateLimitWindow),
			ratelimit.WithMetrics(m),
		),
		permissions.NewEvaluator(roleStore, eventLog, log, permissions.WithMetrics(m)),
		anomaly.NewDetector(anomaly.WithMetrics(m)),
		eventLog,
		guard.WithMetrics(m),
	)

	// GDPR controller: single-instance memory stores without a database,
	// PostgreSQL with real transactions otherwise.
	var (
		stores  gdprservice.Stores
		tx      gdprservice.Tx
		options = []gdprservice.Option{
			gdprservice.WithMetrics(m),
			gdprservice.WithTracer(gdprtracer.NewOTel()),
			gdprservice.WithPIICipher(cipher),
		}
	)
	if pool != nil {
		pg := gdprstore.NewPostgres(pool.DB())
		stores = gdprservice.Stores{
			Consents: pg, Requests: pg, Logs: pg,
			Retention: pg, Breaches: pg, Subjects: pg,
		}
		tx = newGDPRPostgresTx(pool.DB())
		options = append(options,
			gdprservice.WithCleanupStrategy("notifications", sqlCleanupStrategy(pool.DB(), "notifications", "created_at")),
			gdprservice.WithCleanupStrategy("messages", sqlCleanupStrategy(pool.DB(), "messages", "created_at")),
			gdprservice.WithCleanupStrategy("security_events", sqlCleanupStrategy(pool.DB(), "security_events", "occurred_at")),
		)
	} else {
		mem := gdprstore.NewMemoryStore()
		stores = gdprservice.Stores{
			Consents: mem, Requests: mem, Logs: mem,
			Retention: mem, Breaches: mem, Subjects: mem,
		}
		tx = gdprservice.NewMemoryTx(mem)
	}
	controller := gdprservice.NewController(stores, tx, log, options...)

	healthHandler := health.New(os.Getenv("BATISECURE_ENV"))
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}

	handler := httptransport.NewHandler(controller, eventStore, log)
	router := httptransport.NewRouter(handler, g, healthHandler, httptransport.AuthConfig{
		JWTSecret:      []byte(cfg.AdminJWTKey),
		ServiceKeyHash: cfg.ServiceKeyHash,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("starting http server",
		"addr", cfg.Addr,
		"database", pool != nil,
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		if err := pool.Close(); err != nil {
			log.Error("database close failed", "error", err)
		}
	}

	log.Info("server stopped")
}
