package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pesio-ai/be-hr-timesheets/internal/client"
	"github.com/pesio-ai/be-hr-timesheets/internal/handler"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/auth"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/config"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/database"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/logger"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/middleware"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/nats"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/telemetry"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository/memory"
	"github.com/pesio-ai/be-hr-timesheets/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("store", cfg.Store.Driver).
		Msg("Starting Timesheets Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, cfg.Service.Name, cfg.Service.Version, log)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}()

	// Initialize stores
	stores, ping, closeStores := openStores(ctx, cfg, log)
	defer closeStores()

	// Notifications are best effort; the service runs without NATS.
	var notifier service.Notifier
	if cfg.NATS.URL != "" {
		natsClient, err := nats.Connect(cfg.NATS.URL, cfg.Service.Name)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, notifications disabled")
		} else {
			defer func() { _ = natsClient.Close() }()
			notifier = client.NewNotificationPublisher(natsClient, log.Logger)
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}

	// Initialize services
	svcCfg := service.Config{StoreTimeout: cfg.Store.Timeout, WeekEndingDay: cfg.Timesheet.WeekEndingDay}
	siteService := service.NewSiteService(stores, svcCfg, log)
	userService := service.NewUserService(stores, siteService, svcCfg, log)
	timesheetService := service.NewTimesheetService(stores, notifier, svcCfg, log)

	// Setup HTTP routes
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	mux := http.NewServeMux()
	handler.NewHTTPHandler(timesheetService, userService, siteService, log).Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.Authenticate(verifier, "/health")(h)
	h = middleware.Timeout(30 * time.Second)(h)
	h = middleware.CORS(cfg.Server.CORSOrigins)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.RequestID(h)
	h = otelhttp.NewHandler(h, cfg.Service.Name)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	grpcServer := handler.NewGRPCServer(cfg.Service.Name, verifier, log)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		watchHealth(gctx, grpcServer, ping, log)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		grpcServer.SetServing(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Server stopped")
}

// openStores wires the configured persistence backend. ping reports store
// health for the gRPC health service.
func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (service.Stores, func(context.Context) error, func()) {
	if cfg.Store.Driver == "memory" {
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		store := memory.New()
		return service.Stores{
			Profiles:   store.Profiles(),
			Timesheets: store.Timesheets(),
			Signatures: store.Signatures(),
			Sites:      store.Sites(),
			Audit:      store.Audit(),
		}, func(context.Context) error { return nil }, func() {}
	}

	dbCfg := database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	}

	if cfg.Database.Migrate {
		if err := database.Migrate(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database migrations")
		}
		log.Info().Msg("Database migrations applied")
	}

	db, err := database.New(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Database connection established")

	return service.Stores{
		Profiles:   repository.NewProfileRepository(db),
		Timesheets: repository.NewTimesheetRepository(db),
		Signatures: repository.NewSignatureRepository(db),
		Sites:      repository.NewSiteRepository(db),
		Audit:      repository.NewAuditRepository(db),
	}, db.Ping, db.Close
}

// watchHealth keeps the gRPC health status in step with the store.
func watchHealth(ctx context.Context, srv *handler.GRPCServer, ping func(context.Context) error, log *logger.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	serving := false
	for {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := ping(pctx)
		cancel()

		if healthy := err == nil; healthy != serving {
			serving = healthy
			srv.SetServing(serving)
			if serving {
				log.Info().Msg("Store reachable, reporting SERVING")
			} else {
				log.Warn().Err(err).Msg("Store unreachable, reporting NOT_SERVING")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
