package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"gameqc/config"
	"gameqc/handlers"
	"gameqc/ledger"
	"gameqc/lifecycle"
	"gameqc/logger"
	"gameqc/middleware"
	"gameqc/qa"
	"gameqc/routes"
	"gameqc/services"
	"gameqc/store"
)

const launchTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}
	if err := config.Migrate(db); err != nil {
		return err
	}
	if err := config.SeedAdmin(db, cfg); err != nil {
		return err
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)
	defer redisClient.Close()

	// Initialize stores
	versionStore := store.NewVersionStore(db)
	playRecords := store.NewPlayRecords(db)
	evidence := store.NewEvidenceStore(db, redisClient, cfg.QA.EvidenceTTL, log)
	auditLog := store.NewAuditLog(db)

	// Initialize services
	hub := services.NewHub(log)
	bridge := services.NewRuntimeBridge(launchTimeout, log)
	authService := services.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL, log)
	machine := lifecycle.NewMachine(versionStore, authService, hub, auditLog, log)
	orchestrator := qa.NewOrchestrator(bridge, playRecords, qa.NewIdempotencyChecker(playRecords), cfg.QA.Orchestrator(), log)

	versionService := services.NewVersionService(db, machine, authService, evidence, log)
	reviewService := services.NewReviewService(machine, ledger.New(db), evidence, auditLog, log)
	qaService := services.NewQAService(db, orchestrator, playRecords, evidence,
		services.NewArtifactStore(cfg.CDNBaseURL), authService, hub, cfg.QA.OverallTimeout, log)

	// Setup Gin router
	if cfg.LogMode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log), middleware.CORS(cfg.CORSOrigins))

	routes.SetupRoutes(router, routes.Handlers{
		Auth:    handlers.NewAuthHandler(authService, log),
		Version: handlers.NewVersionHandler(versionService, log),
		Review:  handlers.NewReviewHandler(reviewService, log),
		QA:      handlers.NewQAHandler(qaService, log),
		WS:      handlers.NewWSHandler(hub, bridge, log),
	}, middleware.NewAuthMiddleware(log, authService, authService), cfg.HarnessToken, hub, bridge)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddress, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		log.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
