package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.elastic.co/apm/module/apmgin"

	votingController "github.com/fedus/safe-crossing-cf/internal/api/controllers/voting"
	"github.com/fedus/safe-crossing-cf/internal/config"
	"github.com/fedus/safe-crossing-cf/internal/domain/tracing"
	"github.com/fedus/safe-crossing-cf/internal/domain/voting"
	apmTracing "github.com/fedus/safe-crossing-cf/internal/infra/apm/tracing"
	"github.com/fedus/safe-crossing-cf/internal/infra/cron/audit"
	"github.com/fedus/safe-crossing-cf/internal/infra/seed"
	"github.com/fedus/safe-crossing-cf/internal/infra/server/binding/validation"
	"github.com/fedus/safe-crossing-cf/internal/infra/server/routing"
	votingRouting "github.com/fedus/safe-crossing-cf/internal/infra/server/routing/voting"
)

const defaultShutdownTimeout = 10 * time.Second

// Components holds everything the server needs to run
type Components struct {
	Config         *config.App
	Storage        *Storage
	VotingService  voting.Service
	AuditScheduler *audit.Scheduler
	Engine         *gin.Engine
}

// NewComponents wires up storage, the voting service, the audit schedule and the HTTP routes.
// SQL stores are migrated if needed, and the configured seed file, if any, is imported.
func NewComponents(appConfig *config.App) (*Components, error) {
	storage, err := OpenStorage(appConfig.Storage)
	if err != nil {
		return nil, err
	}
	if err := storage.Setup.RunIfNeeded(context.Background()); err != nil {
		_ = storage.Close()
		return nil, err
	}

	tracer := apmTracing.NewTracer()
	votingService := voting.NewService(storage.Store, tracer, appConfig.Voting)
	if seedFile := appConfig.Storage.SeedFile; seedFile != "" {
		if err := importSeedFile(votingService, tracer, seedFile); err != nil {
			_ = storage.Close()
			return nil, err
		}
	}

	var auditScheduler *audit.Scheduler
	if appConfig.Audit.Enabled {
		auditScheduler, err = newAuditScheduler(votingService, tracer, appConfig.Audit)
		if err != nil {
			_ = storage.Close()
			return nil, err
		}
	}

	return &Components{
		Config:         appConfig,
		Storage:        storage,
		VotingService:  votingService,
		AuditScheduler: auditScheduler,
		Engine:         NewEngine(appConfig.Auth, votingController.New(votingService)),
	}, nil
}

func importSeedFile(votingService voting.Service, tracer tracing.Tracer, path string) error {
	crossings, err := seed.Load(path)
	if err != nil {
		return err
	}
	tx := tracer.BackgroundTx("seed")
	defer tx.End()
	imported, err := votingService.ImportCrossings(tx.Context(), crossings)
	if err != nil {
		return err
	}
	log.Info().
		Str("file", path).
		Int("in_file", len(crossings)).
		Uint("imported", imported).
		Msg("Imported seed file")
	return nil
}

func newAuditScheduler(votingService voting.Service, tracer tracing.Tracer, settings config.Audit) (*audit.Scheduler, error) {
	scheduler := audit.NewScheduler(votingService, tracer)
	if err := scheduler.Schedule(settings.Schedule); err != nil {
		return nil, err
	}
	return scheduler, nil
}

// NewEngine builds the gin engine with middleware and every route registered
func NewEngine(auth *config.Auth, controller votingController.Controller) *gin.Engine {
	validation.SetUpValidators()

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(
		logger.SetLogger(logger.Config{
			Logger: &log.Logger,
			UTC:    true,
		}),
		gin.Recovery(),
		apmgin.Middleware(engine),
		gzip.Gzip(gzip.DefaultCompression),
	)
	engine.NoRoute(routing.NoRoute)
	engine.NoMethod(routing.NoMethod)
	engine.GET("/health", routing.Health)

	topLevelRoutesGroup := routing.NewTopLevelRoutesGroup(auth, engine)
	votingRoutesHandler := votingRouting.RoutesHandler{Controller: controller}
	votingRoutesHandler.RegisterRoutes(topLevelRoutesGroup)

	return engine
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully
func (c *Components) Run() {
	srv := &http.Server{
		Addr:    c.Config.BindAddress,
		Handler: c.Engine,
	}

	if c.AuditScheduler != nil {
		c.AuditScheduler.Start()
	}

	go func() {
		log.Info().Str("bind_address", c.Config.BindAddress).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	shutdownTimeout := c.Config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if c.AuditScheduler != nil {
		c.AuditScheduler.Stop()
	}
	if err := c.Storage.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close storage")
	}
	log.Info().Msg("Server exited")
}
