package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"

	"atelier"
	"atelier/internal/api/handler/endpoints"
	"atelier/internal/api/models"
	"atelier/internal/api/repo"
	"atelier/internal/api/service"
)

func main() {
	atelier.InitConfig(".env")
	gin.SetMode(gin.ReleaseMode)
	cfg := atelier.GetConfig()

	if cfg.Mode == "dev" {
		if err := atelier.DB.AutoMigrate(
			&models.GenerationRecord{},
		); err != nil {
			atelier.Logger.Fatal().Err(err).Msg("Failed to migrate database")
		}
		atelier.Logger.Info().Msg("Database migrated successfully")
		gin.SetMode(gin.DebugMode)
	}

	catalogFile, err := models.LoadCatalogFile(cfg.CatalogPath)
	if err != nil {
		atelier.Logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("Failed to load catalog")
	}

	deployments := service.NewDeploymentService(nil, atelier.Logger)
	deployments.Initialize(catalogFile.Deployments)
	catalog := service.NewCatalogService(catalogFile.Models, atelier.Logger)

	templates, err := repo.NewTemplateRepository(cfg.TemplateDir)
	if err != nil {
		atelier.Logger.Fatal().Err(err).Str("dir", cfg.TemplateDir).Msg("Failed to load workflow templates")
	}
	workflows := service.NewWorkflowService(templates, atelier.Logger)
	history := service.NewHistoryService(workflows, cfg.HistoryScanLimit, atelier.Logger)
	selector := service.NewSelectorService(history, workflows, atelier.Logger)

	progress := service.NewNatsProgressSink(cfg.NatsURL, cfg.TenantID, atelier.Logger)
	defer progress.Close()

	artifacts, err := service.NewArtifactService(service.ArtifactConfig{
		Endpoint:      cfg.S3Config.Endpoint,
		AccessKey:     cfg.S3Config.AccessKey,
		SecretKey:     cfg.S3Config.SecretKey,
		Bucket:        cfg.S3Config.Bucket,
		UseSSL:        cfg.S3Config.UseSSL,
		PublicBaseURL: cfg.S3Config.PublicBaseURL,
	}, atelier.Logger)
	if err != nil {
		atelier.Logger.Fatal().Err(err).Msg("Failed to initialize artifact store")
	}

	notifier := service.NewNotifierService(service.NotifierConfig{
		Host:     cfg.SmtpConfig.Host,
		Port:     cfg.SmtpConfig.Port,
		Username: cfg.SmtpConfig.Username,
		Password: cfg.SmtpConfig.Password,
		From:     cfg.SmtpConfig.From,
		AlertTo:  cfg.SmtpConfig.AlertTo,
		UseTLS:   cfg.SmtpConfig.UseTLS,
	}, atelier.Logger)

	generations := service.NewGenerationService(
		deployments,
		catalog,
		selector,
		workflows,
		repo.NewGenerationRepository(),
		repo.NewSettingsRepository(),
		artifacts,
		progress,
		notifier,
		nil,
		atelier.Logger,
	)

	monitor := service.NewMonitorService(
		deployments,
		repo.NewStatusCacheRepository(),
		progress,
		notifier,
		time.Duration(cfg.MonitorInterval)*time.Second,
		atelier.Logger,
	)
	monitor.Start()
	defer monitor.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	router, err := graceful.Default(graceful.WithAddr(cfg.ApiPort))
	if err != nil {
		panic(err)
	}
	defer stop()
	defer router.Close()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	initAPI(router, generations, deployments, selector, workflows, catalog)

	atelier.Logger.Debug().Msgf("Starting atelier API on port %s", cfg.ApiPort)
	if err = router.RunWithContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		atelier.Logger.Fatal().Msg(err.Error())
		panic(err)
	}

}

func initAPI(
	router *graceful.Graceful,
	generations *service.GenerationService,
	deployments *service.DeploymentService,
	selector *service.SelectorService,
	workflows *service.WorkflowService,
	catalog *service.CatalogService,
) {
	endpoints.GenerationHandler(router, generations)
	endpoints.DeploymentHandler(router, deployments)
	endpoints.WorkflowHandler(router, selector, workflows, deployments)
	endpoints.ModelHandler(router, catalog)
	endpoints.SettingsHandler(router)
}
