package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/rdc-learning-api/api/swagger"
	"github.com/noah-isme/rdc-learning-api/internal/handler"
	"github.com/noah-isme/rdc-learning-api/internal/middleware"
	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/internal/repository"
	"github.com/noah-isme/rdc-learning-api/internal/service"
	"github.com/noah-isme/rdc-learning-api/pkg/cache"
	"github.com/noah-isme/rdc-learning-api/pkg/config"
	"github.com/noah-isme/rdc-learning-api/pkg/database"
	"github.com/noah-isme/rdc-learning-api/pkg/export"
	"github.com/noah-isme/rdc-learning-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/rdc-learning-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/rdc-learning-api/pkg/middleware/requestid"
	"github.com/noah-isme/rdc-learning-api/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

// @title RDC Learning API
// @version 1.0.0
// @description Enrollment, referral, invoice and prebooking API
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := database.Migrate(db.DB, "up", cfg.Database.MigrationsDir); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied")
	}

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	var redisRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			redisRepo = repository.NewCacheRepository(client, logr)
			cacheRepo = redisRepo
			defer redisRepo.Close() //nolint:errcheck
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.CourseTTL, logr, cfg.Cache.Enabled)

	objectStore, err := storage.New(cfg)
	if err != nil {
		logr.Fatal("failed to init invoice storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Invoices.SignedURLSecret, cfg.Invoices.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	prebookingRepo := repository.NewPrebookingRepository(db)
	configRepo := repository.NewConfigurationRepository(db)

	authSvc := service.NewAuthService(cfg.JWT.Secret)
	settingsSvc := service.NewSettingsService(configRepo, cacheSvc,
		service.DefaultReferralSettings(cfg.Referral.DiscountPercentage, cfg.Referral.PointsPerReferral),
		cfg.Cache.SettingsTTL, validate, logr)
	invoiceSvc := service.NewInvoiceService(invoiceRepo, enrollmentRepo, userRepo, courseRepo,
		export.NewPDFExporter(), objectStore, signer, metricsSvc, logr)
	enrollmentSvc := service.NewEnrollmentService(userRepo, courseRepo, enrollmentRepo, invoiceSvc,
		cacheSvc, metricsSvc, cfg.Cache.EnrollmentsTTL, validate, logr)
	prebookingSvc := service.NewPrebookingService(prebookingRepo, courseRepo, userRepo,
		export.NewCSVExporter(true), cacheSvc, metricsSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, cfg.Cache.CourseTTL, validate, logr)

	reconciler := service.NewInvoiceReconciler(invoiceRepo, invoiceSvc, service.ReconcilerConfig{
		Schedule:   cfg.Invoices.ReconcileSchedule,
		BatchSize:  cfg.Invoices.ReconcileBatch,
		Workers:    cfg.Invoices.WorkerConcurrency,
		MaxRetries: cfg.Invoices.WorkerRetries,
		RetryDelay: cfg.Invoices.WorkerRetryDelay,
	}, metricsSvc, logr)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if err := reconciler.Start(workerCtx); err != nil {
		logr.Fatal("failed to start invoice reconciler", zap.Error(err))
	}

	apiPrefix := "/" + strings.Trim(cfg.APIPrefix, "/")
	swagger.SwaggerInfo.BasePath = apiPrefix

	checks := map[string]handler.ReadinessCheck{"database": db.PingContext}
	if redisRepo != nil {
		checks["cache"] = redisRepo.Ping
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, settingsSvc)
	prebookingHandler := handler.NewPrebookingHandler(prebookingSvc)
	invoiceHandler := handler.NewInvoiceHandler(invoiceSvc, enrollmentSvc, apiPrefix+"/invoices/download")
	courseHandler := handler.NewCourseHandler(courseSvc)
	configurationHandler := handler.NewConfigurationHandler(settingsSvc)

	api := r.Group(apiPrefix)
	api.GET("/invoices/download", invoiceHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))
	{
		secured.POST("/enrollments", middleware.Audit(logr, "enroll", "enrollment"), enrollmentHandler.Enroll)
		secured.GET("/enrollments/:id", enrollmentHandler.Get)
		secured.GET("/enrollments/:id/invoice", invoiceHandler.GetByEnrollment)
		secured.GET("/users/:id/enrollments", middleware.RBAC(middleware.RoleSelf, string(models.RoleAdmin), string(models.RoleModerator), string(models.RoleSeller)), enrollmentHandler.ListByUser)

		secured.POST("/prebookings", prebookingHandler.Prebook)

		secured.POST("/invoices", invoiceHandler.Create)
		secured.GET("/invoices/:id", invoiceHandler.Get)
		secured.GET("/invoices/:id/link", invoiceHandler.Link)

		secured.GET("/courses/:id", courseHandler.Get)
		secured.GET("/settings/referral", configurationHandler.GetReferral)

		staff := secured.Group("")
		staff.Use(middleware.RequireStaff())
		staff.POST("/courses", middleware.Audit(logr, "create", "course"), courseHandler.Create)
		staff.GET("/courses/:id/prebookings", prebookingHandler.List)
		staff.GET("/courses/:id/prebookings/export", middleware.Audit(logr, "export", "prebooking"), prebookingHandler.Export)

		secured.PUT("/settings/referral", middleware.RequireRoles(models.RoleAdmin), middleware.Audit(logr, "update", "referral_settings"), configurationHandler.UpdateReferral)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "api_prefix", apiPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	reconciler.Stop()
	stopWorkers()
	logr.Info("server stopped")
}
