// @title           Baby Care Profile Picture API
// @version         1.0.0
// @description     Upload, optimize and serve profile pictures for users and babies. Uploads are validated by content, resized and re-encoded before they replace the stored picture.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/semaphore"

	"babycare-backend/docs"
	"babycare-backend/internal/cache"
	"babycare-backend/internal/config"
	"babycare-backend/internal/database"
	"babycare-backend/internal/handlers"
	"babycare-backend/internal/imageproc"
	"babycare-backend/internal/imageproc/codecs"
	"babycare-backend/internal/logging"
	"babycare-backend/internal/metrics"
	"babycare-backend/internal/middleware"
	"babycare-backend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.InitLogger(cfg.LogLevel)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Point Swagger at the deployed host
	if baseURL, err := url.Parse(cfg.BaseURL); err == nil && baseURL.Host != "" {
		docs.SwaggerInfo.Host = baseURL.Host
		if baseURL.Scheme == "https" {
			docs.SwaggerInfo.Schemes = []string{"https", "http"}
		} else {
			docs.SwaggerInfo.Schemes = []string{"http", "https"}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewDatabaseClient(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	if err := database.NewMigrator(dbClient.DB(), logger).Run(ctx); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations completed successfully")

	chain := imageproc.DefaultChain(
		codecs.NewAVIF(cfg.AVIFQuality, cfg.AVIFSpeed),
		codecs.NewWebP(cfg.WebPQuality),
		imageproc.PNGEncoder{},
		imageproc.DefaultAVIFMaxRatio,
	)
	normalizerOpts := imageproc.DefaultNormalizerOptions()
	normalizerOpts.MaxDimension = cfg.MaxImageDimension
	normalizerOpts.MinDimension = cfg.MinImageDimension
	normalizer := imageproc.NewNormalizer(normalizerOpts, chain, logger.With("component", "normalizer"))

	// Full decodes in the Gatekeeper and normalization share one CPU budget
	processingSlots := semaphore.NewWeighted(int64(cfg.ProcessingConcurrency))

	gatekeeperOpts := imageproc.DefaultGatekeeperOptions()
	gatekeeperOpts.MaxBytes = cfg.MaxUploadBytes
	gatekeeperOpts.DecodeSlots = processingSlots
	gatekeeper := imageproc.NewGatekeeper(gatekeeperOpts)

	imageCache, err := cache.NewImageCache(cfg.ImageCacheSize)
	if err != nil {
		logger.Error("failed to create image cache", "error", err)
		os.Exit(1)
	}
	m := metrics.New()

	profilePictures := services.NewProfilePictureService(dbClient, normalizer, imageCache, m, services.ServiceOptions{
		Slots:              processingSlots,
		DefaultUserPicture: cfg.DefaultUserPicture,
		DefaultBabyPicture: cfg.DefaultBabyPicture,
	}, logger.With("component", "profile_pictures"))

	profilePictureHandler := handlers.NewProfilePictureHandler(gatekeeper, profilePictures, logger)
	healthHandler := handlers.NewHealthHandler(dbClient)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check and metrics (no auth)
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	auth := middleware.AuthMiddleware(cfg)

	// Image tags cannot send a bearer token, so reads are public
	v1.GET("/profile-picture/:entityType/:entityId", profilePictureHandler.Get)
	v1.POST("/profile-picture/upload", auth, profilePictureHandler.Upload)
	v1.DELETE("/profile-picture/:entityType/:entityId", auth, profilePictureHandler.Delete)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
