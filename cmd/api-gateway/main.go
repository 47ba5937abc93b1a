package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/kiteline/kiteline-api/api/swagger"
	"github.com/kiteline/kiteline-api/internal/handler"
	"github.com/kiteline/kiteline-api/internal/middleware"
	"github.com/kiteline/kiteline-api/internal/models"
	"github.com/kiteline/kiteline-api/internal/repository"
	"github.com/kiteline/kiteline-api/internal/service"
	"github.com/kiteline/kiteline-api/pkg/cache"
	"github.com/kiteline/kiteline-api/pkg/config"
	"github.com/kiteline/kiteline-api/pkg/database"
	"github.com/kiteline/kiteline-api/pkg/logger"
	corsmiddleware "github.com/kiteline/kiteline-api/pkg/middleware/cors"
	reqidmiddleware "github.com/kiteline/kiteline-api/pkg/middleware/requestid"
)

// @title Kiteline API
// @version 0.1.0
// @description Session-authenticated social platform with identity verification
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.DefaultTTL, logr, true)
	}

	userRepo := repository.NewUserRepository(db)
	verificationRepo := repository.NewVerificationRepository(db)
	postRepo := repository.NewPostRepository(db)
	followRepo := repository.NewFollowRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	verificationSvc := service.NewVerificationService(verificationRepo, userRepo, cacheSvc, metricsSvc, validate, logr, cfg.Verification.StatusTTL)
	exportSvc := service.NewExportService(verificationSvc, nil, nil, logr)
	postSvc := service.NewPostService(postRepo, userRepo, validate, logr)
	followSvc := service.NewFollowService(followRepo, userRepo, logr)
	messageSvc := service.NewMessageService(messageRepo, userRepo, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	verificationHandler := handler.NewVerificationHandler(verificationSvc, userSvc, exportSvc)
	postHandler := handler.NewPostHandler(postSvc, userSvc)
	followHandler := handler.NewFollowHandler(followSvc, userSvc)
	messageHandler := handler.NewMessageHandler(messageSvc, userSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	// Profile and timeline reads are public; claims are attached when present.
	public := api.Group("", middleware.OptionalJWT(authSvc))
	{
		public.GET("/users/:username", userHandler.Get)
		public.GET("/users/:username/posts", postHandler.ListByAuthor)
		public.GET("/users/:username/followers", followHandler.Followers)
		public.GET("/users/:username/following", followHandler.Following)
		public.GET("/posts/:id", postHandler.Get)
	}

	authed := api.Group("", middleware.JWT(authSvc))
	{
		authed.PATCH("/users/me", userHandler.UpdateMe)
		authed.POST("/users/:username/follow", followHandler.Follow)
		authed.DELETE("/users/:username/follow", followHandler.Unfollow)

		authed.POST("/posts", postHandler.Create)
		authed.DELETE("/posts/:id", postHandler.Delete)

		authed.GET("/messages/:username", messageHandler.Conversation)
		authed.POST("/messages/:username", messageHandler.Send)

		authed.POST("/verification", verificationHandler.Submit)
		authed.GET("/verification/me", verificationHandler.Me)
	}

	// The administrator gate sits in front of every review operation; the
	// verification service itself never checks roles.
	admin := api.Group("", middleware.JWT(authSvc), middleware.RequireAdmin())
	{
		admin.GET("/users", userHandler.List)
		admin.DELETE("/users/:username", userHandler.Deactivate)

		admin.GET("/verification/:username", verificationHandler.Get)
		admin.POST("/verification/:username/approve", verificationHandler.Approve)
		admin.POST("/verification/:username/reject", verificationHandler.Reject)
		admin.DELETE("/verification/:id", verificationHandler.Delete)

		if cfg.Verification.ExportEnabled {
			admin.GET("/admin/verification/export",
				middleware.Audit(userRepo, models.AuditActionVerificationExport, "verification_requests"),
				verificationHandler.Export)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
