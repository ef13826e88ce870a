package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/mesa-scheduler/api/swagger"
	"github.com/noah-isme/mesa-scheduler/internal/bootstrap"
	"github.com/noah-isme/mesa-scheduler/internal/handler"
	internalmiddleware "github.com/noah-isme/mesa-scheduler/internal/middleware"
	"github.com/noah-isme/mesa-scheduler/pkg/config"
	"github.com/noah-isme/mesa-scheduler/pkg/logger"
	corsmiddleware "github.com/noah-isme/mesa-scheduler/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/mesa-scheduler/pkg/middleware/requestid"
)

// @title Mesa Scheduler API
// @version 1.0.0
// @description Groups and schedules exam units (mesas) under teacher, student and precedence constraints.
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

	container, err := bootstrap.New(cfg, logr)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if container.Jobs != nil {
		container.Jobs.Start(ctx)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(container.Metrics, "/metrics"))

	dependencies := map[string]handler.Pinger{"postgres": container.DB}
	if container.Redis != nil {
		client := container.Redis
		dependencies["redis"] = handler.PingerFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	metricsHandler := handler.NewMetricsHandler(container.Metrics, dependencies)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	groupHandler := handler.NewExamGroupHandler(container.Grouping, container.Reoptimize, container.Mutations)
	unitHandler := handler.NewExamUnitHandler(container.BatchAssign, container.Mutations)
	jobHandler := handler.NewSchedulerJobHandler(nil)
	if container.Jobs != nil {
		jobHandler = handler.NewSchedulerJobHandler(container.Jobs)
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())
	{
		api.GET("/metrics/summary", metricsHandler.Summary)

		groups := api.Group("/exam-groups")
		groups.POST("/run", groupHandler.Run)
		groups.POST("/reoptimize", groupHandler.Reoptimize)
		groups.GET("/candidates", groupHandler.Candidates)
		groups.POST("/:id/members", groupHandler.AddMember)

		units := api.Group("/exam-units")
		units.POST("/batch-assign", unitHandler.BatchAssign)
		units.POST("/:number/split", unitHandler.Split)
		units.POST("/:number/move", unitHandler.Move)
		units.DELETE("/:number/group", unitHandler.RemoveFromGroup)

		jobs := api.Group("/scheduler/jobs")
		jobs.POST("", jobHandler.Submit)
		jobs.GET("/:id", jobHandler.Get)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped")
}
