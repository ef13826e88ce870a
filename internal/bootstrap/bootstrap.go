// Package bootstrap assembles repositories and services for the binaries.
package bootstrap

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/repository"
	"github.com/noah-isme/mesa-scheduler/internal/service"
	"github.com/noah-isme/mesa-scheduler/pkg/cache"
	"github.com/noah-isme/mesa-scheduler/pkg/config"
	"github.com/noah-isme/mesa-scheduler/pkg/database"
)

// Container holds the wired scheduler services.
type Container struct {
	DB      *sqlx.DB
	Redis   *redis.Client
	Metrics *service.MetricsService
	Cache   *service.CacheService

	Grouping    *service.GroupingService
	BatchAssign *service.BatchAssignService
	Reoptimize  *service.ReoptimizeService
	Mutations   *service.GroupMutationService
	Jobs        *service.SchedulerJobService
}

// SchedulerOptions maps the scheduler config block onto engine options.
func SchedulerOptions(cfg config.SchedulerConfig) service.SchedulerOptions {
	return service.SchedulerOptions{
		SplitThreshold: cfg.SplitThreshold,
		FormationOrder: cfg.FormationOrder,
		MaxGroupSize:   cfg.MaxGroupSize,
		MaxPoolSize:    cfg.MaxPoolSize,
		MaxIterations:  cfg.MaxIterations,
		SkipWeekends:   cfg.SkipWeekends,
	}
}

// JobConfig maps the scheduler config block onto the job queue settings.
func JobConfig(cfg config.SchedulerConfig) service.SchedulerJobConfig {
	return service.SchedulerJobConfig{
		Workers:    cfg.JobWorkers,
		BufferSize: 32,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		ResultTTL:  cfg.JobResultTTL,
	}
}

// New connects to Postgres (and Redis when enabled) and wires every service.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, candidate cache disabled", zap.Error(err))
		redisClient = nil
	}
	return Wire(cfg, db, redisClient, logger), nil
}

// Wire builds the services over an open database handle. redisClient may be nil.
func Wire(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logger *zap.Logger) *Container {
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logger)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Scheduler.CandidatesCacheTTL, logger, cacheRepo != nil)

	stores := service.ScheduleStores{
		Units:        repository.NewExamUnitRepository(db),
		Groups:       repository.NewExamGroupRepository(db, cfg.Database.LockTimeout),
		Ungrouped:    repository.NewUngroupedRepository(db),
		Availability: repository.NewTeacherAvailabilityRepository(db),
	}
	catalog := service.CatalogStores{
		Enrollments: repository.NewEnrollmentRepository(db),
		Subjects:    repository.NewSubjectRepository(db),
		Teachers:    repository.NewTeacherRepository(db),
	}
	validate := validator.New()
	opts := SchedulerOptions(cfg.Scheduler)

	c := &Container{
		DB:      db,
		Redis:   redisClient,
		Metrics: metrics,
		Cache:   cacheSvc,
	}
	c.Grouping = service.NewGroupingService(stores, db, cacheSvc, metrics, validate, logger, opts)
	c.BatchAssign = service.NewBatchAssignService(stores, catalog, db, cacheSvc, metrics, validate, logger, opts)
	c.Reoptimize = service.NewReoptimizeService(stores, db, cacheSvc, metrics, validate, logger, opts)
	c.Mutations = service.NewGroupMutationService(stores, db, cacheSvc, metrics, validate, logger, opts)
	if cfg.Scheduler.JobsEnabled {
		c.Jobs = service.NewSchedulerJobService(c.Grouping, c.BatchAssign, c.Reoptimize, validate, logger, JobConfig(cfg.Scheduler))
	}
	return c
}

// Close releases the connections held by the container.
func (c *Container) Close() {
	if c.Jobs != nil {
		c.Jobs.Stop()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}
