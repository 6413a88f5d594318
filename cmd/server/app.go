package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"teamup/internal/config"
	"teamup/internal/database"
	"teamup/internal/docstore"
	"teamup/internal/health"
	"teamup/internal/jobs"
	"teamup/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// app holds the wired engine shared by every command
type app struct {
	cfg   *config.Config
	store docstore.Store
	mongo *database.MongoDB // nil with the in-memory store
	redis *services.RedisService

	metrics  *services.Metrics
	projects *services.ProjectStore
	apps     *services.ApplicationService
	wishlist *services.WishlistService
	users    *services.UserService
	deletion *services.DeletionService
	feed     *services.ChangeFeed
	health   *health.Service

	scheduler  *jobs.Scheduler
	sweeper    *jobs.DeadlineSweeper
	reconciler *jobs.MirrorReconciler
}

// newApp connects the configured backends and builds the services. reg
// receives the engine metrics; nil disables them.
func newApp(ctx context.Context, reg prometheus.Registerer) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Store: %s, Env: %s)", cfg.Port, cfg.StoreBackend, cfg.Environment)

	a := &app{cfg: cfg, health: health.NewService(3, 2*time.Second)}

	switch cfg.StoreBackend {
	case config.BackendMongo:
		log.Println("🔗 Connecting to MongoDB...")
		mongoDB, err := database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		if err := mongoDB.Initialize(ctx); err != nil {
			mongoDB.Close(context.Background())
			return nil, fmt.Errorf("failed to initialize MongoDB: %w", err)
		}
		a.mongo = mongoDB
		a.store = docstore.NewMongoStore(mongoDB)
		a.health.Register("mongodb", mongoDB.Ping)
		log.Println("✅ MongoDB document store ready")
	default:
		store, err := docstore.NewMemoryStore()
		if err != nil {
			return nil, err
		}
		a.store = store
		log.Println("⚠️  Using in-memory document store (data is lost on restart)")
	}

	var locker services.Locker
	if cfg.RedisURL != "" {
		redisService, err := services.NewRedisService(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = redisService
		a.health.Register("redis", redisService.Ping)
		locker = redisService
	} else {
		log.Println("⚠️  REDIS_URL not set, job locks are local to this process")
		locker = services.NewLocalLocker()
	}

	if reg != nil {
		a.metrics = services.NewMetrics(reg)
	}
	opts := []services.Option{
		services.WithLocation(cfg.Location),
		services.WithMetrics(a.metrics),
	}
	a.projects = services.NewProjectStore(a.store, cfg.ProjectCacheTTL, opts...)
	a.apps = services.NewApplicationService(a.store, opts...)
	a.wishlist = services.NewWishlistService(a.store, a.projects, opts...)
	a.users = services.NewUserService(a.store, opts...)
	a.deletion = services.NewDeletionService(a.store, a.projects, a.apps, opts...)
	a.feed = services.NewChangeFeed(a.store, opts...)

	scheduler, err := jobs.NewScheduler(locker, cfg.Location)
	if err != nil {
		a.close()
		return nil, err
	}
	a.scheduler = scheduler
	a.sweeper = jobs.NewDeadlineSweeper(a.projects, cfg.SweepWorkers, cfg.Location, a.metrics)
	a.reconciler = jobs.NewMirrorReconciler(a.apps)

	if err := scheduler.Register(a.sweeper, gocron.CronJob(cfg.SweepCron, false)); err != nil {
		a.close()
		return nil, err
	}
	var reconcileSchedule gocron.JobDefinition
	if cfg.ReconcileInterval > 0 {
		reconcileSchedule = gocron.DurationJob(cfg.ReconcileInterval)
	}
	if err := scheduler.Register(a.reconciler, reconcileSchedule); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

// close releases every backend in reverse order of creation
func (a *app) close() {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(); err != nil {
			log.Printf("⚠️  Error stopping scheduler: %v", err)
		}
	}
	if a.feed != nil {
		a.feed.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("⚠️  Error closing Redis: %v", err)
		}
	}
	if a.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.store.Close(ctx); err != nil {
			log.Printf("⚠️  Error closing document store: %v", err)
		}
	}
}
