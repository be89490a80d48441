package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/tradepost/internal/api"
	"github.com/charlesng35/tradepost/internal/app"
	"github.com/charlesng35/tradepost/internal/app/maintenance"
	iauth "github.com/charlesng35/tradepost/internal/auth"
	"github.com/charlesng35/tradepost/internal/cache"
	"github.com/charlesng35/tradepost/internal/database"
	"github.com/charlesng35/tradepost/internal/monitoring"
	"github.com/charlesng35/tradepost/internal/ratelimit"
	"github.com/charlesng35/tradepost/internal/realtime"
	"github.com/charlesng35/tradepost/internal/services"
)

const readinessProbeTimeout = 2 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Limiter     ratelimit.Limiter
	SecurityLog *services.SecurityLog
	Hub         *realtime.Hub
	Health      *monitoring.HealthManager
	Cleaner     *maintenance.Cleaner
	Router      *gin.Engine
}

// bootstrapRuntime initialises the database, the optional Redis connection, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	stack.Health = monitoring.NewHealthManager(readinessProbeTimeout)
	stack.Health.Register("database", monitoring.DatabaseProbe(stack.DB))

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to in-process rate limiting", zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
			stack.Health.RegisterOptional("redis", monitoring.RedisProbe(stack.Redis))
		}
	}

	var memoryLimiter *ratelimit.MemoryLimiter
	if stack.Redis != nil {
		stack.Limiter = ratelimit.NewRedisLimiter(stack.Redis, nil)
	} else {
		memoryLimiter = ratelimit.NewMemoryLimiter()
		stack.Limiter = memoryLimiter
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	securityOpts := cfg.SecurityLog.SecurityLogOptions()
	securityOpts.Logger = log.Named("security_log")
	stack.SecurityLog, err = services.NewSecurityLog(stack.DB, securityOpts)
	if err != nil {
		return nil, fmt.Errorf("initialise security log: %w", err)
	}

	profiles, err := services.NewProfileService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise profile service: %w", err)
	}
	store, err := services.NewPermissionStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise permission store: %w", err)
	}

	stack.Hub = realtime.NewHub()

	permissions, err := services.NewContactPermissionService(store, profiles, stack.Limiter, stack.SecurityLog, stack.Hub, cfg.Contact.ContactPermissionOptions())
	if err != nil {
		return nil, fmt.Errorf("initialise contact permission service: %w", err)
	}
	resolver, err := services.NewProfileResolver(profiles, store, stack.Limiter, stack.SecurityLog, cfg.Contact.ProfileResolverOptions())
	if err != nil {
		return nil, fmt.Errorf("initialise profile resolver: %w", err)
	}
	views, err := services.NewProfileViewService(resolver, permissions)
	if err != nil {
		return nil, fmt.Errorf("initialise profile view service: %w", err)
	}

	cleanerOpts := []maintenance.Option{
		maintenance.WithPermissionSchedule(cfg.Maintenance.PermissionSweep),
		maintenance.WithRetentionSchedule(cfg.Maintenance.Retention),
		maintenance.WithSecurityLogRetentionDays(cfg.SecurityLog.RetentionDays),
	}
	if memoryLimiter != nil {
		cleanerOpts = append(cleanerOpts,
			maintenance.WithLimiter(memoryLimiter, limiterSweepWindow(cfg.Contact)),
			maintenance.WithLimiterSchedule(cfg.Maintenance.LimiterSweep),
		)
	}
	stack.Cleaner = maintenance.NewCleaner(store, stack.SecurityLog, cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		JWT:         jwtSvc,
		Profiles:    profiles,
		Resolver:    resolver,
		Views:       views,
		Permissions: permissions,
		SecurityLog: stack.SecurityLog,
		Hub:         stack.Hub,
		Health:      stack.Health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.SecurityLog != nil {
		if err := s.SecurityLog.Close(); err != nil {
			log.Warn("security log shutdown", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

// limiterSweepWindow is the longest window the in-memory limiter is used with.
func limiterSweepWindow(cfg app.ContactConfig) time.Duration {
	if cfg.ProfileAccessWindow > cfg.RequestWindow {
		return cfg.ProfileAccessWindow
	}
	return cfg.RequestWindow
}

func initialiseDatabase(cfg *app.Config, log *zap.Logger) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOpenConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		closeDatabase(db, log)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log.Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
