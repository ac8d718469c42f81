package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/yukikurage/project-allocation-api/internal/config"
	"github.com/yukikurage/project-allocation-api/internal/constants"
	"github.com/yukikurage/project-allocation-api/internal/database"
	"github.com/yukikurage/project-allocation-api/internal/events"
	"github.com/yukikurage/project-allocation-api/internal/handlers"
	"github.com/yukikurage/project-allocation-api/internal/logger"
	"github.com/yukikurage/project-allocation-api/internal/metrics"
	"github.com/yukikurage/project-allocation-api/internal/repository"
	"github.com/yukikurage/project-allocation-api/internal/services"
	"github.com/yukikurage/project-allocation-api/internal/utils"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	zlog, err := logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
		Path:   cfg.LogPath,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	if cfg.SemesterRulesFile != "" {
		rules, err := config.LoadRulesFile(cfg.SemesterRulesFile, cfg.Rules)
		if err != nil {
			zlog.Fatal("failed to load semester rules", zap.String("path", cfg.SemesterRulesFile), zap.Error(err))
		}
		cfg.Rules = rules
	}
	if err := cfg.Rules.Default.Validate(); err != nil {
		zlog.Fatal("invalid default semester rules", zap.Error(err))
	}

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	// Connect to database
	db, err := database.Connect(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run migrations
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisAddr := cfg.RedisHost + ":" + cfg.RedisPort
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	m := metrics.New()
	store := repository.NewStore(db)
	hub := events.NewHub(constants.SubscriberBuffer)

	// With Redis fan-out every instance publishes to Redis and relays the
	// pattern subscription into its own hub, so no event reaches the hub twice.
	var publisher events.Publisher = hub
	if cfg.RedisEvents {
		publisher = events.NewRedisPublisher(rdb)
		relay := events.NewRedisRelay(rdb, hub, zlog)
		go func() {
			if err := relay.Run(ctx); err != nil {
				zlog.Error("redis event relay stopped", zap.Error(err))
			}
		}()
	}

	var groups *services.GroupService
	dispatcher := events.NewDispatcher(events.MemberLookupFunc(func(ctx context.Context, groupID uint64) ([]uint64, error) {
		return groups.ActiveMemberIDs(ctx, groupID)
	}), zlog, m, cfg.EventQueueSize, publisher)

	deps := services.Dependencies{
		Store:                   store,
		Locks:                   utils.NewKeyedLocker(),
		Events:                  dispatcher,
		Rules:                   cfg.Rules,
		Log:                     zlog,
		Metrics:                 m,
		Now:                     time.Now,
		AllowPreemptiveOverride: cfg.AllowPreemptiveOverride,
	}
	invitations := services.NewInvitationService(deps)
	groups = services.NewGroupService(deps, invitations)
	projects := services.NewProjectService(deps, groups)
	allocation := services.NewAllocationService(deps)
	authService := services.NewAuthService(store.Users())

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(ctx)
	}()

	if cfg.BootstrapAdminUsername != "" && cfg.BootstrapAdminPassword != "" {
		admin, created, err := authService.EnsureAdmin(cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword)
		if err != nil {
			zlog.Fatal("failed to bootstrap admin", zap.Error(err))
		}
		if created {
			zlog.Info("bootstrap admin created", zap.Uint64("user_id", admin.ID), zap.String("username", admin.Username))
		}
	}

	// Initialize Gin router
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(zlog))

	// Setup session middleware with Redis
	sessionStore, err := redisStore.NewStore(
		10,        // Redis pool size
		"tcp",     // network type
		redisAddr, // Redis address from config
		"",        // username (empty for default user)
		cfg.RedisPassword,
		[]byte(cfg.SessionSecret), // authentication key
	)
	if err != nil {
		zlog.Fatal("failed to create redis session store", zap.Error(err))
	}
	isProduction := cfg.GinMode == "release"
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   constants.DefaultSessionMaxAge,
		HttpOnly: true,
		Secure:   isProduction,         // true in production (HTTPS), false in development
		SameSite: http.SameSiteLaxMode, // SameSite=Lax
	})
	r.Use(sessions.Sessions(constants.SessionCookieName, sessionStore))

	handlers.RegisterRoutes(r, handlers.Handlers{
		Auth:        handlers.NewAuthHandler(authService),
		Groups:      handlers.NewGroupHandler(groups, zlog),
		Invitations: handlers.NewInvitationHandler(invitations, zlog),
		Projects:    handlers.NewProjectHandler(projects, zlog),
		Allocation:  handlers.NewAllocationHandler(allocation, zlog),
		Realtime:    handlers.NewRealtimeHandler(hub, zlog, m, cfg.AllowedOrigins...),
		Metrics:     m.Handler(),
	}, store.Users())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
	<-dispatcherDone
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
