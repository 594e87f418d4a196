// Package server contains the HTTP handlers and middleware wiring for the newsfeed API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsfeed/internal/bootstrap"
	"newsfeed/internal/cache"
	"newsfeed/internal/config"
	"newsfeed/internal/database"
	"newsfeed/internal/featureflags"
	"newsfeed/internal/middleware"
	"newsfeed/internal/models"
	"newsfeed/internal/notifications"
	"newsfeed/internal/repository"
	"newsfeed/internal/service"
	"newsfeed/internal/usage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	claimsLocalsKey = "claims"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	now            func() time.Time

	userRepo     repository.UserRepository
	postRepo     repository.PostRepository
	commentRepo  repository.CommentRepository
	likeRepo     repository.LikeRepository
	usageRepo    repository.UsageRepository
	store        *cache.Store
	notifier     *notifications.Notifier
	featureFlags *featureflags.Manager

	userService    *service.UserService
	postService    *service.PostService
	commentService *service.CommentService
	likeService    *service.LikeService
	usageService   *service.UsageService
	recorder       *usage.Recorder

	shutdownTracing func(context.Context) error
}

// Option customizes a Server built by NewServerWithDeps.
type Option func(*options)

type options struct {
	registry      prometheus.Registerer
	metrics       bool
	now           func() time.Time
	recorderClock func() time.Time
}

// WithMetricsRegistry registers HTTP metrics on reg. A nil reg disables /metrics.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
		o.metrics = reg != nil
	}
}

// WithClock replaces the time source used for tokens.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRecorderClock replaces the time source the usage recorder measures with.
func WithRecorderClock(now func() time.Time) Option {
	return func(o *options) { o.recorderClock = now }
}

// NewServer connects to the database and Redis and builds a Server on top of them.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	srv, err := NewServerWithDeps(cfg, rt.DB, rt.Redis)
	if err != nil {
		return nil, err
	}
	srv.shutdownTracing = rt.ShutdownTracing
	return srv, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; caching, events, blacklisting and the leaderboard are then skipped.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("server requires config and database")
	}
	o := options{metrics: true, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	store := cache.NewStore(redisClient)
	s := &Server{
		config:       cfg,
		db:           db,
		redis:        redisClient,
		now:          o.now,
		userRepo:     repository.NewUserRepository(db),
		postRepo:     repository.NewPostRepository(db, store),
		commentRepo:  repository.NewCommentRepository(db),
		likeRepo:     repository.NewLikeRepository(db, repository.WithMaxAttempts(cfg.LikeToggleMaxAttempts)),
		usageRepo:    repository.NewUsageRepository(db),
		store:        store,
		notifier:     notifications.NewNotifier(redisClient),
		featureFlags: featureflags.NewManager(cfg.FeatureFlags),
	}
	if o.metrics {
		s.promMiddleware = middleware.InitMetrics("newsfeed-api", o.registry)
	}

	s.userService = service.NewUserService(s.userRepo, cfg.PrincipalCacheSize,
		service.WithPrincipalTTL(time.Duration(cfg.PrincipalCacheTTLSeconds)*time.Second))
	s.postService = service.NewPostService(s.postRepo, s.notifier, s.userService.IsAdmin)
	s.commentService = service.NewCommentService(s.commentRepo, s.postRepo, s.store, s.notifier, s.userService.IsAdmin)
	s.likeService = service.NewLikeService(s.likeRepo, s.userService, s.store, s.notifier)
	s.usageService = service.NewUsageService(s.usageRepo, s.userRepo, redisClient)
	s.recorder = usage.NewRecorder(s.usageService,
		usage.WithEnabled(cfg.UsageTrackingEnabled),
		usage.WithFlags(s.featureFlags),
		usage.WithClock(o.recorderClock),
	)

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	app.Use(middleware.RequestContext())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.AccessLog())

	// CORS runs before the limiter so throttled responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
				Code:  models.CodeRateLimited,
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/", s.ReadinessCheck)
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{Title: "Newsfeed API Metrics"}))

	rec := s.recorder
	writes := middleware.NewRateLimiter(s.redis, "writes", s.config.WriteRateLimit, time.Minute, middleware.FailOpen).Handler()

	auth := api.Group("/auth")
	auth.Post("/signup", rec.Wrap(usage.GroupUser, s.Signup))
	auth.Post("/login", rec.Wrap(usage.GroupUser, s.Login))
	auth.Post("/logout", s.AuthRequired(), rec.Wrap(usage.GroupUser, s.Logout))

	users := api.Group("/users")
	users.Get("/me", s.AuthRequired(), rec.Wrap(usage.GroupUser, s.GetMe))
	users.Put("/me", s.AuthRequired(), writes, rec.Wrap(usage.GroupUser, s.UpdateMe))
	users.Put("/me/withdraw", s.AuthRequired(), rec.Wrap(usage.GroupUser, s.Withdraw))
	users.Get("/me/usage", s.AuthRequired(), rec.Wrap(usage.GroupUser, s.GetMyUsage))
	users.Get("/:username/profile", s.OptionalAuth(), rec.Wrap(usage.GroupUser, s.GetProfile))

	feeds := api.Group("/newsfeeds")
	feeds.Get("/", s.OptionalAuth(), rec.Wrap(usage.GroupNewsfeed, s.GetAllPosts))
	feeds.Post("/", s.AuthRequired(), writes, rec.Wrap(usage.GroupNewsfeed, s.CreatePost))
	feeds.Get("/:id", s.OptionalAuth(), rec.Wrap(usage.GroupNewsfeed, s.GetPost))
	feeds.Put("/:id", s.AuthRequired(), writes, rec.Wrap(usage.GroupNewsfeed, s.UpdatePost))
	feeds.Delete("/:id", s.AuthRequired(), rec.Wrap(usage.GroupNewsfeed, s.DeletePost))
	feeds.Put("/:id/like", s.AuthRequired(), writes, rec.Wrap(usage.GroupLike, s.TogglePostLike))

	feeds.Get("/:id/comments", s.OptionalAuth(), rec.Wrap(usage.GroupComment, s.GetComments))
	feeds.Post("/:id/comments", s.AuthRequired(), writes, rec.Wrap(usage.GroupComment, s.CreateComment))
	feeds.Put("/:id/comments/:commentId", s.AuthRequired(), writes, rec.Wrap(usage.GroupComment, s.UpdateComment))
	feeds.Delete("/:id/comments/:commentId", s.AuthRequired(), rec.Wrap(usage.GroupComment, s.DeleteComment))
	feeds.Put("/:id/comments/:commentId/like", s.AuthRequired(), writes, rec.Wrap(usage.GroupLike, s.ToggleCommentLike))

	api.Get("/feature-flags", s.OptionalAuth(), s.GetFeatureFlags)

	admin := api.Group("/admin", s.AuthRequired(), middleware.RequireAdmin())
	admin.Get("/usage/top", s.GetTopUsage)
	admin.Get("/usage/:username", s.GetUserUsage)
	admin.Get("/feature-flags", s.GetFeatureFlagDefinitions)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   s.now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": s.now(),
	})
}

// AuthRequired returns the authentication middleware. It verifies the bearer token,
// rejects revoked tokens and resolves the principal of an active account.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := s.authenticate(c); err != nil {
			return models.RespondWithAppError(c, err)
		}
		return c.Next()
	}
}

// OptionalAuth attaches the principal when a valid token is present and otherwise
// lets the request through anonymously.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if middleware.BearerToken(c) != "" {
			if err := s.authenticate(c); err != nil {
				middleware.Logger.DebugContext(c.UserContext(), "ignoring invalid optional token",
					slog.String("error", err.Error()))
			}
		}
		return c.Next()
	}
}

func (s *Server) authenticate(c *fiber.Ctx) error {
	token := middleware.BearerToken(c)
	if token == "" {
		return models.NewUnauthorizedError("Authorization required")
	}

	claims, err := middleware.ParseToken(s.config.JWTSecret, token)
	if err != nil {
		return models.NewUnauthorizedError("Invalid or expired token")
	}

	ctx := c.UserContext()
	if claims.ID != "" && s.redis != nil {
		revoked, err := s.redis.Exists(ctx, cache.BlacklistKey(claims.ID)).Result()
		if err != nil {
			middleware.Logger.WarnContext(ctx, "token blacklist lookup failed",
				slog.String("error", err.Error()))
		} else if revoked > 0 {
			return models.NewUnauthorizedError("Token has been revoked")
		}
	}

	userID, err := claims.UserID()
	if err != nil {
		return models.NewUnauthorizedError(err.Error())
	}

	principal, err := s.userService.ResolvePrincipal(ctx, userID)
	if err != nil {
		return err
	}

	s.setPrincipal(c, principal)
	c.Locals(claimsLocalsKey, claims)
	return nil
}

// setPrincipal attaches p to the request for handlers, the logger and the usage recorder.
func (s *Server) setPrincipal(c *fiber.Ctx, p *models.Principal) {
	c.Locals(models.PrincipalLocalsKey, p)
	c.Locals(middleware.UserIDLocalsKey, p.UserID)
	c.SetUserContext(middleware.WithPrincipal(c.UserContext(), p))
}

// Start builds the app and listens on the configured port.
func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName:   "Newsfeed API",
		BodyLimit: 1 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return models.RespondWithError(c, fe.Code, fe)
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	if s.shutdownTracing != nil {
		if terr := s.shutdownTracing(ctx); terr != nil {
			middleware.Logger.Error("error flushing traces", slog.String("error", terr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
