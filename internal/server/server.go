// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"threads/internal/bootstrap"
	"threads/internal/cache"
	"threads/internal/config"
	"threads/internal/identity"
	"threads/internal/media"
	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/notifications"
	"threads/internal/repository"
	"threads/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the external resources a Server runs against. Redis, Storage and
// PushSender are optional.
type Deps struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Storage    media.ObjectStorage
	PushSender notifications.PushSender
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	validate       *validator.Validate
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo    repository.UserRepository
	messageRepo repository.MessageRepository
	likeRepo    repository.LikeRepository

	identity   *identity.Resolver
	notifier   *notifications.Notifier
	hub        *notifications.Hub
	dispatcher *notifications.Dispatcher

	feedService   *service.FeedService
	threadService *service.ThreadService
	likeService   *service.LikeService
	userService   *service.UserService
	uploadService *service.UploadService
}

// NewServer connects to every configured backend and builds the server.
func NewServer(ctx context.Context, cfg *config.Config, opts bootstrap.Options) (*Server, error) {
	rt, err := bootstrap.InitRuntime(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	return NewServerWithDeps(cfg, Deps{
		DB:         rt.DB,
		Redis:      rt.Redis,
		Storage:    rt.Storage,
		PushSender: notifications.NewExpoSender(cfg.PushEndpoint, cfg.PushAccessToken),
	})
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	rc := cache.New(deps.Redis)
	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("threads-api"),
		validate:       validate,
		userRepo:       repository.NewUserRepository(deps.DB, rc),
		messageRepo:    repository.NewMessageRepository(deps.DB),
		likeRepo:       repository.NewLikeRepository(deps.DB),
		notifier:       notifications.NewNotifier(deps.Redis),
		hub:            notifications.NewHub(),
	}

	ident := identity.NewResolver(s.userRepo)
	s.identity = ident
	resolver := media.NewResolver(deps.Storage, rc, cfg.MediaURLExpiry)
	sweeper := media.NewSweeper(deps.Storage, rc)
	uploads := media.NewUploads(deps.Redis, deps.Storage, cfg.UploadBaseURL(), cfg.UploadTicketTTL, int64(cfg.MaxUploadSizeMB)<<20)

	var notifier service.CommentNotifier
	if deps.PushSender != nil {
		s.dispatcher = notifications.NewDispatcher(deps.Redis, deps.PushSender, cfg.NotificationPollInterval)
		notifier = s.dispatcher
	}

	s.feedService = service.NewFeedService(ident, s.userRepo, s.messageRepo, s.likeRepo, resolver)
	s.threadService = service.NewThreadService(service.ThreadServiceDeps{
		Identity:          ident,
		Users:             s.userRepo,
		Messages:          s.messageRepo,
		Likes:             s.likeRepo,
		Media:             resolver,
		Notifier:          notifier,
		Events:            s.notifier,
		Sweeper:           sweeper,
		NotificationDelay: cfg.NotificationDelay,
	})
	s.likeService = service.NewLikeService(ident, s.likeRepo, s.notifier)
	s.userService = service.NewUserService(ident, s.userRepo, resolver, sweeper)
	s.uploadService = service.NewUploadService(ident, uploads)

	return s, nil
}

// App builds the Fiber application with middleware and routes attached.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:   "Threads API",
		BodyLimit: (s.config.MaxUploadSizeMB + 1) << 20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:8081,http://localhost:19006"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		MaxAge:       86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
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

	api.Post("/webhooks/identity", s.IdentityWebhook)
	api.Post("/uploads/:ticket", s.UploadMedia)

	// Reads personalize when a session is present.
	threads := api.Group("/threads", s.OptionalAuth())
	threads.Get("/", s.ListThreads)
	threads.Get("/:id/detail", s.GetThreadDetail)
	threads.Get("/:id/comments", s.GetComments)
	threads.Get("/:id", s.GetThread)

	users := api.Group("/users", s.OptionalAuth())
	users.Get("/", s.GetAllUsers)
	users.Get("/search", s.SearchUsers)
	users.Get("/me", s.AuthRequired(), s.GetMe)
	users.Get("/external/:externalId", s.GetUserByExternalID)
	users.Patch("/:id", s.AuthRequired(), s.UpdateUser)
	users.Get("/:id", s.GetUser)

	protected := api.Group("", s.AuthRequired())
	protected.Post("/threads", middleware.RateLimit(s.redis, 30, time.Minute, "create_message"), s.CreateMessage)
	protected.Post("/threads/:id/like", middleware.RateLimit(s.redis, 120, time.Minute, "toggle_like"), s.ToggleLike)
	protected.Delete("/threads/:id", s.DeleteMessage)
	protected.Post("/uploads", middleware.RateLimit(s.redis, 30, time.Minute, "upload_url"), s.GenerateUploadURL)
	protected.Get("/ws", s.FeedWebsocketUpgrade, s.FeedWebsocketHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports database health and, when configured, Redis health,
// along with the number of open feed sockets.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"websockets": s.hub.ConnectionCount(),
		"time":       time.Now(),
	})
}

// Start wires realtime fan-out and the push worker, then listens.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if err := s.hub.StartWiring(ctx, s.notifier); err != nil {
		middleware.Logger.Error("failed to start feed hub wiring", slog.String("error", err.Error()))
	}
	if s.dispatcher != nil {
		go s.dispatcher.Run(ctx)
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down feed hub", slog.String("error", err.Error()))
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

	middleware.Logger.Info("server shutdown complete")
	return nil
}
