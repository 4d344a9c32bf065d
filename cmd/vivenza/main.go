package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/assets"
	"github.com/vivenzalife/vivenza/internal/auth"
	"github.com/vivenzalife/vivenza/internal/catalog"
	"github.com/vivenzalife/vivenza/internal/chat"
	"github.com/vivenzalife/vivenza/internal/db"
	"github.com/vivenzalife/vivenza/internal/handlers"
	"github.com/vivenzalife/vivenza/internal/logging"
	"github.com/vivenzalife/vivenza/internal/metrics"
	"github.com/vivenzalife/vivenza/internal/social"
	"github.com/vivenzalife/vivenza/internal/stories"
	"github.com/vivenzalife/vivenza/internal/ws"
	"github.com/vivenzalife/vivenza/pkg/config"
	"github.com/vivenzalife/vivenza/pkg/i18n"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Environment, cfg.LogLevel)
	i18n.SetLocale(cfg.Locale)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := runCommand(ctx, cfg, log, os.Args[1:]); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if err := runServer(ctx, cfg, log); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func runCommand(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	command := args[0]

	switch command {
	case "serve":
		return runServer(ctx, cfg, log)
	case "status":
		return runStatus(cfg, os.Stdout, args[1:])
	case "migrate":
		return runMigrate(cfg, os.Stdout, args[1:])
	case "reap-stories":
		return runReapStories(ctx, cfg, log, os.Stdout, args[1:])
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  vivenza                  Start the web server")
	fmt.Fprintln(out, "  vivenza serve            Start the web server")
	fmt.Fprintln(out, "  vivenza status           Show application statistics")
	fmt.Fprintln(out, "  vivenza status --json")
	fmt.Fprintln(out, "  vivenza migrate conversation-pairs [--dry-run] [--database PATH]")
	fmt.Fprintln(out, "                           Merge duplicate conversations and assign pair keys")
	fmt.Fprintln(out, "  vivenza reap-stories [--retention DURATION] [--database PATH]")
	fmt.Fprintln(out, "                           Delete stories expired longer than the retention")
}

// application holds the wired handlers the router dispatches to.
type application struct {
	auth         *handlers.AuthHandler
	chat         *handlers.ChatHandler
	stories      *handlers.StoryHandler
	social       *handlers.SocialHandler
	catalog      *handlers.CatalogHandler
	integrations *handlers.IntegrationHandler
	hub          *ws.Hub
	storySvc     *stories.Service
	filesDir     string
}

func newApplication(cfg *config.Config, log logrus.FieldLogger, conn *sqlx.DB, storage assets.Storage, filesDir string) *application {
	authSvc := auth.New(conn, cfg.JWTSecret)
	chatSvc := chat.New(conn, log.WithField("component", "chat"))
	storySvc := stories.New(conn, storage, log.WithField("component", "stories"))
	socialSvc := social.New(conn, storage, log.WithField("component", "social"))
	catalogSvc := catalog.New(conn, log.WithField("component", "catalog"))

	hub := ws.NewHub(chatSvc, log.WithField("component", "ws"))
	chatSvc.SetPublisher(hub)
	chatSvc.SetOnlineChecker(hub)

	return &application{
		auth:         handlers.NewAuthHandler(authSvc, storage),
		chat:         handlers.NewChatHandler(chatSvc),
		stories:      handlers.NewStoryHandler(storySvc),
		social:       handlers.NewSocialHandler(socialSvc),
		catalog:      handlers.NewCatalogHandler(catalogSvc),
		integrations: handlers.NewIntegrationHandler(catalogSvc, cfg.IntegrationAPIKey),
		hub:          hub,
		storySvc:     storySvc,
		filesDir:     filesDir,
	}
}

func newRouter(cfg *config.Config, log logrus.FieldLogger, app *application) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(serverErrorLogger(log))
	router.Use(requestLogger(log))
	router.Use(panicRecovery(log))
	router.Use(metrics.Middleware())
	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.MaxMultipartMemory = cfg.MaxUploadSize

	api := router.Group("/api")
	{
		loginLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 5})
		registerLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 2})

		api.POST("/auth/register", rateLimitMiddleware(registerLimiter), app.auth.Register)
		api.POST("/auth/login", rateLimitMiddleware(loginLimiter), app.auth.Login)

		api.GET("/establishments", app.catalog.GetEstablishments)
		api.GET("/establishments/:id", app.catalog.GetEstablishment)
		api.GET("/marketplace/products", app.catalog.GetProducts)
	}

	// Reads answer anonymous callers with empty results rather than 401.
	optional := api.Group("")
	optional.Use(app.auth.OptionalAuth())
	{
		optional.GET("/conversations", app.chat.GetConversations)
		optional.GET("/conversations/:id/messages", app.chat.GetMessages)
		optional.GET("/messages/unread-count", app.chat.UnreadCount)

		optional.GET("/stories", app.stories.GetStories)
		optional.GET("/users/:id/stories", app.stories.GetUserStories)

		optional.GET("/feed", app.social.GetFeed)
		optional.GET("/users/:id/posts", app.social.GetUserPosts)
		optional.GET("/users/:id/stats", app.social.GetStats)
		optional.GET("/users/:id/followers", app.social.GetFollowers)
		optional.GET("/users/:id/following", app.social.GetFollowing)
		optional.GET("/posts/:id/comments", app.social.GetComments)
	}

	protected := api.Group("")
	protected.Use(app.auth.AuthMiddleware())
	{
		// Profile
		protected.GET("/profile", app.auth.GetProfile)
		protected.PUT("/profile", app.auth.UpdateProfile)

		// Conversations
		protected.POST("/conversations", app.chat.CreateConversation)
		protected.POST("/conversations/:id/messages", app.chat.SendMessage)
		protected.POST("/conversations/:id/read", app.chat.MarkRead)

		protected.POST("/stories", app.stories.CreateStory)

		// Posts and follows
		protected.POST("/posts", app.social.CreatePost)
		protected.POST("/posts/:id/share", app.social.SharePost)
		protected.POST("/posts/:id/like", app.social.ToggleLike)
		protected.POST("/posts/:id/comments", app.social.AddComment)
		protected.DELETE("/posts/:id", app.social.DeletePost)
		protected.POST("/users/:id/follow", app.social.Follow)
		protected.DELETE("/users/:id/follow", app.social.Unfollow)

		// Bookings
		protected.GET("/bookings", app.catalog.GetBookings)
		protected.POST("/bookings", app.catalog.CreateBooking)
		protected.DELETE("/bookings/:id", app.catalog.CancelBooking)
	}

	integrationLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 120})
	integrations := api.Group("/integrations")
	integrations.Use(rateLimitMiddleware(integrationLimiter), app.integrations.APIKeyMiddleware())
	{
		integrations.GET("/bookings", app.integrations.GetBookings)
		integrations.POST("/establishments", app.integrations.CreateEstablishment)
		integrations.POST("/products", app.integrations.CreateProduct)
	}

	if app.filesDir != "" {
		router.Static(cfg.PublicFilesPrefix, app.filesDir)
	}

	router.GET("/ws", app.auth.AuthMiddleware(), app.hub.HandleWebSocket)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody(apperr.NotFound, "not found"))
	})

	return router
}

func runServer(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if err := ensureConversationPairsMigrated(database.GetConn(), cfg.DatabasePath); err != nil {
		return err
	}

	store, err := assets.NewLocalStore(cfg.FileStoragePath, cfg.PublicFilesPrefix, cfg.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("failed to initialize file storage: %w", err)
	}

	app := newApplication(cfg, log, database.GetConn(), store, store.Dir())
	go app.hub.Run(ctx)

	if cfg.StoryReapSchedule != "" {
		reaper, err := stories.NewReaper(app.storySvc, cfg.StoryReapSchedule, cfg.StoryRetention, log.WithField("component", "story-reaper"))
		if err != nil {
			return err
		}
		reaper.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			reaper.Stop(stopCtx)
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%s", cfg.Port),
		Handler:           newRouter(cfg, log, app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
