package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/dkuznets/cupid-bot/internal/config"
	"github.com/dkuznets/cupid-bot/internal/datastore/postgres"
	redisClient "github.com/dkuznets/cupid-bot/internal/datastore/redis"
	"github.com/dkuznets/cupid-bot/internal/middleware"
	likeRepo "github.com/dkuznets/cupid-bot/internal/repository/like"
	messageRepo "github.com/dkuznets/cupid-bot/internal/repository/message"
	userRepo "github.com/dkuznets/cupid-bot/internal/repository/user"
	routesContact "github.com/dkuznets/cupid-bot/internal/routes/contact"
	routesWebhook "github.com/dkuznets/cupid-bot/internal/routes/webhook"
	"github.com/dkuznets/cupid-bot/internal/session"
	"github.com/dkuznets/cupid-bot/internal/transport/botapi"
	"github.com/dkuznets/cupid-bot/internal/usecase/conversation"
	"github.com/dkuznets/cupid-bot/internal/usecase/match"
	"github.com/dkuznets/cupid-bot/internal/usecase/relay"
	"github.com/dkuznets/cupid-bot/pkg/deeplink"
	"github.com/labstack/echo"
	"gorm.io/gorm"
)

type Server struct {
	writer     io.Writer
	httpServer *http.Server
	database   *gorm.DB
}

// Run wires the whole service and blocks until the context is cancelled
// or the HTTP server stops.
func Run(ctx context.Context, w io.Writer, args []string) error {
	env := "dev"
	if len(args) > 1 {
		env = args[1]
	}

	cfg, err := config.NewConfig(env)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	server, err := NewServer(ctx, w, cfg)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(w, "shutdown error: %s\n", err)
		}
	}()

	if err := server.StartServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func NewServer(ctx context.Context, w io.Writer, cfg *config.Config) (*Server, error) {
	logger := log.New(w, "cupid-bot ", log.LstdFlags)

	database, err := postgres.InitializeDB(
		cfg.Get("POSTGRES_USER"),
		cfg.Get("POSTGRES_PASSWORD"),
		cfg.Get("POSTGRES_DB_NAME"),
		cfg.Get("POSTGRES_HOST"),
		cfg.Get("POSTGRES_PORT"),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := postgres.Migrate(database, "migrations"); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	rdb := redisClient.NewRedis(cfg.Get("REDIS_HOST"), cfg.Get("REDIS_PORT"))

	users := userRepo.New(database)
	likes := likeRepo.New(database, rdb.Client)
	messages := messageRepo.New(database)

	sender := botapi.New(cfg.Get("BOT_API_URL"), cfg.Get("BOT_TOKEN"))
	links := deeplink.NewSigner(cfg.Get("DEEPLINK_SECRET"), cfg.Get("DEEPLINK_BASE_URL"))

	// Missing or malformed admin ID disables operator notifications.
	adminID, _ := strconv.ParseInt(cfg.Get("ADMIN_CHAT_ID"), 10, 64)

	sessions := session.NewStore()
	matchCase := match.New(users, likes)
	relayCase := relay.New(messages, sender, logger)
	convoCase := conversation.New(sessions, users, likes, matchCase, relayCase, sender, links, adminID, logger)

	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	server := &Server{
		writer: w,
		httpServer: &http.Server{
			Addr:    ":" + cfg.Get("PORT"),
			Handler: e,
		},
		database: database,
	}

	server.RegisterRoutes(e, convoCase, links, cfg.Get("WEBHOOK_SECRET"), logger)
	return server, nil
}

func (s *Server) RegisterRoutes(e *echo.Echo, convoCase conversation.IConversationUseCase, links *deeplink.Signer, webhookSecret string, logger *log.Logger) {
	e.GET("/healthz", s.handleHealthCheck)
	e.GET("/contact/:token", func(c echo.Context) error {
		return routesContact.Handler(c, links)
	})
	e.POST("/webhook", func(c echo.Context) error {
		return routesWebhook.Handler(c, convoCase, logger)
	}, middleware.WebhookSecret(webhookSecret))
}

func (s *Server) StartServer() error {
	fmt.Fprintf(s.writer, "Server starting on %s\n", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
