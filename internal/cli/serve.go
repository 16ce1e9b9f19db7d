package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finlearn-attempt-service/internal/app"
	"finlearn-attempt-service/internal/config"
	"finlearn-attempt-service/internal/domain"
	"finlearn-attempt-service/internal/infra/memory"
	pginfra "finlearn-attempt-service/internal/infra/postgres"
	redisinfra "finlearn-attempt-service/internal/infra/redis"
	transport "finlearn-attempt-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the attempt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)

	var (
		catalog       app.Catalog
		users         app.UserDirectory
		attemptStore  app.AttemptStore
		progressStore app.ProgressStore
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		source := pginfra.NewCatalog(pool)
		if redisClient != nil {
			catalog = redisinfra.NewCatalogCache(redisClient, source, catalogTTL)
		} else {
			catalog = memory.NewCachedCatalog(source, catalogTTL)
		}
		users = pginfra.NewUserDirectory(pool)
		attemptStore = pginfra.NewAttemptStore(db)
		progressStore = pginfra.NewProgressStore(db)
	} else {
		static, staticUsers := sampleCatalog()
		catalog = static
		users = staticUsers
		progress := memory.NewProgressStore()
		attemptStore = memory.NewAttemptStore(progress)
		progressStore = progress
		logger.Info("postgres not configured, serving in-memory sample catalog")
	}

	progressService := app.NewProgressService(catalog, users, progressStore)
	attemptService := app.NewAttemptService(catalog, users, attemptStore, progressService)

	handler := transport.NewHandler(attemptService, progressService, logger)
	wsHandler := transport.NewWSHandler(progressService, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws/progress", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting attempt service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleCatalog provides minimal demo content for running without a
// database.
func sampleCatalog() (*memory.StaticCatalog, *memory.StaticUsers) {
	catalog := memory.NewStaticCatalog()
	catalog.AddQuiz(domain.QuizPath{
		Quiz: domain.Quiz{
			ID:              1,
			TopicID:         1,
			ModuleID:        1,
			Title:           "Budgeting Basics",
			DurationMinutes: 10,
			IsVisible:       true,
		},
		LessonID: 1,
	},
		domain.Question{
			ID:            1,
			QuizID:        1,
			Text:          "What does a budget track?",
			Option1:       "Income and expenses",
			Option2:       "Only income",
			Option3:       "Only expenses",
			Option4:       "Stock prices",
			CorrectAnswer: "Income and expenses",
			Points:        1,
		},
		domain.Question{
			ID:            2,
			QuizID:        1,
			Text:          "Which is a fixed expense?",
			Option1:       "Rent",
			Option2:       "Dining out",
			Option3:       "Concert tickets",
			Option4:       "Souvenirs",
			CorrectAnswer: "Rent",
			Points:        1,
		},
	)
	return catalog, memory.NewStaticUsers(1)
}
