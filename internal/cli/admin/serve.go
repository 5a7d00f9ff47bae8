package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/teamauresta/agent-harbor/internal/agent"
	"github.com/teamauresta/agent-harbor/internal/api/handlers"
	"github.com/teamauresta/agent-harbor/internal/chatwoot"
	"github.com/teamauresta/agent-harbor/internal/config"
	"github.com/teamauresta/agent-harbor/internal/database"
	"github.com/teamauresta/agent-harbor/internal/jobs"
	"github.com/teamauresta/agent-harbor/internal/openai"
	"github.com/teamauresta/agent-harbor/internal/repository"
	"github.com/teamauresta/agent-harbor/internal/server"
	"github.com/teamauresta/agent-harbor/internal/service"
	"github.com/teamauresta/agent-harbor/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent server",
		Long:  "Start the webhook and knowledge API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	personas, err := config.LoadPersonas(cfg.PersonasDir)
	if err != nil {
		return fmt.Errorf("failed to load personas: %w", err)
	}
	log.Printf("loaded %d personas from %s", len(personas.All()), cfg.PersonasDir)

	knowledgeSvc := buildKnowledgeService(pool, cfg)

	contextSvc := service.NewContextService(knowledgeSvc)

	generator := openai.NewChatClient(openai.ChatConfig{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
	})
	var fallbackGen agent.Generator
	if cfg.HasFallbackLLM() {
		fallbackGen = openai.NewChatClient(openai.ChatConfig{
			APIKey: cfg.LLMFallbackAPIKey,
			Model:  cfg.LLMFallbackModel,
		})
	}

	engine := agent.NewEngine(contextSvc, generator, fallbackGen, agent.Config{
		EscalationReply:   agent.ReplyStrategy(cfg.EscalationReply),
		RetrievalTimeout:  time.Duration(cfg.RetrievalTimeoutSeconds) * time.Second,
		GenerationTimeout: time.Duration(cfg.GenerationTimeoutSeconds) * time.Second,
	})

	if !cfg.HasChatwoot() {
		return fmt.Errorf("HARBOR_CHATWOOT_BASE_URL and HARBOR_CHATWOOT_ACCESS_TOKEN are required")
	}
	messenger := chatwoot.NewClient(cfg.ChatwootBaseURL, cfg.ChatwootAccessToken)

	conversationSvc := service.NewConversationService(personas, messenger, engine)
	dispatcher := jobs.NewDispatcher(conversationSvc, cfg.MaxConcurrentTurns)

	router := server.NewRouter(server.RouterConfig{
		AdminToken:       cfg.AdminToken,
		WebhookHandler:   handlers.NewWebhookHandler(ctx, personas, dispatcher, conversationSvc),
		KnowledgeHandler: handlers.NewKnowledgeHandler(knowledgeSvc),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Let queued turns finish before the pool closes.
	dispatcher.Stop()

	log.Println("server exited")
	return nil
}

func buildKnowledgeService(pool *pgxpool.Pool, cfg *config.Config) *service.KnowledgeService {
	embedder := openai.NewEmbeddingClientWithConfig(openai.EmbeddingConfig{
		APIKey:     cfg.EmbeddingAPIKey,
		BaseURL:    cfg.EmbeddingBaseURL,
		Model:      openai.EmbeddingModel(cfg.EmbeddingModel),
		Dimensions: cfg.EmbeddingDimensions,
	})

	svc := service.NewKnowledgeServiceWithDefaults(
		repository.NewChunkRepository(pool),
		repository.NewTxRunner(pool),
		embedder,
		service.SearchDefaults{MinScore: cfg.SearchMinScore, TopK: cfg.SearchTopK},
	)
	svc.SetRetrievalLog(repository.NewRetrievalLogRepository(pool))
	return svc
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
