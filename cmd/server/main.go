package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/ntarasov/postwave/configs"
	"github.com/ntarasov/postwave/internal/api/handlers"
	"github.com/ntarasov/postwave/internal/api/middleware"
	job "github.com/ntarasov/postwave/internal/jobs"
	"github.com/ntarasov/postwave/internal/queue"
	"github.com/ntarasov/postwave/internal/repository"
	"github.com/ntarasov/postwave/internal/scheduler"
	"github.com/ntarasov/postwave/internal/service"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    25 * 1024 * 1024, // 25 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	apiKeyRepository := repository.NewApiKeyRepository(db)

	authService := service.NewAuthService(*cfg, userRepo)
	userService := service.NewUserService(userRepo)
	apiKeyService := service.NewApiKeyService(apiKeyRepository)
	mediaService := service.NewMediaService(*cfg)
	generatorService := service.NewContentGenerator(*cfg, mediaService)
	flowProvider := service.NewXFlowProvider(*cfg)
	loginService := service.NewLoginService(*cfg, flowProvider, accountRepo, sessionRepo)
	publisherService := service.NewPublisher(service.NewXAPI(*cfg))

	engine := scheduler.NewEngine(*cfg, accountRepo, statsRepo, generatorService, publisherService, loginService)
	accountService := service.NewAccountService(accountRepo, statsRepo, sessionRepo, engine)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	account := handlers.NewAccountHandler(accountService, loginService)
	api.Get("/accounts", account.ListAccounts)
	api.Post("/accounts/login", account.BeginLogin)
	api.Post("/accounts/login/continue", account.ContinueLogin)
	api.Post("/accounts/remove", account.RemoveAccount)
	api.Get("/accounts/:id/settings", account.GetSettings)
	api.Post("/accounts/:id/settings", account.UpdateSettings)
	api.Get("/accounts/:id/stats", account.GetStats)
	api.Post("/accounts/:id/engagement", account.RecordEngagement)

	sched := handlers.NewSchedulerHandler(engine, client)
	api.Post("/posts/now", sched.PostNow)
	api.Get("/accounts/:id/queue", sched.GetQueueStatus)

	generate := handlers.NewGenerateHandler(generatorService)
	api.Post("/generate", generate.Generate)

	// cron jobs
	sessionCleanupJob := job.NewSessionCleanupJob(loginService)

	//queue
	queueW := queue.NewQueue(engine)

	c := cron.New()
	c.AddFunc("@every 00h01m00s", sessionCleanupJob.ExpireStaleHandshakes)
	c.Start()

	if err := engine.Rehydrate(context.Background()); err != nil {
		log.Printf("Failed to rehydrate autoposting triggers: %v", err)
	}

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePostNow, queueW.HandlePostNowTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, engine, c, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, engine *scheduler.Engine, c *cron.Cron, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	engine.Shutdown()
	c.Stop()
	closeDB(db)
	log.Println("Server shutdown complete.")
}
