package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/trivia-supply/internal/config"
	"github.com/yourusername/trivia-supply/internal/handler"
	"github.com/yourusername/trivia-supply/internal/middleware"
	"github.com/yourusername/trivia-supply/internal/notifier"
	pgRepo "github.com/yourusername/trivia-supply/internal/repository/postgres"
	redisRepo "github.com/yourusername/trivia-supply/internal/repository/redis"
	sqliteRepo "github.com/yourusername/trivia-supply/internal/repository/sqlite"
	"github.com/yourusername/trivia-supply/internal/service"
	"github.com/yourusername/trivia-supply/internal/service/supply"
	"github.com/yourusername/trivia-supply/pkg/auth"
	"github.com/yourusername/trivia-supply/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL (банк вопросов)
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции схемы банка
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Локальный кеш вопросов (sqlite)
	localDB, err := database.NewSqliteDB(cfg.Local.Path)
	if err != nil {
		log.Printf("Failed to open local question store: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	bankRepo := pgRepo.NewBankRepo(db)

	localStore, err := sqliteRepo.NewQuestionStore(localDB)
	if err != nil {
		log.Printf("Failed to initialize QuestionStore: %v", err)
		os.Exit(1)
	}

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	ledgerRepo, err := redisRepo.NewLedgerRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize LedgerRepo: %v", err)
		os.Exit(1)
	}

	// Контекст жизненного цикла фоновых горутин (хаб, фоновые пополнения)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Хаб уведомлений: единственная горутина доставки гарантирует порядок событий
	hub := notifier.NewHub()
	go hub.Run(ctx)

	// Подсистема снабжения вопросами
	supplyConfig := supply.DefaultConfig()
	if cfg.Supply.HighWaterMark > 0 {
		supplyConfig.HighWaterMark = cfg.Supply.HighWaterMark
	}
	if cfg.Supply.LowWaterMark > 0 {
		supplyConfig.LowWaterMark = cfg.Supply.LowWaterMark
	}
	if cfg.Supply.PruneKeepUnused > 0 {
		supplyConfig.PruneKeepUnused = cfg.Supply.PruneKeepUnused
	}

	supplyDeps := &supply.Dependencies{
		LocalStore: localStore,
		BankRepo:   bankRepo,
		CacheRepo:  cacheRepo,
		Notifier:   hub,
	}
	coordinator := supply.NewBatchCoordinator(supplyConfig, supplyDeps)
	selector := supply.NewSessionQuestionSelector(ctx, supplyConfig, supplyDeps, coordinator)

	// Одиночный режим: статический набор + журнал показанных
	freePlayService, err := service.NewFreePlayService(cfg.FreePlay.QuestionsPath, ledgerRepo)
	if err != nil {
		log.Printf("Failed to initialize FreePlayService: %v", err)
		os.Exit(1)
	}

	// JWT и middleware
	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpirationHrs)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}
	authMiddleware := middleware.NewAuthMiddleware(jwtService)

	// Обработчики
	supplyHandler := handler.NewSupplyHandler(selector, hub)
	freePlayHandler := handler.NewFreePlayHandler(freePlayService)
	adminHandler := handler.NewAdminHandler(bankRepo)

	isProduction := gin.Mode() == gin.ReleaseMode

	router := gin.Default()

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api")
	{
		questions := api.Group("/questions")
		questions.Use(authMiddleware.RequirePlayer())
		{
			questions.GET("/next", supplyHandler.NextQuestion)
			questions.POST("/consumed", supplyHandler.QuestionConsumed)
		}

		freeplay := api.Group("/freeplay")
		freeplay.Use(authMiddleware.RequirePlayer())
		{
			freeplay.GET("/round", freePlayHandler.GetRound)
			freeplay.POST("/finish", freePlayHandler.FinishRound)
			freeplay.POST("/reset", freePlayHandler.ResetProgress)
		}

		admin := api.Group("/admin")
		admin.Use(authMiddleware.RequirePlayer(), authMiddleware.RequireAdmin())
		{
			admin.POST("/bank/import", adminHandler.ImportBankXLSX)
			admin.GET("/bank/stats", adminHandler.BankStats)
		}
	}

	// Канал уведомлений о готовности вопросов
	router.GET("/ws", authMiddleware.RequirePlayer(), supplyHandler.HandleWS)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	// После получения сигнала SIGINT или SIGTERM вызываем cancel() для завершения горутин
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Останавливаем хаб и фоновые пополнения. Начатый цикл пополнения
	// доработает до конца: поздние повторные вставки безвредны.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Server exited properly")
}
