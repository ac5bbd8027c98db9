package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/arimedika/server/adapters/llm"
	"github.com/arimedika/server/adapters/minio"
	mongoadapter "github.com/arimedika/server/adapters/mongo"
	"github.com/arimedika/server/adapters/mysql"
	redisadapter "github.com/arimedika/server/adapters/redis"
	"github.com/arimedika/server/adapters/stt"
	"github.com/arimedika/server/adapters/tts"
	"github.com/arimedika/server/domain/repositories"
	"github.com/arimedika/server/internal/api"
	"github.com/arimedika/server/internal/auth"
	"github.com/arimedika/server/internal/config"
	"github.com/arimedika/server/internal/websocket"
	"github.com/arimedika/server/usecase"
)

func main() {
	// Optional .env for local development. Real deployments set the
	// environment directly.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(os.Getenv("ARIMEDIKA_CONFIG"))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	db, err := mysql.NewDB(cfg.MySQL.DSN)
	if err != nil {
		logger.Fatal("failed to connect to mysql", zap.Error(err))
	}
	users := mysql.NewUserRepository(db)

	mongoClient, err := mongoadapter.NewClient(cfg.Mongo.URI, cfg.Mongo.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to mongo", zap.Error(err))
	}
	defer mongoClient.Close(ctx)
	sessionRepo := mongoadapter.NewSessionRepository(mongoClient.Database, logger)

	redisClient, err := redisadapter.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	mirror := redisadapter.NewSessionMirror(redisClient)

	vault, err := minio.NewDocumentVault(minio.Config{
		Endpoint:        cfg.MinIO.Endpoint,
		AccessKeyID:     cfg.MinIO.AccessKeyID,
		SecretAccessKey: cfg.MinIO.SecretAccessKey,
		UseSSL:          cfg.MinIO.UseSSL,
		Bucket:          cfg.MinIO.Bucket,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to object storage", zap.Error(err))
	}

	var completer repositories.ChatCompleter
	var vision repositories.VisionAnalyzer
	if cfg.Gemini.APIKey != "" {
		gemini, err := llm.NewGemini(ctx, llm.Config{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			Temperature:     cfg.Gemini.Temperature,
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
			TimeoutSeconds:  cfg.Gemini.TimeoutSeconds,
		}, logger)
		if err != nil {
			logger.Fatal("failed to initialize gemini client", zap.Error(err))
		}
		completer, vision = gemini, gemini
	} else {
		logger.Warn("no gemini api key configured, using mock model")
		mock := llm.NewMock()
		completer, vision = mock, mock
	}

	var speechToText repositories.SpeechToText
	if google, err := stt.NewGoogleSpeech(ctx, logger); err == nil {
		speechToText = google
	} else {
		logger.Warn("google speech unavailable, using mock transcription", zap.Error(err))
		speechToText = stt.NewMockSpeech(logger)
	}

	var textToSpeech repositories.TextToSpeech
	if cfg.TTS.APIKey != "" {
		textToSpeech, err = tts.NewElevenLabs(tts.Config{
			APIKey:  cfg.TTS.APIKey,
			VoiceID: cfg.TTS.VoiceID,
			ModelID: cfg.TTS.ModelID,
		}, logger)
		if err != nil {
			logger.Fatal("failed to initialize speech synthesis", zap.Error(err))
		}
	} else {
		logger.Info("no tts api key configured, voice replies are text only")
	}

	tokens, err := auth.NewManager(cfg.JWT.Secret)
	if err != nil {
		logger.Fatal("failed to initialize token manager", zap.Error(err))
	}

	debounce := time.Duration(cfg.Sessions.PersistDebounceMillis) * time.Millisecond
	sessions := usecase.NewSessionManager(sessionRepo, mirror, debounce, logger)
	chatService := usecase.NewChatService(completer, users, logger)
	mealService := usecase.NewMealService(vision, logger)
	recipeService := usecase.NewRecipeService(completer, logger)

	gateway := websocket.NewGateway(sessions, chatService, speechToText, textToSpeech, logger)
	handlers := api.NewHandlers(users, vault, tokens, sessions, chatService, mealService, recipeService, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.RegisterRoutes(e, handlers, tokens, gateway)

	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()
	logger.Info("server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("server is shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Flush pending session writes before the server stops accepting work.
	sessions.CloseAll(shutdownCtx)

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}
