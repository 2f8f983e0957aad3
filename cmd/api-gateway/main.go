package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/PixlGalaxy/EagleDocs/api/swagger"
	"github.com/PixlGalaxy/EagleDocs/internal/rag"
	"github.com/PixlGalaxy/EagleDocs/internal/repository"
	"github.com/PixlGalaxy/EagleDocs/internal/service"
	"github.com/PixlGalaxy/EagleDocs/pkg/cache"
	"github.com/PixlGalaxy/EagleDocs/pkg/config"
	"github.com/PixlGalaxy/EagleDocs/pkg/database"
	"github.com/PixlGalaxy/EagleDocs/pkg/jobs"
	"github.com/PixlGalaxy/EagleDocs/pkg/llm"
	"github.com/PixlGalaxy/EagleDocs/pkg/logger"
	"github.com/PixlGalaxy/EagleDocs/pkg/storage"
)

// @title EagleDocs API
// @version 1.0.0
// @description Course-scoped study assistant: document ingestion, retrieval and chat.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to initialise application", zap.Error(err))
	}
	defer app.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, logr, app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "llm_provider", cfg.LLM.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type application struct {
	metrics   *service.MetricsService
	auth      *service.AuthService
	chats     *service.ChatService
	documents *service.DocumentService
	retrieval *service.RAGService
	router    *llm.Router
	cacheRepo *repository.CacheRepository
	reindex   *jobs.Queue
	pingDB    func(ctx context.Context) error
	closeFns  []func()
}

func (a *application) close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*application, error) {
	app := &application{metrics: service.NewMetricsService()}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	app.pingDB = db.PingContext
	app.closeFns = append(app.closeFns, func() { _ = db.Close() })

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, preview cache disabled", zap.Error(err))
		redisClient = nil
	}
	app.cacheRepo = repository.NewCacheRepository(redisClient, "eagledocs:", logr)
	app.closeFns = append(app.closeFns, func() { _ = app.cacheRepo.Close() })
	cacheSvc := service.NewCacheService(app.cacheRepo, app.metrics, cfg.Redis.DefaultTTL, logr, redisClient != nil)

	documentFiles, err := storage.NewLocalStorage(cfg.RAG.DocumentsDir)
	if err != nil {
		return nil, fmt.Errorf("documents dir: %w", err)
	}
	indexFiles, err := storage.NewLocalStorage(cfg.RAG.IndexDir)
	if err != nil {
		return nil, fmt.Errorf("index dir: %w", err)
	}

	courses := repository.NewCourseRepository(db)
	documents := repository.NewDocumentRepository(db)
	chats := repository.NewChatRepository(db)

	indexStore := rag.NewIndexStore(indexFiles, cfg.RAG.IndexReadConcurrency, logr.Named("index"))
	indexer := rag.NewIndexer(rag.NewChunker(rag.ChunkerConfig{
		WordsPerChunk: cfg.RAG.ChunkWords,
		WordsPerPage:  cfg.RAG.WordsPerPage,
		MaxChunkChars: cfg.RAG.ChunkMaxChars,
	}), indexStore)

	app.router = llm.NewRouter(newBackend(cfg), llm.RouterConfig{
		DefaultModel: cfg.LLM.Model,
		Fallbacks:    cfg.LLM.FallbackModels,
		Logger:       logr.Named("llm"),
		Observe:      app.metrics.ObserveGeneration,
	})

	gate, err := rag.NewGate(app.router, rag.GateConfig{
		Policy:      cfg.RAG.GatePolicy,
		Model:       cfg.LLM.AnalysisModel,
		Concurrency: cfg.RAG.GateConcurrency,
		Logger:      logr.Named("gate"),
		Observe:     app.metrics.RecordGateDecision,
	})
	if err != nil {
		return nil, err
	}
	assembler := rag.NewAssembler(rag.AssemblerConfig{
		TopKPerDocument: cfg.RAG.TopKPerDocument,
		MaxChars:        cfg.RAG.ContextMaxChars,
	})

	secret := cfg.SignedURL.Secret
	if secret == "" {
		secret = cfg.JWT.Secret
	}
	signer := storage.NewSignedURLSigner(secret, cfg.SignedURL.TTL)

	validate := validator.New()
	app.auth = service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	app.retrieval = service.NewRAGService(courses, documents, indexStore, gate, assembler, signer, cacheSvc, app.metrics, logr.Named("rag"), service.RAGConfig{
		DownloadBasePath: path.Clean(cfg.APIPrefix),
		PreviewCacheTTL:  cfg.RAG.PreviewCacheTTL,
	})
	app.chats = service.NewChatService(chats, app.retrieval, app.router, validate, app.metrics, logr.Named("chat"), service.ChatConfig{
		MaxContentChars: cfg.Chat.MaxContentChars,
		TitleMaxChars:   cfg.Chat.TitleMaxChars,
	})
	app.documents = service.NewDocumentService(courses, documents, documentFiles, indexer, indexStore, app.retrieval, signer, validate, app.metrics, logr.Named("documents"), service.DocumentConfig{
		MaxBytes:          cfg.Upload.MaxBytes,
		TextSnapshotChars: cfg.Upload.TextSnapshotChars,
	})

	app.reindex = jobs.NewQueue("reindex", app.documents.HandleReindexJob, jobs.QueueConfig{
		Workers:    cfg.Reindex.Workers,
		MaxRetries: cfg.Reindex.MaxRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr.Named("jobs"),
		OnResult:   app.documents.ReindexResult,
	})
	app.reindex.Start(ctx)
	app.closeFns = append(app.closeFns, app.reindex.Stop)
	app.documents.SetQueue(app.reindex)

	return app, nil
}

func newBackend(cfg *config.Config) llm.Backend {
	if cfg.LLM.Provider == config.ProviderOpenAI {
		return llm.NewOpenAIBackend(llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAIKey,
			BaseURL: cfg.LLM.OpenAIBaseURL,
			Timeout: cfg.LLM.Timeout,
		})
	}
	return llm.NewOllamaBackend(llm.OllamaConfig{
		Host:    cfg.LLM.Host,
		Timeout: cfg.LLM.Timeout,
	})
}
