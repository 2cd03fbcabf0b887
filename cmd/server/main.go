package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-extractor/api/handlers"
	"github.com/feichai0017/pdf-extractor/api/routes"
	"github.com/feichai0017/pdf-extractor/config"
	"github.com/feichai0017/pdf-extractor/internal/enrich"
	"github.com/feichai0017/pdf-extractor/internal/extractor"
	"github.com/feichai0017/pdf-extractor/internal/jobs"
	"github.com/feichai0017/pdf-extractor/internal/ocr"
	"github.com/feichai0017/pdf-extractor/internal/pdfx"
	"github.com/feichai0017/pdf-extractor/internal/render"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
	"github.com/feichai0017/pdf-extractor/pkg/queue"
	"github.com/feichai0017/pdf-extractor/pkg/storage"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.GetAppConfig()

	renderer := render.NewPopplerRenderer(log)
	backend, err := buildBackend(cfg, log)
	if err != nil {
		log.Fatal("Failed to build OCR backend", logger.Error(err))
	}

	var enrichers []extractor.Enricher
	var vlm enrich.VLM
	if cfg.Ollama.Enabled {
		// The pool caps concurrent VLM calls at PoolSize.
		vlm = enrich.NewOllamaClientPool(&enrich.OllamaConfig{
			Endpoint:    cfg.Ollama.Endpoint,
			Model:       cfg.Ollama.Model,
			MaxTokens:   512,
			Temperature: 0.2,
			PoolSize:    cfg.Ollama.PoolSize,
			PoolTimeout: 30 * time.Second,
		})
	}
	enrichers = append(enrichers, enrich.NewFigureProvider(renderer, vlm, log))

	ext := extractor.New(pdfx.NewReader(log), renderer, backend, log, enrichers...)

	durable, err := buildDurableStore(cfg)
	if err != nil {
		log.Fatal("Failed to build durable job store", logger.Error(err))
	}
	store := jobs.NewStore(durable, log)

	var (
		pool *jobs.Pool
		q    handlers.Queue
	)
	if cfg.Jobs.Mode == "queue" {
		if cfg.Jobs.Store != "redis" {
			log.Warn("Queue mode without the redis job store; workers cannot share job state")
		}
		client := queue.NewClient(queue.DefaultConfig(cfg.Jobs.RedisAddr, cfg.Jobs.RedisDB))
		defer client.Close()
		q = client
	} else {
		pool = jobs.NewPool(store, ext, cfg.Jobs.PoolSize, cfg.Jobs.QueueDepth, log)
		defer pool.Shutdown()
	}

	var artifacts storage.Storage
	if cfg.Storage.Type != "" {
		artifacts, err = storage.NewStorage(storage.StorageType(cfg.Storage.Type), log)
		if err != nil {
			log.Warn("Object storage unavailable, uploads stay local only", logger.Error(err))
		}
	}

	defaultOpts := extractor.Options{
		DPI:            cfg.Extraction.DPI,
		MaxPages:       cfg.Extraction.MaxPages,
		BatchSize:      cfg.Extraction.BatchSize,
		QualityRetries: cfg.Extraction.QualityRetries,
		QualityTarget:  cfg.Extraction.QualityTarget,
		Language:       cfg.Extraction.Language,
		OCRWorkers:     cfg.Extraction.OCRWorkers,
	}
	h := handlers.NewHandlers(ext, store, pool, q, artifacts, defaultOpts, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}

func buildBackend(cfg *config.AppConfig, log logger.Logger) (ocr.Backend, error) {
	if cfg.Extraction.Backend == "textract" {
		tc := config.GetTextractConfig()
		return ocr.NewTextractBackend(context.Background(), &ocr.TextractConfig{
			Region:    tc.Region,
			AccessKey: tc.AccessKey,
			SecretKey: tc.SecretKey,
		}, log)
	}
	return ocr.NewTesseractBackend(log, os.Getenv("TESSDATA_PREFIX")), nil
}

func buildDurableStore(cfg *config.AppConfig) (jobs.DurableStore, error) {
	switch cfg.Jobs.Store {
	case "redis":
		return jobs.NewRedisStore(cfg.Jobs.RedisAddr, os.Getenv("REDIS_PASSWORD"), cfg.Jobs.RedisDB)
	case "file":
		return jobs.NewFileStore(cfg.Jobs.Dir)
	default:
		return nil, nil
	}
}
