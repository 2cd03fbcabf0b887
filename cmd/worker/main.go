// The worker binary drains the asynq extraction queue in the distributed
// deployment mode. It shares the redis job table with the server, so
// clients keep polling the same endpoints regardless of which process
// ran their job.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/pdf-extractor/config"
	"github.com/feichai0017/pdf-extractor/internal/extractor"
	"github.com/feichai0017/pdf-extractor/internal/jobs"
	"github.com/feichai0017/pdf-extractor/internal/ocr"
	"github.com/feichai0017/pdf-extractor/internal/pdfx"
	"github.com/feichai0017/pdf-extractor/internal/render"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
	"github.com/feichai0017/pdf-extractor/pkg/queue"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.GetAppConfig()

	durable, err := jobs.NewRedisStore(cfg.Jobs.RedisAddr, os.Getenv("REDIS_PASSWORD"), cfg.Jobs.RedisDB)
	if err != nil {
		log.Fatal("Failed to connect to redis job store", logger.Error(err))
	}
	store := jobs.NewStore(durable, log)

	renderer := render.NewPopplerRenderer(log)
	backend := ocr.NewTesseractBackend(log, os.Getenv("TESSDATA_PREFIX"))
	ext := extractor.New(pdfx.NewReader(log), renderer, backend, log)

	server := queue.NewServer(
		queue.DefaultConfig(cfg.Jobs.RedisAddr, cfg.Jobs.RedisDB),
		func(ctx context.Context, task queue.ExtractTask) error {
			defer os.Remove(task.PdfPath)

			store.SetProcessing(task.JobID)
			result, err := ext.Extract(ctx, task.PdfPath, task.Options)
			if err != nil {
				store.SetFailed(task.JobID, jobs.DescribeError(err))
				// The failure is recorded on the job; do not let asynq
				// retry a terminal outcome.
				return nil
			}
			store.SetCompleted(task.JobID, result)
			return nil
		},
	)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down worker...")
		server.Shutdown()
	}()

	log.Info("Worker starting", logger.String("redis", cfg.Jobs.RedisAddr))
	if err := server.Run(); err != nil {
		log.Fatal("Worker stopped", logger.Error(err))
	}
}
