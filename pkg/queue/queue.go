// Package queue is the asynq-backed distribution layer for the optional
// multi-process deployment: the server enqueues extraction tasks, worker
// processes drain them. Single-process deployments use the in-process
// pool in internal/jobs instead.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/pdf-extractor/internal/extractor"
)

// TaskTypePDFExtract is the asynq task type for one extraction job.
const TaskTypePDFExtract = "pdf:extract"

// ExtractTask is the payload of one queued extraction.
type ExtractTask struct {
	JobID   string            `json:"jobId"`
	PdfPath string            `json:"pdfPath"`
	Options extractor.Options `json:"options"`
}

// Config sizes the queue client and server.
type Config struct {
	RedisAddr      string
	RedisDB        int
	MaxRetries     int
	RetryDelay     time.Duration
	ProcessTimeout time.Duration
	Concurrency    int
}

func DefaultConfig(redisAddr string, redisDB int) *Config {
	return &Config{
		RedisAddr:      redisAddr,
		RedisDB:        redisDB,
		MaxRetries:     1,
		RetryDelay:     time.Minute,
		ProcessTimeout: 30 * time.Minute,
		Concurrency:    5,
	}
}

// Client enqueues extraction tasks.
type Client struct {
	client *asynq.Client
	config *Config
}

func NewClient(cfg *Config) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		}),
		config: cfg,
	}
}

// Enqueue submits one extraction task keyed by its job id.
func (c *Client) Enqueue(ctx context.Context, task ExtractTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(c.config.MaxRetries),
		asynq.Timeout(c.config.ProcessTimeout),
		asynq.TaskID(task.JobID),
	}
	t := asynq.NewTask(TaskTypePDFExtract, payload, opts...)
	if _, err := c.client.EnqueueContext(ctx, t); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Handler processes one dequeued extraction task.
type Handler func(ctx context.Context, task ExtractTask) error

// Server drains the extraction queue.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewServer(cfg *Config, handler Handler) *Server {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return cfg.RetryDelay
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePDFExtract, func(ctx context.Context, t *asynq.Task) error {
		var task ExtractTask
		if err := json.Unmarshal(t.Payload(), &task); err != nil {
			return fmt.Errorf("failed to unmarshal task: %w", err)
		}
		return handler(ctx, task)
	})

	return &Server{server: server, mux: mux}
}

// Run blocks until Shutdown.
func (s *Server) Run() error {
	return s.server.Run(s.mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}
