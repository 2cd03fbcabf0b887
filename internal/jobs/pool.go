package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/feichai0017/pdf-extractor/internal/extractor"
	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

// Runner is the work a pool task executes. *extractor.Extractor satisfies
// it; tests use a fake.
type Runner interface {
	Extract(ctx context.Context, pdfPath string, opts extractor.Options) (*models.ExtractionResult, error)
}

// Task is one queued extraction. PdfPath is a temporary artifact the pool
// deletes after the job reaches a terminal state.
type Task struct {
	JobID   string
	PdfPath string
	Options extractor.Options
}

// Pool runs extraction tasks on a fixed set of background workers. It is
// long-lived: sized once at process start and reused across requests.
type Pool struct {
	store  *Store
	runner Runner
	tasks  chan Task
	wg     sync.WaitGroup
	logger logger.Logger

	// mu guards tasks against a send racing the close in Shutdown.
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool starts size workers draining a queue of queueDepth tasks.
func NewPool(store *Store, runner Runner, size, queueDepth int, log logger.Logger) *Pool {
	if size <= 0 {
		size = 2
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		store:  store,
		runner: runner,
		tasks:  make(chan Task, queueDepth),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues a task, blocking until there is queue room or the
// caller's context ends.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("worker pool is shut down")
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return errors.New("worker pool is shut down")
	}
}

// Shutdown stops accepting work and waits for in-flight tasks to finish.
func (p *Pool) Shutdown() {
	p.cancel()
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// run drives one job through its lifecycle. The worker never lets a
// failure escape: every outcome lands in the store, and the temporary
// artifact is deleted regardless.
func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked",
				logger.String("jobId", task.JobID),
				logger.Any("panic", r),
			)
			p.store.SetFailed(task.JobID, fmt.Sprintf("PdfProcessingError: panic: %v", r))
		}
		if task.PdfPath != "" {
			if err := os.Remove(task.PdfPath); err != nil && !os.IsNotExist(err) {
				p.logger.Warn("failed to delete job artifact",
					logger.String("jobId", task.JobID),
					logger.Error(err),
				)
			}
		}
	}()

	p.store.SetProcessing(task.JobID)

	result, err := p.runner.Extract(p.ctx, task.PdfPath, task.Options)
	if err != nil {
		p.store.SetFailed(task.JobID, DescribeError(err))
		p.logger.Warn("job failed",
			logger.String("jobId", task.JobID),
			logger.Error(err),
		)
		return
	}
	p.store.SetCompleted(task.JobID, result)
	p.logger.Info("job completed",
		logger.String("jobId", task.JobID),
		logger.String("docId", result.DocID),
	)
}

// DescribeError renders an error the way job records store it:
// "{class}: {message}".
func DescribeError(err error) string {
	var extErr *extractor.ExtractionError
	if errors.As(err, &extErr) {
		return extErr.Describe()
	}
	return fmt.Sprintf("%s: %v", extractor.KindPdfProcessing, err)
}
