package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-extractor/internal/extractor"
	"github.com/feichai0017/pdf-extractor/internal/jobs"
	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
	"github.com/feichai0017/pdf-extractor/pkg/queue"
	"github.com/feichai0017/pdf-extractor/pkg/storage"
)

// Queue dispatches submitted jobs to the distributed worker deployment.
// *queue.Client satisfies it; nil routes jobs to the in-process pool.
type Queue interface {
	Enqueue(ctx context.Context, task queue.ExtractTask) error
}

// ExtractionHandler serves the extraction endpoints: synchronous extract,
// async job submission, and job polling.
type ExtractionHandler struct {
	extractor *extractor.Extractor
	store     *jobs.Store
	pool      *jobs.Pool
	queue     Queue
	artifacts storage.Storage
	defaults  extractor.Options
	logger    logger.Logger
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SubmitResponse struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Filename string `json:"filename"`
}

func NewExtractionHandler(
	ext *extractor.Extractor,
	store *jobs.Store,
	pool *jobs.Pool,
	q Queue,
	artifacts storage.Storage,
	defaults extractor.Options,
	log logger.Logger,
) *ExtractionHandler {
	return &ExtractionHandler{
		extractor: ext,
		store:     store,
		pool:      pool,
		queue:     q,
		artifacts: artifacts,
		defaults:  defaults,
		logger:    log,
	}
}

// Extract runs the pipeline synchronously and returns the full result.
func (h *ExtractionHandler) Extract(c *gin.Context) {
	tmpPath, filename, err := h.stageUpload(c)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer os.Remove(tmpPath)

	opts := h.parseOptions(c)
	result, err := h.extractor.Extract(c.Request.Context(), tmpPath, opts)
	if err != nil {
		h.handleError(c, statusForError(err), "Extraction failed", err)
		return
	}
	result.Filename = filename

	c.JSON(http.StatusOK, result)
}

// Submit stages the upload, creates a job, and queues it for processing:
// the distributed queue when one is configured, the in-process pool
// otherwise. The temp artifact is owned by whichever side runs the job.
func (h *ExtractionHandler) Submit(c *gin.Context) {
	tmpPath, filename, err := h.stageUpload(c)
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}

	jobID := h.store.CreateJob()
	h.store.SetFilename(jobID, filename)

	if err := h.dispatch(c, jobID, tmpPath); err != nil {
		os.Remove(tmpPath)
		h.store.SetFailed(jobID, jobs.DescribeError(err))
		h.handleError(c, http.StatusServiceUnavailable, "Failed to queue job", err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitResponse{
		JobID:    jobID,
		Status:   string(models.JobPending),
		Filename: filename,
	})
}

func (h *ExtractionHandler) dispatch(c *gin.Context, jobID, tmpPath string) error {
	opts := h.parseOptions(c)
	if h.queue != nil {
		return h.queue.Enqueue(c.Request.Context(), queue.ExtractTask{
			JobID:   jobID,
			PdfPath: tmpPath,
			Options: opts,
		})
	}
	return h.pool.Submit(c.Request.Context(), jobs.Task{
		JobID:   jobID,
		PdfPath: tmpPath,
		Options: opts,
	})
}

// GetJob returns one job's view, falling back to durable storage.
func (h *ExtractionHandler) GetJob(c *gin.Context) {
	jobID := c.Param("jobId")
	view, err := h.store.GetJob(jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			h.handleError(c, http.StatusNotFound, "Job not found", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to read job", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListJobs returns job summaries, optionally filtered by ?status=.
func (h *ExtractionHandler) ListJobs(c *gin.Context) {
	statusFilter := models.JobStatus(c.Query("status"))
	c.JSON(http.StatusOK, gin.H{
		"jobs": h.store.ListJobs(statusFilter),
	})
}

// GetReport returns the consolidated quality report for a completed job.
func (h *ExtractionHandler) GetReport(c *gin.Context) {
	jobID := c.Param("jobId")
	view, err := h.store.GetJob(jobID)
	if err != nil {
		h.handleError(c, http.StatusNotFound, "Job not found", err)
		return
	}
	if view.Status != models.JobCompleted || view.Result == nil {
		h.handleError(c, http.StatusConflict, "Job has no result yet", nil)
		return
	}
	c.JSON(http.StatusOK, extractor.BuildConsolidatedReport(view.Result))
}

// Health reports liveness.
func (h *ExtractionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// stageUpload writes the multipart file to a temp path and optionally
// mirrors it to object storage.
func (h *ExtractionHandler) stageUpload(c *gin.Context) (string, string, error) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return "", "", err
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		return "", "", fmt.Errorf("only pdf uploads are supported, got %q", header.Filename)
	}

	tmpPath, err := writeTemp(file)
	if err != nil {
		return "", "", err
	}

	if h.artifacts != nil {
		if err := h.mirror(c, tmpPath, header.Filename); err != nil {
			h.logger.Warn("failed to mirror upload to object storage",
				logger.String("filename", header.Filename),
				logger.Error(err),
			)
		}
	}
	return tmpPath, header.Filename, nil
}

func (h *ExtractionHandler) mirror(c *gin.Context, tmpPath, filename string) error {
	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = h.artifacts.Store(c.Request.Context(), f, filename)
	return err
}

func writeTemp(file multipart.File) (string, error) {
	tmp, err := os.CreateTemp("", "upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return tmp.Name(), nil
}

// parseOptions reads extraction options from the form/query parameters.
// Unset values fall back to the handler's configured defaults, which the
// orchestrator tops up with its own.
func (h *ExtractionHandler) parseOptions(c *gin.Context) extractor.Options {
	return extractor.Options{
		DPI:            intParamDefault(c, "dpi", h.defaults.DPI),
		MaxPages:       intParamDefault(c, "maxPages", h.defaults.MaxPages),
		ForceOCR:       boolParam(c, "forceOcr"),
		StrictQuality:  boolParam(c, "strictQuality"),
		QualityRetries: intParamDefault(c, "qualityRetries", h.defaults.QualityRetries),
		QualityTarget:  intParamDefault(c, "qualityTarget", h.defaults.QualityTarget),
		Language:       stringParamDefault(c, "language", h.defaults.Language),
		BatchSize:      intParamDefault(c, "batchSize", h.defaults.BatchSize),
		ExtractFigures: boolParam(c, "extractFigures"),
		OCRWorkers:     h.defaults.OCRWorkers,
	}
}

func stringParamDefault(c *gin.Context, name, fallback string) string {
	if raw := c.Query(name); raw != "" {
		return raw
	}
	return fallback
}

func intParamDefault(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func boolParam(c *gin.Context, name string) bool {
	raw := c.Query(name)
	return raw == "true" || raw == "1"
}

func statusForError(err error) int {
	switch extractor.KindOf(err) {
	case extractor.KindPdfValidation:
		return http.StatusBadRequest
	case extractor.KindMaxPagesExceeded:
		return http.StatusRequestEntityTooLarge
	case extractor.KindEmptyContent:
		return http.StatusUnprocessableEntity
	case extractor.KindMissingDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *ExtractionHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
