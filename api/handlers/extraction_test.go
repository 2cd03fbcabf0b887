package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-extractor/internal/extractor"
	"github.com/feichai0017/pdf-extractor/internal/jobs"
	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
	"github.com/feichai0017/pdf-extractor/pkg/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRunner struct {
	result *models.ExtractionResult
}

func (s *stubRunner) Extract(_ context.Context, _ string, _ extractor.Options) (*models.ExtractionResult, error) {
	return s.result, nil
}

func testContext(t *testing.T, method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func TestParseOptions(t *testing.T) {
	h := &ExtractionHandler{defaults: extractor.Options{QualityRetries: -1}}
	c, _ := testContext(t, http.MethodPost,
		"/extract?dpi=300&maxPages=10&forceOcr=true&strictQuality=1&qualityRetries=0&qualityTarget=90&language=kannada&batchSize=3&extractFigures=true")

	opts := h.parseOptions(c)
	assert.Equal(t, 300, opts.DPI)
	assert.Equal(t, 10, opts.MaxPages)
	assert.True(t, opts.ForceOCR)
	assert.True(t, opts.StrictQuality)
	assert.Zero(t, opts.QualityRetries)
	assert.Equal(t, 90, opts.QualityTarget)
	assert.Equal(t, "kannada", opts.Language)
	assert.Equal(t, 3, opts.BatchSize)
	assert.True(t, opts.ExtractFigures)
}

func TestParseOptionsFallsBackToConfiguredDefaults(t *testing.T) {
	// Query parameters absent: every field comes from the configured
	// extraction defaults rather than hard-coded zeros.
	h := &ExtractionHandler{defaults: extractor.Options{
		DPI:            450,
		MaxPages:       25,
		BatchSize:      5,
		QualityRetries: 2,
		QualityTarget:  90,
		Language:       "kannada",
		OCRWorkers:     4,
	}}
	c, _ := testContext(t, http.MethodPost, "/extract")

	opts := h.parseOptions(c)
	assert.Equal(t, 450, opts.DPI)
	assert.Equal(t, 25, opts.MaxPages)
	assert.Equal(t, 5, opts.BatchSize)
	assert.Equal(t, 2, opts.QualityRetries)
	assert.Equal(t, 90, opts.QualityTarget)
	assert.Equal(t, "kannada", opts.Language)
	assert.Equal(t, 4, opts.OCRWorkers)
	assert.False(t, opts.ForceOCR)

	// An explicit query value still overrides the configured default.
	c, _ = testContext(t, http.MethodPost, "/extract?dpi=300&language=eng")
	opts = h.parseOptions(c)
	assert.Equal(t, 300, opts.DPI)
	assert.Equal(t, "eng", opts.Language)
	assert.Equal(t, 25, opts.MaxPages)
}

func TestStatusForError(t *testing.T) {
	cases := map[extractor.ErrorKind]int{
		extractor.KindPdfValidation:     http.StatusBadRequest,
		extractor.KindMaxPagesExceeded:  http.StatusRequestEntityTooLarge,
		extractor.KindEmptyContent:      http.StatusUnprocessableEntity,
		extractor.KindMissingDependency: http.StatusServiceUnavailable,
		extractor.KindPdfProcessing:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		err := &extractor.ExtractionError{Kind: kind, Msg: "x"}
		assert.Equal(t, want, statusForError(err), string(kind))
	}
}

func newTestHandler(t *testing.T) (*ExtractionHandler, *jobs.Store, *jobs.Pool) {
	t.Helper()
	log := logger.NewTestLogger()
	store := jobs.NewStore(nil, log)
	pool := jobs.NewPool(store, &stubRunner{result: &models.ExtractionResult{DocID: "doc-1"}}, 1, 4, log)
	t.Cleanup(pool.Shutdown)
	defaults := extractor.Options{QualityRetries: -1}
	return NewExtractionHandler(nil, store, pool, nil, nil, defaults, log), store, pool
}

func TestGetJobNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)
	c, w := testContext(t, http.MethodGet, "/jobs/missing")
	c.Params = gin.Params{{Key: "jobId", Value: "missing"}}

	h.GetJob(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetJob(t *testing.T) {
	h, store, _ := newTestHandler(t)
	jobID := store.CreateJob()

	c, w := testContext(t, http.MethodGet, "/jobs/"+jobID)
	c.Params = gin.Params{{Key: "jobId", Value: jobID}}

	h.GetJob(c)
	require.Equal(t, http.StatusOK, w.Code)

	var view models.JobView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, jobID, view.JobID)
	assert.Equal(t, models.JobPending, view.Status)
}

func TestGetReport(t *testing.T) {
	h, store, _ := newTestHandler(t)
	jobID := store.CreateJob()

	c, w := testContext(t, http.MethodGet, "/jobs/"+jobID+"/report")
	c.Params = gin.Params{{Key: "jobId", Value: jobID}}
	h.GetReport(c)
	assert.Equal(t, http.StatusConflict, w.Code)

	store.SetCompleted(jobID, &models.ExtractionResult{
		DocID:    "doc-7",
		FullText: "text",
		Quality: &models.QualityResult{
			Status: models.StatusApproved,
			Pages:  []models.QualityGate{{PageNumber: 1, Status: models.StatusApproved}},
		},
	})

	c, w = testContext(t, http.MethodGet, "/jobs/"+jobID+"/report")
	c.Params = gin.Params{{Key: "jobId", Value: jobID}}
	h.GetReport(c)
	require.Equal(t, http.StatusOK, w.Code)

	var report models.ConsolidatedReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "doc-7", report.DocID)
	assert.Equal(t, 1, report.ApprovedCount)
}

func TestListJobs(t *testing.T) {
	h, store, _ := newTestHandler(t)
	jobID := store.CreateJob()
	store.SetFailed(jobID, "broken")
	store.CreateJob()

	c, w := testContext(t, http.MethodGet, "/jobs?status=failed")
	h.ListJobs(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Jobs []models.JobSummary `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, jobID, body.Jobs[0].JobID)
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandler(t)
	c, w := testContext(t, http.MethodGet, "/health")
	h.Health(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func multipartUpload(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestSubmitRejectsNonPDF(t *testing.T) {
	h, _, _ := newTestHandler(t)
	body, contentType := multipartUpload(t, "notes.txt")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/jobs", body)
	c.Request.Header.Set("Content-Type", contentType)

	h.Submit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitQueuesJob(t *testing.T) {
	h, store, _ := newTestHandler(t)
	body, contentType := multipartUpload(t, "exam.pdf")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/jobs", body)
	c.Request.Header.Set("Content-Type", contentType)

	h.Submit(c)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(models.JobPending), resp.Status)
	assert.Equal(t, "exam.pdf", resp.Filename)

	require.Eventually(t, func() bool {
		view, err := store.GetJob(resp.JobID)
		return err == nil && view.Status == models.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

type fakeQueue struct {
	tasks []queue.ExtractTask
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, task queue.ExtractTask) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func TestSubmitDispatchesToQueue(t *testing.T) {
	log := logger.NewTestLogger()
	store := jobs.NewStore(nil, log)
	q := &fakeQueue{}
	defaults := extractor.Options{Language: "kannada", QualityRetries: 2}
	h := NewExtractionHandler(nil, store, nil, q, nil, defaults, log)

	body, contentType := multipartUpload(t, "exam.pdf")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/jobs", body)
	c.Request.Header.Set("Content-Type", contentType)

	h.Submit(c)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	// The job went to the distributed queue, not a local pool: the task
	// carries the job id and options, and the job stays pending until a
	// worker picks it up.
	require.Len(t, q.tasks, 1)
	task := q.tasks[0]
	assert.Equal(t, resp.JobID, task.JobID)
	assert.NotEmpty(t, task.PdfPath)
	assert.Equal(t, "kannada", task.Options.Language)
	assert.Equal(t, 2, task.Options.QualityRetries)
	t.Cleanup(func() { os.Remove(task.PdfPath) })

	view, err := store.GetJob(resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, view.Status)
}

func TestSubmitQueueFailureFailsJob(t *testing.T) {
	log := logger.NewTestLogger()
	store := jobs.NewStore(nil, log)
	q := &fakeQueue{err: errors.New("redis unreachable")}
	h := NewExtractionHandler(nil, store, nil, q, nil, extractor.Options{}, log)

	body, contentType := multipartUpload(t, "exam.pdf")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/jobs", body)
	c.Request.Header.Set("Content-Type", contentType)

	h.Submit(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	summaries := store.ListJobs(models.JobFailed)
	require.Len(t, summaries, 1)
}
