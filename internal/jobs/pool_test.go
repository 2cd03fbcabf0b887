package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-extractor/internal/extractor"
	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

type fakeRunner struct {
	result *models.ExtractionResult
	err    error
	panics bool
}

func (f *fakeRunner) Extract(_ context.Context, _ string, _ extractor.Options) (*models.ExtractionResult, error) {
	if f.panics {
		panic("boom")
	}
	return f.result, f.err
}

func writeArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	return path
}

func waitTerminal(t *testing.T, store *Store, jobID string) *models.JobView {
	t.Helper()
	var view *models.JobView
	require.Eventually(t, func() bool {
		v, err := store.GetJob(jobID)
		if err != nil || !v.Status.Terminal() {
			return false
		}
		view = v
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return view
}

func TestPoolRunsJobToCompletion(t *testing.T) {
	store := NewStore(nil, logger.NewTestLogger())
	runner := &fakeRunner{result: &models.ExtractionResult{DocID: "doc-1"}}
	pool := NewPool(store, runner, 1, 4, logger.NewTestLogger())
	defer pool.Shutdown()

	jobID := store.CreateJob()
	artifact := writeArtifact(t)
	require.NoError(t, pool.Submit(context.Background(), Task{JobID: jobID, PdfPath: artifact}))

	view := waitTerminal(t, store, jobID)
	assert.Equal(t, models.JobCompleted, view.Status)
	require.NotNil(t, view.Result)
	assert.Equal(t, "doc-1", view.Result.DocID)

	_, err := os.Stat(artifact)
	assert.True(t, os.IsNotExist(err))
}

func TestPoolRecordsFailure(t *testing.T) {
	store := NewStore(nil, logger.NewTestLogger())
	runner := &fakeRunner{err: &extractor.ExtractionError{
		Kind: extractor.KindEmptyContent,
		Msg:  "extracted content is empty",
	}}
	pool := NewPool(store, runner, 1, 4, logger.NewTestLogger())
	defer pool.Shutdown()

	jobID := store.CreateJob()
	artifact := writeArtifact(t)
	require.NoError(t, pool.Submit(context.Background(), Task{JobID: jobID, PdfPath: artifact}))

	view := waitTerminal(t, store, jobID)
	assert.Equal(t, models.JobFailed, view.Status)
	assert.Equal(t, "EmptyContentError: extracted content is empty", view.Error)

	_, err := os.Stat(artifact)
	assert.True(t, os.IsNotExist(err))
}

func TestPoolRecoversFromPanic(t *testing.T) {
	store := NewStore(nil, logger.NewTestLogger())
	pool := NewPool(store, &fakeRunner{panics: true}, 1, 4, logger.NewTestLogger())
	defer pool.Shutdown()

	jobID := store.CreateJob()
	artifact := writeArtifact(t)
	require.NoError(t, pool.Submit(context.Background(), Task{JobID: jobID, PdfPath: artifact}))

	view := waitTerminal(t, store, jobID)
	assert.Equal(t, models.JobFailed, view.Status)
	assert.Equal(t, "PdfProcessingError: panic: boom", view.Error)

	// The artifact is deleted even on panic.
	_, err := os.Stat(artifact)
	assert.True(t, os.IsNotExist(err))
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	store := NewStore(nil, logger.NewTestLogger())
	pool := NewPool(store, &fakeRunner{result: &models.ExtractionResult{}}, 1, 1, logger.NewTestLogger())
	pool.Shutdown()

	err := pool.Submit(context.Background(), Task{JobID: "late"})
	assert.Error(t, err)
}

func TestDescribeError(t *testing.T) {
	extErr := &extractor.ExtractionError{
		Kind: extractor.KindMaxPagesExceeded,
		Msg:  "pdf has 40 pages, limit is 25",
	}
	assert.Equal(t, "MaxPagesExceededError: pdf has 40 pages, limit is 25", DescribeError(extErr))
	assert.Equal(t, "MaxPagesExceededError: pdf has 40 pages, limit is 25",
		DescribeError(fmt.Errorf("job: %w", extErr)))
	assert.Equal(t, "PdfProcessingError: plain failure", DescribeError(errors.New("plain failure")))
}
