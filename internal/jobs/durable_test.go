package jobs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-extractor/internal/models"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store := mustFileStore(t, t.TempDir())

	created := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	view := models.JobView{
		JobID:     "abc123",
		Status:    models.JobCompleted,
		Result:    &models.ExtractionResult{DocID: "doc-9", FullText: "hello"},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
		Filename:  "exam.pdf",
	}
	require.NoError(t, store.Save(view))

	loaded, err := store.Load("abc123")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, loaded.Status)
	assert.Equal(t, "exam.pdf", loaded.Filename)
	require.NotNil(t, loaded.Result)
	assert.Equal(t, "doc-9", loaded.Result.DocID)
	assert.True(t, loaded.CreatedAt.Equal(created))
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := mustFileStore(t, t.TempDir())
	_, err := store.Load("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestFileStoreListSkipsCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	store := mustFileStore(t, dir)

	require.NoError(t, store.Save(models.JobView{JobID: "good", Status: models.JobFailed}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("x"), 0o644))

	summaries, err := store.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "good", summaries[0].JobID)
	assert.Equal(t, models.JobFailed, summaries[0].Status)
}
