package ocr

import (
	"context"
	"fmt"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

// fakeBackend returns scripted word lists in call order. The ensemble runs
// its passes sequentially per page, so the order is deterministic.
type fakeBackend struct {
	mu      sync.Mutex
	outputs [][]Word
	errs    []error
	calls   int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Recognize(_ context.Context, _ image.Image, _ string, _ int) ([]Word, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls % len(f.outputs)
	f.calls++
	if f.errs != nil && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.outputs[i], nil
}

func words(conf float64, texts ...string) []Word {
	out := make([]Word, len(texts))
	for i, t := range texts {
		out[i] = Word{Text: t, Confidence: conf}
	}
	return out
}

// whiteImage classifies as noisy: no rule lines, no ink.
func whiteImage(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func TestEnsembleConsensusOutvotesConfidence(t *testing.T) {
	majority := words(80, "the", "quick", "brown", "fox")
	loner := words(99, "zzz", "qqq")

	// The noisy preset runs 2 strategies x 4 PSMs = 8 passes. Six agree,
	// two are confidently wrong; agreement must win.
	backend := &fakeBackend{outputs: [][]Word{
		majority, majority, majority, loner,
		majority, majority, majority, loner,
	}}
	engine, err := NewEngine(backend, logger.NewTestLogger(), nil)
	require.NoError(t, err)

	result, err := engine.ProcessPage(context.Background(), 1, whiteImage(100, 100))
	require.NoError(t, err)

	assert.Equal(t, "the quick brown fox", result.Text)
	assert.Equal(t, models.LayoutNoisy, result.Layout)
	assert.Equal(t, 1, result.PageNumber)
	require.NotNil(t, result.PassSimilarity)
	assert.Greater(t, *result.PassSimilarity, 0.5)
	require.NotNil(t, result.Strategy)
	assert.Equal(t, 8, result.Strategy.Candidates)
	assert.Len(t, result.Tokens, 4)
}

func TestEnsembleSurvivesPassFailures(t *testing.T) {
	good := words(95, "hello", "world")
	failure := fmt.Errorf("tesseract crashed")

	backend := &fakeBackend{
		outputs: [][]Word{good, nil, good, nil, good, nil, good, nil},
		errs:    []error{nil, failure, nil, failure, nil, failure, nil, failure},
	}
	log := logger.NewTestLogger()
	engine, err := NewEngine(backend, log, nil)
	require.NoError(t, err)

	result, err := engine.ProcessPage(context.Background(), 2, whiteImage(100, 100))
	require.NoError(t, err)

	assert.Equal(t, "hello world", result.Text)
	assert.Equal(t, 4, result.Strategy.Candidates)

	var warned int
	for _, entry := range log.Entries() {
		if entry.Level == "WARN" && entry.Message == "ocr pass failed" {
			warned++
		}
	}
	assert.Equal(t, 4, warned)
}

func TestEnsembleAllPassesFail(t *testing.T) {
	failure := fmt.Errorf("no tessdata")
	backend := &fakeBackend{
		outputs: [][]Word{nil},
		errs:    []error{failure},
	}
	engine, err := NewEngine(backend, logger.NewTestLogger(), nil)
	require.NoError(t, err)

	result, err := engine.ProcessPage(context.Background(), 1, whiteImage(50, 50))
	require.NoError(t, err)

	assert.Empty(t, result.Text)
	assert.Empty(t, result.Tokens)
	assert.Nil(t, result.PassSimilarity)
	require.NotNil(t, result.Strategy)
	assert.Equal(t, "none", result.Strategy.Name)
}

func TestProcessPagesPreservesOrder(t *testing.T) {
	backend := &fakeBackend{outputs: [][]Word{words(90, "page")}}
	engine, err := NewEngine(backend, logger.NewTestLogger(), &Options{Workers: 2})
	require.NoError(t, err)

	images := []image.Image{
		whiteImage(50, 50), whiteImage(50, 50), whiteImage(50, 50),
	}
	results, err := engine.ProcessPages(context.Background(), 4, images)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, result := range results {
		assert.Equal(t, 4+i, result.PageNumber)
	}
}

func TestRetryPageDeterministic(t *testing.T) {
	backend := &fakeBackend{outputs: [][]Word{words(90, "retried")}}
	engine, err := NewEngine(backend, logger.NewTestLogger(), nil)
	require.NoError(t, err)

	result, err := engine.RetryPage(context.Background(), 7, 0, whiteImage(100, 100))
	require.NoError(t, err)
	require.NotNil(t, result.Strategy)
	assert.Equal(t, "retry-1", result.Strategy.Name)
	assert.Equal(t, 220, result.Strategy.Threshold)
	assert.True(t, result.Strategy.Deskew)
	assert.Equal(t, 800, result.Strategy.DPI)
	assert.Equal(t, 1, result.Strategy.Attempt)
	assert.Equal(t, 7, result.PageNumber)

	result, err = engine.RetryPage(context.Background(), 7, 1, whiteImage(100, 100))
	require.NoError(t, err)
	assert.Equal(t, "retry-2", result.Strategy.Name)
	assert.Equal(t, 180, result.Strategy.Threshold)
	assert.False(t, result.Strategy.Deskew)
	assert.Equal(t, 1000, result.Strategy.DPI)

	// Attempts past the table length wrap around.
	result, err = engine.RetryPage(context.Background(), 7, 2, whiteImage(100, 100))
	require.NoError(t, err)
	assert.Equal(t, "retry-3", result.Strategy.Name)
	assert.Equal(t, 220, result.Strategy.Threshold)
	assert.Equal(t, 800, result.Strategy.DPI)
}

func TestRetryDPICycles(t *testing.T) {
	backend := &fakeBackend{outputs: [][]Word{nil}}
	engine, err := NewEngine(backend, logger.NewTestLogger(), nil)
	require.NoError(t, err)

	assert.Equal(t, 800, engine.RetryDPI(0))
	assert.Equal(t, 1000, engine.RetryDPI(1))
	assert.Equal(t, 800, engine.RetryDPI(2))
}

func TestNewEngineRequiresBackend(t *testing.T) {
	_, err := NewEngine(nil, logger.NewTestLogger(), nil)
	assert.Error(t, err)
}

func TestScoreWords(t *testing.T) {
	backend := &fakeBackend{outputs: [][]Word{nil}}
	engine, err := NewEngine(backend, logger.NewTestLogger(), nil)
	require.NoError(t, err)

	score := engine.scoreWords([]Word{
		{Text: "a", Confidence: 60},
		{Text: "b", Confidence: 80},
		{Text: "c", Confidence: 90},
	})
	assert.InDelta(t, 85.0, score, 1e-9)

	assert.Zero(t, engine.scoreWords([]Word{{Text: "a", Confidence: 50}}))
	assert.Zero(t, engine.scoreWords(nil))
}
