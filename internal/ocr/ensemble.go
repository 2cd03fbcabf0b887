package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/internal/textutil"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

// Tesseract page-segmentation modes used by the presets.
const (
	psmAuto         = 3
	psmSingleColumn = 4
	psmSingleBlock  = 6
	psmSingleLine   = 7
	psmSparseText   = 11
)

type layoutPreset struct {
	psms       []int
	strategies []Strategy
}

// Per-layout presets: which PSM candidates and preprocessing variants the
// ensemble tries. Tables and noisy pages get the aggressive variant first.
var layoutPresets = map[models.Layout]layoutPreset{
	models.LayoutText: {
		psms:       []int{psmSingleBlock, psmAuto},
		strategies: []Strategy{StrategyStandard},
	},
	models.LayoutTable: {
		psms:       []int{psmSingleColumn, psmSparseText, psmSingleBlock},
		strategies: []Strategy{StrategyAggressive, StrategyStandard},
	},
	models.LayoutNoisy: {
		psms:       []int{psmSingleColumn, psmSingleBlock, psmSparseText, psmAuto},
		strategies: []Strategy{StrategyAggressive, StrategyStandard},
	},
}

// Options configures the ensemble engine. Zero values fall back to the
// production defaults via NewEngine.
type Options struct {
	Language string
	// SelectionMinConf is the confidence floor for a token to count toward
	// a candidate's score.
	SelectionMinConf float64
	// Deterministic retry tables, indexed by attempt modulo length.
	RetryDPIs       []int
	RetryThresholds []int
	RetryDeskew     []bool
	// Workers bounds page-level fan-out.
	Workers int
}

func defaultOptions() Options {
	return Options{
		Language:         "eng",
		SelectionMinConf: 70.0,
		RetryDPIs:        []int{800, 1000},
		RetryThresholds:  []int{220, 180},
		RetryDeskew:      []bool{true, false},
		Workers:          4,
	}
}

// PageResult is one page's winning OCR reading.
type PageResult struct {
	PageNumber     int
	Text           string
	Tokens         []models.Token
	PassSimilarity *float64
	Strategy       *models.Strategy
	Layout         models.Layout
}

// Engine runs the OCR ensemble for page images.
type Engine struct {
	backend Backend
	logger  logger.Logger
	opts    Options
}

func NewEngine(backend Backend, log logger.Logger, opts *Options) (*Engine, error) {
	if backend == nil {
		return nil, fmt.Errorf("ocr backend is required")
	}
	options := defaultOptions()
	if opts != nil {
		if opts.Language != "" {
			options.Language = opts.Language
		}
		if opts.SelectionMinConf > 0 {
			options.SelectionMinConf = opts.SelectionMinConf
		}
		if len(opts.RetryDPIs) > 0 {
			options.RetryDPIs = opts.RetryDPIs
		}
		if len(opts.RetryThresholds) > 0 {
			options.RetryThresholds = opts.RetryThresholds
		}
		if len(opts.RetryDeskew) > 0 {
			options.RetryDeskew = opts.RetryDeskew
		}
		if opts.Workers > 0 {
			options.Workers = min(opts.Workers, 32)
		}
	}
	return &Engine{backend: backend, logger: log, opts: options}, nil
}

// ProcessPage classifies the page layout, runs the table path or the
// ensemble path, and returns the winning reading.
func (e *Engine) ProcessPage(ctx context.Context, pageNumber int, img image.Image) (*PageResult, error) {
	layout := ClassifyLayout(img)
	preset := layoutPresets[layout]

	if layout == models.LayoutTable {
		gray := toGray(img)
		horizontal, vertical := detectRuleLines(gray)
		cells := extractTableCells(horizontal, vertical)
		if len(cells) > 0 {
			cleaned := removeRuleLines(gray, horizontal, vertical)
			text, tokens, err := e.ocrTableCells(ctx, cleaned, cells, e.opts.Language)
			if err != nil {
				return nil, err
			}
			return &PageResult{
				PageNumber: pageNumber,
				Text:       text,
				Tokens:     tokens,
				Layout:     layout,
				Strategy: &models.Strategy{
					Name:       "table-cells",
					PSM:        psmSingleLine,
					TableCells: len(cells),
				},
			}, nil
		}
		// No cells found: the gridlines were a false positive, use the
		// ensemble path with the table preset.
	}

	result := e.runEnsemble(ctx, img, preset.psms, preset.strategies)
	result.PageNumber = pageNumber
	result.Layout = layout
	return result, nil
}

// ProcessPages fans ProcessPage out over a bounded worker pool. Results
// come back indexed by position, so page order is preserved regardless of
// completion order.
func (e *Engine) ProcessPages(ctx context.Context, firstPage int, images []image.Image) ([]*PageResult, error) {
	results := make([]*PageResult, len(images))

	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, min(e.opts.Workers, max(len(images), 1)))

	for i, img := range images {
		idx, pageImg := i, img
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return ctx.Err()
			}

			result, err := e.ProcessPage(ctx, firstPage+idx, pageImg)
			if err != nil {
				return fmt.Errorf("ocr failed for page %d: %w", firstPage+idx, err)
			}
			results[idx] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RetryPage re-runs a single page with the deterministic retry variant for
// the given attempt: different binarization threshold and deskew toggle,
// selected by attempt index modulo the retry tables. The caller renders
// the page at RetryDPI(attempt) first.
func (e *Engine) RetryPage(ctx context.Context, pageNumber, attempt int, img image.Image) (*PageResult, error) {
	strategy := Strategy{
		Name:               fmt.Sprintf("retry-%d", attempt+1),
		Threshold:          e.opts.RetryThresholds[attempt%len(e.opts.RetryThresholds)],
		Deskew:             e.opts.RetryDeskew[attempt%len(e.opts.RetryDeskew)],
		MedianSize:         5,
		SharpenSigma:       2.0,
		AutocontrastCutoff: 2,
	}

	layout := ClassifyLayout(img)
	preset := layoutPresets[layout]

	result := e.runEnsemble(ctx, img, preset.psms, []Strategy{strategy})
	result.PageNumber = pageNumber
	result.Layout = layout
	if result.Strategy != nil {
		result.Strategy.DPI = e.RetryDPI(attempt)
		result.Strategy.Attempt = attempt + 1
	}
	return result, nil
}

// RetryDPI returns the render resolution for a retry attempt.
func (e *Engine) RetryDPI(attempt int) int {
	return e.opts.RetryDPIs[attempt%len(e.opts.RetryDPIs)]
}

type candidate struct {
	text      string
	tokens    []models.Token
	score     float64
	consensus float64
	strategy  Strategy
	psm       int
}

// runEnsemble tries every strategy x PSM combination and selects the
// winner by (consensus similarity, confidence score) lexicographically.
// Agreement among independent attempts is the primary signal; a single
// confidently-wrong pass is outvoted by mutually-agreeing passes.
func (e *Engine) runEnsemble(ctx context.Context, img image.Image, psms []int, strategies []Strategy) *PageResult {
	var candidates []candidate
	for _, strategy := range strategies {
		processed := strategy.Apply(img)
		for _, psm := range psms {
			words, err := e.backend.Recognize(ctx, processed, e.opts.Language, psm)
			if err != nil {
				// Page-local failure: this combination contributes nothing,
				// the remaining candidates still compete.
				e.logger.Warn("ocr pass failed",
					logger.String("strategy", strategy.Name),
					logger.Int("psm", psm),
					logger.Error(err),
				)
				continue
			}
			candidates = append(candidates, candidate{
				text:     joinWords(words),
				tokens:   toTokens(words),
				score:    e.scoreWords(words),
				strategy: strategy,
				psm:      psm,
			})
		}
	}

	if len(candidates) == 0 {
		return &PageResult{
			Strategy: &models.Strategy{Name: "none"},
		}
	}

	for i := range candidates {
		var sims []float64
		for j := range candidates {
			if i == j {
				continue
			}
			if ratio, ok := textutil.SimilarityRatio(candidates[i].text, candidates[j].text); ok {
				sims = append(sims, ratio)
			}
		}
		if len(sims) == 0 {
			candidates[i].consensus = 1.0
			continue
		}
		var sum float64
		for _, s := range sims {
			sum += s
		}
		candidates[i].consensus = sum / float64(len(sims))
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.consensus > best.consensus ||
			(c.consensus == best.consensus && c.score > best.score) {
			best = c
		}
	}

	passSimilarity := best.consensus
	return &PageResult{
		Text:           best.text,
		Tokens:         best.tokens,
		PassSimilarity: &passSimilarity,
		Strategy: &models.Strategy{
			Name:               best.strategy.Name,
			PSM:                best.psm,
			Threshold:          best.strategy.Threshold,
			Deskew:             best.strategy.Deskew,
			MedianSize:         best.strategy.MedianSize,
			AutocontrastCutoff: best.strategy.AutocontrastCutoff,
			Candidates:         len(candidates),
		},
	}
}

// scoreWords is the mean confidence of words at or above the selection
// floor; zero when nothing clears it.
func (e *Engine) scoreWords(words []Word) float64 {
	var sum float64
	var n int
	for _, w := range words {
		if w.Confidence >= e.opts.SelectionMinConf {
			sum += w.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func joinWords(words []Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, w.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
