// Package extractor drives a full PDF extraction: validation, native text,
// OCR of the pages that need it, quality gating with bounded retries, and
// enrichment handoff.
package extractor

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/internal/ocr"
	"github.com/feichai0017/pdf-extractor/internal/pdfx"
	"github.com/feichai0017/pdf-extractor/internal/quality"
	"github.com/feichai0017/pdf-extractor/internal/render"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

const (
	DefaultDPI       = 600
	DefaultBatchSize = 5
)

// Options configures one extraction request.
type Options struct {
	DPI      int
	MaxPages int
	ForceOCR bool

	StrictQuality  bool
	QualityRetries int
	QualityTarget  int

	// Language is a profile name or tesseract code (e.g. "kannada", "kan").
	Language string

	// BatchSize bounds how many pages are rendered and OCRed at once.
	// Zero renders each contiguous run of required pages in one call.
	BatchSize int

	ExtractFigures bool

	OCRWorkers int
}

func (o Options) withDefaults() Options {
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.QualityRetries < 0 {
		o.QualityRetries = quality.DefaultRetries
	}
	if o.Language == "" {
		o.Language = "eng"
	}
	return o
}

// Enricher is a post-extraction provider (figures, tables, equations,
// diagram descriptions). Failures degrade to warnings on the result.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, pdfPath string, result *models.ExtractionResult) error
}

// Extractor orchestrates the pipeline. Construct once, share across
// requests; every dependency is safe for concurrent use.
type Extractor struct {
	reader    *pdfx.Reader
	renderer  render.Renderer
	backend   ocr.Backend
	enrichers []Enricher
	logger    logger.Logger
}

func New(reader *pdfx.Reader, renderer render.Renderer, backend ocr.Backend, log logger.Logger, enrichers ...Enricher) *Extractor {
	return &Extractor{
		reader:    reader,
		renderer:  renderer,
		backend:   backend,
		enrichers: enrichers,
		logger:    log,
	}
}

// Extract runs the full pipeline for one PDF.
func (e *Extractor) Extract(ctx context.Context, pdfPath string, opts Options) (*models.ExtractionResult, error) {
	opts = opts.withDefaults()

	validated, err := pdfx.ValidatePath(pdfPath)
	if err != nil {
		return nil, wrapError(KindPdfValidation, err, "invalid pdf input")
	}
	if missing := render.EnsureBinaries("pdftoppm"); len(missing) > 0 {
		return nil, newError(KindMissingDependency, "required binaries not found: %s", strings.Join(missing, ", "))
	}

	pageCount, err := e.reader.PageCount(validated)
	if err != nil {
		return nil, wrapError(KindPdfProcessing, err, "failed to read pdf metadata")
	}
	if opts.MaxPages > 0 && pageCount > opts.MaxPages {
		return nil, newError(KindMaxPagesExceeded, "pdf has %d pages, limit is %d", pageCount, opts.MaxPages)
	}

	profile := ocr.ResolveLanguage(opts.Language)
	log := e.logger.With(
		logger.String("pdf", validated),
		logger.Int("pages", pageCount),
		logger.String("language", profile.ID),
	)
	log.Info("extraction started")

	nativeFullText, nativePages, nativeErr := e.reader.ExtractNativeText(ctx, validated)
	nativeFailed := nativeErr != nil
	if nativeFailed {
		log.Warn("native text extraction failed, all pages go to OCR", logger.Error(nativeErr))
	}

	nativeByPage := make(map[int]string, len(nativePages))
	for _, page := range nativePages {
		nativeByPage[page.PageNumber] = page.Text
	}

	// OCR need is page-local: absent or short native text, or forced.
	ocrRequired := make(map[int]bool)
	for pageNumber := 1; pageNumber <= pageCount; pageNumber++ {
		if nativeFailed || opts.ForceOCR ||
			len(strings.TrimSpace(nativeByPage[pageNumber])) < quality.MinNativeChars {
			ocrRequired[pageNumber] = true
		}
	}

	var engine *ocr.Engine
	ocrPages := make(map[int]*ocr.PageResult)
	if len(ocrRequired) > 0 {
		engine, err = ocr.NewEngine(e.backend, e.logger, &ocr.Options{
			Language: profile.TesseractLang,
			Workers:  opts.OCRWorkers,
		})
		if err != nil {
			return nil, wrapError(KindPdfProcessing, err, "failed to build ocr engine")
		}
		if err := e.runOCR(ctx, validated, engine, ocrRequired, ocrPages, opts); err != nil {
			return nil, err
		}
	}

	if len(ocrRequired) == 0 && nativeFailed {
		return nil, newError(KindPdfProcessing, "failed to extract pdf with native reader and ocr")
	}
	if len(ocrRequired) > 0 && len(ocrPages) == 0 {
		return nil, newError(KindPdfProcessing, "ocr did not return any pages")
	}

	preferNative := opts.ForceOCR && !nativeFailed
	pages := assemblePages(pageCount, nativeByPage, ocrPages, ocrRequired, preferNative, nil)
	fullText := joinPageText(pages)
	if len(ocrRequired) == 0 {
		fullText = strings.TrimSpace(nativeFullText)
	}
	if fullText == "" {
		return nil, newError(KindEmptyContent, "extracted content is empty")
	}

	gateEngine := quality.NewEngine(quality.Config{
		QualityTarget: opts.QualityTarget,
		QualityPreset: profile.QualityPreset,
		Strict:        opts.StrictQuality,
	}, e.logger)

	retryAttempts := make(map[int]int)
	if len(ocrRequired) > 0 && engine != nil {
		e.qualityLoop(ctx, validated, engine, gateEngine, nativeByPage, ocrPages, ocrRequired, retryAttempts, pageCount, opts)
	}

	gates := make([]models.QualityGate, 0, pageCount)
	selectedSources := make(map[int]models.PageSource, pageCount)
	for pageNumber := 1; pageNumber <= pageCount; pageNumber++ {
		gate := gateEngine.EvaluatePage(
			pageNumber,
			nativeByPage[pageNumber],
			toGateInput(ocrPages[pageNumber]),
			retryAttempts[pageNumber],
		)
		gates = append(gates, gate)
		selectedSources[pageNumber] = gate.SelectedSource
	}
	qualityResult := gateEngine.Summarize(gates)

	pages = assemblePages(pageCount, nativeByPage, ocrPages, ocrRequired, preferNative, selectedSources)
	if len(ocrRequired) > 0 {
		fullText = joinPageText(pages)
	}

	if dims, err := e.reader.PageDimensions(validated); err != nil {
		log.Warn("failed to read page dimensions", logger.Error(err))
	} else {
		for i := range pages {
			if d, ok := dims[pages[i].PageNumber]; ok {
				pages[i].Width = d.Width
				pages[i].Height = d.Height
			}
		}
	}

	method, engineName := methodFor(len(ocrRequired) > 0, nativeFailed, e.backend.Name())
	result := &models.ExtractionResult{
		DocID:      uuid.New().String(),
		Filename:   baseName(validated),
		IngestedAt: time.Now().UTC(),
		Extraction: models.ExtractionMetadata{
			Method:     method,
			PagesTotal: pageCount,
			Engine:     engineName,
		},
		Pages:    pages,
		FullText: fullText,
		Stats:    calculateStats(pages),
		Quality:  &qualityResult,
	}
	if method != "native" {
		result.Extraction.DPI = opts.DPI
	}

	e.runEnrichers(ctx, validated, result, opts)

	log.Info("extraction finished",
		logger.String("docId", result.DocID),
		logger.String("method", method),
		logger.String("quality", string(qualityResult.Status)),
	)
	return result, nil
}

// runOCR renders and OCRs every required page in bounded batches, so
// peak memory never holds more than a batch of page images.
func (e *Extractor) runOCR(ctx context.Context, pdfPath string, engine *ocr.Engine, required map[int]bool, out map[int]*ocr.PageResult, opts Options) error {
	if e.backend.Name() == "tesseract" {
		if missing := render.EnsureBinaries("tesseract"); len(missing) > 0 {
			return newError(KindMissingDependency, "required binaries not found: %s", strings.Join(missing, ", "))
		}
	}

	for _, run := range contiguousRuns(required) {
		batchSize := opts.BatchSize
		if batchSize <= 0 {
			batchSize = run.last - run.first + 1
		}
		for first := run.first; first <= run.last; first += batchSize {
			if err := ctx.Err(); err != nil {
				return wrapError(KindPdfProcessing, err, "extraction cancelled")
			}
			last := min(first+batchSize-1, run.last)

			images, err := e.renderer.Render(ctx, pdfPath, opts.DPI, first, last)
			if err != nil {
				return wrapError(KindPdfProcessing, err, "failed to render pages %d-%d", first, last)
			}
			results, err := engine.ProcessPages(ctx, first, images)
			if err != nil {
				return wrapError(KindPdfProcessing, err, "ocr failed for pages %d-%d", first, last)
			}
			for _, result := range results {
				out[result.PageNumber] = result
			}
		}
	}
	return nil
}

// qualityLoop re-OCRs failing pages with the deterministic retry variants
// until every gated page approves or the retry budget runs out. A retry
// result replaces the current one only when its confidence score is not
// worse, so a bad retry cannot regress an already-decent page.
func (e *Extractor) qualityLoop(
	ctx context.Context,
	pdfPath string,
	engine *ocr.Engine,
	gateEngine *quality.Engine,
	nativeByPage map[int]string,
	ocrPages map[int]*ocr.PageResult,
	required map[int]bool,
	retryAttempts map[int]int,
	pageCount int,
	opts Options,
) {
	for attempt := 0; attempt < opts.QualityRetries; attempt++ {
		var failures []int
		for pageNumber := 1; pageNumber <= pageCount; pageNumber++ {
			gate := gateEngine.EvaluatePage(
				pageNumber,
				nativeByPage[pageNumber],
				toGateInput(ocrPages[pageNumber]),
				retryAttempts[pageNumber],
			)
			if gate.Status != models.StatusApproved && required[pageNumber] {
				failures = append(failures, pageNumber)
			}
		}
		if len(failures) == 0 {
			return
		}

		for _, pageNumber := range failures {
			if ctx.Err() != nil {
				return
			}
			result, err := e.retryPage(ctx, pdfPath, engine, pageNumber, attempt)
			if err != nil {
				e.logger.Warn("page retry failed",
					logger.Int("page", pageNumber),
					logger.Int("attempt", attempt+1),
					logger.Error(err),
				)
				retryAttempts[pageNumber]++
				continue
			}
			if scoreTokens(result.Tokens) >= scoreTokens(currentTokens(ocrPages[pageNumber])) {
				ocrPages[pageNumber] = result
			}
			retryAttempts[pageNumber]++
		}
	}
}

func (e *Extractor) retryPage(ctx context.Context, pdfPath string, engine *ocr.Engine, pageNumber, attempt int) (*ocr.PageResult, error) {
	images, err := e.renderer.Render(ctx, pdfPath, engine.RetryDPI(attempt), pageNumber, pageNumber)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, errors.New("renderer returned no image for page")
	}
	return engine.RetryPage(ctx, pageNumber, attempt, images[0])
}

// runEnrichers invokes every provider, recording failures as warnings.
// Enrichment never aborts extraction.
func (e *Extractor) runEnrichers(ctx context.Context, pdfPath string, result *models.ExtractionResult, opts Options) {
	for _, enricher := range e.enrichers {
		if !opts.ExtractFigures && enricher.Name() == "figures" {
			continue
		}
		if err := enricher.Enrich(ctx, pdfPath, result); err != nil {
			e.logger.Warn("enrichment provider failed",
				logger.String("provider", enricher.Name()),
				logger.Error(err),
			)
			result.Warnings = append(result.Warnings,
				enricher.Name()+" enrichment failed: "+err.Error())
		}
	}
}

// assemblePages builds the final ordered page list. Deterministic given
// the same inputs: running it twice with no new retries yields identical
// text and source selection.
func assemblePages(
	pageCount int,
	nativeByPage map[int]string,
	ocrPages map[int]*ocr.PageResult,
	ocrUsed map[int]bool,
	preferNative bool,
	selectedSources map[int]models.PageSource,
) []models.Page {
	pages := make([]models.Page, 0, pageCount)
	for pageNumber := 1; pageNumber <= pageCount; pageNumber++ {
		nativeText := nativeByPage[pageNumber]
		if !ocrUsed[pageNumber] {
			pages = append(pages, models.Page{
				PageNumber: pageNumber,
				Source:     models.SourceNative,
				Text:       nativeText,
				Tokens:     []models.Token{},
			})
			continue
		}

		var selected models.PageSource
		if selectedSources != nil {
			selected = selectedSources[pageNumber]
		}
		useNative := selected == models.SourceNative ||
			(preferNative && strings.TrimSpace(nativeText) != "")

		page := models.Page{
			PageNumber: pageNumber,
			Source:     models.SourceOCR,
			Tokens:     []models.Token{},
		}
		if useNative {
			page.Source = models.SourceNative
			page.Text = nativeText
		} else if result := ocrPages[pageNumber]; result != nil {
			page.Text = result.Text
			page.Tokens = append(page.Tokens, result.Tokens...)
		}
		pages = append(pages, page)
	}
	return pages
}

func calculateStats(pages []models.Page) models.Stats {
	var total int
	var confSum float64
	var confCount int
	for _, page := range pages {
		total += len(page.Tokens)
		for _, token := range page.Tokens {
			if token.Confidence >= quality.LowConfFloor {
				confSum += token.Confidence
				confCount++
			}
		}
	}
	stats := models.Stats{TotalTokens: total}
	if confCount > 0 {
		avg := confSum / float64(confCount)
		stats.AvgConfidence = &avg
	}
	return stats
}

// scoreTokens mirrors the gate's confidence metric so retry comparisons
// and gate results agree about which reading is better.
func scoreTokens(tokens []models.Token) float64 {
	var sum float64
	var n int
	for _, token := range tokens {
		if token.Confidence >= quality.LowConfFloor {
			sum += token.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func currentTokens(result *ocr.PageResult) []models.Token {
	if result == nil {
		return nil
	}
	return result.Tokens
}

func toGateInput(result *ocr.PageResult) *quality.OCRPage {
	if result == nil {
		return nil
	}
	return &quality.OCRPage{
		Text:           result.Text,
		Tokens:         result.Tokens,
		PassSimilarity: result.PassSimilarity,
		Layout:         result.Layout,
		Strategy:       result.Strategy,
	}
}

func joinPageText(pages []models.Page) string {
	var parts []string
	for _, page := range pages {
		if trimmed := strings.TrimSpace(page.Text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func methodFor(ocrUsed, nativeFailed bool, backendName string) (method, engine string) {
	switch {
	case !ocrUsed:
		return "native", "native"
	case nativeFailed:
		return "ocr", backendName
	default:
		return "hybrid", "native+" + backendName
	}
}

func baseName(path string) string {
	return filepath.Base(path)
}

type pageRun struct {
	first, last int
}

// contiguousRuns groups required page numbers into ascending inclusive
// ranges so the renderer is called once per run instead of once per page.
func contiguousRuns(required map[int]bool) []pageRun {
	var pages []int
	for pageNumber := range required {
		pages = append(pages, pageNumber)
	}
	if len(pages) == 0 {
		return nil
	}
	sort.Ints(pages)

	runs := []pageRun{{first: pages[0], last: pages[0]}}
	for _, pageNumber := range pages[1:] {
		if pageNumber == runs[len(runs)-1].last+1 {
			runs[len(runs)-1].last = pageNumber
			continue
		}
		runs = append(runs, pageRun{first: pageNumber, last: pageNumber})
	}
	return runs
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
