package quality

import (
	"strings"
	"unicode"

	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/internal/textutil"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

// OCRPage is the OCR-side input to a gate evaluation: the winning ensemble
// reading for one page, or nil when the page never went through OCR.
type OCRPage struct {
	Text           string
	Tokens         []models.Token
	PassSimilarity *float64
	Layout         models.Layout
	Strategy       *models.Strategy
}

// Config selects the gate configuration for one extraction.
type Config struct {
	Base Thresholds
	// QualityTarget selects a TargetProfile; zero means base thresholds.
	QualityTarget int
	// QualityPreset is the language profile's preset name; presets listed
	// in LanguageOverrides relax the gates further.
	QualityPreset string
	Strict        bool
}

// Engine evaluates pages against the layered thresholds.
type Engine struct {
	base   Thresholds
	preset string
	strict bool
	logger logger.Logger
}

func NewEngine(cfg Config, log logger.Logger) *Engine {
	base := cfg.Base
	if base == (Thresholds{}) {
		base = DefaultThresholds()
	}
	if profile, ok := TargetProfiles[cfg.QualityTarget]; ok {
		base = profile.Apply(base)
	}
	return &Engine{
		base:   base,
		preset: cfg.QualityPreset,
		strict: cfg.Strict,
		logger: log,
	}
}

// EvaluatePage gates one page. The fallback tiers run before the numeric
// gates, in priority order: sane selected native text approves outright,
// unreliable OCR falls back to sane native text, unreliable OCR with
// little or no native text approves as a figure page, and everything
// else runs the full numeric gate.
func (e *Engine) EvaluatePage(pageNumber int, nativeText string, page *OCRPage, retryAttempts int) models.QualityGate {
	var (
		tokens         []models.Token
		ocrText        string
		layout         models.Layout
		strategy       *models.Strategy
		passSimilarity *float64
	)
	if page != nil {
		tokens = page.Tokens
		ocrText = page.Text
		layout = page.Layout
		strategy = page.Strategy
		passSimilarity = page.PassSimilarity
	}

	avgConf, lowConfRatio := confidenceMetrics(tokens)

	var nativeSimilarity *float64
	if strings.TrimSpace(nativeText) != "" && strings.TrimSpace(ocrText) != "" {
		if ratio, ok := textutil.SimilarityRatio(nativeText, ocrText); ok {
			nativeSimilarity = &ratio
		}
	}

	var accuracyScore *float64
	switch {
	case nativeSimilarity != nil:
		accuracyScore = nativeSimilarity
	case avgConf != nil:
		score := *avgConf / 100
		accuracyScore = &score
	}

	decision := "A"
	selectedSource := models.SourceOCR
	if accuracyScore != nil && *accuracyScore >= e.base.DecisionThreshold {
		decision = "B"
	} else if strings.TrimSpace(nativeText) != "" {
		selectedSource = models.SourceNative
	}

	gate := models.QualityGate{
		PageNumber:         pageNumber,
		Layout:             layout,
		AvgConfidence:      avgConf,
		LowConfRatio:       lowConfRatio,
		DualPassSimilarity: passSimilarity,
		NativeSimilarity:   nativeSimilarity,
		AccuracyScore:      accuracyScore,
		FailedGates:        []string{},
		RetryAttempts:      retryAttempts,
		BestStrategy:       strategy,
		Decision:           decision,
		SelectedSource:     selectedSource,
	}

	nativeSane := NativeTextSane(nativeText)
	unreliable := ocrUnreliable(tokens, lowConfRatio, passSimilarity)

	switch {
	case nativeSane && selectedSource == models.SourceNative:
		// Well-formed native text chosen as the source: OCR metrics are
		// irrelevant, ship the native text.
		gate.Status = models.StatusApproved
		gate.PageType = models.PageTypeNativeSufficient
		return gate

	case unreliable && nativeSane:
		gate.Status = models.StatusApproved
		gate.PageType = models.PageTypeNativeFallback
		gate.SelectedSource = models.SourceNative
		return gate

	case unreliable && len([]rune(strings.TrimSpace(nativeText))) < MinNativeChars:
		// No text source exists to judge; the page is presumed
		// image-dominated. Intentional acceptance, not a failure.
		// Substantial-but-garbled native text is a different situation
		// and runs the numeric gates below.
		gate.Status = models.StatusApproved
		gate.PageType = models.PageTypeFigure
		return gate
	}

	thresholds := e.effectiveFor(layout, lowConfRatio, passSimilarity)

	var failed []string
	if avgConf == nil || *avgConf < thresholds.MinAvgConfidence {
		failed = append(failed, "avg_confidence")
	}
	if lowConfRatio == nil || *lowConfRatio > thresholds.MaxLowConfRatio {
		failed = append(failed, "low_conf_ratio")
	}
	if passSimilarity == nil || *passSimilarity < thresholds.MinPassSimilarity {
		failed = append(failed, "dual_pass_similarity")
	}
	skipNative := thresholds.SkipNativeGateWhenNativeSelected && selectedSource == models.SourceNative
	if !skipNative && nativeSimilarity != nil && thresholds.MinNativeSimilarity > 0 &&
		*nativeSimilarity < thresholds.MinNativeSimilarity {
		failed = append(failed, "native_similarity")
	}

	gate.PageType = models.PageTypeText
	if len(failed) == 0 {
		gate.Status = models.StatusApproved
	} else {
		gate.Status = models.StatusNeedsReview
		gate.FailedGates = failed
	}
	return gate
}

// Summarize rolls per-page gates up to the document level. The effective
// base thresholds (post target profile, pre layout) are carried for audit.
func (e *Engine) Summarize(pages []models.QualityGate) models.QualityResult {
	status := models.StatusApproved
	for _, page := range pages {
		if page.Status != models.StatusApproved {
			status = models.StatusNeedsReview
			break
		}
	}
	return models.QualityResult{
		Status:                status,
		Strict:                e.strict,
		MinAvgConfidence:      e.base.MinAvgConfidence,
		MaxLowConfRatio:       e.base.MaxLowConfRatio,
		MinDualPassSimilarity: e.base.MinPassSimilarity,
		MinNativeSimilarity:   e.base.MinNativeSimilarity,
		Pages:                 pages,
	}
}

// effectiveFor derives the thresholds for one page: base, then the layout
// layer, then the language layer, then the diagram-heavy layer when both
// triggers fire. Every layer is relax-only.
func (e *Engine) effectiveFor(layout models.Layout, lowConfRatio, passSimilarity *float64) Thresholds {
	thresholds := e.base

	// Missing layout (e.g. after a retry that skipped classification)
	// gets the text relaxation.
	layoutForGates := layout
	if layoutForGates == "" {
		layoutForGates = models.LayoutText
	}
	if override, ok := LayoutOverrides[layoutForGates]; ok {
		thresholds = thresholds.Relax(override)
	}

	if override, ok := LanguageOverrides[e.preset]; ok {
		thresholds = thresholds.Relax(override)
	}

	if (layoutForGates == models.LayoutNoisy || layoutForGates == models.LayoutTable) &&
		lowConfRatio != nil && passSimilarity != nil &&
		*lowConfRatio > DiagramHeavyLowConfTrigger &&
		*passSimilarity < DiagramHeavyMaxPassTrigger {
		thresholds = thresholds.Relax(DiagramHeavyOverride)
	}

	return thresholds
}

// confidenceMetrics computes the mean confidence of tokens at or above the
// low-confidence floor, and the fraction below it. Both are nil when the
// page has no tokens at all.
func confidenceMetrics(tokens []models.Token) (avgConf, lowConfRatio *float64) {
	if len(tokens) == 0 {
		return nil, nil
	}
	var highSum float64
	var highCount int
	for _, token := range tokens {
		if token.Confidence >= LowConfFloor {
			highSum += token.Confidence
			highCount++
		}
	}
	if highCount > 0 {
		avg := highSum / float64(highCount)
		avgConf = &avg
	}
	ratio := float64(len(tokens)-highCount) / float64(len(tokens))
	lowConfRatio = &ratio
	return avgConf, lowConfRatio
}

// ocrUnreliable reports whether the OCR reading is unusable: no tokens at
// all, or metrics past both diagram-heavy triggers.
func ocrUnreliable(tokens []models.Token, lowConfRatio, passSimilarity *float64) bool {
	if len(tokens) == 0 {
		return true
	}
	return lowConfRatio != nil && passSimilarity != nil &&
		*lowConfRatio > DiagramHeavyLowConfTrigger &&
		*passSimilarity < DiagramHeavyMaxPassTrigger
}

const (
	saneMinWords      = 3
	saneMinAvgWordLen = 2.0
	saneMaxAvgWordLen = 20.0
	saneMinAlnumSpace = 0.8
)

// NativeTextSane reports whether native text is well-formed enough to ship
// without OCR corroboration: at least three words, a plausible average
// word length, and a high ratio of letters, digits, and spaces. Catches
// garbled embedded text from broken font encodings.
func NativeTextSane(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	words := strings.Fields(trimmed)
	if len(words) < saneMinWords {
		return false
	}

	var wordLen int
	for _, w := range words {
		wordLen += len([]rune(w))
	}
	avgWordLen := float64(wordLen) / float64(len(words))
	if avgWordLen < saneMinAvgWordLen || avgWordLen > saneMaxAvgWordLen {
		return false
	}

	var alnumSpace, total int
	for _, r := range trimmed {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			alnumSpace++
		}
	}
	return float64(alnumSpace)/float64(total) >= saneMinAlnumSpace
}
