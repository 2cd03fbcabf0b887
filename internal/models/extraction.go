package models

import (
	"time"
)

// PageSource identifies where a page's text came from.
type PageSource string

const (
	SourceNative PageSource = "native"
	SourceOCR    PageSource = "ocr"
)

// Layout is the heuristic page category driving OCR presets.
type Layout string

const (
	LayoutText  Layout = "text"
	LayoutTable Layout = "table"
	LayoutNoisy Layout = "noisy"
)

// BBox is a token bounding box in pixels.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Token is one OCR word with position and confidence (0-100).
type Token struct {
	Text       string  `json:"text"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// LayoutBlock is a positioned text or image span from the native reader.
type LayoutBlock struct {
	Type string  `json:"type"`
	BBox BBox    `json:"bbox"`
	Text string  `json:"text,omitempty"`
	Font string  `json:"font,omitempty"`
	Size float64 `json:"size,omitempty"`
}

// Figure is an extracted figure region on a page.
type Figure struct {
	PageNumber int     `json:"pageNumber"`
	BBox       BBox    `json:"bbox"`
	Area       float64 `json:"area"`
	// Description is filled by the VLM enrichment provider when enabled.
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// Page is one finished page of an extraction result.
//
// Invariant: Tokens is non-empty only when Source == SourceOCR.
type Page struct {
	PageNumber int        `json:"pageNumber"`
	Source     PageSource `json:"source"`
	Text       string     `json:"text"`
	Tokens     []Token    `json:"tokens"`
	Width      float64    `json:"width,omitempty"`
	Height     float64    `json:"height,omitempty"`

	// Auxiliary arrays populated by enrichment providers.
	Figures []Figure      `json:"figures,omitempty"`
	Tables  []string      `json:"tables,omitempty"`
	Blocks  []LayoutBlock `json:"blocks,omitempty"`
}

// GateStatus is the pass/fail state of a quality gate.
type GateStatus string

const (
	StatusApproved    GateStatus = "approved"
	StatusNeedsReview GateStatus = "needs_review"
)

// PageType classifies how a page was accepted.
type PageType string

const (
	PageTypeText             PageType = "text"
	PageTypeNativeSufficient PageType = "native_sufficient"
	PageTypeNativeFallback   PageType = "native_fallback"
	PageTypeFigure           PageType = "figure"
)

// Strategy records which preprocessing/PSM combination won a page,
// for debuggability and retry tuning.
type Strategy struct {
	Name               string `json:"name"`
	PSM                int    `json:"psm"`
	Threshold          int    `json:"threshold"`
	Deskew             bool   `json:"deskew"`
	MedianSize         int    `json:"medianSize"`
	AutocontrastCutoff int    `json:"autocontrastCutoff"`
	DPI                int    `json:"dpi,omitempty"`
	Attempt            int    `json:"attempt,omitempty"`
	Candidates         int    `json:"candidates,omitempty"`
	TableCells         int    `json:"tableCells,omitempty"`
}

// QualityGate is the per-page quality decision plus metrics.
type QualityGate struct {
	PageNumber         int        `json:"pageNumber"`
	Status             GateStatus `json:"status"`
	PageType           PageType   `json:"pageType"`
	Layout             Layout     `json:"layout,omitempty"`
	AvgConfidence      *float64   `json:"avgConfidence,omitempty"`
	LowConfRatio       *float64   `json:"lowConfRatio,omitempty"`
	DualPassSimilarity *float64   `json:"dualPassSimilarity,omitempty"`
	NativeSimilarity   *float64   `json:"nativeSimilarity,omitempty"`
	AccuracyScore      *float64   `json:"accuracyScore,omitempty"`
	FailedGates        []string   `json:"failedGates"`
	RetryAttempts      int        `json:"retryAttempts"`
	BestStrategy       *Strategy  `json:"bestStrategy,omitempty"`
	Decision           string     `json:"decision,omitempty"`
	SelectedSource     PageSource `json:"selectedSource,omitempty"`
}

// QualityResult is the document-level quality summary. It carries the
// effective thresholds so approvals are auditable after overrides.
type QualityResult struct {
	Status                GateStatus    `json:"status"`
	Strict                bool          `json:"strict"`
	MinAvgConfidence      float64       `json:"minAvgConfidence"`
	MaxLowConfRatio       float64       `json:"maxLowConfRatio"`
	MinDualPassSimilarity float64       `json:"minDualPassSimilarity"`
	MinNativeSimilarity   float64       `json:"minNativeSimilarity"`
	Pages                 []QualityGate `json:"pages"`
}

// Stats aggregates token counts over a finished result.
type Stats struct {
	TotalTokens   int      `json:"totalTokens"`
	AvgConfidence *float64 `json:"avgConfidence,omitempty"`
}

// ExtractionMetadata describes how a document was processed.
type ExtractionMetadata struct {
	Method     string `json:"method"`
	PagesTotal int    `json:"pagesTotal"`
	DPI        int    `json:"dpi,omitempty"`
	Engine     string `json:"engine"`
}

// ExtractionResult is the canonical output payload.
type ExtractionResult struct {
	DocID      string             `json:"docId"`
	Filename   string             `json:"filename"`
	IngestedAt time.Time          `json:"ingestedAt"`
	Extraction ExtractionMetadata `json:"extraction"`
	Pages      []Page             `json:"pages"`
	FullText   string             `json:"fullText"`
	Stats      Stats              `json:"stats"`
	Quality    *QualityResult     `json:"quality,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// ConsolidatedReport is a compact quality view over a finished result.
type ConsolidatedReport struct {
	DocID              string        `json:"docId"`
	Filename           string        `json:"filename"`
	PagesTotal         int           `json:"pagesTotal"`
	Status             GateStatus    `json:"status"`
	ApprovedCount      int           `json:"approvedCount"`
	NeedsReviewCount   int           `json:"needsReviewCount"`
	ApprovedPages      []int         `json:"approvedPages"`
	NeedsReviewPages   []QualityGate `json:"needsReviewPages"`
	HighQualityFigures []Figure      `json:"highQualityFigures,omitempty"`
	FullTextPreview    string        `json:"fullTextPreview,omitempty"`
}
