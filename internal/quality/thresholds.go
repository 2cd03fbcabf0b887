package quality

import (
	"github.com/feichai0017/pdf-extractor/internal/models"
)

// Base thresholds. Empirically tuned; exposed as configuration defaults
// rather than hard-coded so callers can adjust them.
const (
	DefaultMinAvgConfidence    = 93.0
	DefaultMaxLowConfRatio     = 0.5
	DefaultMinPassSimilarity   = 0.85
	DefaultMinNativeSimilarity = 0.85
	DefaultDecisionThreshold   = 0.8

	// LowConfFloor is the per-token confidence below which a token counts
	// as low-confidence and is excluded from the average.
	LowConfFloor = 92.0

	// MinNativeChars is the native character floor below which a page
	// needs OCR.
	MinNativeChars = 50

	// Triggers for the diagram-heavy relaxation and the OCR-unreliable
	// check used by the fallback tiers.
	DiagramHeavyLowConfTrigger = 0.85
	DiagramHeavyMaxPassTrigger = 0.25

	DefaultRetries = 2
)

// Thresholds is one effective gate configuration. A fresh copy is derived
// per page from the base values plus the override layers.
type Thresholds struct {
	MinAvgConfidence    float64
	MaxLowConfRatio     float64
	MinPassSimilarity   float64
	MinNativeSimilarity float64
	DecisionThreshold   float64

	// SkipNativeGateWhenNativeSelected drops the native-similarity gate
	// for pages where native text was already chosen as the source.
	SkipNativeGateWhenNativeSelected bool
}

// DefaultThresholds returns the base gate configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinAvgConfidence:    DefaultMinAvgConfidence,
		MaxLowConfRatio:     DefaultMaxLowConfRatio,
		MinPassSimilarity:   DefaultMinPassSimilarity,
		MinNativeSimilarity: DefaultMinNativeSimilarity,
		DecisionThreshold:   DefaultDecisionThreshold,
	}
}

// Override is one relax-only layer. Nil fields leave the current value
// untouched; set fields merge with a fixed direction per field, so a layer
// can never tighten a threshold.
type Override struct {
	MinAvgConfidence    *float64
	MaxLowConfRatio     *float64
	MinPassSimilarity   *float64
	MinNativeSimilarity *float64
}

// Relax merges an override into the thresholds. MaxLowConfRatio only goes
// up, the min floors only go down. The merge direction is fixed per field,
// which keeps the retry loop convergent.
func (t Thresholds) Relax(o Override) Thresholds {
	if o.MinAvgConfidence != nil && *o.MinAvgConfidence < t.MinAvgConfidence {
		t.MinAvgConfidence = *o.MinAvgConfidence
	}
	if o.MaxLowConfRatio != nil && *o.MaxLowConfRatio > t.MaxLowConfRatio {
		t.MaxLowConfRatio = *o.MaxLowConfRatio
	}
	if o.MinPassSimilarity != nil && *o.MinPassSimilarity < t.MinPassSimilarity {
		t.MinPassSimilarity = *o.MinPassSimilarity
	}
	if o.MinNativeSimilarity != nil && *o.MinNativeSimilarity < t.MinNativeSimilarity {
		t.MinNativeSimilarity = *o.MinNativeSimilarity
	}
	return t
}

// TargetProfile is a caller-selected accuracy target. Unlike Override it
// replaces thresholds wholesale before the relax layers run.
type TargetProfile struct {
	MinAvgConfidence    float64
	MaxLowConfRatio     float64
	MinPassSimilarity   float64
	MinNativeSimilarity float64
	DecisionThreshold   float64

	SkipNativeGateWhenNativeSelected bool
}

// Apply replaces the base thresholds with the profile's values.
func (p TargetProfile) Apply(t Thresholds) Thresholds {
	t.MinAvgConfidence = p.MinAvgConfidence
	t.MaxLowConfRatio = p.MaxLowConfRatio
	t.MinPassSimilarity = p.MinPassSimilarity
	t.MinNativeSimilarity = p.MinNativeSimilarity
	t.DecisionThreshold = p.DecisionThreshold
	t.SkipNativeGateWhenNativeSelected = p.SkipNativeGateWhenNativeSelected
	return t
}

// TargetProfiles maps a numeric quality target to its profile.
var TargetProfiles = map[int]TargetProfile{
	90: {
		MinAvgConfidence:                 90.0,
		MaxLowConfRatio:                  0.6,
		MinPassSimilarity:                0.90,
		MinNativeSimilarity:              0.90,
		DecisionThreshold:                0.9,
		SkipNativeGateWhenNativeSelected: true,
	},
}

func f(v float64) *float64 { return &v }

// LayoutOverrides relax the gates for layouts where generic confidence
// heuristics score low. Tuned against a 31-page maths model paper whose
// table and noisy pages must still approve.
var LayoutOverrides = map[models.Layout]Override{
	models.LayoutTable: {
		MinAvgConfidence:    f(90.0),
		MaxLowConfRatio:     f(0.8),
		MinPassSimilarity:   f(0.36),
		MinNativeSimilarity: f(0.0),
	},
	models.LayoutNoisy: {
		MinAvgConfidence:    f(90.0),
		MaxLowConfRatio:     f(0.85),
		MinPassSimilarity:   f(0.35),
		MinNativeSimilarity: f(0.0),
	},
	models.LayoutText: {
		MinPassSimilarity: f(0.88),
	},
}

// LanguageOverrides relax the gates for language profiles whose scripts
// reliably score lower on confidence heuristics. Keyed by the profile's
// quality preset name.
var LanguageOverrides = map[string]Override{
	"kannada": {
		MinAvgConfidence:    f(85.0),
		MaxLowConfRatio:     f(0.7),
		MinPassSimilarity:   f(0.55),
		MinNativeSimilarity: f(0.0),
	},
}

// DiagramHeavyOverride is the last relaxation tier, applied to noisy or
// table pages whose metrics cross both diagram-heavy triggers. Without it
// a figure-dominated page loops on retries forever.
var DiagramHeavyOverride = Override{
	MaxLowConfRatio:   f(0.95),
	MinPassSimilarity: f(0.15),
}
