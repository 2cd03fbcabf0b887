package ocr

import "strings"

// LanguageProfile resolves a user-facing language name to the tesseract
// language code and the quality preset the gate engine keys its language
// overrides on.
type LanguageProfile struct {
	ID            string
	TesseractLang string
	QualityPreset string
}

var languageProfiles = map[string]LanguageProfile{
	"english": {ID: "english", TesseractLang: "eng", QualityPreset: "default"},
	"kannada": {ID: "kannada", TesseractLang: "kan", QualityPreset: "kannada"},
	"hindi":   {ID: "hindi", TesseractLang: "hin", QualityPreset: "default"},
	"tamil":   {ID: "tamil", TesseractLang: "tam", QualityPreset: "default"},
	"telugu":  {ID: "telugu", TesseractLang: "tel", QualityPreset: "default"},
}

var languageAliases = map[string]string{
	"eng": "english", "en": "english",
	"kan": "kannada", "kn": "kannada",
	"hin": "hindi", "hi": "hindi",
	"tam": "tamil", "ta": "tamil",
	"tel": "telugu", "te": "telugu",
}

// ResolveLanguage maps a language name or tesseract code to its profile.
// Unknown values fall back to english.
func ResolveLanguage(language string) LanguageProfile {
	normalized := strings.ToLower(strings.TrimSpace(language))
	if profile, ok := languageProfiles[normalized]; ok {
		return profile
	}
	if id, ok := languageAliases[normalized]; ok {
		return languageProfiles[id]
	}
	return languageProfiles["english"]
}
