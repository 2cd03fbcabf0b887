// Package ocr runs the multi-strategy OCR ensemble: layout classification,
// preprocessing variants, page-segmentation-mode candidates, and consensus
// selection across the resulting candidates.
package ocr

import (
	"context"
	"image"

	"github.com/feichai0017/pdf-extractor/internal/models"
)

// Word is one recognized word with pixel bounding box and 0-100 confidence.
type Word struct {
	Text       string
	BBox       models.BBox
	Confidence float64
}

// Backend is the OCR engine abstraction. Two engines live behind it:
// local tesseract (gosseract) and AWS Textract. psm is the tesseract
// page-segmentation-mode; backends without the concept ignore it.
type Backend interface {
	Name() string
	Recognize(ctx context.Context, img image.Image, lang string, psm int) ([]Word, error)
}

func toTokens(words []Word) []models.Token {
	tokens := make([]models.Token, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, models.Token{
			Text:       w.Text,
			BBox:       w.BBox,
			Confidence: w.Confidence,
		})
	}
	return tokens
}
