package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

// TesseractBackend recognizes text with a local tesseract install via
// gosseract. A fresh client is created per call; gosseract clients are
// not safe for concurrent use.
type TesseractBackend struct {
	logger       logger.Logger
	tessdataPath string
}

func NewTesseractBackend(log logger.Logger, tessdataPath string) *TesseractBackend {
	return &TesseractBackend{
		logger:       log,
		tessdataPath: tessdataPath,
	}
}

func (b *TesseractBackend) Name() string { return "tesseract" }

func (b *TesseractBackend) Recognize(ctx context.Context, img image.Image, lang string, psm int) ([]Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if b.tessdataPath != "" {
		if err := client.SetTessdataPrefix(b.tessdataPath); err != nil {
			return nil, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("failed to get bounding boxes: %w", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" || box.Confidence < 0 {
			continue
		}
		words = append(words, Word{
			Text: text,
			BBox: models.BBox{
				X: box.Box.Min.X,
				Y: box.Box.Min.Y,
				W: box.Box.Dx(),
				H: box.Box.Dy(),
			},
			Confidence: box.Confidence,
		})
	}
	return words, nil
}
