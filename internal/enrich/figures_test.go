package enrich

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

// figurePage is a white page with one large black block in the middle.
func figurePage(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := h / 4; y < 3*h/4; y++ {
		for x := w / 4; x < 3*w/4; x++ {
			img.Pix[img.PixOffset(x, y)] = 0
		}
	}
	return img
}

func blankPage(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

type fakePageRenderer struct {
	pages []image.Image
}

func (f *fakePageRenderer) Render(_ context.Context, _ string, _, first, last int) ([]image.Image, error) {
	return f.pages[first-1 : last], nil
}

type fakeVLM struct {
	description string
	err         error
	calls       int
}

func (f *fakeVLM) AnalyzeImage(_ context.Context, _ image.Image, _ string) (string, error) {
	f.calls++
	return f.description, f.err
}

func TestDetectFigureRegions(t *testing.T) {
	regions := detectFigureRegions(figurePage(800, 1000))
	require.Len(t, regions, 1)

	region := regions[0]
	assert.InDelta(t, 400, region.Dx(), 20)
	assert.InDelta(t, 500, region.Dy(), 25)
	assert.InDelta(t, 200, region.Min.X, 20)
	assert.InDelta(t, 250, region.Min.Y, 25)
}

func TestDetectFigureRegionsBlankPage(t *testing.T) {
	assert.Empty(t, detectFigureRegions(blankPage(800, 1000)))
}

func TestEnrichAttachesFiguresWithDescriptions(t *testing.T) {
	renderer := &fakePageRenderer{pages: []image.Image{blankPage(800, 1000), figurePage(800, 1000)}}
	vlm := &fakeVLM{description: "a filled square diagram"}
	provider := NewFigureProvider(renderer, vlm, logger.NewTestLogger())
	assert.Equal(t, "figures", provider.Name())

	result := &models.ExtractionResult{
		Extraction: models.ExtractionMetadata{PagesTotal: 2},
		Pages: []models.Page{
			{PageNumber: 1},
			{PageNumber: 2},
		},
	}
	require.NoError(t, provider.Enrich(context.Background(), "doc.pdf", result))

	assert.Empty(t, result.Pages[0].Figures)
	require.Len(t, result.Pages[1].Figures, 1)
	figure := result.Pages[1].Figures[0]
	assert.Equal(t, 2, figure.PageNumber)
	assert.Equal(t, "a filled square diagram", figure.Description)
	assert.Greater(t, figure.Area, 0.0)
	assert.Equal(t, 1, vlm.calls)
}

func TestEnrichSurvivesVLMFailure(t *testing.T) {
	renderer := &fakePageRenderer{pages: []image.Image{figurePage(800, 1000)}}
	vlm := &fakeVLM{err: errors.New("model offline")}
	provider := NewFigureProvider(renderer, vlm, logger.NewTestLogger())

	result := &models.ExtractionResult{
		Extraction: models.ExtractionMetadata{PagesTotal: 1},
		Pages:      []models.Page{{PageNumber: 1}},
	}
	require.NoError(t, provider.Enrich(context.Background(), "doc.pdf", result))

	require.Len(t, result.Pages[0].Figures, 1)
	assert.Empty(t, result.Pages[0].Figures[0].Description)
}

func TestEnrichWithoutVLM(t *testing.T) {
	renderer := &fakePageRenderer{pages: []image.Image{figurePage(800, 1000)}}
	provider := NewFigureProvider(renderer, nil, logger.NewTestLogger())

	result := &models.ExtractionResult{
		Extraction: models.ExtractionMetadata{PagesTotal: 1},
		Pages:      []models.Page{{PageNumber: 1}},
	}
	require.NoError(t, provider.Enrich(context.Background(), "doc.pdf", result))
	require.Len(t, result.Pages[0].Figures, 1)
}
