// Package enrich holds post-extraction providers. Every provider is
// fault-isolated by the orchestrator: a failure becomes a warning on the
// result, never an aborted extraction.
package enrich

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/internal/render"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

const (
	// figureRenderDPI keeps figure detection cheap; region coordinates are
	// reported at this resolution.
	figureRenderDPI = 150

	// minFigureArea filters decorative marks, in pixels at figureRenderDPI.
	minFigureArea = 1000

	// Region-shape filters: a figure blob must span a reasonable fraction
	// of the page and not be a thin text line.
	minFigureWidthFrac  = 0.10
	minFigureHeightFrac = 0.05

	describePrompt = "Describe this figure in one short paragraph. " +
		"If it is a chart or diagram, state what it shows."
)

// VLM describes an image. *OllamaClient satisfies it; tests use a fake.
type VLM interface {
	AnalyzeImage(ctx context.Context, img image.Image, prompt string) (string, error)
}

// FigureProvider finds figure regions on rendered pages and, when a VLM
// is configured, attaches a generated description to each.
type FigureProvider struct {
	renderer render.Renderer
	vlm      VLM
	logger   logger.Logger
}

func NewFigureProvider(renderer render.Renderer, vlm VLM, log logger.Logger) *FigureProvider {
	return &FigureProvider{renderer: renderer, vlm: vlm, logger: log}
}

func (p *FigureProvider) Name() string { return "figures" }

// Enrich renders each page at a low DPI, detects figure-sized ink regions,
// and appends them to the matching result pages.
func (p *FigureProvider) Enrich(ctx context.Context, pdfPath string, result *models.ExtractionResult) error {
	images, err := p.renderer.Render(ctx, pdfPath, figureRenderDPI, 1, result.Extraction.PagesTotal)
	if err != nil {
		return fmt.Errorf("failed to render pages for figure detection: %w", err)
	}

	for i, pageImg := range images {
		if err := ctx.Err(); err != nil {
			return err
		}
		pageNumber := i + 1
		regions := detectFigureRegions(pageImg)
		if len(regions) == 0 {
			continue
		}

		figures := make([]models.Figure, 0, len(regions))
		for _, region := range regions {
			figure := models.Figure{
				PageNumber: pageNumber,
				BBox: models.BBox{
					X: region.Min.X,
					Y: region.Min.Y,
					W: region.Dx(),
					H: region.Dy(),
				},
				Area: float64(region.Dx() * region.Dy()),
			}
			if p.vlm != nil {
				crop := imaging.Crop(pageImg, region)
				description, err := p.vlm.AnalyzeImage(ctx, crop, describePrompt)
				if err != nil {
					p.logger.Warn("figure description failed",
						logger.Int("page", pageNumber),
						logger.Error(err),
					)
				} else {
					figure.Description = description
				}
			}
			figures = append(figures, figure)
		}

		for j := range result.Pages {
			if result.Pages[j].PageNumber == pageNumber {
				result.Pages[j].Figures = append(result.Pages[j].Figures, figures...)
				break
			}
		}
	}
	return nil
}

// detectFigureRegions finds connected ink blobs big enough to be figures.
// Runs on a downsampled copy; coordinates are scaled back to the input.
func detectFigureRegions(img image.Image) []image.Rectangle {
	const sampleWidth = 200

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil
	}
	small := imaging.Grayscale(imaging.Resize(img, sampleWidth, 0, imaging.Box))
	sb := small.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return nil
	}
	scaleX := float64(bounds.Dx()) / float64(sb.Dx())
	scaleY := float64(bounds.Dy()) / float64(sb.Dy())

	ink := make([]bool, sb.Dx()*sb.Dy())
	for y := 0; y < sb.Dy(); y++ {
		for x := 0; x < sb.Dx(); x++ {
			r, _, _, _ := small.At(sb.Min.X+x, sb.Min.Y+y).RGBA()
			ink[y*sb.Dx()+x] = uint8(r>>8) < 200
		}
	}

	visited := make([]bool, len(ink))
	var regions []image.Rectangle
	for y := 0; y < sb.Dy(); y++ {
		for x := 0; x < sb.Dx(); x++ {
			idx := y*sb.Dx() + x
			if !ink[idx] || visited[idx] {
				continue
			}
			blob := floodFill(ink, visited, sb.Dx(), sb.Dy(), x, y)

			if float64(blob.Dx()) < minFigureWidthFrac*float64(sb.Dx()) ||
				float64(blob.Dy()) < minFigureHeightFrac*float64(sb.Dy()) {
				continue
			}
			scaled := image.Rect(
				bounds.Min.X+int(float64(blob.Min.X)*scaleX),
				bounds.Min.Y+int(float64(blob.Min.Y)*scaleY),
				bounds.Min.X+int(float64(blob.Max.X)*scaleX),
				bounds.Min.Y+int(float64(blob.Max.Y)*scaleY),
			)
			if scaled.Dx()*scaled.Dy() < minFigureArea {
				continue
			}
			regions = append(regions, scaled)
		}
	}
	return regions
}

// floodFill walks one 4-connected blob and returns its bounding box.
func floodFill(ink, visited []bool, width, height, startX, startY int) image.Rectangle {
	stack := []image.Point{{X: startX, Y: startY}}
	visited[startY*width+startX] = true
	box := image.Rect(startX, startY, startX+1, startY+1)

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		box = box.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

		for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || nx >= width || ny < 0 || ny >= height {
				continue
			}
			idx := ny*width + nx
			if ink[idx] && !visited[idx] {
				visited[idx] = true
				stack = append(stack, image.Point{X: nx, Y: ny})
			}
		}
	}
	return box
}
