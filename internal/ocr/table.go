package ocr

import (
	"context"
	"image"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

const (
	minCellSize = 20
	maxLineGap  = 10
)

// removeRuleLines paints detected gridlines white so cell OCR does not
// read line fragments as characters.
func removeRuleLines(g *image.Gray, horizontal, vertical *image.Gray) *image.Gray {
	out := image.NewGray(g.Bounds())
	copy(out.Pix, g.Pix)
	for i := range out.Pix {
		if horizontal.Pix[i] > 0 || vertical.Pix[i] > 0 {
			out.Pix[i] = 255
		}
	}
	return out
}

// extractTableCells builds cell rectangles from the intersections of
// merged horizontal and vertical line positions. Cells smaller than
// minCellSize in either direction are discarded. Sorted top-down,
// left-to-right.
func extractTableCells(horizontal, vertical *image.Gray) []image.Rectangle {
	rowLines := mergePositions(linePositions(horizontal, true))
	colLines := mergePositions(linePositions(vertical, false))
	if len(rowLines) < 2 || len(colLines) < 2 {
		return nil
	}

	var cells []image.Rectangle
	for i := 0; i < len(rowLines)-1; i++ {
		for j := 0; j < len(colLines)-1; j++ {
			cell := image.Rect(colLines[j], rowLines[i], colLines[j+1], rowLines[i+1])
			if cell.Dx() < minCellSize || cell.Dy() < minCellSize {
				continue
			}
			cells = append(cells, cell)
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Min.Y != cells[j].Min.Y {
			return cells[i].Min.Y < cells[j].Min.Y
		}
		return cells[i].Min.X < cells[j].Min.X
	})
	return cells
}

// linePositions collects the row (or column) indices that carry line
// pixels in the mask.
func linePositions(mask *image.Gray, rows bool) []int {
	bounds := mask.Bounds()
	var positions []int
	if rows {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				if mask.GrayAt(x, y).Y > 0 {
					positions = append(positions, y)
					break
				}
			}
		}
	} else {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
				if mask.GrayAt(x, y).Y > 0 {
					positions = append(positions, x)
					break
				}
			}
		}
	}
	return positions
}

// mergePositions collapses adjacent indices (within maxLineGap) into a
// single line position.
func mergePositions(positions []int) []int {
	if len(positions) == 0 {
		return nil
	}
	merged := []int{positions[0]}
	for _, p := range positions[1:] {
		if p-merged[len(merged)-1] > maxLineGap {
			merged = append(merged, p)
		}
	}
	return merged
}

// ocrTableCells recognizes each cell independently (PSM 7, single line)
// and reassembles rows as tab-separated text. Cell tokens carry a zero
// confidence sentinel: no dual-pass scoring exists per cell.
func (e *Engine) ocrTableCells(ctx context.Context, gray *image.Gray, cells []image.Rectangle, lang string) (string, []models.Token, error) {
	var tokens []models.Token
	var rows [][]string
	var currentRow []string
	currentRowY := -1

	for _, cell := range cells {
		if currentRowY < 0 || abs(cell.Min.Y-currentRowY) > maxLineGap {
			if len(currentRow) > 0 {
				rows = append(rows, currentRow)
			}
			currentRow = nil
			currentRowY = cell.Min.Y
		}

		cellImg := imaging.Crop(gray, cell)
		words, err := e.backend.Recognize(ctx, cellImg, lang, psmSingleLine)
		if err != nil {
			e.logger.Warn("cell OCR failed", logger.Error(err))
			continue
		}

		var parts []string
		for _, w := range words {
			parts = append(parts, w.Text)
		}
		text := strings.TrimSpace(strings.Join(parts, " "))
		if text == "" {
			continue
		}
		currentRow = append(currentRow, text)
		tokens = append(tokens, models.Token{
			Text: text,
			BBox: models.BBox{
				X: cell.Min.X,
				Y: cell.Min.Y,
				W: cell.Dx(),
				H: cell.Dy(),
			},
			Confidence: 0,
		})
	}
	if len(currentRow) > 0 {
		rows = append(rows, currentRow)
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, strings.Join(row, "\t"))
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), tokens, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
