package ocr

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/pdf-extractor/internal/models"
)

func grayPix(v uint8) color.Gray { return color.Gray{Y: v} }

// gridImage draws full-length black rule lines on white at the given rows
// and columns, two pixels thick.
func gridImage(w, h int, rows, cols []int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for _, y := range rows {
		for dy := 0; dy < 2; dy++ {
			for x := 0; x < w; x++ {
				img.SetGray(x, y+dy, grayPix(0))
			}
		}
	}
	for _, x := range cols {
		for dx := 0; dx < 2; dx++ {
			for y := 0; y < h; y++ {
				img.SetGray(x+dx, y, grayPix(0))
			}
		}
	}
	return img
}

// proseImage approximates a downsampled text page: dense soft ink with no
// hard edges and no runs long enough to read as rule lines.
func proseImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 400, 400))
	for i := range img.Pix {
		img.Pix[i] = 180
	}
	for by := 0; by < 400; by += 40 {
		for bx := 0; bx < 400; bx += 40 {
			for y := by; y < by+30 && y < 400; y++ {
				for x := bx; x < bx+30 && x < 400; x++ {
					img.SetGray(x, y, grayPix(150))
				}
			}
		}
	}
	return img
}

func TestClassifyLayoutTable(t *testing.T) {
	img := gridImage(200, 200, []int{50, 150}, []int{50, 150})
	assert.Equal(t, models.LayoutTable, ClassifyLayout(img))
}

func TestClassifyLayoutText(t *testing.T) {
	assert.Equal(t, models.LayoutText, ClassifyLayout(proseImage()))
}

func TestClassifyLayoutNoisy(t *testing.T) {
	assert.Equal(t, models.LayoutNoisy, ClassifyLayout(whiteImage(200, 200)))
}

func TestDetectRuleLines(t *testing.T) {
	img := gridImage(200, 200, []int{50}, []int{120})
	horizontal, vertical := detectRuleLines(img)

	assert.Greater(t, countOn(horizontal), 0)
	assert.Greater(t, countOn(vertical), 0)
	assert.Equal(t, uint8(255), horizontal.Pix[horizontal.PixOffset(100, 50)])
	assert.Equal(t, uint8(255), vertical.Pix[vertical.PixOffset(120, 100)])
	// Short runs never count as lines.
	assert.Equal(t, uint8(0), horizontal.Pix[horizontal.PixOffset(100, 10)])
}

func TestExtractTableCells(t *testing.T) {
	img := gridImage(300, 300, []int{20, 140, 260}, []int{20, 140, 260})
	horizontal, vertical := detectRuleLines(img)
	cells := extractTableCells(horizontal, vertical)

	assert.Len(t, cells, 4)
	// Top-down, left-to-right.
	assert.Equal(t, cells[0].Min.Y, cells[1].Min.Y)
	assert.Less(t, cells[0].Min.X, cells[1].Min.X)
	assert.Less(t, cells[1].Min.Y, cells[2].Min.Y)
}

func TestExtractTableCellsNeedsGrid(t *testing.T) {
	// A single horizontal line yields no cells.
	img := gridImage(200, 200, []int{100}, nil)
	horizontal, vertical := detectRuleLines(img)
	assert.Nil(t, extractTableCells(horizontal, vertical))
}

func TestMergePositions(t *testing.T) {
	assert.Equal(t, []int{10, 40}, mergePositions([]int{10, 12, 14, 40, 43}))
	assert.Nil(t, mergePositions(nil))
}
