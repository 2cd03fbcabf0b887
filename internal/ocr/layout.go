package ocr

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/pdf-extractor/internal/models"
)

// Layout classification thresholds. A page is a table when rule lines
// cover enough of it, prose when ink is dense but edges are not.
const (
	minLineRunLength   = 40
	lineDensityTable   = 0.01
	inkDensityText     = 0.10
	edgeDensityText    = 0.08
	edgeMagnitudeFloor = 40.0
	inkLevelFloor      = 200
)

// ClassifyLayout buckets a page image as table, text, or noisy. The bucket
// selects which PSM candidates and preprocessing variants the ensemble tries.
func ClassifyLayout(img image.Image) models.Layout {
	gray := toGray(img)

	horizontal, vertical := detectRuleLines(gray)
	total := len(gray.Pix)
	if total == 0 {
		return models.LayoutNoisy
	}
	lineDensity := float64(countOn(horizontal)+countOn(vertical)) / float64(total)
	if lineDensity > lineDensityTable {
		return models.LayoutTable
	}

	small := toGray(imaging.Resize(gray, 400, 400, imaging.Box))
	smallTotal := float64(len(small.Pix))

	var inkPixels float64
	for _, pix := range small.Pix {
		if pix < inkLevelFloor {
			inkPixels++
		}
	}
	inkDensity := inkPixels / smallTotal
	edgeDensity := float64(countEdges(small)) / smallTotal

	if inkDensity > inkDensityText && edgeDensity < edgeDensityText {
		return models.LayoutText
	}
	return models.LayoutNoisy
}

// detectRuleLines finds horizontal and vertical rule lines by run length:
// a foreground run at least minLineRunLength long counts as a line segment.
// Masks use 255 for line pixels.
func detectRuleLines(g *image.Gray) (horizontal, vertical *image.Gray) {
	bounds := g.Bounds()
	threshold := otsuThreshold(g)
	horizontal = image.NewGray(bounds)
	vertical = image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		runStart := -1
		for x := bounds.Min.X; x <= bounds.Max.X; x++ {
			fg := x < bounds.Max.X && int(g.GrayAt(x, y).Y) <= threshold
			if fg && runStart < 0 {
				runStart = x
			}
			if !fg && runStart >= 0 {
				if x-runStart >= minLineRunLength {
					for rx := runStart; rx < x; rx++ {
						horizontal.Pix[horizontal.PixOffset(rx, y)] = 255
					}
				}
				runStart = -1
			}
		}
	}

	for x := bounds.Min.X; x < bounds.Max.X; x++ {
		runStart := -1
		for y := bounds.Min.Y; y <= bounds.Max.Y; y++ {
			fg := y < bounds.Max.Y && int(g.GrayAt(x, y).Y) <= threshold
			if fg && runStart < 0 {
				runStart = y
			}
			if !fg && runStart >= 0 {
				if y-runStart >= minLineRunLength {
					for ry := runStart; ry < y; ry++ {
						vertical.Pix[vertical.PixOffset(x, ry)] = 255
					}
				}
				runStart = -1
			}
		}
	}
	return horizontal, vertical
}

func countOn(mask *image.Gray) int {
	n := 0
	for _, pix := range mask.Pix {
		if pix > 0 {
			n++
		}
	}
	return n
}

// countEdges counts pixels whose Sobel gradient magnitude exceeds the floor.
func countEdges(g *image.Gray) int {
	bounds := g.Bounds()
	n := 0
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			gx := float64(g.GrayAt(x+1, y).Y) - float64(g.GrayAt(x-1, y).Y)
			gy := float64(g.GrayAt(x, y+1).Y) - float64(g.GrayAt(x, y-1).Y)
			if math.Sqrt(gx*gx+gy*gy) > edgeMagnitudeFloor {
				n++
			}
		}
	}
	return n
}
