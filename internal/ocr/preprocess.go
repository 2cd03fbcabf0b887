package ocr

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

// Strategy is one preprocessing variant. The ensemble tries each selected
// strategy against each PSM candidate and lets consensus pick the winner.
type Strategy struct {
	Name               string
	Threshold          int
	Deskew             bool
	MedianSize         int
	SharpenSigma       float64
	AutocontrastCutoff int
}

// The two base variants mirror the tuned production presets: "standard"
// for clean scans, "aggressive" for noisy or gridded pages.
var (
	StrategyStandard = Strategy{
		Name:               "standard",
		Threshold:          200,
		Deskew:             true,
		MedianSize:         3,
		SharpenSigma:       1.5,
		AutocontrastCutoff: 1,
	}
	StrategyAggressive = Strategy{
		Name:               "aggressive",
		Threshold:          220,
		Deskew:             true,
		MedianSize:         5,
		SharpenSigma:       2.0,
		AutocontrastCutoff: 2,
	}
)

const deskewAngleLimit = 5.0

// Apply runs the full pipeline: grayscale, autocontrast, median filter,
// unsharp mask, skew correction, then binarization at a threshold blended
// with the Otsu estimate.
func (s Strategy) Apply(img image.Image) image.Image {
	gray := toGray(img)
	gray = autocontrast(gray, s.AutocontrastCutoff)
	gray = medianFilter(gray, s.MedianSize)
	gray = toGray(imaging.Sharpen(gray, s.SharpenSigma))
	if s.Deskew {
		if angle := detectSkewAngle(gray); angle != 0 {
			gray = toGray(imaging.Rotate(gray, angle, color.White))
		}
	}
	return binarize(gray, blendThreshold(gray, s.Threshold))
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

func histogram(g *image.Gray) [256]int {
	var hist [256]int
	for _, pix := range g.Pix {
		hist[pix]++
	}
	return hist
}

// autocontrast stretches the histogram after discarding cutoff percent of
// the darkest and lightest pixels.
func autocontrast(g *image.Gray, cutoff int) *image.Gray {
	hist := histogram(g)
	total := len(g.Pix)
	if total == 0 {
		return g
	}

	discard := total * cutoff / 100
	lo, hi := 0, 255
	for n := 0; lo < 255; lo++ {
		n += hist[lo]
		if n > discard {
			break
		}
	}
	for n := 0; hi > 0; hi-- {
		n += hist[hi]
		if n > discard {
			break
		}
	}
	if hi <= lo {
		return g
	}

	scale := 255.0 / float64(hi-lo)
	out := image.NewGray(g.Bounds())
	for i, pix := range g.Pix {
		v := (float64(pix) - float64(lo)) * scale
		out.Pix[i] = uint8(math.Max(0, math.Min(255, v)))
	}
	return out
}

// medianFilter applies a size x size median filter. size must be odd.
func medianFilter(g *image.Gray, size int) *image.Gray {
	if size < 3 {
		return g
	}
	half := size / 2
	bounds := g.Bounds()
	out := image.NewGray(bounds)
	window := make([]uint8, 0, size*size)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			window = window[:0]
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					nx, ny := x+dx, y+dy
					if nx < bounds.Min.X || nx >= bounds.Max.X || ny < bounds.Min.Y || ny >= bounds.Max.Y {
						continue
					}
					window = append(window, g.GrayAt(nx, ny).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return out
}

// otsuThreshold computes the Otsu threshold from the grayscale histogram.
func otsuThreshold(g *image.Gray) int {
	hist := histogram(g)
	total := len(g.Pix)
	if total == 0 {
		return StrategyStandard.Threshold
	}

	var sumTotal float64
	for i, count := range hist {
		sumTotal += float64(i * count)
	}

	var sumBackground float64
	var weightBackground int
	maxVariance := 0.0
	threshold := StrategyStandard.Threshold

	for i, count := range hist {
		weightBackground += count
		if weightBackground == 0 {
			continue
		}
		weightForeground := total - weightBackground
		if weightForeground == 0 {
			break
		}
		sumBackground += float64(i * count)
		meanBackground := sumBackground / float64(weightBackground)
		meanForeground := (sumTotal - sumBackground) / float64(weightForeground)
		diff := meanBackground - meanForeground
		variance := float64(weightBackground) * float64(weightForeground) * diff * diff
		if variance > maxVariance {
			maxVariance = variance
			threshold = i
		}
	}
	return threshold
}

// blendThreshold averages the configured threshold with the Otsu estimate
// so a bad preset cannot wipe out a page with unusual ink levels.
func blendThreshold(g *image.Gray, threshold int) int {
	return (otsuThreshold(g) + threshold) / 2
}

func binarize(g *image.Gray, threshold int) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, pix := range g.Pix {
		if int(pix) > threshold {
			out.Pix[i] = 255
		} else {
			out.Pix[i] = 0
		}
	}
	return out
}

// detectSkewAngle estimates page skew with a projection profile search:
// the rotation whose row-sum variance is highest aligns text baselines
// horizontally. Returns the correction angle in degrees, 0 if below noise.
func detectSkewAngle(g *image.Gray) float64 {
	small := toGray(imaging.Resize(g, 400, 400, imaging.Box))

	bestAngle, bestScore := 0.0, -1.0
	for angle := -deskewAngleLimit; angle <= deskewAngleLimit; angle += 0.5 {
		rotated := small
		if angle != 0 {
			rotated = toGray(imaging.Rotate(small, angle, color.White))
		}
		score := rowVariance(rotated)
		if score > bestScore {
			bestScore = score
			bestAngle = angle
		}
	}
	if math.Abs(bestAngle) < 0.5 {
		return 0
	}
	return bestAngle
}

func rowVariance(g *image.Gray) float64 {
	bounds := g.Bounds()
	rows := make([]float64, bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		var ink float64
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if g.GrayAt(x, y).Y < 128 {
				ink++
			}
		}
		rows[y-bounds.Min.Y] = ink
	}

	var mean float64
	for _, v := range rows {
		mean += v
	}
	mean /= float64(len(rows))

	var variance float64
	for _, v := range rows {
		variance += (v - mean) * (v - mean)
	}
	return variance / float64(len(rows))
}
