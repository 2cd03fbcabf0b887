package ocr

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func bimodalImage(w, h int, dark, light uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		if i < len(img.Pix)/2 {
			img.Pix[i] = dark
		} else {
			img.Pix[i] = light
		}
	}
	return img
}

func TestOtsuThresholdBimodal(t *testing.T) {
	img := bimodalImage(100, 100, 100, 200)
	threshold := otsuThreshold(img)
	assert.GreaterOrEqual(t, threshold, 100)
	assert.Less(t, threshold, 200)
}

func TestOtsuThresholdEmpty(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 0, 0))
	assert.Equal(t, StrategyStandard.Threshold, otsuThreshold(img))
}

func TestBinarize(t *testing.T) {
	img := bimodalImage(10, 10, 100, 200)
	out := binarize(img, 150)
	for i, pix := range out.Pix {
		if img.Pix[i] == 100 {
			assert.Equal(t, uint8(0), pix)
		} else {
			assert.Equal(t, uint8(255), pix)
		}
	}
}

func TestAutocontrastStretches(t *testing.T) {
	img := bimodalImage(10, 10, 100, 150)
	out := autocontrast(img, 0)
	assert.Equal(t, uint8(0), out.Pix[0])
	assert.Equal(t, uint8(255), out.Pix[len(out.Pix)-1])
}

func TestMedianFilterRemovesSaltNoise(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 20))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(10, 10, grayPix(0))

	out := medianFilter(img, 3)
	assert.Equal(t, uint8(255), out.GrayAt(10, 10).Y)
}

func TestMedianFilterSmallSizeNoop(t *testing.T) {
	img := bimodalImage(10, 10, 100, 200)
	assert.Equal(t, img, medianFilter(img, 1))
}

func TestStrategyApplyProducesBinaryImage(t *testing.T) {
	out := StrategyStandard.Apply(bimodalImage(100, 100, 60, 230))
	gray := toGray(out)
	for _, pix := range gray.Pix {
		assert.True(t, pix == 0 || pix == 255)
	}
}

func TestDetectSkewAngleStraightPage(t *testing.T) {
	// Horizontal text-line stripes: already aligned, no correction.
	img := image.NewGray(image.Rect(0, 0, 400, 400))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for band := 0; band < 400; band += 40 {
		for y := band; y < band+10; y++ {
			for x := 20; x < 380; x++ {
				img.SetGray(x, y, grayPix(0))
			}
		}
	}
	assert.Zero(t, detectSkewAngle(img))
}
