package face

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckImageQuality(t *testing.T) {
	tests := []struct {
		summary string
		run     func(t *testing.T)
	}{
		{"sharp well-exposed image passes", func(t *testing.T) {
			ok, report := CheckImageQuality(checkerboard(300, 300, 0, 255))
			assert.True(t, ok)
			assert.Empty(t, report.Reason)
		}},
		{"undersized image rejected before analysis", func(t *testing.T) {
			ok, report := CheckImageQuality(checkerboard(100, 300, 0, 255))
			assert.False(t, ok)
			assert.Equal(t, "image too small", report.Reason)
			assert.Zero(t, report.Sharpness, "analysis should be skipped for undersized images")
		}},
		{"featureless image rejected as blurry", func(t *testing.T) {
			ok, report := CheckImageQuality(fill(300, 300, color.NRGBA{R: 128, G: 128, B: 128, A: 255}))
			assert.False(t, ok)
			assert.Equal(t, "image too blurry", report.Reason)
		}},
		{"narrow tonal range rejected for contrast", func(t *testing.T) {
			ok, report := CheckImageQuality(checkerboard(300, 300, 120, 140))
			assert.False(t, ok)
			assert.Equal(t, "image contrast too low", report.Reason)
		}},
		{"underexposed image rejected for brightness", func(t *testing.T) {
			ok, report := CheckImageQuality(checkerboard(300, 300, 0, 70))
			assert.False(t, ok)
			assert.Equal(t, "image too dark or too bright", report.Reason)
		}},
		{"overexposed image rejected for brightness", func(t *testing.T) {
			ok, report := CheckImageQuality(checkerboard(300, 300, 190, 255))
			assert.False(t, ok)
			assert.Equal(t, "image too dark or too bright", report.Reason)
		}},
	}

	for _, test := range tests {
		t.Run(test.summary, test.run)
	}
}

func TestQualityReport_CarriesMeasurements(t *testing.T) {
	_, report := CheckImageQuality(checkerboard(300, 300, 0, 255))

	assert.Equal(t, 300, report.Width)
	assert.Equal(t, 300, report.Height)
	assert.InDelta(t, 127.5, report.Brightness, 1)
	assert.InDelta(t, 127.5, report.Contrast, 1)
	assert.Greater(t, report.Sharpness, blurThreshold)
}
