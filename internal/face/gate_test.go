package face

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fill returns a uniformly coloured image of the given size.
func fill(width int, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = 255
	}

	return img
}

// checkerboard returns an image alternating between two gray levels per
// pixel, giving it high spatial frequency and predictable statistics.
func checkerboard(width int, height int, low uint8, high uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := low
			if (x+y)%2 == 0 {
				v = high
			}

			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	return img
}

// stubPass returns the given detections for the original image bounds
// only, so the rotation sweep does not multiply candidates.
func stubPass(bounds image.Rectangle, detections []Detection) DetectorPass {
	return func(gray *image.Gray) []Detection {
		if gray.Bounds() != bounds {
			return nil
		}

		return detections
	}
}

// A detector claiming a face on a featureless canvas must be overruled
// by the candidate validity checks.
func TestExtractFaces_BlankCanvasRejectsClaimedDetection(t *testing.T) {
	canvas := fill(400, 400, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	pass := stubPass(canvas.Bounds(), []Detection{
		{Box: image.Rect(100, 100, 200, 200), Confidence: 0.9},
	})

	extractor := newExtractorWithPasses(Config{}, []DetectorPass{pass}, nil)
	assert.Empty(t, extractor.ExtractFaces(canvas), "uniform canvas should yield no valid faces")
}

func TestExtractFaces_ValidCandidateSurvives(t *testing.T) {
	img := checkerboard(400, 400, 0, 255)
	pass := stubPass(img.Bounds(), []Detection{
		{Box: image.Rect(100, 100, 200, 200), Confidence: 0.9},
	})

	extractor := newExtractorWithPasses(Config{}, []DetectorPass{pass}, nil)
	faces := extractor.ExtractFaces(img)

	require.Len(t, faces, 1)
	bounds := faces[0].Bounds()
	assert.Equal(t, 160, bounds.Dx(), "crop should carry 30%% horizontal padding")
	assert.Equal(t, 180, bounds.Dy(), "crop should carry 40%% vertical padding")
}

func TestExtractFaces_OverlappingPassesDeduplicated(t *testing.T) {
	img := checkerboard(400, 400, 0, 255)

	// Two passes claiming the same region must collapse to one crop.
	box := image.Rect(100, 100, 200, 200)
	passA := stubPass(img.Bounds(), []Detection{{Box: box, Confidence: 0.8}})
	passB := stubPass(img.Bounds(), []Detection{{Box: box, Confidence: 0.9}})

	extractor := newExtractorWithPasses(Config{}, []DetectorPass{passA, passB}, nil)
	assert.Len(t, extractor.ExtractFaces(img), 1)
}

func TestExtractFaces_SingleModeFiltersAndSortsByConfidence(t *testing.T) {
	img := checkerboard(400, 400, 0, 255)
	single := DetectorPass(func(gray *image.Gray) []Detection {
		return []Detection{
			{Box: image.Rect(10, 10, 60, 60), Confidence: 0.55},
			{Box: image.Rect(200, 200, 260, 260), Confidence: 0.95},
			{Box: image.Rect(300, 300, 340, 340), Confidence: 0.2},
		}
	})

	extractor := newExtractorWithPasses(Config{MinConfidence: 0.5}, nil, single)
	detections := extractor.DetectFaces(img)

	require.Len(t, detections, 2, "detections below the confidence floor should be dropped")
	assert.Greater(t, detections[0].Confidence, detections[1].Confidence)
}

func TestRemoveDuplicates(t *testing.T) {
	black := fill(100, 100, color.NRGBA{A: 255})
	white := fill(120, 120, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	tests := []struct {
		summary  string
		crops    []image.Image
		expected int
	}{
		{"identical crops collapse", []image.Image{black, black, black}, 1},
		{"distinct content survives", []image.Image{black, white}, 2},
		{"single crop untouched", []image.Image{black}, 1},
		{"empty input untouched", []image.Image{}, 0},
	}

	for _, test := range tests {
		t.Run(test.summary, func(t *testing.T) {
			deduped := RemoveDuplicates(test.crops, defaultOverlapThreshold)
			assert.Len(t, deduped, test.expected)
		})
	}
}

// Deduplication must be idempotent: re-running it over its own output
// cannot shrink the set further.
func TestRemoveDuplicates_Idempotent(t *testing.T) {
	crops := []image.Image{
		fill(100, 100, color.NRGBA{A: 255}),
		fill(100, 100, color.NRGBA{A: 255}),
		fill(120, 120, color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		checkerboard(80, 80, 0, 255),
	}

	once := RemoveDuplicates(crops, defaultOverlapThreshold)
	twice := RemoveDuplicates(once, defaultOverlapThreshold)
	assert.Equal(t, len(once), len(twice))
}

func TestIsValidCandidate(t *testing.T) {
	extractor := newExtractorWithPasses(Config{}, nil, nil)

	tests := []struct {
		summary  string
		crop     image.Image
		expected bool
	}{
		{"undersized crop", checkerboard(10, 10, 0, 255), false},
		{"too wide aspect", checkerboard(200, 20, 0, 255), false},
		{"too tall aspect", checkerboard(20, 200, 0, 255), false},
		{"flat low-contrast crop", fill(100, 100, color.NRGBA{R: 128, G: 128, B: 128, A: 255}), false},
		{"plausible crop", checkerboard(100, 120, 0, 255), true},
	}

	for _, test := range tests {
		t.Run(test.summary, func(t *testing.T) {
			assert.Equal(t, test.expected, extractor.isValidCandidate(test.crop))
		})
	}
}

func TestPadAndClip(t *testing.T) {
	bounds := image.Rect(0, 0, 1000, 1000)

	padded := padAndClip(image.Rect(100, 100, 200, 200), bounds, 0.3, 0.4)
	assert.Equal(t, image.Rect(70, 60, 230, 240), padded)

	clipped := padAndClip(image.Rect(0, 0, 100, 100), bounds, 0.3, 0.4)
	assert.Equal(t, image.Rect(0, 0, 130, 140), clipped, "padding must clip at the image edge")
}
