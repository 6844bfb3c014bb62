package video

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediasift/internal/face"
)

type stubDetector struct {
	faces []image.Image
}

func (detector *stubDetector) ExtractFaces(_ image.Image) []image.Image {
	return detector.faces
}

func grayFrame(width int, height int, level uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = level
		img.Pix[i+1] = level
		img.Pix[i+2] = level
		img.Pix[i+3] = 255
	}

	return img
}

func noisyFrame(width int, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}

			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	return img
}

// The composite score must stay inside [0,1] for any combination of
// inputs, including degenerate ones like zero frames or face counts
// exceeding the frame count.
func TestCompositeScore_Bounds(t *testing.T) {
	frameCounts := []int{0, 1, 10, 1000}
	faceCounts := []int{0, 1, 10, 5000}
	problemCounts := []int{0, 1, 10, 1000}
	frameRates := []float64{0, 12, 23.976, 30, 120}

	for _, frames := range frameCounts {
		for _, faces := range faceCounts {
			for _, problems := range problemCounts {
				for _, fps := range frameRates {
					score := CompositeScore(frames, faces, problems, fps)
					assert.GreaterOrEqual(t, score, 0.0, "frames=%d faces=%d problems=%d fps=%f", frames, faces, problems, fps)
					assert.LessOrEqual(t, score, 1.0, "frames=%d faces=%d problems=%d fps=%f", frames, faces, problems, fps)
				}
			}
		}
	}
}

func TestCompositeScore_Weighting(t *testing.T) {
	// 50% face rate, 20% problem rate, full frame-rate credit.
	assert.InDelta(t, 0.69, CompositeScore(10, 5, 2, 30), 0.0001)

	// Half frame-rate credit with a clean, face-free sample.
	assert.InDelta(t, 0.4, CompositeScore(10, 0, 0, 15), 0.0001)

	// No analyzable frames scores zero outright.
	assert.Zero(t, CompositeScore(0, 10, 0, 30))
}

func TestRecommendations_AllTriggersFireIndependently(t *testing.T) {
	report := &Report{
		Metadata: Metadata{Fps: 12},
		Stats: FrameStats{
			FramesProcessed:   10,
			FacesDetected:     5,
			AverageFaceWidth:  64,
			AverageFaceHeight: 64,
			ProblemFrames:     []int{0, 30},
			Score:             0.3,
		},
	}

	assert.Len(t, recommendationsFor(report), 4, "every trigger should contribute its own message")
}

func TestRecommendations_CleanReportYieldsNone(t *testing.T) {
	report := &Report{
		Metadata: Metadata{Fps: 30},
		Stats: FrameStats{
			FramesProcessed:   10,
			FacesDetected:     10,
			AverageFaceWidth:  256,
			AverageFaceHeight: 256,
			ProblemFrames:     []int{},
			Score:             0.95,
		},
	}

	assert.Empty(t, recommendationsFor(report))
}

func TestRecommendations_FaceSizeIgnoredWithoutFaces(t *testing.T) {
	report := &Report{
		Metadata: Metadata{Fps: 30},
		Stats:    FrameStats{FramesProcessed: 10, Score: 0.7},
	}

	assert.NotContains(t, recommendationsFor(report), "face resolution too low for reliable downstream processing")
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"30000/1001", 29.97},
		{"25/1", 25},
		{"24", 24},
		{"0/0", 0},
		{"garbage", 0},
		{"", 0},
	}

	for _, test := range tests {
		assert.InDelta(t, test.expected, parseFrameRate(test.input), 0.01, "input %q", test.input)
	}
}

func TestAnalyzeFrames_AggregatesSignals(t *testing.T) {
	dir := t.TempDir()
	sharp := filepath.Join(dir, "frame_000001.jpg")
	flat := filepath.Join(dir, "frame_000002.jpg")
	require.NoError(t, face.SaveImage(noisyFrame(300, 300), sharp))
	require.NoError(t, face.SaveImage(grayFrame(300, 300, 128), flat))

	detector := &stubDetector{faces: []image.Image{image.NewNRGBA(image.Rect(0, 0, 150, 160))}}
	analyzer := NewAnalyzer(Config{FrameInterval: 30, Concurrency: 2}, detector)

	stats := analyzer.analyzeFrames([]string{sharp, flat})
	assert.Equal(t, 2, stats.FramesProcessed)
	assert.Equal(t, 2, stats.FacesDetected)
	assert.Equal(t, []int{30}, stats.ProblemFrames, "the featureless frame should be flagged blurry")
	assert.InDelta(t, 150, stats.AverageFaceWidth, 0.01)
	assert.InDelta(t, 160, stats.AverageFaceHeight, 0.01)
}

func TestAnalyzeFrames_UnreadableFrameIsProblematic(t *testing.T) {
	analyzer := NewAnalyzer(Config{FrameInterval: 30, Concurrency: 1}, &stubDetector{})

	stats := analyzer.analyzeFrames([]string{filepath.Join(t.TempDir(), "missing.jpg")})
	assert.Equal(t, 1, stats.FramesProcessed)
	assert.Equal(t, []int{0}, stats.ProblemFrames)
}
