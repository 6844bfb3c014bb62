package video

import (
	"context"
	"image"
	"math"
	"sort"
	"sync"

	"mediasift/internal/face"
	"mediasift/pkg/logger"
)

// Score weighting: face presence dominates, technical cleanliness is
// secondary, frame-rate smoothness is a minor tie-breaker. The face
// term assumes one expected face per frame, which under-scores
// multi-subject footage; the weighting is kept as-is for compatibility
// with existing score thresholds.
const (
	faceWeight      = 0.5
	cleanWeight     = 0.3
	frameRateWeight = 0.2

	referenceFps = 30.0

	frameBlurThreshold = 100.0
	frameMinLuma       = 40.0
	frameMaxLuma       = 215.0
)

type (
	// FaceDetector is the slice of the still-image quality gate the
	// analyzer needs: candidate face crops for a single frame.
	FaceDetector interface {
		ExtractFaces(img image.Image) []image.Image
	}

	// FrameStats aggregates the per-frame signals for one video. It is
	// transient analysis output and is not persisted on its own.
	FrameStats struct {
		FramesProcessed   int     `json:"frames_processed"`
		FacesDetected     int     `json:"faces_detected"`
		AverageFaceWidth  float64 `json:"average_face_width"`
		AverageFaceHeight float64 `json:"average_face_height"`
		ProblemFrames     []int   `json:"problem_frames"`
		Score             float64 `json:"score"`
	}

	// Report is the full analysis response for one video.
	Report struct {
		Metadata        Metadata   `json:"metadata"`
		Stats           FrameStats `json:"stats"`
		Recommendations []string   `json:"recommendations"`
	}

	Analyzer struct {
		config   Config
		detector FaceDetector
	}

	frameResult struct {
		index       int
		faces       int
		faceWidth   int
		faceHeight  int
		problematic bool
	}
)

// Remediation advice is a flat list of independent triggers evaluated
// against the finished report; every trigger that fires contributes its
// message, there is no first-match short circuit.
var recommendationTriggers = []struct {
	triggered func(report *Report) bool
	message   string
}{
	{
		func(report *Report) bool { return report.Stats.Score < 0.6 },
		"overall quality may be problematic for downstream use",
	},
	{
		func(report *Report) bool { return report.Metadata.Fps > 0 && report.Metadata.Fps < 24 },
		"low frame rate may produce choppy output",
	},
	{
		func(report *Report) bool {
			if report.Stats.FacesDetected == 0 {
				return false
			}
			return report.Stats.AverageFaceWidth < 128 || report.Stats.AverageFaceHeight < 128
		},
		"face resolution too low for reliable downstream processing",
	},
	{
		func(report *Report) bool {
			if report.Stats.FramesProcessed == 0 {
				return false
			}
			return float64(len(report.Stats.ProblemFrames))/float64(report.Stats.FramesProcessed) > 0.1
		},
		"pre-processing recommended to clean up blurry or badly exposed frames",
	},
}

func NewAnalyzer(config Config, detector FaceDetector) *Analyzer {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = 30
	}

	return &Analyzer{config: config, detector: detector}
}

// Analyze probes the video, samples its frames, and aggregates the
// per-frame signals in to a composite report. Frame analysis is
// fanned out over a bounded set of goroutines; accumulation is
// order-independent so completion order does not affect the result.
func (analyzer *Analyzer) Analyze(ctx context.Context, path string) (*Report, error) {
	metadata, err := ProbeFile(path, analyzer.config)
	if err != nil {
		return nil, err
	}

	report := &Report{Metadata: *metadata}
	err = withFrameDir(func(dir string) error {
		framePaths, err := extractSampledFrames(ctx, path, dir, analyzer.config)
		if err != nil {
			return err
		}

		report.Stats = analyzer.analyzeFrames(framePaths)
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Stats.Score = CompositeScore(report.Stats.FramesProcessed, report.Stats.FacesDetected, len(report.Stats.ProblemFrames), metadata.Fps)
	report.Recommendations = recommendationsFor(report)

	log.Emit(logger.INFO, "Analysis of %s complete: score=%.2f over %d sampled frames\n", path, report.Stats.Score, report.Stats.FramesProcessed)
	return report, nil
}

func (analyzer *Analyzer) analyzeFrames(framePaths []string) FrameStats {
	jobs := make(chan int)
	results := make(chan frameResult, len(framePaths))

	var wg sync.WaitGroup
	for i := 0; i < analyzer.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				results <- analyzer.analyzeFrame(index, framePaths[index])
			}
		}()
	}

	for index := range framePaths {
		jobs <- index
	}
	close(jobs)
	wg.Wait()
	close(results)

	stats := FrameStats{ProblemFrames: make([]int, 0)}
	totalFaceWidth, totalFaceHeight := 0, 0
	for result := range results {
		stats.FramesProcessed++
		stats.FacesDetected += result.faces
		totalFaceWidth += result.faceWidth
		totalFaceHeight += result.faceHeight

		if result.problematic {
			stats.ProblemFrames = append(stats.ProblemFrames, result.index*analyzer.config.FrameInterval)
		}
	}

	if stats.FacesDetected > 0 {
		stats.AverageFaceWidth = float64(totalFaceWidth) / float64(stats.FacesDetected)
		stats.AverageFaceHeight = float64(totalFaceHeight) / float64(stats.FacesDetected)
	}

	sort.Ints(stats.ProblemFrames)
	return stats
}

// analyzeFrame inspects a single sampled frame. Frames which cannot be
// loaded are counted as problematic rather than failing the analysis.
func (analyzer *Analyzer) analyzeFrame(index int, path string) frameResult {
	result := frameResult{index: index}

	img, err := face.LoadImage(path)
	if err != nil {
		log.Emit(logger.WARNING, "Failed to load sampled frame %s: %v\n", path, err)
		result.problematic = true
		return result
	}

	sharpness, brightness := face.MeasureExposure(img)
	if sharpness < frameBlurThreshold || brightness < frameMinLuma || brightness > frameMaxLuma {
		result.problematic = true
	}

	for _, crop := range analyzer.detector.ExtractFaces(img) {
		result.faces++
		result.faceWidth += crop.Bounds().Dx()
		result.faceHeight += crop.Bounds().Dy()
	}

	return result
}

// CompositeScore combines face presence, technical cleanliness and
// frame rate in to the single [0,1] quality number.
func CompositeScore(framesProcessed int, facesDetected int, problemFrames int, fps float64) float64 {
	if framesProcessed == 0 {
		return 0
	}

	faceRate := float64(facesDetected) / float64(framesProcessed)
	problemRate := float64(problemFrames) / float64(framesProcessed)

	score := faceWeight*faceRate +
		cleanWeight*(1-problemRate) +
		frameRateWeight*math.Min(fps/referenceFps, 1)

	return math.Max(0, math.Min(1, score))
}

func recommendationsFor(report *Report) []string {
	recommendations := make([]string, 0)
	for _, trigger := range recommendationTriggers {
		if trigger.triggered(report) {
			recommendations = append(recommendations, trigger.message)
		}
	}

	return recommendations
}
