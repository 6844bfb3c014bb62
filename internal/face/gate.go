package face

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
	"mediasift/pkg/logger"
)

var log = logger.Get("FaceGate")

const (
	// Asymmetric padding applied to every accepted detection box; faces
	// need more headroom above and below than side-to-side.
	padVertical   = 0.4
	padHorizontal = 0.3

	minCandidateSize = 20
	minAspectRatio   = 0.4
	maxAspectRatio   = 2.5

	defaultOverlapThreshold  = 0.3
	defaultContrastThreshold = 15.0
)

type (
	Config struct {
		CascadePath string `yaml:"cascade_path" env:"FACE_CASCADE_PATH" env-required:"true"`

		// MinConfidence switches the extractor in to single-detector
		// mode when set above zero: one balanced detection sweep with
		// confidence filtering, instead of the full ensemble search.
		MinConfidence float64 `yaml:"min_confidence" env:"FACE_MIN_CONFIDENCE" env-default:"0"`

		OverlapThreshold  float64 `yaml:"overlap_threshold" env:"FACE_OVERLAP_THRESHOLD" env-default:"0.3"`
		ContrastThreshold float64 `yaml:"contrast_threshold" env:"FACE_CONTRAST_THRESHOLD" env-default:"15"`
	}

	// Extractor is the quality gate for still images: it locates face
	// candidates, validates them against geometric and contrast
	// heuristics, and returns the surviving crops. The detection
	// strategy is a declarative pass list folded through a single
	// accumulate-and-dedup step.
	Extractor struct {
		config Config
		passes []DetectorPass
		single DetectorPass
	}
)

// Rotation sweep applied in ensemble mode; slightly tilted faces are
// often missed by an upright-only cascade.
var ensembleAngles = []float64{0, -15, 15}

// NewExtractor constructs the quality gate. The backing cascade model
// is loaded eagerly so that a missing or corrupt model fails here, at
// initialisation, rather than on first use.
func NewExtractor(config Config) (*Extractor, error) {
	cascade, err := newCascadeClassifier(config.CascadePath)
	if err != nil {
		return nil, err
	}

	if config.OverlapThreshold <= 0 {
		config.OverlapThreshold = defaultOverlapThreshold
	}
	if config.ContrastThreshold <= 0 {
		config.ContrastThreshold = defaultContrastThreshold
	}

	extractor := &Extractor{config: config}
	if config.MinConfidence > 0 {
		extractor.single = singlePass(cascade)
	} else {
		extractor.passes = ensemblePasses(cascade)
	}

	return extractor, nil
}

// newExtractorWithPasses is used by tests to supply synthetic passes.
func newExtractorWithPasses(config Config, passes []DetectorPass, single DetectorPass) *Extractor {
	if config.OverlapThreshold <= 0 {
		config.OverlapThreshold = defaultOverlapThreshold
	}
	if config.ContrastThreshold <= 0 {
		config.ContrastThreshold = defaultContrastThreshold
	}

	return &Extractor{config: config, passes: passes, single: single}
}

// ExtractFacesFromFile loads the image at the given path and runs it
// through the gate. An unreadable file errors immediately; callers
// processing batches should catch this per-item so one bad file does
// not abort the batch.
func (extractor *Extractor) ExtractFacesFromFile(path string) ([]image.Image, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}

	return extractor.ExtractFaces(img), nil
}

// ExtractFaces returns the accepted face crops for the image, highest
// confidence first where confidence is available.
func (extractor *Extractor) ExtractFaces(img image.Image) []image.Image {
	if extractor.single != nil {
		return extractor.extractSingle(img)
	}

	return extractor.extractEnsemble(img)
}

// DetectFaces runs detection without cropping, returning the padded
// candidate boxes. In ensemble mode confidence bookkeeping is dropped
// (candidates all report their raw pass confidence); in single-detector
// mode the detections are confidence-filtered and sorted.
func (extractor *Extractor) DetectFaces(img image.Image) []Detection {
	gray := toGray(img)
	if extractor.single != nil {
		return extractor.filterSingle(extractor.single(gray), img.Bounds())
	}

	gray = equalizeHist(gray)
	detections := make([]Detection, 0)
	for _, pass := range extractor.passes {
		for _, det := range pass(gray) {
			det.Box = padAndClip(det.Box, img.Bounds(), padHorizontal, padVertical)
			detections = append(detections, det)
		}
	}

	return detections
}

// extractEnsemble performs the full multi-angle, multi-parameter search
// and merges the results of every pass via content-similarity dedup.
func (extractor *Extractor) extractEnsemble(img image.Image) []image.Image {
	candidates := make([]image.Image, 0)

	for _, angle := range ensembleAngles {
		rotated := img
		if angle != 0 {
			rotated = imaging.Rotate(img, angle, color.NRGBA{})
		}

		gray := equalizeHist(toGray(rotated))
		bounds := rotated.Bounds()

		for _, pass := range extractor.passes {
			for _, det := range pass(gray) {
				box := padAndClip(det.Box, bounds, padHorizontal, padVertical)
				crop := imaging.Crop(rotated, box)
				if extractor.isValidCandidate(crop) {
					candidates = append(candidates, crop)
				}
			}
		}
	}

	if len(candidates) == 0 {
		return candidates
	}

	accepted := RemoveDuplicates(candidates, extractor.config.OverlapThreshold)
	log.Emit(logger.DEBUG, "Ensemble extraction kept %d of %d raw candidates\n", len(accepted), len(candidates))
	return accepted
}

// extractSingle performs the single high-precision sweep: no rotation
// search, confidence filtering against the configured minimum, results
// sorted by confidence descending.
func (extractor *Extractor) extractSingle(img image.Image) []image.Image {
	detections := extractor.filterSingle(extractor.single(toGray(img)), img.Bounds())

	crops := make([]image.Image, 0, len(detections))
	for _, det := range detections {
		crops = append(crops, imaging.Crop(img, det.Box))
	}

	return crops
}

func (extractor *Extractor) filterSingle(detections []Detection, bounds image.Rectangle) []Detection {
	filtered := make([]Detection, 0, len(detections))
	for _, det := range detections {
		if det.Confidence < extractor.config.MinConfidence {
			continue
		}

		det.Box = padAndClip(det.Box, bounds, padHorizontal, padVertical)
		filtered = append(filtered, det)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Confidence > filtered[j].Confidence
	})

	return filtered
}

// isValidCandidate rejects crops which cannot plausibly be a face:
// too small, implausible aspect ratio, or too flat (low contrast) to
// contain facial structure.
func (extractor *Extractor) isValidCandidate(crop image.Image) bool {
	bounds := crop.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < minCandidateSize || h < minCandidateSize {
		return false
	}

	aspect := float64(h) / float64(w)
	if aspect < minAspectRatio || aspect > maxAspectRatio {
		return false
	}

	return grayStdDev(toGray(crop)) >= extractor.config.ContrastThreshold
}

// RemoveDuplicates deduplicates overlapping face crops: candidates are
// considered largest-first, and a candidate is dropped when its content
// similarity to an already-kept crop exceeds the threshold. The
// operation is idempotent: running it on its own output returns the
// same set.
func RemoveDuplicates(crops []image.Image, overlapThreshold float64) []image.Image {
	if len(crops) <= 1 {
		return crops
	}

	sorted := make([]image.Image, len(crops))
	copy(sorted, crops)
	sort.SliceStable(sorted, func(i, j int) bool {
		iB, jB := sorted[i].Bounds(), sorted[j].Bounds()
		return iB.Dx()*iB.Dy() > jB.Dx()*jB.Dy()
	})

	kept := make([]image.Image, 0, len(sorted))
	for _, crop := range sorted {
		duplicate := false
		for _, existing := range kept {
			if contentSimilarity(crop, existing) > overlapThreshold {
				duplicate = true
				break
			}
		}

		if !duplicate {
			kept = append(kept, crop)
		}
	}

	return kept
}

// ExtractCrop cuts the detection from the source image with an extra
// uniform margin and scales it to the required square output size, for
// consumers which need fixed-dimension face chips.
func ExtractCrop(img image.Image, det Detection, outputSize int) (image.Image, error) {
	if outputSize <= 0 {
		return nil, fmt.Errorf("invalid face crop output size %d", outputSize)
	}

	box := padAndClip(det.Box, img.Bounds(), 0.2, 0.2)
	crop := imaging.Crop(img, box)
	return imaging.Resize(crop, outputSize, outputSize, imaging.Lanczos), nil
}
