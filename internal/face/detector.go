package face

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// qualityNorm maps the raw detector quality score on to the [0,1]
// confidence range carried by Detection.
const qualityNorm = 50.0

// maxBoxFraction caps the detection box relative to the smaller image
// dimension, rejecting whole-image false positives.
const maxBoxFraction = 0.95

type (
	// Detection is a single raw face candidate in source-image pixel
	// coordinates. Confidence is normalised to [0,1] (1.0 when the
	// underlying detector emits no score); Landmarks is nil unless the
	// configured detector is landmark-capable.
	Detection struct {
		Box        image.Rectangle
		Confidence float64
		Landmarks  map[string]image.Point
	}

	// DetectorPass is one pure detection strategy: given a prepared
	// grayscale image it returns raw candidates. The quality gate folds
	// a declarative list of passes through a single accumulate-and-dedup
	// step, so passes can be added or swapped without touching the
	// pipeline itself.
	DetectorPass func(gray *image.Gray) []Detection

	// cascadeClassifier wraps an unpacked pigo cascade. Construction
	// fails when the backing model cannot be loaded; detection itself
	// never errors.
	cascadeClassifier struct {
		classifier *pigo.Pigo
	}

	passParams struct {
		scaleFactor float64
		minQuality  float32
		minSize     int
	}
)

// Parameter grids swept by the ensemble, mirroring the multi-scale /
// multi-neighbour search the single-cascade backend needs to approach
// the recall of a purpose-trained detector.
var (
	ensembleScaleFactors = []float64{1.05, 1.08, 1.1, 1.15}
	ensembleQualities    = []float32{2, 3, 4}
	ensembleMinSizes     = []int{20, 30, 50}
)

func newCascadeClassifier(cascadePath string) (*cascadeClassifier, error) {
	cascadeBytes, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read face cascade %s: %w", cascadePath, err)
	}

	classifier, err := pigo.NewPigo().Unpack(cascadeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack face cascade %s: %w", cascadePath, err)
	}

	return &cascadeClassifier{classifier: classifier}, nil
}

// detect runs one multi-scale sweep over the grayscale image using the
// provided parameters and returns the clustered candidates.
func (cascade *cascadeClassifier) detect(gray *image.Gray, params passParams) []Detection {
	bounds := gray.Bounds()
	cols, rows := bounds.Dx(), bounds.Dy()

	maxSize := int(maxBoxFraction * float64(min(cols, rows)))
	if maxSize <= params.minSize {
		return nil
	}

	cascadeParams := pigo.CascadeParams{
		MinSize:     params.minSize,
		MaxSize:     maxSize,
		ShiftFactor: 0.1,
		ScaleFactor: params.scaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: gray.Pix,
			Rows:   rows,
			Cols:   cols,
			Dim:    gray.Stride,
		},
	}

	raw := cascade.classifier.RunCascade(cascadeParams, 0.0)
	raw = cascade.classifier.ClusterDetections(raw, 0.2)

	detections := make([]Detection, 0, len(raw))
	for _, det := range raw {
		if det.Q < params.minQuality {
			continue
		}

		half := det.Scale / 2
		box := image.Rect(det.Col-half, det.Row-half, det.Col-half+det.Scale, det.Row-half+det.Scale)
		detections = append(detections, Detection{
			Box:        box,
			Confidence: min(1.0, float64(det.Q)/qualityNorm),
		})
	}

	return detections
}

// ensemblePasses expands the classifier into the full declarative pass
// list swept by the ensemble quality gate.
func ensemblePasses(cascade *cascadeClassifier) []DetectorPass {
	passes := make([]DetectorPass, 0, len(ensembleScaleFactors)*len(ensembleQualities)*len(ensembleMinSizes))
	for _, scaleFactor := range ensembleScaleFactors {
		for _, quality := range ensembleQualities {
			for _, minSize := range ensembleMinSizes {
				params := passParams{scaleFactor: scaleFactor, minQuality: quality, minSize: minSize}
				passes = append(passes, func(gray *image.Gray) []Detection {
					return cascade.detect(gray, params)
				})
			}
		}
	}

	return passes
}

// singlePass builds the solitary pass used when a high-precision
// detector configuration is in effect: one balanced sweep, with the
// caller applying its own confidence filtering.
func singlePass(cascade *cascadeClassifier) DetectorPass {
	params := passParams{scaleFactor: 1.1, minQuality: 0, minSize: 20}
	return func(gray *image.Gray) []Detection {
		return cascade.detect(gray, params)
	}
}
