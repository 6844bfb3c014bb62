package face

import "image"

const (
	minQualityDimension = 256

	blurThreshold        = 100.0
	lowContrastThreshold = 20.0
	minBrightness        = 40.0
	maxBrightness        = 215.0
)

// QualityReport carries the measurements behind a pre-screen verdict so
// callers can log or persist why an image was rejected.
type QualityReport struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Sharpness  float64 `json:"sharpness"`
	Contrast   float64 `json:"contrast"`
	Brightness float64 `json:"brightness"`
	Reason     string  `json:"reason,omitempty"`
}

// CheckImageQuality is the cheap pre-screen run before face detection:
// undersized, blurry, flat or badly exposed images are rejected without
// spending detector time on them. The first failing check wins and is
// recorded as the reason.
func CheckImageQuality(img image.Image) (bool, QualityReport) {
	bounds := img.Bounds()
	report := QualityReport{Width: bounds.Dx(), Height: bounds.Dy()}

	if report.Width < minQualityDimension || report.Height < minQualityDimension {
		report.Reason = "image too small"
		return false, report
	}

	gray := toGray(img)
	report.Sharpness = laplacianVariance(gray)
	report.Contrast = grayStdDev(gray)
	report.Brightness = meanLuma(gray)

	if report.Sharpness < blurThreshold {
		report.Reason = "image too blurry"
		return false, report
	}

	if report.Contrast < lowContrastThreshold {
		report.Reason = "image contrast too low"
		return false, report
	}

	if report.Brightness < minBrightness || report.Brightness > maxBrightness {
		report.Reason = "image too dark or too bright"
		return false, report
	}

	return true, report
}
