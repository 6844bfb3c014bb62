package face

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// similaritySize is the fixed edge length both crops are resized to
// before being compared for content similarity.
const similaritySize = 64

// LoadImage decodes the image at the given path. An unreadable or
// undecodable file yields an error immediately; callers processing
// batches are expected to handle this per-item.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}

	return img, nil
}

// SaveImage encodes the image to the given path, with the format
// inferred from the file extension.
func SaveImage(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image %s: %w", path, err)
	}

	return nil
}

// toGray collapses the image to 8-bit luma. The detector backend
// operates on raw grayscale pixel buffers, so this is the common entry
// point for all detection paths.
func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			luma := (299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000
			gray.Pix[gray.PixOffset(x, y)] = uint8(luma)
		}
	}

	return gray
}

// equalizeHist performs in-place histogram equalisation, stretching the
// luma distribution to improve detection on low-contrast material.
func equalizeHist(gray *image.Gray) *image.Gray {
	var histogram [256]int
	for _, px := range gray.Pix {
		histogram[px]++
	}

	total := len(gray.Pix)
	if total == 0 {
		return gray
	}

	var lut [256]uint8
	cumulative := 0
	for i := 0; i < 256; i++ {
		cumulative += histogram[i]
		lut[i] = uint8((cumulative*255 + total/2) / total)
	}

	out := image.NewGray(gray.Bounds())
	for i, px := range gray.Pix {
		out.Pix[i] = lut[px]
	}

	return out
}

// grayStdDev is the contrast proxy used by the candidate validity
// checks; a near-uniform crop has a standard deviation close to zero.
func grayStdDev(gray *image.Gray) float64 {
	n := float64(len(gray.Pix))
	if n == 0 {
		return 0
	}

	var sum float64
	for _, px := range gray.Pix {
		sum += float64(px)
	}
	mean := sum / n

	var variance float64
	for _, px := range gray.Pix {
		diff := float64(px) - mean
		variance += diff * diff
	}

	return math.Sqrt(variance / n)
}

// meanLuma returns the average brightness of the image in [0,255].
func meanLuma(gray *image.Gray) float64 {
	n := float64(len(gray.Pix))
	if n == 0 {
		return 0
	}

	var sum float64
	for _, px := range gray.Pix {
		sum += float64(px)
	}

	return sum / n
}

// laplacianVariance computes the variance of a 4-neighbour Laplacian
// response over the image; low values indicate a lack of edges, the
// classic cheap blur detector.
func laplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	responses := make([]float64, 0, (w-2)*(h-2))
	var sum float64
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			response := float64(gray.GrayAt(x-1, y).Y) +
				float64(gray.GrayAt(x+1, y).Y) +
				float64(gray.GrayAt(x, y-1).Y) +
				float64(gray.GrayAt(x, y+1).Y) -
				4*center

			responses = append(responses, response)
			sum += response
		}
	}

	mean := sum / float64(len(responses))
	var variance float64
	for _, r := range responses {
		diff := r - mean
		variance += diff * diff
	}

	return variance / float64(len(responses))
}

// MeasureExposure returns the sharpness (Laplacian variance) and mean
// brightness of the image over a single grayscale conversion, for
// callers sampling many frames.
func MeasureExposure(img image.Image) (float64, float64) {
	gray := toGray(img)
	return laplacianVariance(gray), meanLuma(gray)
}

// contentSimilarity resizes both crops to a fixed small size and
// compares their mean absolute pixel difference, normalised to a [0,1]
// similarity where 1 means identical content. This is deliberately a
// content heuristic rather than geometric IoU: it also catches
// duplicate detections of the same face found at different rotations.
func contentSimilarity(a image.Image, b image.Image) float64 {
	aSmall := imaging.Resize(a, similaritySize, similaritySize, imaging.Lanczos)
	bSmall := imaging.Resize(b, similaritySize, similaritySize, imaging.Lanczos)

	var diff float64
	for i := range aSmall.Pix {
		d := float64(aSmall.Pix[i]) - float64(bSmall.Pix[i])
		if d < 0 {
			d = -d
		}
		diff += d
	}

	return 1 - diff/float64(len(aSmall.Pix))/255
}

// padAndClip expands the detection box by the asymmetric padding factors
// (faces need more headroom above and below than side-to-side) and clips
// the result to the image bounds.
func padAndClip(box image.Rectangle, bounds image.Rectangle, padX float64, padY float64) image.Rectangle {
	paddingX := int(float64(box.Dx()) * padX)
	paddingY := int(float64(box.Dy()) * padY)

	padded := image.Rect(
		box.Min.X-paddingX,
		box.Min.Y-paddingY,
		box.Max.X+paddingX,
		box.Max.Y+paddingY,
	)

	return padded.Intersect(bounds)
}
