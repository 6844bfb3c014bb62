package video

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/floostack/transcoder/ffmpeg"
)

type (
	Config struct {
		FfmpegBinPath  string `yaml:"ffmpeg_binary" env:"FORMAT_FFMPEG_BINARY_PATH" env-default:"/usr/bin/ffmpeg"`
		FfprobeBinPath string `yaml:"ffprobe_binary" env:"FORMAT_FFPROBE_BINARY_PATH" env-default:"/usr/bin/ffprobe"`

		// FrameInterval is the sampling stride for per-frame analysis:
		// every Nth frame of the source is extracted and inspected.
		FrameInterval int `yaml:"frame_interval" env:"VIDEO_FRAME_INTERVAL" env-default:"30"`

		// Concurrency bounds how many sampled frames are analyzed at once.
		Concurrency int `yaml:"concurrency" env:"VIDEO_ANALYSIS_CONCURRENCY" env-default:"4"`
	}

	// Metadata is the container-level information for a video file, with
	// the duration derived from the frame count and rate.
	Metadata struct {
		Width      int     `json:"width"`
		Height     int     `json:"height"`
		Fps        float64 `json:"fps"`
		FrameCount int     `json:"frame_count"`
		Duration   float64 `json:"duration"`
		Codec      string  `json:"codec"`
	}
)

// ProbeFile extracts container metadata for the file using ffprobe. The
// first video stream is used; files with no video stream are an error.
func ProbeFile(path string, config Config) (*Metadata, error) {
	ffprobe := ffmpeg.New(&ffmpeg.Config{
		FfmpegBinPath:  config.FfmpegBinPath,
		FfprobeBinPath: config.FfprobeBinPath,
	}).Input(path)

	probed, err := ffprobe.GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to extract file metadata information using ffprobe: %s", err.Error())
	}

	for _, stream := range probed.GetStreams() {
		if stream.GetCodecType() != "video" {
			continue
		}

		metadata := Metadata{
			Width:  stream.GetWidth(),
			Height: stream.GetHeight(),
			Fps:    parseFrameRate(stream.GetAvgFrameRate()),
			Codec:  stream.GetCodecName(),
		}

		if duration, err := strconv.ParseFloat(probed.GetFormat().GetDuration(), 64); err == nil {
			metadata.FrameCount = int(math.Round(duration * metadata.Fps))
			metadata.Duration = duration
		}

		return &metadata, nil
	}

	return nil, fmt.Errorf("no video stream present in %s", path)
}

// parseFrameRate converts ffprobe's rational frame rate ("30000/1001")
// to a float, returning 0 for malformed or zero-denominator input.
func parseFrameRate(rate string) float64 {
	parts := strings.SplitN(rate, "/", 2)
	numerator, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}

	if len(parts) == 1 {
		return numerator
	}

	denominator, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || denominator == 0 {
		return 0
	}

	return numerator / denominator
}
