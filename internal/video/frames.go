package video

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"mediasift/pkg/logger"
)

var log = logger.Get("Video")

// extractSampledFrames dumps every Nth frame of the source video as a
// JPEG under outputDir and returns the resulting paths in frame order.
// The frame dump is delegated to the ffmpeg binary directly as image
// sequence output is not something the transcoding wrapper models.
func extractSampledFrames(ctx context.Context, sourcePath string, outputDir string, config Config) ([]string, error) {
	interval := config.FrameInterval
	if interval <= 0 {
		interval = 1
	}

	outputPattern := filepath.Join(outputDir, "frame_%06d.jpg")
	cmd := exec.CommandContext(ctx, config.FfmpegBinPath,
		"-hide_banner", "-loglevel", "error",
		"-i", sourcePath,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", interval),
		"-vsync", "vfr",
		"-q:v", "2",
		outputPattern,
	)

	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("failed to extract frames from %s: %s (%s)", sourcePath, err.Error(), string(output))
	}

	matches, err := filepath.Glob(filepath.Join(outputDir, "frame_*.jpg"))
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)
	log.Emit(logger.DEBUG, "Extracted %d sampled frames from %s\n", len(matches), sourcePath)
	return matches, nil
}

// withFrameDir runs fn against a throwaway directory for extracted
// frames, cleaning it up regardless of outcome.
func withFrameDir(fn func(dir string) error) error {
	dir, err := os.MkdirTemp("", "mediasift-frames-")
	if err != nil {
		return fmt.Errorf("failed to create frame extraction dir: %w", err)
	}
	defer os.RemoveAll(dir)

	return fn(dir)
}
