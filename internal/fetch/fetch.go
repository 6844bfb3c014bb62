package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"mediasift/pkg/logger"
)

var log = logger.Get("Fetch")

const (
	defaultChunkSize = 8192

	// tempSuffix is appended to the destination name while a transfer is
	// in-flight. The rename to the final name is the commit point; a
	// partially downloaded file is never visible under the final name.
	tempSuffix = ".tmp"
)

type (
	// Progress is a transient snapshot of an in-flight transfer,
	// recomputed on every chunk boundary.
	Progress struct {
		TotalBytes      int64
		DownloadedBytes int64
		Speed           float64 // bytes per second
		Eta             float64 // estimated seconds remaining, 0 when speed is 0
	}

	ProgressCallback func(Progress)

	Config struct {
		ChunkSize      int           `yaml:"chunk_size" env:"FETCH_CHUNK_SIZE" env-default:"8192"`
		AttemptTimeout time.Duration `yaml:"attempt_timeout" env:"FETCH_ATTEMPT_TIMEOUT" env-default:"30m"`
	}

	// Fetcher streams remote resources to local storage in fixed-size
	// chunks, resuming from a partial temporary file where one exists.
	Fetcher struct {
		client    *http.Client
		chunkSize int
	}
)

func New(config Config) *Fetcher {
	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	return &Fetcher{
		client:    &http.Client{Timeout: config.AttemptTimeout},
		chunkSize: chunkSize,
	}
}

// Fetch downloads the resource at the given URL to the destination path.
// If a temporary file from a previous (interrupted) attempt exists, the
// transfer is resumed from its current size using a byte-range request.
// The progress callback, when non-nil, is invoked after every chunk.
//
// On failure the partial data is left under the temporary name so that a
// later call can resume; the destination path is only ever populated by
// an atomic rename of a fully-downloaded file.
func (fetcher *Fetcher) Fetch(ctx context.Context, url string, dest string, headers map[string]string, onProgress ProgressCallback) error {
	tempPath := dest + tempSuffix

	totalSize, err := fetcher.remoteSize(ctx, url, headers)
	if err != nil {
		return fmt.Errorf("failed to query remote size of %s: %w", url, err)
	}

	var startByte int64
	if info, err := os.Stat(tempPath); err == nil {
		startByte = info.Size()
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat temporary file %s: %w", tempPath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to construct fetch request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if startByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
		log.Emit(logger.DEBUG, "Resuming transfer of %s from byte %d\n", url, startByte)
	}

	resp, err := fetcher.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch of %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored (or was never sent) our range request and is
		// replaying the resource from the beginning.
		startByte = 0
	case http.StatusPartialContent:
	default:
		return fmt.Errorf("fetch of %s failed: unexpected status %d", url, resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if startByte == 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	out, err := os.OpenFile(tempPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open temporary file %s: %w", tempPath, err)
	}

	if err := fetcher.streamBody(resp.Body, out, totalSize, startByte, onProgress); err != nil {
		out.Close()
		return fmt.Errorf("transfer of %s interrupted: %w", url, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finalise temporary file %s: %w", tempPath, err)
	}

	// Commit point. Anything before this leaves only the temporary file.
	if err := os.Rename(tempPath, dest); err != nil {
		return fmt.Errorf("failed to commit completed transfer to %s: %w", dest, err)
	}

	log.Emit(logger.SUCCESS, "Fetched %s -> %s\n", url, dest)
	return nil
}

// streamBody copies the response body to the output file in fixed-size
// chunks, reporting progress after each one.
func (fetcher *Fetcher) streamBody(body io.Reader, out *os.File, totalSize int64, startByte int64, onProgress ProgressCallback) error {
	downloaded := startByte
	startTime := time.Now()
	buf := make([]byte, fetcher.chunkSize)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return err
			}

			downloaded += int64(n)
			if onProgress != nil {
				onProgress(snapshotProgress(totalSize, downloaded, time.Since(startTime)))
			}
		}

		if readErr == io.EOF {
			return nil
		} else if readErr != nil {
			return readErr
		}
	}
}

// remoteSize issues a metadata-only request to learn the total size of
// the resource. A missing or malformed Content-Length yields 0 (unknown).
func (fetcher *Fetcher) remoteSize(ctx context.Context, url string, headers map[string]string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := fetcher.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.ContentLength > 0 {
		return resp.ContentLength, nil
	}

	return 0, nil
}

func snapshotProgress(total int64, downloaded int64, elapsed time.Duration) Progress {
	var speed, eta float64
	if elapsed.Seconds() > 0 {
		speed = float64(downloaded) / elapsed.Seconds()
	}
	if speed > 0 && total > 0 {
		eta = float64(total-downloaded) / speed
	}

	return Progress{
		TotalBytes:      total,
		DownloadedBytes: downloaded,
		Speed:           speed,
		Eta:             eta,
	}
}
