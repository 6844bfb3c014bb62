package acquisition

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"mediasift/internal/event"
	"mediasift/internal/face"
	"mediasift/internal/http/catalog"
	"mediasift/pkg/logger"
)

// minAcceptedDimension is the resolution floor the quality gate applies
// on both axes before a still can become a result.
const minAcceptedDimension = 1080

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".webm": true, ".wmv": true, ".flv": true, ".m4v": true,
}

type candidate struct {
	source string
	item   catalog.SearchResultItem
}

// runJob drives one job from 'running' to a terminal state. Every item
// outcome is recorded individually; only an enumeration-level failure
// flips the whole job to 'failed'.
func (service *acquisitionService) runJob(ctx context.Context, job *Job) {
	defer service.clearCancelled(job.ID)

	job.Status = Running
	service.persistJob(job, event.JobUpdateEvent)
	log.Emit(logger.INFO, "Job %s is now running\n", job.ID)

	candidates, err := service.enumerate(ctx, job)
	if err != nil {
		summary := fmt.Sprintf("catalog enumeration failed: %s", err.Error())
		service.finishJob(job, Failed, &summary)
		return
	}

	accepted := 0
	for index, cand := range candidates {
		if service.isCancelled(job.ID) {
			summary := "job cancelled before completion"
			service.finishJob(job, Failed, &summary)
			return
		}

		if max := job.Config.Limits.Max; max > 0 && accepted >= max {
			log.Emit(logger.INFO, "Job %s reached its accept limit of %d, stopping early\n", job.ID, max)
			break
		}

		if service.processItem(ctx, job, cand) {
			accepted++
		}

		job.Stats.TotalProcessed++
		job.Progress = float64(index+1) / float64(len(candidates)) * 100
		service.persistJob(job, event.JobProgressEvent)
	}

	if job.Stats.Rejects() == 0 {
		service.finishJob(job, Completed, nil)
	} else {
		summary := fmt.Sprintf("%d of %d items were rejected", job.Stats.Rejects(), job.Stats.TotalProcessed)
		service.finishJob(job, CompletedWithErrors, &summary)
	}
}

// enumerate gathers the candidate items for every enabled source. A
// failure here means no items could even be attempted, which is the
// only fault that fails the job outright.
func (service *acquisitionService) enumerate(ctx context.Context, job *Job) ([]candidate, error) {
	take := service.config.SearchPageSize
	if take <= 0 {
		take = 50
	}

	candidates := make([]candidate, 0)
	for _, source := range job.Config.EnabledSources() {
		searchword := job.Config.SearchwordFor(source)
		filters := job.Config.CatalogFilters(source)

		items := make([]catalog.SearchResultItem, 0)
		for page := 1; ; page++ {
			response, err := service.catalog.Search(ctx, searchword, page, take, filters)
			if err != nil {
				return nil, fmt.Errorf("search against source '%s' failed: %w", source, err)
			}

			items = append(items, response.Items...)

			if len(response.Items) == 0 || len(response.Items) < take {
				break
			}
		}

		// Best title matches are attempted first so an accept limit
		// spends its budget on the most relevant items.
		if searchword != "" {
			catalog.RankResults(items, searchword)
		}

		for _, item := range items {
			candidates = append(candidates, candidate{source: source, item: item})
		}
	}

	log.Emit(logger.INFO, "Job %s enumerated %d candidate items\n", job.ID, len(candidates))
	return candidates, nil
}

// processItem runs a single candidate through fetch and the quality
// gate, recording either an accepted result or a classified rejection.
// Item-level failures never propagate; the job continues regardless.
func (service *acquisitionService) processItem(ctx context.Context, job *Job, cand candidate) bool {
	detail, err := service.catalog.Detail(ctx, cand.item.ID)
	if err != nil {
		service.rejectItem(job, cand, RejectDownloadError, fmt.Sprintf("detail lookup failed: %s", err.Error()), "")
		return false
	}

	mediaURL := detail.VideoURL
	if mediaURL == "" && len(detail.Images) > 0 {
		mediaURL = detail.Images[0]
	}
	if mediaURL == "" {
		service.rejectItem(job, cand, RejectDownloadError, "item carries no downloadable media", "")
		return false
	}

	dest := service.stagingPathFor(job.ID, cand.item.ID, mediaURL)
	if err := service.fetcher.Fetch(ctx, mediaURL, dest, nil, nil); err != nil {
		service.rejectItem(job, cand, RejectDownloadError, err.Error(), "")
		return false
	}

	metadata := map[string]any{
		"title":   detail.Title,
		"site":    detail.Site,
		"quality": detail.Quality,
		"rating":  detail.Rating,
	}

	if videoExtensions[strings.ToLower(filepath.Ext(dest))] {
		report, err := service.analyzer.Analyze(ctx, dest)
		if err != nil {
			service.rejectItem(job, cand, RejectDownloadError, fmt.Sprintf("video analysis failed: %s", err.Error()), dest)
			return false
		}

		metadata["analysis"] = report
	} else {
		faces, reason, detailMsg := service.applyQualityGate(dest)
		if reason != "" {
			service.rejectItem(job, cand, reason, detailMsg, dest)
			return false
		}

		metadata["faces"] = faces
		job.Stats.FaceDetected++
	}

	result := &Result{
		ID:           uuid.New(),
		JobID:        job.ID,
		Source:       cand.source,
		URL:          mediaURL,
		LocalPath:    dest,
		Metadata:     metadata,
		DownloadedAt: time.Now().UTC(),
	}

	if err := service.store.SaveResult(service.db, result); err != nil {
		log.Emit(logger.ERROR, "Failed to persist result for job %s item %s: %v\n", job.ID, cand.item.ID, err)
		service.rejectItem(job, cand, RejectDownloadError, "result could not be persisted", dest)
		return false
	}

	service.eventBus.Dispatch(event.NewResultEvent, result.ID)
	log.Emit(logger.SUCCESS, "Job %s accepted item %s -> %s\n", job.ID, cand.item.ID, dest)
	return true
}

// applyQualityGate decides whether a staged still is usable. The empty
// reason means the still was accepted; otherwise the staged file must
// not become a result. Acceptance requires the minimum resolution on
// both axes AND at least one validated face.
func (service *acquisitionService) applyQualityGate(stagedPath string) (int, RejectReason, string) {
	img, err := face.LoadImage(stagedPath)
	if err != nil {
		return 0, RejectDownloadError, fmt.Sprintf("staged file is unreadable: %s", err.Error())
	}

	bounds := img.Bounds()
	if bounds.Dx() < minAcceptedDimension || bounds.Dy() < minAcceptedDimension {
		return 0, RejectLowResolution, fmt.Sprintf("resolution %dx%d below %dpx floor", bounds.Dx(), bounds.Dy(), minAcceptedDimension)
	}

	// Cheap screen first so blurry or badly exposed stills skip the
	// full detection sweep.
	if ok, report := face.CheckImageQuality(img); !ok {
		return 0, RejectNoFace, report.Reason
	}

	faces := service.gate.ExtractFaces(img)
	if len(faces) == 0 {
		return 0, RejectNoFace, "no valid face found"
	}

	return len(faces), "", ""
}

// rejectItem records a classified rejection and removes the staged file
// (if any) so rejected media never lingers in staging.
func (service *acquisitionService) rejectItem(job *Job, cand candidate, reason RejectReason, detail string, stagedPath string) {
	job.Stats.RecordReject(reason)

	if stagedPath != "" {
		if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
			log.Emit(logger.WARNING, "Failed to remove rejected staged file %s: %v\n", stagedPath, err)
		}
	}

	log.Emit(logger.WARNING, "Job %s rejected item %s (%s): %s\n", job.ID, cand.item.ID, reason, detail)
}

// finishJob transitions the job to a terminal state exactly once; a job
// that is already terminal is never rewritten.
func (service *acquisitionService) finishJob(job *Job, status JobStatus, summary *string) {
	if job.Status.IsTerminal() {
		log.Emit(logger.ERROR, "Refusing to transition terminal job %s (%s) to %s\n", job.ID, job.Status, status)
		return
	}

	job.Status = status
	job.ErrorSummary = summary
	if status != Failed {
		job.Progress = 100
	}

	service.persistJob(job, event.JobCompleteEvent)
	log.Emit(logger.INFO, "Job %s finished with status %s\n", job.ID, status)
}

// persistJob writes the job to the store, mirrors its snapshot, and
// announces the change on the event bus. Store failures are logged but
// do not halt the run; the snapshot mirror still captures the state.
func (service *acquisitionService) persistJob(job *Job, evt event.Event) {
	if err := service.store.UpdateJob(service.db, job); err != nil {
		log.Emit(logger.ERROR, "Failed to persist job %s: %v\n", job.ID, err)
	}

	if err := service.snapshots.Write(job); err != nil {
		log.Emit(logger.WARNING, "Failed to mirror snapshot for job %s: %v\n", job.ID, err)
	}

	service.eventBus.Dispatch(evt, job.ID)
}

// stagingPathFor builds the on-disk destination for a fetched item,
// namespaced per job. The extension is carried over from the media URL
// when it has one.
func (service *acquisitionService) stagingPathFor(jobID uuid.UUID, itemID string, mediaURL string) string {
	ext := ""
	if parsed, err := url.Parse(mediaURL); err == nil {
		ext = path.Ext(parsed.Path)
	}

	dir := filepath.Join(service.config.StagingPath, jobID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Emit(logger.WARNING, "Failed to create staging dir %s: %v\n", dir, err)
	}

	return filepath.Join(dir, itemID+ext)
}
