package acquisition

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"mediasift/internal/database"
	"mediasift/internal/http/catalog"
)

type (
	JobStatus    string
	RejectReason string

	// SourceFilters is the per-source slice of a job configuration; every
	// field is optional and omitted fields are never sent to the remote.
	SourceFilters struct {
		Search            string   `json:"search,omitempty"`
		MinDuration       *int     `json:"min_duration,omitempty"`
		MaxDuration       *int     `json:"max_duration,omitempty"`
		MinQuality        *string  `json:"min_quality,omitempty"`
		Categories        []string `json:"categories,omitempty"`
		ExcludeCategories []string `json:"exclude_categories,omitempty"`
		MinRating         *float64 `json:"min_rating,omitempty"`
		DateAfter         *string  `json:"date_after,omitempty"`
		DateBefore        *string  `json:"date_before,omitempty"`
	}

	Limits struct {
		// Max caps how many items a job will accept; zero means no cap.
		Max int `json:"max" validate:"gte=0"`
	}

	// JobConfig is the user-supplied description of one acquisition run.
	// At least one source must be enabled for the config to be accepted.
	JobConfig struct {
		Sources map[string]bool          `json:"sources" validate:"required"`
		Filters map[string]SourceFilters `json:"filters,omitempty"`
		Limits  Limits                   `json:"limits"`
	}

	// QualityStats is the aggregate outcome accounting for a job. The
	// reject counters are keyed to the classified rejection reasons.
	QualityStats struct {
		TotalProcessed int `json:"total_processed"`
		FaceDetected   int `json:"face_detected"`
		LowResolution  int `json:"low_resolution"`
		NoFace         int `json:"no_face"`
		DownloadErrors int `json:"download_errors"`
	}

	Job struct {
		ID           uuid.UUID    `json:"id"`
		Status       JobStatus    `json:"status"`
		Config       JobConfig    `json:"config"`
		Progress     float64      `json:"progress"`
		Stats        QualityStats `json:"stats"`
		ErrorSummary *string      `json:"error_summary,omitempty"`
		CreatedAt    time.Time    `json:"created_at"`
		UpdatedAt    time.Time    `json:"updated_at"`
	}

	// Result is one accepted acquisition outcome: a fetched file which
	// passed the quality gate, plus the metadata gathered on the way.
	// Results are the sole hand-off point to downstream consumers.
	Result struct {
		ID           uuid.UUID      `json:"id"`
		JobID        uuid.UUID      `json:"job_id"`
		Source       string         `json:"source"`
		URL          string         `json:"url"`
		LocalPath    string         `json:"local_path"`
		Metadata     map[string]any `json:"metadata,omitempty"`
		DownloadedAt time.Time      `json:"downloaded_at"`
	}

	jobModel struct {
		ID           uuid.UUID                         `db:"id"`
		Status       JobStatus                         `db:"status"`
		Config       database.JsonColumn[JobConfig]    `db:"config"`
		Progress     float64                           `db:"progress"`
		Stats        database.JsonColumn[QualityStats] `db:"stats"`
		ErrorSummary *string                           `db:"error_summary"`
		CreatedAt    time.Time                         `db:"created_at"`
		UpdatedAt    time.Time                         `db:"updated_at"`
	}

	resultModel struct {
		ID           uuid.UUID                           `db:"id"`
		JobID        uuid.UUID                           `db:"job_id"`
		Source       string                              `db:"source"`
		URL          string                              `db:"url"`
		LocalPath    string                              `db:"local_path"`
		Metadata     database.JsonColumn[map[string]any] `db:"metadata"`
		DownloadedAt time.Time                           `db:"downloaded_at"`
	}
)

const (
	Pending             JobStatus = "pending"
	Running             JobStatus = "running"
	Completed           JobStatus = "completed"
	CompletedWithErrors JobStatus = "completed_with_errors"
	Failed              JobStatus = "failed"
)

const (
	RejectLowResolution RejectReason = "low_resolution"
	RejectNoFace        RejectReason = "no_face"
	RejectDownloadError RejectReason = "download_error"
)

// IsTerminal reports whether the status permits no further transitions.
func (status JobStatus) IsTerminal() bool {
	switch status {
	case Completed, CompletedWithErrors, Failed:
		return true
	default:
		return false
	}
}

// EnabledSources returns the names of the sources switched on in the
// config, in lexical order so enumeration order is deterministic.
func (config *JobConfig) EnabledSources() []string {
	enabled := make([]string, 0, len(config.Sources))
	for source, on := range config.Sources {
		if on {
			enabled = append(enabled, source)
		}
	}

	sort.Strings(enabled)
	return enabled
}

// CatalogFilters maps the job-level filters for a source on to the
// catalog wire contract. Returns nil when no filters were configured so
// the Filters object is omitted from the payload entirely.
func (config *JobConfig) CatalogFilters(source string) *catalog.Filters {
	filters, ok := config.Filters[source]
	if !ok {
		return nil
	}

	mapped := catalog.Filters{
		MinDuration:       filters.MinDuration,
		MaxDuration:       filters.MaxDuration,
		MinQuality:        filters.MinQuality,
		Categories:        filters.Categories,
		ExcludeCategories: filters.ExcludeCategories,
		MinRating:         filters.MinRating,
		DateAfter:         filters.DateAfter,
		DateBefore:        filters.DateBefore,
	}

	empty := mapped.MinDuration == nil && mapped.MaxDuration == nil && mapped.MinQuality == nil &&
		len(mapped.Categories) == 0 && len(mapped.ExcludeCategories) == 0 &&
		mapped.MinRating == nil && mapped.DateAfter == nil && mapped.DateBefore == nil
	if empty {
		return nil
	}

	return &mapped
}

// SearchwordFor returns the configured search text for a source, which
// may be empty.
func (config *JobConfig) SearchwordFor(source string) string {
	return config.Filters[source].Search
}

// Rejects is the total number of classified rejections recorded so far.
func (stats *QualityStats) Rejects() int {
	return stats.LowResolution + stats.NoFace + stats.DownloadErrors
}

// RecordReject bumps the counter matching the classified reason.
func (stats *QualityStats) RecordReject(reason RejectReason) {
	switch reason {
	case RejectLowResolution:
		stats.LowResolution++
	case RejectNoFace:
		stats.NoFace++
	case RejectDownloadError:
		stats.DownloadErrors++
	}
}

func jobModelToJob(model *jobModel) *Job {
	job := &Job{
		ID:           model.ID,
		Status:       model.Status,
		Progress:     model.Progress,
		ErrorSummary: model.ErrorSummary,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}

	if config := model.Config.Get(); config != nil {
		job.Config = *config
	}
	if stats := model.Stats.Get(); stats != nil {
		job.Stats = *stats
	}

	return job
}

func resultModelToResult(model *resultModel) *Result {
	result := &Result{
		ID:           model.ID,
		JobID:        model.JobID,
		Source:       model.Source,
		URL:          model.URL,
		LocalPath:    model.LocalPath,
		DownloadedAt: model.DownloadedAt,
	}

	if metadata := model.Metadata.Get(); metadata != nil {
		result.Metadata = *metadata
	}

	return result
}
