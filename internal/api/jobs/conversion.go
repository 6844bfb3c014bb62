package jobs

import (
	"time"

	"github.com/google/uuid"
	"mediasift/internal/acquisition"
)

type (
	JobDto struct {
		ID           uuid.UUID                `json:"id"`
		Status       acquisition.JobStatus    `json:"status"`
		Progress     float64                  `json:"progress"`
		Stats        acquisition.QualityStats `json:"stats"`
		ErrorSummary *string                  `json:"error_summary,omitempty"`
		CreatedAt    time.Time                `json:"created_at"`
		UpdatedAt    time.Time                `json:"updated_at"`
	}

	ResultDto struct {
		ID           uuid.UUID      `json:"id"`
		JobID        uuid.UUID      `json:"job_id"`
		Source       string         `json:"source"`
		URL          string         `json:"url"`
		LocalPath    string         `json:"local_path"`
		Metadata     map[string]any `json:"metadata,omitempty"`
		DownloadedAt time.Time      `json:"downloaded_at"`
	}
)

func NewJobDto(job *acquisition.Job) *JobDto {
	return &JobDto{
		ID:           job.ID,
		Status:       job.Status,
		Progress:     job.Progress,
		Stats:        job.Stats,
		ErrorSummary: job.ErrorSummary,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

func NewResultDto(result *acquisition.Result) *ResultDto {
	return &ResultDto{
		ID:           result.ID,
		JobID:        result.JobID,
		Source:       result.Source,
		URL:          result.URL,
		LocalPath:    result.LocalPath,
		Metadata:     result.Metadata,
		DownloadedAt: result.DownloadedAt,
	}
}
