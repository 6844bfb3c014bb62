package acquisition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type (
	// JobSnapshot is the flat-file mirror of a job record, written after
	// every persisted change so the latest state survives metadata-store
	// unavailability.
	JobSnapshot struct {
		Job        Job       `json:"job"`
		LastUpdate time.Time `json:"last_update"`
	}

	Snapshotter struct {
		dir string
	}
)

// NewSnapshotter ensures the snapshot directory exists and returns a
// writer for it.
func NewSnapshotter(dir string) (*Snapshotter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot directory %s could not be created: %w", dir, err)
	}

	return &Snapshotter{dir: dir}, nil
}

// Write mirrors the job to its snapshot file. The write goes through a
// temporary file and rename so readers never observe a torn snapshot.
func (snapshotter *Snapshotter) Write(job *Job) error {
	snapshot := JobSnapshot{Job: *job, LastUpdate: time.Now().UTC()}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for job %s: %w", job.ID, err)
	}

	path := snapshotter.pathFor(job.ID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot for job %s: %w", job.ID, err)
	}

	return os.Rename(tmpPath, path)
}

// Read loads the snapshot for the given job, if one exists.
func (snapshotter *Snapshotter) Read(jobID uuid.UUID) (*JobSnapshot, error) {
	data, err := os.ReadFile(snapshotter.pathFor(jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot for job %s: %w", jobID, err)
	}

	var snapshot JobSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for job %s: %w", jobID, err)
	}

	return &snapshot, nil
}

func (snapshotter *Snapshotter) pathFor(jobID uuid.UUID) string {
	return filepath.Join(snapshotter.dir, fmt.Sprintf("%s.json", jobID))
}
