package acquisition

import (
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"mediasift/internal/database"
)

var (
	ErrJobNotFound = errors.New("acquisition job does not exist")

	// ErrStaleJob indicates the row was modified since the caller last
	// read it. The orchestrator is the sole writer per job, so this
	// firing means the single-writer invariant has been violated.
	ErrStaleJob = errors.New("acquisition job was updated concurrently")
)

type Store struct{}

func NewStore() *Store { return &Store{} }

// SaveJob inserts a brand new job row, stamping its created/updated
// times in the process.
func (store *Store) SaveJob(db database.Queryable, job *Job) error {
	config := database.NewJsonColumn(&job.Config)
	stats := database.NewJsonColumn(&job.Stats)

	now := time.Now().UTC().Truncate(time.Microsecond)
	_, err := db.Exec(`
		INSERT INTO acquisition_jobs(id, status, config, progress, stats, error_summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, job.ID, job.Status, config, job.Progress, stats, job.ErrorSummary, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert acquisition job: %w", err)
	}

	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// UpdateJob writes the jobs mutable fields, guarded by an optimistic
// check on the row's updated_at: the update only applies if the row has
// not changed since the caller read it. On success the jobs UpdatedAt
// is advanced to the fresh timestamp.
func (store *Store) UpdateJob(db database.Queryable, job *Job) error {
	stats := database.NewJsonColumn(&job.Stats)

	updatedAt := time.Now().UTC().Truncate(time.Microsecond)
	result, err := db.Exec(`
		UPDATE acquisition_jobs
		SET status=$1, progress=$2, stats=$3, error_summary=$4, updated_at=$5
		WHERE id=$6 AND updated_at=$7
	`, job.Status, job.Progress, stats, job.ErrorSummary, updatedAt, job.ID, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update acquisition job: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		if exists, existsErr := store.jobExists(db, job.ID); existsErr == nil && exists {
			return ErrStaleJob
		}

		return ErrJobNotFound
	}

	job.UpdatedAt = updatedAt
	return nil
}

func (store *Store) GetJob(db database.Queryable, id uuid.UUID) (*Job, error) {
	query, args, err := selectJobBuilder().Where("id=?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select job query: %w", err)
	}

	var model jobModel
	if err := db.Get(&model, db.Rebind(query), args...); err != nil {
		return nil, ErrJobNotFound
	}

	return jobModelToJob(&model), nil
}

func (store *Store) ListJobs(db database.Queryable) ([]*Job, error) {
	query, args, err := selectJobBuilder().OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list jobs query: %w", err)
	}

	var models []jobModel
	if err := db.Select(&models, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	jobs := make([]*Job, len(models))
	for k, v := range models {
		jobs[k] = jobModelToJob(&v)
	}

	return jobs, nil
}

// SaveResult records one accepted acquisition outcome.
func (store *Store) SaveResult(db database.Queryable, result *Result) error {
	metadata := database.NewJsonColumn(&result.Metadata)

	_, err := db.Exec(`
		INSERT INTO acquisition_results(id, job_id, source, url, local_path, metadata, downloaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, result.ID, result.JobID, result.Source, result.URL, result.LocalPath, metadata, result.DownloadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert acquisition result: %w", err)
	}

	return nil
}

func (store *Store) GetResultsForJob(db database.Queryable, jobID uuid.UUID) ([]*Result, error) {
	query, args, err := squirrel.
		Select("*").
		From("acquisition_results").
		Where("job_id=?", jobID).
		OrderBy("downloaded_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select results query: %w", err)
	}

	var models []resultModel
	if err := db.Select(&models, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	results := make([]*Result, len(models))
	for k, v := range models {
		results[k] = resultModelToResult(&v)
	}

	return results, nil
}

func (store *Store) jobExists(db database.Queryable, id uuid.UUID) (bool, error) {
	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM acquisition_jobs WHERE id=$1`, id); err != nil {
		return false, err
	}

	return count > 0, nil
}

func selectJobBuilder() squirrel.SelectBuilder {
	return squirrel.
		Select("id", "status", "config", "progress", "stats", "error_summary", "created_at", "updated_at").
		From("acquisition_jobs")
}
