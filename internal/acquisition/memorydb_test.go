package acquisition

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"mediasift/internal/database"
)

type (
	// memoryDB is an in-memory stand-in for the acquisition tables,
	// implementing just enough of database.Queryable for the store's
	// statements. It keeps rows as the raw JSON the real driver would
	// see so no state is shared with the caller's structs.
	memoryDB struct {
		mu      sync.Mutex
		jobs    map[uuid.UUID]*memoryJobRow
		results []memoryResultRow
	}

	memoryJobRow struct {
		id           uuid.UUID
		status       JobStatus
		configJSON   []byte
		progress     float64
		statsJSON    []byte
		errorSummary *string
		createdAt    time.Time
		updatedAt    time.Time
	}

	memoryResultRow struct {
		id           uuid.UUID
		jobID        uuid.UUID
		source       string
		url          string
		localPath    string
		metadataJSON []byte
		downloadedAt time.Time
	}

	memoryExecResult struct{ rows int64 }
)

func (r memoryExecResult) LastInsertId() (int64, error) { return 0, nil }
func (r memoryExecResult) RowsAffected() (int64, error) { return r.rows, nil }

func newMemoryDB() *memoryDB {
	return &memoryDB{jobs: make(map[uuid.UUID]*memoryJobRow)}
}

func (db *memoryDB) Rebind(query string) string { return query }

func (db *memoryDB) Exec(query string, args ...interface{}) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	switch {
	case strings.Contains(query, "INSERT INTO acquisition_jobs"):
		row := &memoryJobRow{
			id:           args[0].(uuid.UUID),
			status:       args[1].(JobStatus),
			configJSON:   valueBytes(args[2]),
			progress:     args[3].(float64),
			statsJSON:    valueBytes(args[4]),
			errorSummary: args[5].(*string),
			createdAt:    args[6].(time.Time),
			updatedAt:    args[7].(time.Time),
		}
		db.jobs[row.id] = row
		return memoryExecResult{rows: 1}, nil

	case strings.Contains(query, "UPDATE acquisition_jobs"):
		id := args[5].(uuid.UUID)
		expectedUpdatedAt := args[6].(time.Time)

		row, ok := db.jobs[id]
		if !ok || !row.updatedAt.Equal(expectedUpdatedAt) {
			return memoryExecResult{rows: 0}, nil
		}

		row.status = args[0].(JobStatus)
		row.progress = args[1].(float64)
		row.statsJSON = valueBytes(args[2])
		row.errorSummary = args[3].(*string)
		row.updatedAt = args[4].(time.Time)
		return memoryExecResult{rows: 1}, nil

	case strings.Contains(query, "INSERT INTO acquisition_results"):
		db.results = append(db.results, memoryResultRow{
			id:           args[0].(uuid.UUID),
			jobID:        args[1].(uuid.UUID),
			source:       args[2].(string),
			url:          args[3].(string),
			localPath:    args[4].(string),
			metadataJSON: valueBytes(args[5]),
			downloadedAt: args[6].(time.Time),
		})
		return memoryExecResult{rows: 1}, nil
	}

	return nil, fmt.Errorf("memoryDB cannot execute query: %s", query)
}

func (db *memoryDB) Get(dest interface{}, query string, args ...interface{}) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	switch out := dest.(type) {
	case *int:
		id := args[0].(uuid.UUID)
		if _, ok := db.jobs[id]; ok {
			*out = 1
		} else {
			*out = 0
		}
		return nil

	case *jobModel:
		id := args[0].(uuid.UUID)
		row, ok := db.jobs[id]
		if !ok {
			return sql.ErrNoRows
		}

		return row.scanInto(out)
	}

	return fmt.Errorf("memoryDB cannot scan into %T", dest)
}

func (db *memoryDB) Select(dest interface{}, query string, args ...interface{}) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	switch out := dest.(type) {
	case *[]jobModel:
		for _, row := range db.jobs {
			var model jobModel
			if err := row.scanInto(&model); err != nil {
				return err
			}
			*out = append(*out, model)
		}
		return nil

	case *[]resultModel:
		jobID := args[0].(uuid.UUID)
		for _, row := range db.results {
			if row.jobID != jobID {
				continue
			}

			var model resultModel
			model.ID = row.id
			model.JobID = row.jobID
			model.Source = row.source
			model.URL = row.url
			model.LocalPath = row.localPath
			model.DownloadedAt = row.downloadedAt
			if err := model.Metadata.Scan(row.metadataJSON); err != nil {
				return err
			}
			*out = append(*out, model)
		}
		return nil
	}

	return fmt.Errorf("memoryDB cannot scan into %T", dest)
}

func (row *memoryJobRow) scanInto(model *jobModel) error {
	model.ID = row.id
	model.Status = row.status
	model.Progress = row.progress
	model.ErrorSummary = row.errorSummary
	model.CreatedAt = row.createdAt
	model.UpdatedAt = row.updatedAt

	if err := model.Config.Scan(row.configJSON); err != nil {
		return err
	}

	return model.Stats.Scan(row.statsJSON)
}

func valueBytes(arg interface{}) []byte {
	switch v := arg.(type) {
	case database.JsonColumn[JobConfig]:
		return mustValue(v.Value())
	case database.JsonColumn[QualityStats]:
		return mustValue(v.Value())
	case database.JsonColumn[map[string]any]:
		return mustValue(v.Value())
	}

	panic(fmt.Sprintf("valueBytes: unsupported argument type %T", arg))
}

func mustValue(value interface{}, err error) []byte {
	if err != nil {
		panic(err)
	}

	return value.([]byte)
}
