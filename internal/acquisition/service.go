package acquisition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"mediasift/internal/database"
	"mediasift/internal/event"
	"mediasift/internal/fetch"
	"mediasift/internal/http/catalog"
	"mediasift/internal/video"
	"mediasift/pkg/logger"
	"mediasift/pkg/worker"
)

var log = logger.Get("AcquisServ")

var ErrNoSourceEnabled = errors.New("job config must enable at least one source")

type (
	catalogClient interface {
		Search(ctx context.Context, searchword string, page int, take int, filters *catalog.Filters) (*catalog.SearchResponse, error)
		Detail(ctx context.Context, itemID string) (*catalog.ItemDetail, error)
	}

	mediaFetcher interface {
		Fetch(ctx context.Context, url string, dest string, headers map[string]string, onProgress fetch.ProgressCallback) error
	}

	faceGate interface {
		ExtractFaces(img image.Image) []image.Image
	}

	videoAnalyzer interface {
		Analyze(ctx context.Context, path string) (*video.Report, error)
	}

	// acquisitionService owns the end-to-end lifecycle of acquisition
	// jobs: it accepts submissions, enumerates candidates through the
	// catalog client, fetches them, applies the quality gate, and records
	// each outcome. It is the single writer of every job's progress and
	// status fields; readers only ever observe committed snapshots.
	acquisitionService struct {
		*sync.Mutex
		catalog  catalogClient
		fetcher  mediaFetcher
		gate     faceGate
		analyzer videoAnalyzer

		store     *Store
		db        database.Queryable
		eventBus  event.EventCoordinator
		snapshots *Snapshotter
		validate  *validator.Validate

		config     Config
		queue      []uuid.UUID
		cancelled  map[uuid.UUID]bool
		runCtx     context.Context
		workerPool worker.WorkerPool
	}
)

// New constructs the acquisition service. The staging and snapshot
// directories are created if missing.
func New(
	config Config,
	db database.Queryable,
	eventBus event.EventCoordinator,
	catalogClient catalogClient,
	fetcher mediaFetcher,
	gate faceGate,
	analyzer videoAnalyzer,
) (*acquisitionService, error) {
	if err := os.MkdirAll(config.StagingPath, 0o755); err != nil {
		return nil, fmt.Errorf("staging path '%s' could not be created: %w", config.StagingPath, err)
	}

	snapshots, err := NewSnapshotter(config.SnapshotPath)
	if err != nil {
		return nil, err
	}

	service := &acquisitionService{
		Mutex:     &sync.Mutex{},
		catalog:   catalogClient,
		fetcher:   fetcher,
		gate:      gate,
		analyzer:  analyzer,
		store:     NewStore(),
		db:        db,
		eventBus:  eventBus,
		snapshots: snapshots,
		validate:  validator.New(),
		config:     config,
		queue:      make([]uuid.UUID, 0),
		cancelled:  make(map[uuid.UUID]bool),
		workerPool: *worker.NewWorkerPool(),
	}

	for i := 0; i < config.JobParallelism; i++ {
		label := fmt.Sprintf("acquisition-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.processNextJob))
	}

	return service, nil
}

// Run starts the job workers and blocks until the context is cancelled.
// Jobs that were still pending when the service last stopped are
// re-queued before the workers start.
func (service *acquisitionService) Run(ctx context.Context) error {
	service.runCtx = ctx
	service.requeuePendingJobs()

	if err := service.workerPool.Start(); err != nil {
		return err
	}
	defer service.workerPool.Close()

	<-ctx.Done()
	return nil
}

// Submit validates and persists a new job in 'pending' and returns its
// ID immediately; the work itself happens on the services job workers.
func (service *acquisitionService) Submit(config JobConfig) (uuid.UUID, error) {
	if err := service.validate.Struct(&config); err != nil {
		return uuid.Nil, fmt.Errorf("job config is invalid: %w", err)
	}

	if len(config.EnabledSources()) == 0 {
		return uuid.Nil, ErrNoSourceEnabled
	}

	job := &Job{
		ID:     uuid.New(),
		Status: Pending,
		Config: config,
	}

	if err := service.store.SaveJob(service.db, job); err != nil {
		return uuid.Nil, err
	}

	if err := service.snapshots.Write(job); err != nil {
		log.Emit(logger.WARNING, "Failed to mirror snapshot for new job %s: %v\n", job.ID, err)
	}

	service.enqueue(job.ID)
	service.eventBus.Dispatch(event.JobUpdateEvent, job.ID)

	log.Emit(logger.INFO, "Job %s submitted with sources %v\n", job.ID, config.EnabledSources())
	return job.ID, nil
}

// Cancel flags the job for cancellation. A running job observes the
// flag between items and terminates as 'failed' with a distinguishing
// message; a still-pending job fails at its first item check.
func (service *acquisitionService) Cancel(jobID uuid.UUID) {
	service.Lock()
	defer service.Unlock()

	service.cancelled[jobID] = true
	log.Emit(logger.INFO, "Job %s flagged for cancellation\n", jobID)
}

func (service *acquisitionService) GetJob(jobID uuid.UUID) (*Job, error) {
	return service.store.GetJob(service.db, jobID)
}

func (service *acquisitionService) ListJobs() ([]*Job, error) {
	return service.store.ListJobs(service.db)
}

func (service *acquisitionService) GetJobResults(jobID uuid.UUID) ([]*Result, error) {
	return service.store.GetResultsForJob(service.db, jobID)
}

// processNextJob is the worker pool task: claim one queued job and run
// it to a terminal state.
func (service *acquisitionService) processNextJob(w worker.Worker) (bool, error) {
	jobID, ok := service.claimQueuedJob()
	if !ok {
		return false, nil
	}

	job, err := service.store.GetJob(service.db, jobID)
	if err != nil {
		log.Emit(logger.ERROR, "Queued job %s could not be loaded: %v\n", jobID, err)
		return true, nil
	}

	if job.Status.IsTerminal() {
		log.Emit(logger.WARNING, "Queued job %s is already terminal (%s), skipping\n", jobID, job.Status)
		return true, nil
	}

	service.runJob(service.runCtx, job)
	return true, nil
}

// requeuePendingJobs reloads jobs that never ran to a terminal state so
// a restart does not strand them.
func (service *acquisitionService) requeuePendingJobs() {
	jobs, err := service.store.ListJobs(service.db)
	if err != nil {
		log.Emit(logger.ERROR, "Failed to list jobs for requeue: %v\n", err)
		return
	}

	for _, job := range jobs {
		if job.Status == Pending {
			service.enqueue(job.ID)
		}
	}
}

func (service *acquisitionService) enqueue(jobID uuid.UUID) {
	service.Lock()
	service.queue = append(service.queue, jobID)
	service.Unlock()

	service.workerPool.WakeupWorkers()
}

func (service *acquisitionService) claimQueuedJob() (uuid.UUID, bool) {
	service.Lock()
	defer service.Unlock()

	if len(service.queue) == 0 {
		return uuid.Nil, false
	}

	jobID := service.queue[0]
	service.queue = service.queue[1:]
	return jobID, true
}

func (service *acquisitionService) isCancelled(jobID uuid.UUID) bool {
	service.Lock()
	defer service.Unlock()

	return service.cancelled[jobID]
}

func (service *acquisitionService) clearCancelled(jobID uuid.UUID) {
	service.Lock()
	defer service.Unlock()

	delete(service.cancelled, jobID)
}
