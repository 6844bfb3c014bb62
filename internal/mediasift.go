package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"mediasift/internal/acquisition"
	"mediasift/internal/api"
	"mediasift/internal/database"
	"mediasift/internal/event"
	"mediasift/internal/face"
	"mediasift/internal/fetch"
	"mediasift/internal/http/catalog"
	"mediasift/internal/video"
	"mediasift/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	// AcquisitionService is the surface of the acquisition package
	// consumed by the rest of the application.
	AcquisitionService interface {
		RunnableService
		Submit(acquisition.JobConfig) (uuid.UUID, error)
		Cancel(uuid.UUID)
		GetJob(uuid.UUID) (*acquisition.Job, error)
		ListJobs() ([]*acquisition.Job, error)
		GetJobResults(uuid.UUID) ([]*acquisition.Result, error)
	}
)

// mediaSift represents the top-level object for the server, and is
// responsible for initialising the database, the catalog client, the
// analysis pipeline and the services that consume them.
type mediaSift struct {
	eventBus event.EventCoordinator
	config   MediaSiftConfig

	catalogClient *catalog.Client
	fetcher       *fetch.Fetcher
	faceExtractor *face.Extractor
	videoAnalyzer *video.Analyzer

	acquisitionService AcquisitionService
	restGateway        RunnableService
}

func New(config MediaSiftConfig) *mediaSift {
	log.Emit(logger.DEBUG, "Bootstrapping MediaSift services using config: %#v\n", config)
	sift := &mediaSift{
		eventBus:      event.New(),
		config:        config,
		catalogClient: catalog.NewClient(config.Catalog),
		fetcher:       fetch.New(config.Fetch),
	}

	if extractor, err := face.NewExtractor(config.Face); err == nil {
		sift.faceExtractor = extractor
	} else {
		panic(fmt.Sprintf("failed to construct face extractor due to error: %s", err.Error()))
	}

	sift.videoAnalyzer = video.NewAnalyzer(config.Video, sift.faceExtractor)

	return sift
}

// Run will start all of MediaSift by bringing up the database
// connection and services. This function will not return until
// MediaSift is stopped; to stop it, cancel the provided context.
func (sift *mediaSift) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	if sift.config.Redis.Addr != "" {
		log.Emit(logger.NEW, "Connecting catalog detail cache to Redis at %s...\n", sift.config.Redis.Addr)
		cache, err := catalog.NewRedisDetailCache(ctx, sift.config.Redis)
		if err != nil {
			return err
		}

		sift.catalogClient.WithDetailCache(cache)
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	db := database.New()
	if err := db.Connect(sift.config.Database); err != nil {
		return err
	}

	log.Emit(logger.NEW, "Initialising acquisition service...\n")
	serv, err := acquisition.New(
		sift.config.Acquisition,
		db.GetSqlxDb(),
		sift.eventBus,
		sift.catalogClient,
		sift.fetcher,
		sift.faceExtractor,
		sift.videoAnalyzer,
	)
	if err != nil {
		return fmt.Errorf("failed to construct acquisition service: %w", err)
	}
	sift.acquisitionService = serv

	sift.restGateway = api.NewRestGateway(&sift.config.Rest, sift.acquisitionService, sift.catalogClient, sift.eventBus)

	wg := &sync.WaitGroup{}
	sift.spawnAsyncService(ctx, wg, sift.acquisitionService, "acquisition-service", crashHandler)
	sift.spawnAsyncService(ctx, wg, sift.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "MediaSift services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the service waitgroup is updated correctly
func (sift *mediaSift) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
