package jobs

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"mediasift/internal/acquisition"
)

type (
	// Service is the slice of the acquisition service this controller
	// needs to serve its routes.
	Service interface {
		Submit(config acquisition.JobConfig) (uuid.UUID, error)
		Cancel(jobID uuid.UUID)
		GetJob(jobID uuid.UUID) (*acquisition.Job, error)
		ListJobs() ([]*acquisition.Job, error)
		GetJobResults(jobID uuid.UUID) ([]*acquisition.Result, error)
	}

	// JobsController defines the routes for submitting and inspecting
	// acquisition jobs.
	JobsController struct {
		service  Service
		validate *validator.Validate
	}

	submissionRequest struct {
		Sources map[string]bool                          `json:"sources" validate:"required"`
		Filters map[string]acquisition.SourceFilters     `json:"filters,omitempty"`
		Limits  acquisition.Limits                       `json:"limits"`
	}

	submissionResponse struct {
		ID uuid.UUID `json:"id"`
	}
)

func New(service Service) *JobsController {
	return &JobsController{service: service, validate: validator.New()}
}

// SetRoutes accepts the Echo group for the job endpoints and sets the
// routes on them.
func (controller *JobsController) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.create)
	eg.GET("/", controller.list)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.cancel)
	eg.GET("/:id/results/", controller.results)
}

// create validates the submitted config and hands it to the acquisition
// service, returning the new job ID immediately; the job itself runs in
// the background.
func (controller *JobsController) create(ctx echo.Context) error {
	var request submissionRequest
	if err := ctx.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "JSON body is malformed")
	}

	if err := controller.validate.Struct(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := controller.service.Submit(acquisition.JobConfig{
		Sources: request.Sources,
		Filters: request.Filters,
		Limits:  request.Limits,
	})
	if err != nil {
		if errors.Is(err, acquisition.ErrNoSourceEnabled) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ctx.JSON(http.StatusCreated, submissionResponse{ID: id})
}

func (controller *JobsController) list(ctx echo.Context) error {
	jobs, err := controller.service.ListJobs()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	dtos := make([]*JobDto, len(jobs))
	for k, v := range jobs {
		dtos[k] = NewJobDto(v)
	}

	return ctx.JSON(http.StatusOK, dtos)
}

// get uses the 'id' path param from the context and returns the latest
// committed snapshot of that job.
func (controller *JobsController) get(ctx echo.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Job ID is not a valid UUID")
	}

	job, err := controller.service.GetJob(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	return ctx.JSON(http.StatusOK, NewJobDto(job))
}

// cancel flags the job for cancellation; the acquisition service
// observes the flag between items.
func (controller *JobsController) cancel(ctx echo.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Job ID is not a valid UUID")
	}

	if _, err := controller.service.GetJob(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	controller.service.Cancel(id)
	return ctx.NoContent(http.StatusOK)
}

func (controller *JobsController) results(ctx echo.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Job ID is not a valid UUID")
	}

	if _, err := controller.service.GetJob(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	results, err := controller.service.GetJobResults(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	dtos := make([]*ResultDto, len(results))
	for k, v := range results {
		dtos[k] = NewResultDto(v)
	}

	return ctx.JSON(http.StatusOK, dtos)
}
