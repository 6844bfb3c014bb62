package api

import (
	"context"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"mediasift/internal/api/jobs"
	"mediasift/internal/api/sites"
	"mediasift/internal/event"
	"mediasift/internal/http/websocket"
	"mediasift/pkg/logger"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin wrapper around the Echo HTTP router. Its
	// sole responsibility is to create the routes exposed to clients,
	// manage ongoing websocket connections, and relay bus activity to
	// those connections.
	RestGateway struct {
		*broadcaster
		config          *RestConfig
		ec              *echo.Echo
		socket          *websocket.SocketHub
		activityChannel event.HandlerChannel
		jobsController  controller
		sitesController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with the
// routes defined by the various controllers. Bus events relevant to
// connected activity clients are subscribed here.
func NewRestGateway(
	config *RestConfig,
	jobService jobs.Service,
	siteService sites.Service,
	eventBus event.EventHandler,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	socket := websocket.New()
	activityChannel := make(event.HandlerChannel, 64)
	eventBus.RegisterHandlerChannel(activityChannel,
		event.JobUpdateEvent, event.JobProgressEvent, event.JobCompleteEvent, event.NewResultEvent)

	gateway := &RestGateway{
		broadcaster:     newBroadcaster(socket, jobService),
		config:          config,
		ec:              ec,
		socket:          socket,
		activityChannel: activityChannel,
		jobsController:  jobs.New(jobService),
		sitesController: sites.New(siteService),
	}

	socket.WithConnectionCallback(gateway.connectionSummary)
	socket.BindCommand("LIST_JOBS", gateway.listJobsCommand)
	socket.BindCommand("GET_JOB", gateway.getJobCommand)

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/mediasift/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	jobGroup := ec.Group("/api/mediasift/v1/jobs")
	gateway.jobsController.SetRoutes(jobGroup)

	siteGroup := ec.Group("/api/mediasift/v1/sites")
	gateway.sitesController.SetRoutes(siteGroup)

	return gateway
}

// Run starts the HTTP listener, the websocket hub and the activity
// relay, blocking until the context is cancelled or the listener fails.
func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	// Relay bus activity to connected websocket clients.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev := <-gateway.activityChannel:
				gateway.handleActivity(ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	// Parent context cancellation is an orderly shutdown, not an error.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
