package api

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"mediasift/internal/api/jobs"
	"mediasift/internal/event"
	"mediasift/internal/http/websocket"
	"mediasift/pkg/logger"
)

const (
	TitleJobUpdate         = "JOB_UPDATE"
	TitleJobProgressUpdate = "JOB_PROGRESS_UPDATE"
	TitleJobComplete       = "JOB_COMPLETE"
	TitleNewResult         = "NEW_RESULT"
)

type (
	JobUpdate struct {
		JobID uuid.UUID    `json:"job_id"`
		Job   *jobs.JobDto `json:"job"`
	}

	NewResult struct {
		ResultID uuid.UUID `json:"result_id"`
	}

	// broadcaster translates internal bus events in to websocket
	// messages for every connected activity client.
	broadcaster struct {
		socketHub  *websocket.SocketHub
		jobService jobs.Service
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, jobService jobs.Service) *broadcaster {
	return &broadcaster{socketHub: socketHub, jobService: jobService}
}

// handleActivity maps one bus event on to its websocket broadcast.
func (hub *broadcaster) handleActivity(ev event.HandlerEvent) {
	id, ok := ev.Payload.(uuid.UUID)
	if !ok {
		log.Emit(logger.ERROR, "Activity event %s carried unexpected payload %T\n", ev.Event, ev.Payload)
		return
	}

	switch ev.Event {
	case event.JobUpdateEvent:
		hub.broadcastJob(TitleJobUpdate, id)
	case event.JobProgressEvent:
		hub.broadcastJob(TitleJobProgressUpdate, id)
	case event.JobCompleteEvent:
		hub.broadcastJob(TitleJobComplete, id)
	case event.NewResultEvent:
		hub.broadcast(TitleNewResult, NewResult{ResultID: id})
	}
}

func (hub *broadcaster) broadcastJob(title string, jobID uuid.UUID) {
	update := JobUpdate{JobID: jobID}
	if job, err := hub.jobService.GetJob(jobID); err == nil {
		update.Job = jobs.NewJobDto(job)
	}

	hub.broadcast(title, update)
}

func (hub *broadcaster) broadcast(title string, update any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"arguments": update},
		Type:  websocket.Update,
	})
}

// connectionSummary furnishes each newly connected client with the
// current job list so it need not wait for the next broadcast.
func (hub *broadcaster) connectionSummary() map[string]interface{} {
	all, err := hub.jobService.ListJobs()
	if err != nil {
		log.Emit(logger.ERROR, "Failed to list jobs for connection summary: %v\n", err)
		return map[string]interface{}{}
	}

	dtos := make([]*jobs.JobDto, len(all))
	for k, v := range all {
		dtos[k] = jobs.NewJobDto(v)
	}

	return map[string]interface{}{"jobs": dtos}
}

// listJobsCommand replies to the origin client with every known job.
func (hub *broadcaster) listJobsCommand(socketHub *websocket.SocketHub, message *websocket.SocketMessage) error {
	all, err := hub.jobService.ListJobs()
	if err != nil {
		return err
	}

	dtos := make([]*jobs.JobDto, len(all))
	for k, v := range all {
		dtos[k] = jobs.NewJobDto(v)
	}

	socketHub.Send(message.FormReply(TitleJobUpdate, map[string]interface{}{"jobs": dtos}, websocket.Response))
	return nil
}

type getJobArguments struct {
	ID string `mapstructure:"id"`
}

// getJobCommand replies to the origin client with the latest committed
// snapshot of the requested job.
func (hub *broadcaster) getJobCommand(socketHub *websocket.SocketHub, message *websocket.SocketMessage) error {
	var args getJobArguments
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{ErrorUnused: true, Result: &args})
	if err != nil {
		return fmt.Errorf("failed to create argument decoder: %w", err)
	}
	if err := decoder.Decode(message.Body); err != nil {
		return fmt.Errorf("command arguments malformed: %w", err)
	}

	id, err := uuid.Parse(args.ID)
	if err != nil {
		return fmt.Errorf("'%s' is not a valid job ID", args.ID)
	}

	job, err := hub.jobService.GetJob(id)
	if err != nil {
		return fmt.Errorf("job %s does not exist", id)
	}

	socketHub.Send(message.FormReply(TitleJobUpdate, map[string]interface{}{"job": jobs.NewJobDto(job)}, websocket.Response))
	return nil
}
