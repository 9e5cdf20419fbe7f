package mailroom

import (
	"fmt"

	mailroomcommand "github.com/goliatone/go-mailroom/command"
	mailroomquery "github.com/goliatone/go-mailroom/query"
)

// CommandQueryService is the surface the facade wraps. *core.Service
// satisfies it.
type CommandQueryService interface {
	mailroomcommand.MutatingService
	mailroomquery.ReadingService
}

type Commands struct {
	RequeueJobs          *mailroomcommand.RequeueJobsCommand
	RotateProviderSecret *mailroomcommand.RotateProviderSecretCommand
	FlushBatch           *mailroomcommand.FlushBatchCommand
}

type Queries struct {
	GetEvent        *mailroomquery.GetEventQuery
	GetJob          *mailroomquery.GetJobQuery
	ListJobsByState *mailroomquery.ListJobsByStateQuery
	GetBatchRun     *mailroomquery.GetBatchRunQuery
	GetResult       *mailroomquery.GetResultQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	flusher mailroomcommand.BatchFlusher
}

// WithBatchFlusher binds the flush command to a live committer. Without it
// the flush command falls back to whatever flusher the service exposes.
func WithBatchFlusher(flusher mailroomcommand.BatchFlusher) FacadeOption {
	return func(options *facadeOptions) {
		options.flusher = flusher
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("mailroom: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	flusher := cfg.flusher
	if flusher == nil {
		flusher = resolveBatchFlusher(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		RequeueJobs:          mailroomcommand.NewRequeueJobsCommand(service),
		RotateProviderSecret: mailroomcommand.NewRotateProviderSecretCommand(service),
		FlushBatch:           mailroomcommand.NewFlushBatchCommand(flusher),
	}
	facade.queries = Queries{
		GetEvent:        mailroomquery.NewGetEventQuery(service),
		GetJob:          mailroomquery.NewGetJobQuery(service),
		ListJobsByState: mailroomquery.NewListJobsByStateQuery(service),
		GetBatchRun:     mailroomquery.NewGetBatchRunQuery(service),
		GetResult:       mailroomquery.NewGetResultQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveBatchFlusher(service CommandQueryService) mailroomcommand.BatchFlusher {
	if service == nil {
		return nil
	}
	if flusher, ok := service.(mailroomcommand.BatchFlusher); ok {
		return flusher
	}
	return nil
}
