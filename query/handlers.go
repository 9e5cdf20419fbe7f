package query

import (
	"context"

	"github.com/goliatone/go-mailroom/core"
)

// ReadingService is the read surface the queries delegate to. Satisfied by
// core.Service.
type ReadingService interface {
	GetEvent(ctx context.Context, id string) (core.EmailEvent, error)
	GetJob(ctx context.Context, id string) (core.ExtractionJob, error)
	ListJobsByState(ctx context.Context, state core.JobState, limit int) ([]core.ExtractionJob, error)
	GetBatchRun(ctx context.Context, id string) (core.BatchRun, error)
	GetResult(ctx context.Context, jobID string) (core.ExtractionResult, error)
}

type GetEventQuery struct {
	reader ReadingService
}

func NewGetEventQuery(reader ReadingService) *GetEventQuery {
	return &GetEventQuery{reader: reader}
}

func (q *GetEventQuery) Query(ctx context.Context, msg GetEventMessage) (core.EmailEvent, error) {
	if q == nil || q.reader == nil {
		return core.EmailEvent{}, queryDependencyError("query: event reader is required")
	}
	return q.reader.GetEvent(ctx, msg.EventID)
}

type GetJobQuery struct {
	reader ReadingService
}

func NewGetJobQuery(reader ReadingService) *GetJobQuery {
	return &GetJobQuery{reader: reader}
}

func (q *GetJobQuery) Query(ctx context.Context, msg GetJobMessage) (core.ExtractionJob, error) {
	if q == nil || q.reader == nil {
		return core.ExtractionJob{}, queryDependencyError("query: job reader is required")
	}
	return q.reader.GetJob(ctx, msg.JobID)
}

type ListJobsByStateQuery struct {
	reader ReadingService
}

func NewListJobsByStateQuery(reader ReadingService) *ListJobsByStateQuery {
	return &ListJobsByStateQuery{reader: reader}
}

func (q *ListJobsByStateQuery) Query(ctx context.Context, msg ListJobsByStateMessage) ([]core.ExtractionJob, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: job reader is required")
	}
	return q.reader.ListJobsByState(ctx, msg.State, msg.Limit)
}

type GetBatchRunQuery struct {
	reader ReadingService
}

func NewGetBatchRunQuery(reader ReadingService) *GetBatchRunQuery {
	return &GetBatchRunQuery{reader: reader}
}

func (q *GetBatchRunQuery) Query(ctx context.Context, msg GetBatchRunMessage) (core.BatchRun, error) {
	if q == nil || q.reader == nil {
		return core.BatchRun{}, queryDependencyError("query: batch run reader is required")
	}
	return q.reader.GetBatchRun(ctx, msg.BatchRunID)
}

type GetResultQuery struct {
	reader ReadingService
}

func NewGetResultQuery(reader ReadingService) *GetResultQuery {
	return &GetResultQuery{reader: reader}
}

func (q *GetResultQuery) Query(ctx context.Context, msg GetResultMessage) (core.ExtractionResult, error) {
	if q == nil || q.reader == nil {
		return core.ExtractionResult{}, queryDependencyError("query: result reader is required")
	}
	return q.reader.GetResult(ctx, msg.JobID)
}
