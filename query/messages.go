package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-mailroom/core"
)

const (
	TypeGetEvent        = "mailroom.query.event.get"
	TypeGetJob          = "mailroom.query.job.get"
	TypeListJobsByState = "mailroom.query.jobs.list_by_state"
	TypeGetBatchRun     = "mailroom.query.batch_run.get"
	TypeGetResult       = "mailroom.query.result.get"
)

type GetEventMessage struct {
	EventID string
}

func (GetEventMessage) Type() string { return TypeGetEvent }

func (m GetEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("query: event id is required")
	}
	return nil
}

type GetJobMessage struct {
	JobID string
}

func (GetJobMessage) Type() string { return TypeGetJob }

func (m GetJobMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("query: job id is required")
	}
	return nil
}

type ListJobsByStateMessage struct {
	State core.JobState
	Limit int
}

func (ListJobsByStateMessage) Type() string { return TypeListJobsByState }

func (m ListJobsByStateMessage) Validate() error {
	switch m.State {
	case core.JobStatePending, core.JobStateInProgress, core.JobStateSucceeded, core.JobStateFailed:
	default:
		return fmt.Errorf("query: unknown job state %q", m.State)
	}
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type GetBatchRunMessage struct {
	BatchRunID string
}

func (GetBatchRunMessage) Type() string { return TypeGetBatchRun }

func (m GetBatchRunMessage) Validate() error {
	if strings.TrimSpace(m.BatchRunID) == "" {
		return fmt.Errorf("query: batch run id is required")
	}
	return nil
}

type GetResultMessage struct {
	JobID string
}

func (GetResultMessage) Type() string { return TypeGetResult }

func (m GetResultMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("query: job id is required")
	}
	return nil
}
