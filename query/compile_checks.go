package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-mailroom/core"
)

var (
	_ gocmd.Querier[GetEventMessage, core.EmailEvent]             = (*GetEventQuery)(nil)
	_ gocmd.Querier[GetJobMessage, core.ExtractionJob]            = (*GetJobQuery)(nil)
	_ gocmd.Querier[ListJobsByStateMessage, []core.ExtractionJob] = (*ListJobsByStateQuery)(nil)
	_ gocmd.Querier[GetBatchRunMessage, core.BatchRun]            = (*GetBatchRunQuery)(nil)
	_ gocmd.Querier[GetResultMessage, core.ExtractionResult]      = (*GetResultQuery)(nil)
)
