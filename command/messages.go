package command

import (
	"fmt"
	"strings"
)

const (
	TypeRequeueJobs          = "mailroom.command.jobs.requeue"
	TypeRotateProviderSecret = "mailroom.command.secret.rotate"
	TypeFlushBatch           = "mailroom.command.batch.flush"
)

// RequeueJobsMessage asks for terminally failed jobs with attempts left to
// be handed back to the queue.
type RequeueJobsMessage struct {
	JobIDs []string
}

func (RequeueJobsMessage) Type() string { return TypeRequeueJobs }

func (m RequeueJobsMessage) Validate() error {
	if len(m.JobIDs) == 0 {
		return fmt.Errorf("command: at least one job id is required")
	}
	for _, id := range m.JobIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("command: job ids must not be blank")
		}
	}
	return nil
}

type RotateProviderSecretMessage struct {
	ProviderID string
	Secret     string
}

func (RotateProviderSecretMessage) Type() string { return TypeRotateProviderSecret }

func (m RotateProviderSecretMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.Secret) == "" {
		return fmt.Errorf("command: secret is required")
	}
	return nil
}

// FlushBatchMessage forces the open batch to close before it reaches the
// commit size or flush timeout.
type FlushBatchMessage struct{}

func (FlushBatchMessage) Type() string { return TypeFlushBatch }

func (FlushBatchMessage) Validate() error { return nil }
