package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-mailroom/core"
)

// MutatingService is the write surface the commands delegate to. Satisfied
// by core.Service.
type MutatingService interface {
	RequeueJobs(ctx context.Context, jobIDs []string) (int, error)
	RotateProviderSecret(ctx context.Context, providerID, secret string) (core.ProviderSecret, error)
}

// BatchFlusher closes the open commit unit on demand. Satisfied by
// pipeline.BatchCommitter.
type BatchFlusher interface {
	Flush(ctx context.Context) error
}

type RequeueJobsCommand struct {
	service MutatingService
}

func NewRequeueJobsCommand(service MutatingService) *RequeueJobsCommand {
	return &RequeueJobsCommand{service: service}
}

func (c *RequeueJobsCommand) Execute(ctx context.Context, msg RequeueJobsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: requeue service is required")
	}
	count, err := c.service.RequeueJobs(ctx, msg.JobIDs)
	if err != nil {
		return err
	}
	storeResult(ctx, count)
	return nil
}

type RotateProviderSecretCommand struct {
	service MutatingService
}

func NewRotateProviderSecretCommand(service MutatingService) *RotateProviderSecretCommand {
	return &RotateProviderSecretCommand{service: service}
}

func (c *RotateProviderSecretCommand) Execute(ctx context.Context, msg RotateProviderSecretMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: secret rotation service is required")
	}
	rotated, err := c.service.RotateProviderSecret(ctx, msg.ProviderID, msg.Secret)
	if err != nil {
		return err
	}
	storeResult(ctx, rotated)
	return nil
}

type FlushBatchCommand struct {
	flusher BatchFlusher
}

func NewFlushBatchCommand(flusher BatchFlusher) *FlushBatchCommand {
	return &FlushBatchCommand{flusher: flusher}
}

func (c *FlushBatchCommand) Execute(ctx context.Context, _ FlushBatchMessage) error {
	if c == nil || c.flusher == nil {
		return commandDependencyError("command: batch flusher is required")
	}
	return c.flusher.Flush(ctx)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
