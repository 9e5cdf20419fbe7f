package mailroom

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-mailroom/inbound"
	"github.com/goliatone/go-mailroom/pipeline"
	"github.com/goliatone/go-mailroom/transport"
)

// Runtime bundles the request path and the worker path built from one
// service so both share the same stores and configuration.
type Runtime struct {
	Service    *Service
	Dispatcher *inbound.Dispatcher
	Committer  *pipeline.BatchCommitter
	Workers    *pipeline.WorkerPool
	Webhooks   *transport.WebhookHandler
}

// NewInboundDispatcher wires the webhook admission path from the service's
// stores. The enqueuer hook is optional and stays nil unless configured.
func NewInboundDispatcher(svc *Service) *inbound.Dispatcher {
	if svc == nil {
		return nil
	}
	dispatcher := inbound.NewDispatcher(
		svc.Registry(),
		svc.SecretStore(),
		svc.EventStore(),
		svc.AttachmentStore(),
		svc.PayloadStore(),
		svc.JobStore(),
	)
	dispatcher.Notifier = svc.JobEnqueuer()
	dispatcher.Logger = svc.Logger()
	return dispatcher
}

// NewBatchCommitter builds the commit unit from the service configuration.
func NewBatchCommitter(svc *Service, options ...pipeline.CommitterOption) *pipeline.BatchCommitter {
	if svc == nil {
		return nil
	}
	opts := append([]pipeline.CommitterOption{
		pipeline.WithCommitterLogger(svc.Logger()),
	}, options...)
	return pipeline.NewBatchCommitter(svc.Config().Pipeline, svc.BatchStore(), opts...)
}

// NewWorkerPool builds the extraction worker pool around a committer.
func NewWorkerPool(svc *Service, committer *pipeline.BatchCommitter, options ...pipeline.WorkerOption) *pipeline.WorkerPool {
	if svc == nil {
		return nil
	}
	opts := append([]pipeline.WorkerOption{
		pipeline.WithWorkerLogger(svc.Logger()),
		pipeline.WithWorkerMetrics(svc.Metrics()),
	}, options...)
	return pipeline.NewWorkerPool(
		svc.Config().Pipeline,
		svc.JobStore(),
		svc.AttachmentStore(),
		svc.PayloadStore(),
		svc.ResultStore(),
		svc.Extractor(),
		committer,
		opts...,
	)
}

// NewRuntime composes dispatcher, committer, worker pool and webhook handler
// from an already built service.
func NewRuntime(svc *Service) (*Runtime, error) {
	if svc == nil {
		return nil, fmt.Errorf("mailroom: service is required")
	}
	if svc.Extractor() == nil {
		return nil, fmt.Errorf("mailroom: service has no extractor configured")
	}

	dispatcher := NewInboundDispatcher(svc)
	committer := NewBatchCommitter(svc)
	workers := NewWorkerPool(svc, committer)

	handler := transport.NewWebhookHandler(dispatcher)
	handler.Logger = svc.Logger()

	return &Runtime{
		Service:    svc,
		Dispatcher: dispatcher,
		Committer:  committer,
		Workers:    workers,
		Webhooks:   handler,
	}, nil
}

// Mount registers the runtime's HTTP surface on the given mux.
func (r *Runtime) Mount(mux *http.ServeMux) {
	if r == nil || r.Webhooks == nil || mux == nil {
		return
	}
	r.Webhooks.Mount(mux)
}

// Facade builds the command/query facade bound to this runtime's committer
// so flush commands act on the live batch.
func (r *Runtime) Facade() (*Facade, error) {
	if r == nil || r.Service == nil {
		return nil, fmt.Errorf("mailroom: runtime is not configured")
	}
	return NewFacade(r.Service, WithBatchFlusher(r.Committer))
}
