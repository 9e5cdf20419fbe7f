package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-mailroom/core"
)

const (
	StatusAccepted = "accepted"
	StatusIgnored  = "ignored"
)

// DispatchJobID names the wake-up message enqueued after an event admits
// new extraction jobs, so hosts running on a go-job queue can poll
// immediately instead of waiting out the pipeline poll interval.
const DispatchJobID = "mailroom.extraction.dispatch"

// Dispatcher admits webhook deliveries. Signature verification always runs
// before parsing; admission relies on the storage-level unique constraint,
// never on a pre-check.
type Dispatcher struct {
	Registry    *core.ProviderRegistry
	Secrets     core.SecretStore
	Events      core.EventStore
	Attachments core.AttachmentStore
	Payloads    core.PayloadStore
	Jobs        core.JobStore
	Notifier    core.JobEnqueuer
	Bursts      BurstController
	Logger      core.Logger
	Now         func() time.Time
}

func NewDispatcher(
	registry *core.ProviderRegistry,
	secrets core.SecretStore,
	events core.EventStore,
	attachments core.AttachmentStore,
	payloads core.PayloadStore,
	jobs core.JobStore,
) *Dispatcher {
	return &Dispatcher{
		Registry:    registry,
		Secrets:     secrets,
		Events:      events,
		Attachments: attachments,
		Payloads:    payloads,
		Jobs:        jobs,
		Logger:      glog.Ensure(nil),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if d == nil || d.Registry == nil || d.Events == nil {
		return core.InboundResult{}, inboundInternal("inbound: dispatcher is not configured", nil)
	}

	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		return core.InboundResult{}, inboundBadInput("inbound: provider id is required", nil)
	}
	req.ProviderID = providerID

	adapter, ok := d.Registry.Get(providerID)
	if !ok {
		return core.InboundResult{}, inboundError(
			fmt.Sprintf("inbound: provider %q is not registered", providerID),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.MailroomErrorProviderNotFound,
			map[string]any{"provider_id": providerID},
		)
	}

	if d.Bursts != nil {
		decision, err := d.Bursts.Allow(ctx, req)
		if err != nil {
			d.Logger.Warn("burst control failed open", "provider_id", providerID, "error", err)
		} else if !decision.Allow {
			metadata := map[string]any{"provider_id": providerID}
			for key, value := range decision.Metadata {
				metadata[key] = value
			}
			return core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusAccepted,
				Status:     StatusIgnored,
				Metadata:   metadata,
			}, nil
		}
	}

	secret, err := d.resolveSecret(ctx, providerID)
	if err != nil {
		return core.InboundResult{}, err
	}

	if err := adapter.VerifySignature(ctx, req, secret); err != nil {
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"provider_id": providerID,
					"rejected":    true,
				},
			}, inboundWrapError(
				err,
				goerrors.CategoryAuth,
				"inbound: signature verification failed",
				http.StatusUnauthorized,
				core.MailroomErrorSignatureInvalid,
				map[string]any{"provider_id": providerID},
			)
	}

	delivery, err := adapter.Parse(ctx, req)
	if err != nil {
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusBadRequest,
			}, inboundWrapError(
				err,
				goerrors.CategoryBadInput,
				"inbound: payload parsing failed",
				http.StatusBadRequest,
				core.MailroomErrorMalformedPayload,
				map[string]any{"provider_id": providerID},
			)
	}

	if delivery.Ping {
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusAccepted,
			Status:     StatusIgnored,
			Metadata: map[string]any{
				"provider_id": providerID,
				"ping":        true,
			},
		}, nil
	}

	event := delivery.Event
	event.ProviderID = providerID
	if err := event.Validate(); err != nil {
		return core.InboundResult{}, inboundWrapError(
			err,
			goerrors.CategoryBadInput,
			"inbound: parsed event is incomplete",
			http.StatusBadRequest,
			core.MailroomErrorMalformedPayload,
			map[string]any{"provider_id": providerID},
		)
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = d.now()
	}

	admitted, isNew, err := d.Events.Admit(ctx, event)
	if err != nil {
		return core.InboundResult{}, inboundPersistence(err, "inbound: event admission failed", map[string]any{
			"provider_id":       providerID,
			"external_event_id": event.ExternalEventID,
		})
	}
	if !isNew {
		// Admission is durable before attachments and jobs are, so a
		// retry of a delivery whose first attempt failed mid-persistence
		// lands here with the event recorded and the rest missing.
		// Finish that ingestion instead of dropping the retry.
		jobsQueued, resumed, err := d.resumeIngestion(ctx, admitted, delivery.Attachments)
		if err != nil {
			return core.InboundResult{}, err
		}
		if resumed {
			if jobsQueued > 0 {
				d.notify(ctx, admitted, jobsQueued)
			}
			d.Logger.Info("interrupted ingestion resumed",
				"provider_id", providerID,
				"event_id", admitted.ID,
				"jobs_queued", jobsQueued,
			)
			d.recordBurst(ctx, req)
			return core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusAccepted,
				Status:     StatusAccepted,
				EventID:    admitted.ID,
				JobsQueued: jobsQueued,
				Metadata: map[string]any{
					"provider_id": providerID,
					"resumed":     true,
				},
			}, nil
		}
		d.Logger.Info("duplicate delivery ignored",
			"provider_id", providerID,
			"external_event_id", event.ExternalEventID,
		)
		d.recordBurst(ctx, req)
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusAccepted,
			Status:     StatusIgnored,
			EventID:    admitted.ID,
			Metadata: map[string]any{
				"provider_id": providerID,
				"deduped":     true,
			},
		}, nil
	}

	jobsQueued, err := d.storeAttachments(ctx, admitted, delivery.Attachments)
	if err != nil {
		return core.InboundResult{}, err
	}

	if jobsQueued > 0 {
		d.notify(ctx, admitted, jobsQueued)
	}

	d.Logger.Info("event admitted",
		"provider_id", providerID,
		"event_id", admitted.ID,
		"attachments", len(delivery.Attachments),
		"jobs_queued", jobsQueued,
	)
	d.recordBurst(ctx, req)
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusAccepted,
		Status:     StatusAccepted,
		EventID:    admitted.ID,
		JobsQueued: jobsQueued,
		Metadata: map[string]any{
			"provider_id": providerID,
		},
	}, nil
}

func (d *Dispatcher) resolveSecret(ctx context.Context, providerID string) (string, error) {
	if d.Secrets == nil {
		return "", nil
	}
	record, err := d.Secrets.Get(ctx, providerID)
	if err != nil {
		return "", inboundPersistence(err, "inbound: provider secret lookup failed", map[string]any{
			"provider_id": providerID,
		})
	}
	return record.Secret, nil
}

// storeAttachments persists every attachment and enqueues one extraction job
// per OCR-eligible attachment. Attachment identity derives from the admitted
// event, so a retried ingestion addresses the same rows and payload refs.
func (d *Dispatcher) storeAttachments(
	ctx context.Context,
	event core.EmailEvent,
	incoming []core.IncomingAttachment,
) (int, error) {
	if len(incoming) == 0 {
		return 0, nil
	}
	if d.Attachments == nil || d.Payloads == nil || d.Jobs == nil {
		return 0, inboundInternal("inbound: attachment stores are not configured", nil)
	}

	attachments := d.buildAttachments(event, incoming)
	if err := d.persistAttachments(ctx, event, attachments, incoming); err != nil {
		return 0, err
	}

	queued := 0
	for _, attachment := range attachments {
		if !attachment.OCREligible() {
			continue
		}
		enqueued, err := d.enqueueJob(ctx, event, attachment)
		if err != nil {
			return queued, err
		}
		if enqueued {
			queued++
		}
	}
	return queued, nil
}

// resumeIngestion finishes an ingestion that admitted the event but failed
// before every attachment and job landed. Deterministic attachment IDs make
// the missing set computable; the partial unique index on live jobs and a
// terminal-job lookup keep the enqueue pass from double-queueing work.
// resumed is false when nothing was left to do, i.e. a plain duplicate.
func (d *Dispatcher) resumeIngestion(
	ctx context.Context,
	event core.EmailEvent,
	incoming []core.IncomingAttachment,
) (int, bool, error) {
	if len(incoming) == 0 {
		return 0, false, nil
	}
	if d.Attachments == nil || d.Payloads == nil || d.Jobs == nil {
		return 0, false, inboundInternal("inbound: attachment stores are not configured", nil)
	}

	stored, err := d.Attachments.ListByEvent(ctx, event.ID)
	if err != nil {
		return 0, false, inboundPersistence(err, "inbound: attachment lookup failed", map[string]any{
			"event_id": event.ID,
		})
	}
	storedIDs := make(map[string]bool, len(stored))
	for _, attachment := range stored {
		storedIDs[attachment.ID] = true
	}

	expected := d.buildAttachments(event, incoming)
	missing := make([]core.Attachment, 0)
	missingIncoming := make([]core.IncomingAttachment, 0)
	for i, attachment := range expected {
		if !storedIDs[attachment.ID] {
			missing = append(missing, attachment)
			missingIncoming = append(missingIncoming, incoming[i])
		}
	}
	if len(missing) > 0 {
		if err := d.persistAttachments(ctx, event, missing, missingIncoming); err != nil {
			return 0, false, err
		}
	}

	queued := 0
	missingIDs := make(map[string]bool, len(missing))
	for _, attachment := range missing {
		missingIDs[attachment.ID] = true
	}
	for _, attachment := range expected {
		if !attachment.OCREligible() {
			continue
		}
		if !missingIDs[attachment.ID] {
			// Stored on the first attempt; enqueue only when no job was
			// ever created, so terminal jobs are never re-run.
			_, err := d.Jobs.GetByAttachment(ctx, attachment.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, core.ErrJobNotFound) {
				return queued, false, inboundPersistence(err, "inbound: job lookup failed", map[string]any{
					"event_id":      event.ID,
					"attachment_id": attachment.ID,
				})
			}
		}
		enqueued, err := d.enqueueJob(ctx, event, attachment)
		if err != nil {
			return queued, false, err
		}
		if enqueued {
			queued++
		}
	}
	return queued, len(missing) > 0 || queued > 0, nil
}

// buildAttachments normalizes incoming attachments into records whose IDs
// and storage refs are a pure function of the admitted event and position.
func (d *Dispatcher) buildAttachments(event core.EmailEvent, incoming []core.IncomingAttachment) []core.Attachment {
	now := d.now()
	attachments := make([]core.Attachment, 0, len(incoming))
	for i, in := range incoming {
		attachments = append(attachments, core.Attachment{
			ID:         ingestionID(event.ID, "attachment", i),
			EventID:    event.ID,
			Filename:   strings.TrimSpace(in.Filename),
			MediaType:  strings.TrimSpace(in.MediaType),
			SizeBytes:  int64(len(in.Content)),
			StorageRef: ingestionID(event.ID, "payload", i),
			CreatedAt:  now,
		})
	}
	return attachments
}

func (d *Dispatcher) persistAttachments(
	ctx context.Context,
	event core.EmailEvent,
	attachments []core.Attachment,
	incoming []core.IncomingAttachment,
) error {
	for i, attachment := range attachments {
		if err := d.Payloads.Put(ctx, attachment.StorageRef, incoming[i].Content); err != nil {
			return inboundPersistence(err, "inbound: attachment payload write failed", map[string]any{
				"event_id": event.ID,
			})
		}
	}
	if _, err := d.Attachments.CreateBatch(ctx, attachments); err != nil {
		return inboundPersistence(err, "inbound: attachment persistence failed", map[string]any{
			"event_id": event.ID,
		})
	}
	return nil
}

func (d *Dispatcher) enqueueJob(ctx context.Context, event core.EmailEvent, attachment core.Attachment) (bool, error) {
	_, enqueued, err := d.Jobs.Enqueue(ctx, attachment.ID)
	if err != nil {
		return false, inboundPersistence(err, "inbound: job enqueue failed", map[string]any{
			"event_id":      event.ID,
			"attachment_id": attachment.ID,
		})
	}
	return enqueued, nil
}

// ingestionID derives a stable UUID from the admitted event, so retries of a
// partially persisted delivery address the rows the first attempt created.
func ingestionID(eventID, kind string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%s/%d", eventID, kind, index))).String()
}

// recordBurst arms the redelivery window for the request's burst key. Only
// called after an authenticated dispatch completed, so a failed or forged
// delivery can never suppress the legitimate one that follows it.
func (d *Dispatcher) recordBurst(ctx context.Context, req core.InboundRequest) {
	if d.Bursts == nil {
		return
	}
	d.Bursts.Record(ctx, req)
}

// notify is best-effort: the durable queue is the source of truth, the
// execution message only shortens poll latency.
func (d *Dispatcher) notify(ctx context.Context, event core.EmailEvent, jobsQueued int) {
	if d.Notifier == nil {
		return
	}
	msg := &core.JobExecutionMessage{
		JobID:          DispatchJobID,
		IdempotencyKey: event.ID,
		Parameters: map[string]any{
			"event_id":    event.ID,
			"jobs_queued": jobsQueued,
		},
	}
	if err := d.Notifier.Enqueue(ctx, msg); err != nil {
		d.Logger.Error("extraction dispatch notify failed",
			"event_id", event.ID,
			"error", err,
		)
	}
}

func (d *Dispatcher) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}
