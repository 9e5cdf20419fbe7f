package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// InboundRequest is one raw webhook delivery as received on the wire.
type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// InboundResult is what the transport layer translates into an HTTP
// response. Status is "accepted" or "ignored" for 202 acknowledgements.
type InboundResult struct {
	Accepted   bool
	StatusCode int
	Status     string
	EventID    string
	JobsQueued int
	Metadata   map[string]any
}

// ProviderAdapter is the per-provider capability set: signature
// verification plus payload parsing into the normalized event shape.
// Verification always runs before any parsing.
type ProviderAdapter interface {
	ID() string
	VerifySignature(ctx context.Context, req InboundRequest, secret string) error
	Parse(ctx context.Context, req InboundRequest) (Delivery, error)
}

// Extractor is the opaque OCR capability.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// EventStore admits events against the storage-enforced idempotency key.
// Admit inserts first and treats a uniqueness violation as the normal
// duplicate-delivery outcome: admitted=false with no error.
type EventStore interface {
	Admit(ctx context.Context, event EmailEvent) (EmailEvent, bool, error)
	Get(ctx context.Context, providerID, externalEventID string) (EmailEvent, error)
	GetByID(ctx context.Context, id string) (EmailEvent, error)
}

type AttachmentStore interface {
	CreateBatch(ctx context.Context, attachments []Attachment) ([]Attachment, error)
	Get(ctx context.Context, id string) (Attachment, error)
	ListByEvent(ctx context.Context, eventID string) ([]Attachment, error)
}

// PayloadStore holds raw attachment bytes keyed by storage ref.
type PayloadStore interface {
	Put(ctx context.Context, ref string, data []byte) error
	Get(ctx context.Context, ref string) ([]byte, error)
}

// JobStore is the durable queue. Claim is a conditional update: it moves
// exactly one eligible job (pending, or in_progress with an expired lease)
// to in_progress under a fresh claim id and lease, incrementing its attempt
// count. A zero-rows update means another worker won the race.
type JobStore interface {
	Enqueue(ctx context.Context, attachmentID string) (ExtractionJob, bool, error)
	Claim(ctx context.Context, claimID string, lease time.Duration) (ExtractionJob, bool, error)
	Get(ctx context.Context, id string) (ExtractionJob, error)
	GetByAttachment(ctx context.Context, attachmentID string) (ExtractionJob, error)
	MarkSucceeded(ctx context.Context, id, claimID string) error
	MarkFailed(ctx context.Context, id, claimID string, kind ErrorKind) error
	Release(ctx context.Context, id, claimID string) error
	Requeue(ctx context.Context, jobIDs []string, maxAttempts int) (int, error)
	ListByState(ctx context.Context, state JobState, limit int) ([]ExtractionJob, error)
	CountByState(ctx context.Context, state JobState) (int, error)
}

type ResultStore interface {
	Create(ctx context.Context, result ExtractionResult) (ExtractionResult, error)
	GetByJob(ctx context.Context, jobID string) (ExtractionResult, error)
}

// BatchItem pairs a terminal job outcome with its result for batch close.
type BatchItem struct {
	Job    ExtractionJob
	Result ExtractionResult
}

// BatchStore applies batch close semantics. CommitAll writes every item's
// result, terminal transition and the batch row in one transaction.
// AbortAll persists only the aborted batch row and reverts every member job
// to pending. FinalizePerItem records the batch row for already-persisted
// items and requeues the failed jobs that still have attempts left.
type BatchStore interface {
	CommitAll(ctx context.Context, batch BatchRun, items []BatchItem) (BatchRun, error)
	AbortAll(ctx context.Context, batch BatchRun, items []BatchItem) (BatchRun, error)
	FinalizePerItem(ctx context.Context, batch BatchRun, failedJobIDs []string, maxAttempts int) (BatchRun, error)
	Get(ctx context.Context, id string) (BatchRun, error)
}

// SecretStore resolves the registered HMAC secret for a provider.
type SecretStore interface {
	Get(ctx context.Context, providerID string) (ProviderSecret, error)
	Rotate(ctx context.Context, providerID, secret string) (ProviderSecret, error)
}

// StoreProvider is what a repository factory yields once wired to a
// persistence client.
type StoreProvider interface {
	EventStore() EventStore
	AttachmentStore() AttachmentStore
	PayloadStore() PayloadStore
	JobStore() JobStore
	ResultStore() ResultStore
	BatchStore() BatchStore
	SecretStore() SecretStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, delta int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
