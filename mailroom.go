package mailroom

import "github.com/goliatone/go-mailroom/core"

type Config = core.Config

type PipelineConfig = core.PipelineConfig

type Option = core.Option

type Service = core.Service

type EmailEvent = core.EmailEvent
type Attachment = core.Attachment
type IncomingAttachment = core.IncomingAttachment
type ExtractionJob = core.ExtractionJob
type ExtractionResult = core.ExtractionResult
type BatchRun = core.BatchRun
type ProviderSecret = core.ProviderSecret
type JobState = core.JobState
type ErrorKind = core.ErrorKind

type InboundRequest = core.InboundRequest
type InboundResult = core.InboundResult
type ProviderAdapter = core.ProviderAdapter
type ProviderRegistry = core.ProviderRegistry

type EventStore = core.EventStore
type AttachmentStore = core.AttachmentStore
type PayloadStore = core.PayloadStore
type JobStore = core.JobStore
type ResultStore = core.ResultStore
type BatchStore = core.BatchStore
type SecretStore = core.SecretStore
type JobEnqueuer = core.JobEnqueuer
type Extractor = core.Extractor

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithRegistry          = core.WithRegistry
	WithEventStore        = core.WithEventStore
	WithAttachmentStore   = core.WithAttachmentStore
	WithPayloadStore      = core.WithPayloadStore
	WithJobStore          = core.WithJobStore
	WithResultStore       = core.WithResultStore
	WithBatchStore        = core.WithBatchStore
	WithSecretStore       = core.WithSecretStore
	WithJobEnqueuer       = core.WithJobEnqueuer
	WithExtractor         = core.WithExtractor
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewRegistry() *ProviderRegistry {
	return core.NewProviderRegistry()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
