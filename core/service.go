package core

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service owns the wired stores, registry and configuration. The inbound
// dispatcher and the extraction pipeline are built on top of it by the host
// (or the root facade), so the request path and the worker path share one
// set of collaborators.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory RepositoryStoreFactory
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	registry          *ProviderRegistry
	eventStore        EventStore
	attachmentStore   AttachmentStore
	payloadStore      PayloadStore
	jobStore          JobStore
	resultStore       ResultStore
	batchStore        BatchStore
	secretStore       SecretStore
	jobEnqueuer       JobEnqueuer
	extractor         Extractor
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("mailroom", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("mailroom"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil && missingStores(&builder) {
		storeProvider, buildErr := builder.repositoryFactory.BuildStores(builder.persistenceClient)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		if storeProvider != nil {
			fillStores(&builder, storeProvider)
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		registry:          builder.registry,
		eventStore:        builder.eventStore,
		attachmentStore:   builder.attachmentStore,
		payloadStore:      builder.payloadStore,
		jobStore:          builder.jobStore,
		resultStore:       builder.resultStore,
		batchStore:        builder.batchStore,
		secretStore:       builder.secretStore,
		jobEnqueuer:       builder.jobEnqueuer,
		extractor:         builder.extractor,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func missingStores(b *serviceBuilder) bool {
	return b.eventStore == nil ||
		b.attachmentStore == nil ||
		b.payloadStore == nil ||
		b.jobStore == nil ||
		b.resultStore == nil ||
		b.batchStore == nil ||
		b.secretStore == nil
}

func fillStores(b *serviceBuilder, provider StoreProvider) {
	if b.eventStore == nil {
		b.eventStore = provider.EventStore()
	}
	if b.attachmentStore == nil {
		b.attachmentStore = provider.AttachmentStore()
	}
	if b.payloadStore == nil {
		b.payloadStore = provider.PayloadStore()
	}
	if b.jobStore == nil {
		b.jobStore = provider.JobStore()
	}
	if b.resultStore == nil {
		b.resultStore = provider.ResultStore()
	}
	if b.batchStore == nil {
		b.batchStore = provider.BatchStore()
	}
	if b.secretStore == nil {
		b.secretStore = provider.SecretStore()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return nil
	}
	return s.logger
}

func (s *Service) LoggerProvider() LoggerProvider {
	if s == nil {
		return nil
	}
	return s.loggerProvider
}

func (s *Service) Metrics() MetricsRecorder {
	if s == nil {
		return NopMetricsRecorder{}
	}
	return s.metricsRecorder
}

func (s *Service) Registry() *ProviderRegistry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) EventStore() EventStore           { return s.eventStore }
func (s *Service) AttachmentStore() AttachmentStore { return s.attachmentStore }
func (s *Service) PayloadStore() PayloadStore       { return s.payloadStore }
func (s *Service) JobStore() JobStore               { return s.jobStore }
func (s *Service) ResultStore() ResultStore         { return s.resultStore }
func (s *Service) BatchStore() BatchStore           { return s.batchStore }
func (s *Service) SecretStore() SecretStore         { return s.secretStore }
func (s *Service) JobEnqueuer() JobEnqueuer         { return s.jobEnqueuer }
func (s *Service) Extractor() Extractor             { return s.extractor }

// RequeueJobs moves the named failed jobs back to pending, respecting the
// configured attempt ceiling. Returns how many transitioned.
func (s *Service) RequeueJobs(ctx context.Context, jobIDs []string) (int, error) {
	if s == nil || s.jobStore == nil {
		return 0, fmt.Errorf("core: job store is required")
	}
	cleaned := make([]string, 0, len(jobIDs))
	for _, id := range jobIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return 0, newMailroomError("core: at least one job id is required", goerrors.CategoryBadInput, MailroomErrorBadInput)
	}
	count, err := s.jobStore.Requeue(ctx, cleaned, s.config.Pipeline.JobMaxAttempts)
	if err != nil {
		return 0, mapBuildError(s.errorMapper, err)
	}
	s.logger.Info("requeued extraction jobs", "requested", len(cleaned), "requeued", count)
	return count, nil
}

// RotateProviderSecret replaces the HMAC secret used to verify inbound
// deliveries for a provider.
func (s *Service) RotateProviderSecret(ctx context.Context, providerID, secret string) (ProviderSecret, error) {
	if s == nil || s.secretStore == nil {
		return ProviderSecret{}, fmt.Errorf("core: secret store is required")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return ProviderSecret{}, newMailroomError("core: provider id is required", goerrors.CategoryBadInput, MailroomErrorBadInput)
	}
	if strings.TrimSpace(secret) == "" {
		return ProviderSecret{}, newMailroomError("core: secret is required", goerrors.CategoryBadInput, MailroomErrorBadInput)
	}
	rotated, err := s.secretStore.Rotate(ctx, providerID, secret)
	if err != nil {
		return ProviderSecret{}, mapBuildError(s.errorMapper, err)
	}
	s.logger.Info("rotated provider secret", "provider_id", providerID)
	return rotated, nil
}

func (s *Service) GetEvent(ctx context.Context, id string) (EmailEvent, error) {
	if s == nil || s.eventStore == nil {
		return EmailEvent{}, fmt.Errorf("core: event store is required")
	}
	return s.eventStore.GetByID(ctx, strings.TrimSpace(id))
}

func (s *Service) GetJob(ctx context.Context, id string) (ExtractionJob, error) {
	if s == nil || s.jobStore == nil {
		return ExtractionJob{}, fmt.Errorf("core: job store is required")
	}
	return s.jobStore.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) ListJobsByState(ctx context.Context, state JobState, limit int) ([]ExtractionJob, error) {
	if s == nil || s.jobStore == nil {
		return nil, fmt.Errorf("core: job store is required")
	}
	return s.jobStore.ListByState(ctx, state, limit)
}

func (s *Service) GetBatchRun(ctx context.Context, id string) (BatchRun, error) {
	if s == nil || s.batchStore == nil {
		return BatchRun{}, fmt.Errorf("core: batch store is required")
	}
	return s.batchStore.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) GetResult(ctx context.Context, jobID string) (ExtractionResult, error) {
	if s == nil || s.resultStore == nil {
		return ExtractionResult{}, fmt.Errorf("core: result store is required")
	}
	return s.resultStore.GetByJob(ctx, strings.TrimSpace(jobID))
}
