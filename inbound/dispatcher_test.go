package inbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-mailroom/core"
)

type fakeAdapter struct {
	id        string
	verifyErr error
	parseErr  error
	delivery  core.Delivery
}

func (a *fakeAdapter) ID() string { return a.id }

func (a *fakeAdapter) VerifySignature(_ context.Context, _ core.InboundRequest, _ string) error {
	return a.verifyErr
}

func (a *fakeAdapter) Parse(_ context.Context, _ core.InboundRequest) (core.Delivery, error) {
	if a.parseErr != nil {
		return core.Delivery{}, a.parseErr
	}
	return a.delivery, nil
}

type memoryEventStore struct {
	mu     sync.Mutex
	events map[string]core.EmailEvent
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{events: map[string]core.EmailEvent{}}
}

func (s *memoryEventStore) key(providerID, externalEventID string) string {
	return providerID + "::" + externalEventID
}

func (s *memoryEventStore) Admit(_ context.Context, event core.EmailEvent) (core.EmailEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(event.ProviderID, event.ExternalEventID)
	if existing, ok := s.events[key]; ok {
		return existing, false, nil
	}
	s.events[key] = event
	return event, true, nil
}

func (s *memoryEventStore) Get(_ context.Context, providerID, externalEventID string) (core.EmailEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event, ok := s.events[s.key(providerID, externalEventID)]; ok {
		return event, nil
	}
	return core.EmailEvent{}, core.ErrEventNotFound
}

func (s *memoryEventStore) GetByID(_ context.Context, id string) (core.EmailEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.ID == id {
			return event, nil
		}
	}
	return core.EmailEvent{}, core.ErrEventNotFound
}

type memoryAttachmentStore struct {
	mu          sync.Mutex
	attachments []core.Attachment
	failNext    error
}

func (s *memoryAttachmentStore) CreateBatch(_ context.Context, attachments []core.Attachment) ([]core.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return nil, err
	}
	s.attachments = append(s.attachments, attachments...)
	return attachments, nil
}

func (s *memoryAttachmentStore) Get(_ context.Context, id string) (core.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, attachment := range s.attachments {
		if attachment.ID == id {
			return attachment, nil
		}
	}
	return core.Attachment{}, core.ErrAttachmentNotFound
}

func (s *memoryAttachmentStore) ListByEvent(_ context.Context, eventID string) ([]core.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Attachment
	for _, attachment := range s.attachments {
		if attachment.EventID == eventID {
			out = append(out, attachment)
		}
	}
	return out, nil
}

type memoryPayloadStore struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

func newMemoryPayloadStore() *memoryPayloadStore {
	return &memoryPayloadStore{payloads: map[string][]byte{}}
}

func (s *memoryPayloadStore) Put(_ context.Context, ref string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[ref] = append([]byte(nil), data...)
	return nil
}

func (s *memoryPayloadStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.payloads[ref]
	if !ok {
		return nil, core.ErrPayloadNotFound
	}
	return data, nil
}

type memoryJobStore struct {
	mu       sync.Mutex
	jobs     map[string]core.ExtractionJob
	seq      int
	failNext error
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: map[string]core.ExtractionJob{}}
}

func (s *memoryJobStore) Enqueue(_ context.Context, attachmentID string) (core.ExtractionJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return core.ExtractionJob{}, false, err
	}
	for _, job := range s.jobs {
		if job.AttachmentID == attachmentID && !job.State.Terminal() {
			return job, false, nil
		}
	}
	s.seq++
	job := core.ExtractionJob{
		ID:           fmt.Sprintf("job-%d", s.seq),
		AttachmentID: attachmentID,
		State:        core.JobStatePending,
		EnqueuedAt:   time.Now().UTC(),
	}
	s.jobs[job.ID] = job
	return job, true, nil
}

func (s *memoryJobStore) Claim(context.Context, string, time.Duration) (core.ExtractionJob, bool, error) {
	return core.ExtractionJob{}, false, nil
}

func (s *memoryJobStore) Get(_ context.Context, id string) (core.ExtractionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		return job, nil
	}
	return core.ExtractionJob{}, core.ErrJobNotFound
}

func (s *memoryJobStore) GetByAttachment(_ context.Context, attachmentID string) (core.ExtractionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest core.ExtractionJob
	found := false
	for _, job := range s.jobs {
		if job.AttachmentID != attachmentID {
			continue
		}
		if !found || job.EnqueuedAt.After(latest.EnqueuedAt) {
			latest = job
			found = true
		}
	}
	if !found {
		return core.ExtractionJob{}, core.ErrJobNotFound
	}
	return latest, nil
}

func (s *memoryJobStore) MarkSucceeded(context.Context, string, string) error { return nil }

func (s *memoryJobStore) MarkFailed(context.Context, string, string, core.ErrorKind) error {
	return nil
}

func (s *memoryJobStore) Release(context.Context, string, string) error { return nil }

func (s *memoryJobStore) Requeue(context.Context, []string, int) (int, error) { return 0, nil }

func (s *memoryJobStore) ListByState(_ context.Context, state core.JobState, _ int) ([]core.ExtractionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ExtractionJob
	for _, job := range s.jobs {
		if job.State == state {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *memoryJobStore) CountByState(_ context.Context, state core.JobState) (int, error) {
	jobs, _ := s.ListByState(context.Background(), state, 0)
	return len(jobs), nil
}

func (s *memoryJobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type staticSecretStore struct {
	secret string
}

func (s staticSecretStore) Get(_ context.Context, providerID string) (core.ProviderSecret, error) {
	return core.ProviderSecret{ProviderID: providerID, Secret: s.secret}, nil
}

func (s staticSecretStore) Rotate(_ context.Context, providerID, secret string) (core.ProviderSecret, error) {
	return core.ProviderSecret{ProviderID: providerID, Secret: secret}, nil
}

func newTestDispatcher(t *testing.T, adapter core.ProviderAdapter) (*Dispatcher, *memoryJobStore) {
	t.Helper()
	registry := core.NewProviderRegistry()
	if err := registry.Register(adapter); err != nil {
		t.Fatalf("register adapter: %v", err)
	}
	jobs := newMemoryJobStore()
	dispatcher := NewDispatcher(
		registry,
		staticSecretStore{secret: "hunter2"},
		newMemoryEventStore(),
		&memoryAttachmentStore{},
		newMemoryPayloadStore(),
		jobs,
	)
	return dispatcher, jobs
}

func pdfDelivery(externalEventID string) core.Delivery {
	return core.Delivery{
		Event: core.EmailEvent{
			ExternalEventID: externalEventID,
			Sender:          "invoices@example.com",
			Recipients:      []string{"inbox@acme.test"},
			Subject:         "March invoice",
		},
		Attachments: []core.IncomingAttachment{
			{Filename: "invoice.pdf", MediaType: "application/pdf", Content: []byte("%PDF-1.4 fake")},
			{Filename: "logo.png", MediaType: "image/png", Content: []byte{0x89, 0x50}},
		},
	}
}

func TestDispatcher_AdmitsEventAndQueuesPDFJobs(t *testing.T) {
	adapter := &fakeAdapter{id: "mandrill", delivery: pdfDelivery("evt-1")}
	dispatcher, jobs := newTestDispatcher(t, adapter)

	result, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "mandrill"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !result.Accepted || result.StatusCode != 202 {
		t.Fatalf("expected 202 accepted, got %d accepted=%v", result.StatusCode, result.Accepted)
	}
	if result.Status != StatusAccepted {
		t.Fatalf("expected accepted status, got %q", result.Status)
	}
	if result.JobsQueued != 1 {
		t.Fatalf("expected 1 queued job for the pdf attachment, got %d", result.JobsQueued)
	}
	if jobs.count() != 1 {
		t.Fatalf("expected exactly one job record, got %d", jobs.count())
	}
}

func TestDispatcher_DuplicateDeliveryIsIgnored(t *testing.T) {
	adapter := &fakeAdapter{id: "mandrill", delivery: pdfDelivery("evt-dup")}
	dispatcher, jobs := newTestDispatcher(t, adapter)

	first, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "mandrill"})
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if first.Status != StatusAccepted {
		t.Fatalf("expected first delivery accepted")
	}

	second, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "mandrill"})
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if second.Status != StatusIgnored {
		t.Fatalf("expected duplicate to be ignored, got %q", second.Status)
	}
	if second.Metadata["deduped"] != true {
		t.Fatalf("expected deduped metadata marker")
	}
	if jobs.count() != 1 {
		t.Fatalf("expected job count unchanged after duplicate, got %d", jobs.count())
	}
}

func TestDispatcher_RejectsInvalidSignature(t *testing.T) {
	adapter := &fakeAdapter{id: "mandrill", verifyErr: errors.New("signature mismatch")}
	dispatcher, jobs := newTestDispatcher(t, adapter)

	result, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "mandrill"})
	if err == nil {
		t.Fatalf("expected verification error")
	}
	if result.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", result.StatusCode)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryAuth {
		t.Fatalf("expected auth category error, got %v", err)
	}
	if jobs.count() != 0 {
		t.Fatalf("expected no jobs after rejected delivery")
	}
}

func TestDispatcher_MalformedPayload(t *testing.T) {
	adapter := &fakeAdapter{id: "mandrill", parseErr: errors.New("unexpected end of JSON input")}
	dispatcher, _ := newTestDispatcher(t, adapter)

	result, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "mandrill"})
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if result.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", result.StatusCode)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad-input category error, got %v", err)
	}
}

func TestDispatcher_PingIsAcknowledgedWithoutEvent(t *testing.T) {
	adapter := &fakeAdapter{id: "postmark", delivery: core.Delivery{Ping: true}}
	dispatcher, jobs := newTestDispatcher(t, adapter)

	result, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "postmark"})
	if err != nil {
		t.Fatalf("dispatch ping: %v", err)
	}
	if result.Status != StatusIgnored || result.StatusCode != 202 {
		t.Fatalf("expected 202 ignored for ping, got %d %q", result.StatusCode, result.Status)
	}
	if jobs.count() != 0 {
		t.Fatalf("expected ping to create no jobs")
	}
}

func TestDispatcher_UnknownProvider(t *testing.T) {
	adapter := &fakeAdapter{id: "mandrill"}
	dispatcher, _ := newTestDispatcher(t, adapter)

	_, err := dispatcher.Dispatch(context.Background(), core.InboundRequest{ProviderID: "sparkpost"})
	if err == nil {
		t.Fatalf("expected unknown provider error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryNotFound {
		t.Fatalf("expected not-found category, got %v", err)
	}
}

func TestDispatcher_RetryAfterAttachmentFailureResumesIngestion(t *testing.T) {
	adapter := &fakeAdapter{id: "mailgun", delivery: pdfDelivery("evt-resume")}
	registry := core.NewProviderRegistry()
	if err := registry.Register(adapter); err != nil {
		t.Fatalf("register adapter: %v", err)
	}
	attachments := &memoryAttachmentStore{failNext: errors.New("connection reset")}
	jobs := newMemoryJobStore()
	dispatcher := NewDispatcher(
		registry,
		staticSecretStore{secret: "hunter2"},
		newMemoryEventStore(),
		attachments,
		newMemoryPayloadStore(),
		jobs,
	)

	req := core.InboundRequest{ProviderID: "mailgun"}
	if _, err := dispatcher.Dispatch(context.Background(), req); err == nil {
		t.Fatalf("expected first delivery to fail on attachment persistence")
	}
	if jobs.count() != 0 {
		t.Fatalf("expected no jobs after failed ingestion, got %d", jobs.count())
	}

	// The provider retries after the 500. The event is already admitted,
	// so the retry must finish the ingestion instead of being dropped.
	retry, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("retry dispatch: %v", err)
	}
	if retry.Status != StatusAccepted {
		t.Fatalf("expected retry accepted, got %q", retry.Status)
	}
	if retry.Metadata["resumed"] != true {
		t.Fatalf("expected resumed metadata marker, got %#v", retry.Metadata)
	}
	if retry.JobsQueued != 1 {
		t.Fatalf("expected retry to queue the pdf job, got %d", retry.JobsQueued)
	}
	stored, err := attachments.ListByEvent(context.Background(), retry.EventID)
	if err != nil {
		t.Fatalf("list attachments: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected both attachments persisted on retry, got %d", len(stored))
	}
	if jobs.count() != 1 {
		t.Fatalf("expected exactly one job after retry, got %d", jobs.count())
	}

	// A further redelivery is a plain duplicate again.
	third, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("third dispatch: %v", err)
	}
	if third.Status != StatusIgnored || third.Metadata["deduped"] != true {
		t.Fatalf("expected completed ingestion to dedupe, got %q %#v", third.Status, third.Metadata)
	}
	if jobs.count() != 1 {
		t.Fatalf("expected job count unchanged after duplicate, got %d", jobs.count())
	}
}

func TestDispatcher_RetryAfterEnqueueFailureQueuesMissingJob(t *testing.T) {
	adapter := &fakeAdapter{id: "mailgun", delivery: pdfDelivery("evt-enqueue")}
	dispatcher, jobs := newTestDispatcher(t, adapter)
	jobs.failNext = errors.New("deadlock detected")

	req := core.InboundRequest{ProviderID: "mailgun"}
	if _, err := dispatcher.Dispatch(context.Background(), req); err == nil {
		t.Fatalf("expected first delivery to fail on enqueue")
	}
	if jobs.count() != 0 {
		t.Fatalf("expected no job after enqueue failure, got %d", jobs.count())
	}

	retry, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("retry dispatch: %v", err)
	}
	if retry.Status != StatusAccepted || retry.JobsQueued != 1 {
		t.Fatalf("expected retry to queue the missing job, got %q queued=%d", retry.Status, retry.JobsQueued)
	}
	if jobs.count() != 1 {
		t.Fatalf("expected exactly one job after retry, got %d", jobs.count())
	}
}
