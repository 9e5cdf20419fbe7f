package command

import (
	"context"
	"fmt"
	"testing"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-mailroom/core"
)

type stubMutatingService struct {
	requeueFn func(ctx context.Context, jobIDs []string) (int, error)
	rotateFn  func(ctx context.Context, providerID, secret string) (core.ProviderSecret, error)
}

func (s stubMutatingService) RequeueJobs(ctx context.Context, jobIDs []string) (int, error) {
	if s.requeueFn == nil {
		return 0, fmt.Errorf("unexpected RequeueJobs call")
	}
	return s.requeueFn(ctx, jobIDs)
}

func (s stubMutatingService) RotateProviderSecret(ctx context.Context, providerID, secret string) (core.ProviderSecret, error) {
	if s.rotateFn == nil {
		return core.ProviderSecret{}, fmt.Errorf("unexpected RotateProviderSecret call")
	}
	return s.rotateFn(ctx, providerID, secret)
}

type stubFlusher struct {
	calls int
	err   error
}

func (s *stubFlusher) Flush(context.Context) error {
	s.calls++
	return s.err
}

func TestRequeueJobsCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	called := false
	svc := stubMutatingService{
		requeueFn: func(_ context.Context, jobIDs []string) (int, error) {
			called = true
			if len(jobIDs) != 2 {
				t.Fatalf("expected two job ids, got %v", jobIDs)
			}
			return 1, nil
		},
	}

	cmd := NewRequeueJobsCommand(svc)
	collector := gocmd.NewResult[int]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, RequeueJobsMessage{JobIDs: []string{"job-1", "job-2"}}); err != nil {
		t.Fatalf("execute requeue: %v", err)
	}
	if !called {
		t.Fatalf("expected requeue invocation")
	}
	count, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if count != 1 {
		t.Fatalf("expected requeued count 1, got %d", count)
	}
}

func TestRotateProviderSecretCommand_ExecuteStoresRotatedSecret(t *testing.T) {
	svc := stubMutatingService{
		rotateFn: func(_ context.Context, providerID, secret string) (core.ProviderSecret, error) {
			if providerID != "mailgun" || secret != "whsec_new" {
				t.Fatalf("unexpected rotate payload: %q %q", providerID, secret)
			}
			return core.ProviderSecret{ProviderID: providerID, Secret: secret}, nil
		},
	}

	cmd := NewRotateProviderSecretCommand(svc)
	collector := gocmd.NewResult[core.ProviderSecret]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, RotateProviderSecretMessage{ProviderID: "mailgun", Secret: "whsec_new"}); err != nil {
		t.Fatalf("execute rotate: %v", err)
	}
	rotated, ok := collector.Load()
	if !ok {
		t.Fatalf("expected rotated secret to be stored")
	}
	if rotated.Secret != "whsec_new" {
		t.Fatalf("unexpected stored secret: %#v", rotated)
	}
}

func TestFlushBatchCommand_ExecuteDelegates(t *testing.T) {
	flusher := &stubFlusher{}
	cmd := NewFlushBatchCommand(flusher)

	if err := cmd.Execute(context.Background(), FlushBatchMessage{}); err != nil {
		t.Fatalf("execute flush: %v", err)
	}
	if flusher.calls != 1 {
		t.Fatalf("expected one flush call, got %d", flusher.calls)
	}
}

func TestCommands_RequireDependencies(t *testing.T) {
	if err := (&RequeueJobsCommand{}).Execute(context.Background(), RequeueJobsMessage{JobIDs: []string{"job-1"}}); err == nil {
		t.Fatalf("expected dependency error for requeue")
	}
	if err := (&FlushBatchCommand{}).Execute(context.Background(), FlushBatchMessage{}); err == nil {
		t.Fatalf("expected dependency error for flush")
	}
}

func TestMessages_Validate(t *testing.T) {
	if err := (RequeueJobsMessage{}).Validate(); err == nil {
		t.Fatalf("expected empty requeue message to fail validation")
	}
	if err := (RequeueJobsMessage{JobIDs: []string{" "}}).Validate(); err == nil {
		t.Fatalf("expected blank job id to fail validation")
	}
	if err := (RequeueJobsMessage{JobIDs: []string{"job-1"}}).Validate(); err != nil {
		t.Fatalf("expected valid requeue message, got %v", err)
	}

	if err := (RotateProviderSecretMessage{ProviderID: "mailgun"}).Validate(); err == nil {
		t.Fatalf("expected missing secret to fail validation")
	}
	if err := (RotateProviderSecretMessage{ProviderID: "mailgun", Secret: "s"}).Validate(); err != nil {
		t.Fatalf("expected valid rotate message, got %v", err)
	}

	if got := (RequeueJobsMessage{}).Type(); got != TypeRequeueJobs {
		t.Fatalf("unexpected type %q", got)
	}
}
