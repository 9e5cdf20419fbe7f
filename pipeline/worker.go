package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-mailroom/attachments"
	"github.com/goliatone/go-mailroom/core"
)

// WorkerPool drains the job queue: each worker claims one job at a time,
// fetches the attachment payload, runs the extractor under the per-job
// timeout, and hands the terminal outcome to the batch committer. Workers
// share no mutable state; the store claim path and the committer serialize
// internally.
type WorkerPool struct {
	cfg       core.PipelineConfig
	jobs      core.JobStore
	files     core.AttachmentStore
	payloads  core.PayloadStore
	results   core.ResultStore
	extractor core.Extractor
	committer *BatchCommitter
	logger    core.Logger
	metrics   core.MetricsRecorder
	now       func() time.Time
	newID     func() string
}

// WorkerOption configures a WorkerPool.
type WorkerOption func(*WorkerPool)

func WithWorkerLogger(logger core.Logger) WorkerOption {
	return func(p *WorkerPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithWorkerMetrics(metrics core.MetricsRecorder) WorkerOption {
	return func(p *WorkerPool) {
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(p *WorkerPool) {
		if now != nil {
			p.now = now
		}
	}
}

func WithWorkerIDGenerator(newID func() string) WorkerOption {
	return func(p *WorkerPool) {
		if newID != nil {
			p.newID = newID
		}
	}
}

func NewWorkerPool(
	cfg core.PipelineConfig,
	jobs core.JobStore,
	files core.AttachmentStore,
	payloads core.PayloadStore,
	results core.ResultStore,
	extractor core.Extractor,
	committer *BatchCommitter,
	options ...WorkerOption,
) *WorkerPool {
	pool := &WorkerPool{
		cfg:       cfg,
		jobs:      jobs,
		files:     files,
		payloads:  payloads,
		results:   results,
		extractor: extractor,
		committer: committer,
		logger:    glog.Ensure(nil),
		metrics:   core.NopMetricsRecorder{},
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, option := range options {
		option(pool)
	}
	return pool
}

// Run starts concurrency workers plus the committer's flush loop and blocks
// until ctx is done and every worker has returned.
func (p *WorkerPool) Run(ctx context.Context, concurrency int) error {
	if p.jobs == nil || p.extractor == nil || p.committer == nil {
		return fmt.Errorf("pipeline: worker pool is not configured")
	}
	if concurrency <= 0 {
		concurrency = p.cfg.WorkerConcurrency
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.committer.Run(ctx)
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.runWorker(ctx, worker)
		}(i)
	}
	wg.Wait()
	return nil
}

func (p *WorkerPool) runWorker(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		if p.committer.Aborting() {
			if !p.sleep(ctx) {
				return
			}
			continue
		}

		job, ok, err := p.jobs.Claim(ctx, p.newID(), p.cfg.ClaimLease())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("job claim failed", "worker", worker, "error", err)
			if !p.sleep(ctx) {
				return
			}
			continue
		}
		if !ok {
			if !p.sleep(ctx) {
				return
			}
			continue
		}

		if err := p.process(ctx, job); err != nil {
			p.logger.Error("job processing failed",
				"worker", worker,
				"job_id", job.ID,
				"attachment_id", job.AttachmentID,
				"error", err,
			)
		}
	}
}

func (p *WorkerPool) sleep(ctx context.Context) bool {
	timer := time.NewTimer(p.cfg.PollInterval())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// process runs one claimed job to a terminal outcome. Transient store reads
// release the claim so the job stays eligible; extraction failures classify
// to an error kind and count against the attempt budget.
func (p *WorkerPool) process(ctx context.Context, job core.ExtractionJob) error {
	attachment, err := p.files.Get(ctx, job.AttachmentID)
	if err != nil {
		p.release(ctx, job)
		return fmt.Errorf("pipeline: fetch attachment %s: %w", job.AttachmentID, err)
	}
	payload, err := p.payloads.Get(ctx, attachment.StorageRef)
	if err != nil {
		p.release(ctx, job)
		return fmt.Errorf("pipeline: fetch payload %s: %w", attachment.StorageRef, err)
	}

	text, kind := p.extract(ctx, payload)
	p.metrics.IncCounter(ctx, "mailroom.pipeline.jobs_processed", 1, map[string]string{
		"error_kind": string(kind),
	})
	return p.commitOutcome(ctx, job, text, kind)
}

// extract runs the capability under the per-job timeout and classifies
// failures: missing PDF signature never reaches the engine.
func (p *WorkerPool) extract(ctx context.Context, payload []byte) (string, core.ErrorKind) {
	if !attachments.HasPDFMagic(payload) {
		return "", core.ErrorKindDecode
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout())
	defer cancel()

	start := p.now()
	text, err := p.extractor.Extract(jobCtx, payload)
	p.metrics.ObserveHistogram(ctx, "mailroom.pipeline.extract_seconds", p.now().Sub(start).Seconds(), nil)
	if err == nil {
		return text, core.ErrorKindNone
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "", core.ErrorKindTimeout
	case errors.Is(err, core.ErrDocumentNotDecodable):
		return "", core.ErrorKindDecode
	default:
		return "", core.ErrorKindEngine
	}
}

func (p *WorkerPool) commitOutcome(ctx context.Context, job core.ExtractionJob, text string, kind core.ErrorKind) error {
	completedAt := p.now()
	failed := kind != core.ErrorKindNone
	terminal := !failed || job.AttemptCount >= p.cfg.JobMaxAttempts
	result := core.ExtractionResult{
		JobID:       job.ID,
		Text:        text,
		ErrorKind:   kind,
		CompletedAt: completedAt,
	}

	if p.cfg.CommitMode() == core.CommitModePerItem {
		if err := p.persistItem(ctx, job, result, failed, terminal); err != nil {
			return err
		}
	}

	item := core.BatchItem{
		Job:    targetJob(job, kind, failed, terminal, completedAt),
		Result: result,
	}
	return p.committer.Add(ctx, item)
}

// persistItem applies per-item commit discipline: the outcome is durable
// before the committer ever sees it. Result rows exist only for terminal
// outcomes so a retried job can still write its single result later.
func (p *WorkerPool) persistItem(ctx context.Context, job core.ExtractionJob, result core.ExtractionResult, failed, terminal bool) error {
	if !failed {
		if _, err := p.results.Create(ctx, result); err != nil {
			p.release(ctx, job)
			return fmt.Errorf("pipeline: persist result for job %s: %w", job.ID, err)
		}
		if err := p.jobs.MarkSucceeded(ctx, job.ID, job.ClaimID); err != nil {
			return fmt.Errorf("pipeline: mark job %s succeeded: %w", job.ID, err)
		}
		return nil
	}

	if err := p.jobs.MarkFailed(ctx, job.ID, job.ClaimID, result.ErrorKind); err != nil {
		return fmt.Errorf("pipeline: mark job %s failed: %w", job.ID, err)
	}
	if terminal {
		if _, err := p.results.Create(ctx, result); err != nil {
			return fmt.Errorf("pipeline: persist failed result for job %s: %w", job.ID, err)
		}
	}
	return nil
}

func (p *WorkerPool) release(ctx context.Context, job core.ExtractionJob) {
	if err := p.jobs.Release(ctx, job.ID, job.ClaimID); err != nil {
		p.logger.Warn("job release failed", "job_id", job.ID, "error", err)
	}
}

// targetJob carries the state the job should land in at batch close. The
// claim id stays set so single-transaction updates remain guarded against a
// lease-expiry reclaim.
func targetJob(job core.ExtractionJob, kind core.ErrorKind, failed, terminal bool, now time.Time) core.ExtractionJob {
	job.ErrorKind = kind
	job.UpdatedAt = now
	switch {
	case !failed:
		job.State = core.JobStateSucceeded
	case terminal:
		job.State = core.JobStateFailed
	default:
		job.State = core.JobStatePending
	}
	return job
}
