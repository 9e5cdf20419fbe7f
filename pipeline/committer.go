package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-mailroom/core"
)

// BatchCommitter buffers terminal job outcomes and closes batches when the
// configured size is reached or the flush timeout elapses. Close semantics
// follow the commit mode: single-transaction batches persist (or abort)
// atomically through the batch store; per-item batches only record the batch
// row and requeue retryable failures, since workers already persisted each
// outcome.
type BatchCommitter struct {
	cfg    core.PipelineConfig
	store  core.BatchStore
	logger core.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	items    []core.BatchItem
	monitor  *ThresholdMonitor
	openedAt time.Time

	aborting atomic.Bool
}

// CommitterOption configures a BatchCommitter.
type CommitterOption func(*BatchCommitter)

func WithCommitterLogger(logger core.Logger) CommitterOption {
	return func(c *BatchCommitter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithCommitterClock(now func() time.Time) CommitterOption {
	return func(c *BatchCommitter) {
		if now != nil {
			c.now = now
		}
	}
}

func WithCommitterIDGenerator(newID func() string) CommitterOption {
	return func(c *BatchCommitter) {
		if newID != nil {
			c.newID = newID
		}
	}
}

func NewBatchCommitter(cfg core.PipelineConfig, store core.BatchStore, options ...CommitterOption) *BatchCommitter {
	committer := &BatchCommitter{
		cfg:     cfg,
		store:   store,
		logger:  glog.Ensure(nil),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		monitor: NewThresholdMonitor(cfg.BatchCommitSize, cfg.MaxErrorPercentage),
	}
	for _, option := range options {
		option(committer)
	}
	return committer
}

// Aborting reports whether an early threshold abort is underway. Workers
// consult it before claiming the next job so an aborted cycle drains
// cooperatively.
func (c *BatchCommitter) Aborting() bool {
	return c.aborting.Load()
}

// Add records one terminal outcome and closes the batch when the size budget
// fills, or immediately aborts it in single-transaction mode once failures
// alone already breach the threshold.
func (c *BatchCommitter) Add(ctx context.Context, item core.BatchItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) == 0 {
		c.openedAt = c.now()
	}
	c.items = append(c.items, item)
	c.monitor.Record(item.Result.Failed())

	if c.cfg.CommitMode() == core.CommitModeSingleTransaction && c.monitor.TrippedEarly() {
		c.aborting.Store(true)
		defer c.aborting.Store(false)
		return c.closeLocked(ctx, true)
	}
	if len(c.items) >= c.cfg.BatchCommitSize {
		return c.closeLocked(ctx, false)
	}
	return nil
}

// Flush closes the current batch regardless of size. A no-op when empty.
func (c *BatchCommitter) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return nil
	}
	return c.closeLocked(ctx, false)
}

// Run flushes batches that sit open past the flush timeout. It returns when
// ctx is done, after a final flush of any buffered outcomes.
func (c *BatchCommitter) Run(ctx context.Context) error {
	interval := c.cfg.BatchFlushTimeout() / 4
	if interval <= 0 || interval > time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := c.Flush(context.Background()); err != nil {
				c.logger.Error("final batch flush failed", "error", err)
			}
			return nil
		case <-ticker.C:
			c.mu.Lock()
			due := len(c.items) > 0 && c.now().Sub(c.openedAt) >= c.cfg.BatchFlushTimeout()
			var err error
			if due {
				err = c.closeLocked(ctx, false)
			}
			c.mu.Unlock()
			if err != nil {
				c.logger.Error("timed batch flush failed", "error", err)
			}
		}
	}
}

// closeLocked persists the batch. On a store failure the buffered items go
// back into the buffer with the failure count restored, so the next size or
// timeout trigger retries the close instead of stranding per-item failures
// in their terminal state.
func (c *BatchCommitter) closeLocked(ctx context.Context, forceAbort bool) error {
	items := c.items
	c.items = nil

	batch := core.BatchRun{
		ID:                 c.newID(),
		JobIDs:             jobIDs(items),
		CommitMode:         c.cfg.CommitMode(),
		MaxErrorPercentage: c.cfg.MaxErrorPercentage,
		Total:              len(items),
		Failed:             c.monitor.Failed(),
		ClosedAt:           c.now(),
	}
	c.monitor.Reset()
	exceeded := forceAbort || batch.FailureRatioExceeded()

	var err error
	switch batch.CommitMode {
	case core.CommitModeSingleTransaction:
		if exceeded {
			batch.Outcome = core.BatchOutcomeAborted
			batch, err = c.store.AbortAll(ctx, batch, items)
		} else {
			batch.Outcome = core.BatchOutcomeCommitted
			batch, err = c.store.CommitAll(ctx, batch, items)
		}
	default:
		if exceeded {
			batch.Outcome = core.BatchOutcomePartiallyCommitted
		} else {
			batch.Outcome = core.BatchOutcomeCommitted
		}
		batch, err = c.store.FinalizePerItem(ctx, batch, failedJobIDs(items), c.cfg.JobMaxAttempts)
	}
	if err != nil {
		c.items = append(items, c.items...)
		for _, buffered := range items {
			c.monitor.Record(buffered.Result.Failed())
		}
		c.logger.Error("batch close failed",
			"batch_id", batch.ID,
			"commit_mode", string(batch.CommitMode),
			"total", batch.Total,
			"failed", batch.Failed,
			"error", err,
		)
		return err
	}

	c.logger.Info("batch closed",
		"batch_id", batch.ID,
		"commit_mode", string(batch.CommitMode),
		"outcome", string(batch.Outcome),
		"total", batch.Total,
		"failed", batch.Failed,
	)
	return nil
}

func jobIDs(items []core.BatchItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Job.ID)
	}
	return out
}

func failedJobIDs(items []core.BatchItem) []string {
	var out []string
	for _, item := range items {
		if item.Result.Failed() {
			out = append(out, item.Job.ID)
		}
	}
	return out
}
