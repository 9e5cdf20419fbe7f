package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-mailroom/core"
)

// BatchStore closes commit units. CommitAll and AbortAll apply the whole
// batch in one transaction; FinalizePerItem only records the batch row and
// requeues retryable failures, because per-item outcomes are already
// durable when the batch closes.
type BatchStore struct {
	db   *bun.DB
	repo repository.Repository[*batchRunRecord]
	now  func() time.Time
}

func NewBatchStore(db *bun.DB) (*BatchStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*batchRunRecord](db, batchRunHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid batch run repository wiring: %w", err)
		}
	}
	return &BatchStore{db: db, repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

// CommitAll persists the batch row, every member's terminal transition and
// every terminal result atomically. Items whose claim guard no longer holds
// were reclaimed after lease expiry and are skipped rather than clobbered.
func (s *BatchStore) CommitAll(ctx context.Context, batch core.BatchRun, items []core.BatchItem) (core.BatchRun, error) {
	if s == nil || s.db == nil {
		return core.BatchRun{}, fmt.Errorf("sqlstore: batch store is not configured")
	}
	batch = s.withIdentity(batch)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(newBatchRunRecord(batch)).Exec(ctx); err != nil {
			return err
		}
		for _, item := range items {
			held, err := s.applyItemTx(ctx, tx, batch.ID, item)
			if err != nil {
				return err
			}
			if !held || !item.Job.State.Terminal() {
				continue
			}
			record := &extractionResultRecord{
				ID:          uuid.NewString(),
				JobID:       item.Job.ID,
				Text:        item.Result.Text,
				ErrorKind:   string(item.Result.ErrorKind),
				CompletedAt: item.Result.CompletedAt,
			}
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: job %s", core.ErrResultAlreadyWritten, item.Job.ID)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.BatchRun{}, err
	}
	return batch, nil
}

// AbortAll records the aborted batch row and reverts every member still
// held under its claim back to pending. The attempt counted at claim time
// is handed back: an abort is not a failure of the job.
func (s *BatchStore) AbortAll(ctx context.Context, batch core.BatchRun, items []core.BatchItem) (core.BatchRun, error) {
	if s == nil || s.db == nil {
		return core.BatchRun{}, fmt.Errorf("sqlstore: batch store is not configured")
	}
	batch = s.withIdentity(batch)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(newBatchRunRecord(batch)).Exec(ctx); err != nil {
			return err
		}
		now := s.now()
		for _, item := range items {
			_, err := tx.NewUpdate().
				Model((*extractionJobRecord)(nil)).
				Set("state = ?", string(core.JobStatePending)).
				Set("claim_id = ?", "").
				Set("lease_expires_at = NULL").
				Set("error_kind = ?", "").
				Set("attempt_count = attempt_count - 1").
				Set("updated_at = ?", now).
				Where("?TableAlias.id = ?", item.Job.ID).
				Where("?TableAlias.state = ?", string(core.JobStateInProgress)).
				Where("?TableAlias.claim_id = ?", item.Job.ClaimID).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.BatchRun{}, err
	}
	return batch, nil
}

// FinalizePerItem records the batch row, stamps the run on its terminal
// members and requeues failed members that still have attempts left.
func (s *BatchStore) FinalizePerItem(ctx context.Context, batch core.BatchRun, failedJobIDs []string, maxAttempts int) (core.BatchRun, error) {
	if s == nil || s.db == nil {
		return core.BatchRun{}, fmt.Errorf("sqlstore: batch store is not configured")
	}
	batch = s.withIdentity(batch)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(newBatchRunRecord(batch)).Exec(ctx); err != nil {
			return err
		}
		now := s.now()
		if len(batch.JobIDs) > 0 {
			_, err := tx.NewUpdate().
				Model((*extractionJobRecord)(nil)).
				Set("batch_run_id = ?", batch.ID).
				Set("updated_at = ?", now).
				Where("?TableAlias.id IN (?)", bun.In(batch.JobIDs)).
				Where("?TableAlias.state IN (?)", bun.In([]string{
					string(core.JobStateSucceeded),
					string(core.JobStateFailed),
				})).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		if len(failedJobIDs) > 0 {
			_, err := tx.NewUpdate().
				Model((*extractionJobRecord)(nil)).
				Set("state = ?", string(core.JobStatePending)).
				Set("claim_id = ?", "").
				Set("lease_expires_at = NULL").
				Set("error_kind = ?", "").
				Set("updated_at = ?", now).
				Where("?TableAlias.id IN (?)", bun.In(failedJobIDs)).
				Where("?TableAlias.state = ?", string(core.JobStateFailed)).
				Where("?TableAlias.attempt_count < ?", maxAttempts).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.BatchRun{}, err
	}
	return batch, nil
}

func (s *BatchStore) Get(ctx context.Context, id string) (core.BatchRun, error) {
	if s == nil || s.db == nil {
		return core.BatchRun{}, fmt.Errorf("sqlstore: batch store is not configured")
	}
	record := &batchRunRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.BatchRun{}, core.ErrBatchRunNotFound
		}
		return core.BatchRun{}, err
	}
	return record.toDomain(), nil
}

func (s *BatchStore) withIdentity(batch core.BatchRun) core.BatchRun {
	if strings.TrimSpace(batch.ID) == "" {
		batch.ID = uuid.NewString()
	}
	if batch.ClosedAt.IsZero() {
		batch.ClosedAt = s.now()
	}
	return batch
}

// applyItemTx moves one member to its target state under the claim guard.
// It reports whether the guard still held.
func (s *BatchStore) applyItemTx(ctx context.Context, tx bun.Tx, batchID string, item core.BatchItem) (bool, error) {
	result, err := tx.NewUpdate().
		Model((*extractionJobRecord)(nil)).
		Set("state = ?", string(item.Job.State)).
		Set("claim_id = ?", "").
		Set("lease_expires_at = NULL").
		Set("error_kind = ?", string(item.Job.ErrorKind)).
		Set("batch_run_id = ?", batchID).
		Set("updated_at = ?", s.now()).
		Where("?TableAlias.id = ?", item.Job.ID).
		Where("?TableAlias.state = ?", string(core.JobStateInProgress)).
		Where("?TableAlias.claim_id = ?", item.Job.ClaimID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

var _ core.BatchStore = (*BatchStore)(nil)
