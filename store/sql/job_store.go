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

const claimRetries = 3

// JobStore is the durable extraction queue. Claims are compare-and-swap
// updates guarded on the previous state and claim id so two workers can
// never hold the same job; a zero-rows update means the race was lost and
// the claim loop picks the next candidate.
type JobStore struct {
	db   *bun.DB
	repo repository.Repository[*extractionJobRecord]
	now  func() time.Time
}

func NewJobStore(db *bun.DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*extractionJobRecord](db, extractionJobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid extraction job repository wiring: %w", err)
		}
	}
	return &JobStore{db: db, repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Enqueue creates a pending job for the attachment. The partial unique
// index on non-terminal jobs makes the insert idempotent: a violation means
// a live job already exists, which is returned with created=false.
func (s *JobStore) Enqueue(ctx context.Context, attachmentID string) (core.ExtractionJob, bool, error) {
	if s == nil || s.db == nil {
		return core.ExtractionJob{}, false, fmt.Errorf("sqlstore: job store is not configured")
	}
	attachmentID = strings.TrimSpace(attachmentID)
	if attachmentID == "" {
		return core.ExtractionJob{}, false, fmt.Errorf("sqlstore: attachment id is required")
	}
	now := s.now()
	record := &extractionJobRecord{
		ID:           uuid.NewString(),
		AttachmentID: attachmentID,
		State:        string(core.JobStatePending),
		EnqueuedAt:   now,
		UpdatedAt:    now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.getNonTerminal(ctx, attachmentID)
			if getErr != nil {
				return core.ExtractionJob{}, false, getErr
			}
			return existing, false, nil
		}
		return core.ExtractionJob{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *JobStore) getNonTerminal(ctx context.Context, attachmentID string) (core.ExtractionJob, error) {
	record := &extractionJobRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.attachment_id = ?", attachmentID).
		Where("?TableAlias.state IN (?)", bun.In([]string{
			string(core.JobStatePending),
			string(core.JobStateInProgress),
		})).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ExtractionJob{}, core.ErrJobNotFound
		}
		return core.ExtractionJob{}, err
	}
	return record.toDomain(), nil
}

// GetByAttachment returns the most recent job for the attachment in any
// state, or ErrJobNotFound when the attachment was never enqueued.
func (s *JobStore) GetByAttachment(ctx context.Context, attachmentID string) (core.ExtractionJob, error) {
	if s == nil || s.db == nil {
		return core.ExtractionJob{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	attachmentID = strings.TrimSpace(attachmentID)
	if attachmentID == "" {
		return core.ExtractionJob{}, fmt.Errorf("sqlstore: attachment id is required")
	}
	record := &extractionJobRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.attachment_id = ?", attachmentID).
		Order("enqueued_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ExtractionJob{}, core.ErrJobNotFound
		}
		return core.ExtractionJob{}, err
	}
	return record.toDomain(), nil
}

// Claim moves one eligible job to in_progress under claimID and a fresh
// lease, incrementing its attempt count. It returns found=false when no
// job is eligible.
func (s *JobStore) Claim(ctx context.Context, claimID string, lease time.Duration) (core.ExtractionJob, bool, error) {
	if s == nil || s.db == nil {
		return core.ExtractionJob{}, false, fmt.Errorf("sqlstore: job store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return core.ExtractionJob{}, false, fmt.Errorf("sqlstore: claim id is required")
	}

	for attempt := 0; attempt < claimRetries; attempt++ {
		now := s.now()
		candidate := &extractionJobRecord{}
		err := s.db.NewSelect().
			Model(candidate).
			Where("?TableAlias.state = ?", string(core.JobStatePending)).
			WhereOr("?TableAlias.state = ? AND ?TableAlias.lease_expires_at < ?", string(core.JobStateInProgress), now).
			Order("enqueued_at ASC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ExtractionJob{}, false, nil
			}
			return core.ExtractionJob{}, false, err
		}

		expires := now.Add(lease)
		update := s.db.NewUpdate().
			Model((*extractionJobRecord)(nil)).
			Set("state = ?", string(core.JobStateInProgress)).
			Set("claim_id = ?", claimID).
			Set("lease_expires_at = ?", expires).
			Set("attempt_count = attempt_count + 1").
			Set("error_kind = ?", "").
			Set("updated_at = ?", now).
			Where("?TableAlias.id = ?", candidate.ID).
			Where("?TableAlias.state = ?", candidate.State)
		if candidate.State == string(core.JobStateInProgress) {
			update = update.
				Where("?TableAlias.claim_id = ?", candidate.ClaimID).
				Where("?TableAlias.lease_expires_at < ?", now)
		}
		result, err := update.Exec(ctx)
		if err != nil {
			return core.ExtractionJob{}, false, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return core.ExtractionJob{}, false, err
		}
		if affected == 0 {
			continue
		}

		job := candidate.toDomain()
		job.State = core.JobStateInProgress
		job.ClaimID = claimID
		job.LeaseExpiresAt = &expires
		job.AttemptCount++
		job.ErrorKind = core.ErrorKindNone
		job.UpdatedAt = now
		return job, true, nil
	}
	return core.ExtractionJob{}, false, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (core.ExtractionJob, error) {
	if s == nil || s.db == nil {
		return core.ExtractionJob{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	record := &extractionJobRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ExtractionJob{}, core.ErrJobNotFound
		}
		return core.ExtractionJob{}, err
	}
	return record.toDomain(), nil
}

func (s *JobStore) MarkSucceeded(ctx context.Context, id, claimID string) error {
	return s.finishClaim(ctx, id, claimID, core.JobStateSucceeded, core.ErrorKindNone)
}

func (s *JobStore) MarkFailed(ctx context.Context, id, claimID string, kind core.ErrorKind) error {
	return s.finishClaim(ctx, id, claimID, core.JobStateFailed, kind)
}

// Release hands a claimed job back to the queue without consuming the
// attempt already counted at claim time.
func (s *JobStore) Release(ctx context.Context, id, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: job store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*extractionJobRecord)(nil)).
		Set("state = ?", string(core.JobStatePending)).
		Set("claim_id = ?", "").
		Set("lease_expires_at = NULL").
		Set("attempt_count = attempt_count - 1").
		Set("updated_at = ?", s.now()).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Where("?TableAlias.state = ?", string(core.JobStateInProgress)).
		Where("?TableAlias.claim_id = ?", strings.TrimSpace(claimID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(result, id)
}

func (s *JobStore) finishClaim(ctx context.Context, id, claimID string, state core.JobState, kind core.ErrorKind) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: job store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*extractionJobRecord)(nil)).
		Set("state = ?", string(state)).
		Set("claim_id = ?", "").
		Set("lease_expires_at = NULL").
		Set("error_kind = ?", string(kind)).
		Set("updated_at = ?", s.now()).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Where("?TableAlias.state = ?", string(core.JobStateInProgress)).
		Where("?TableAlias.claim_id = ?", strings.TrimSpace(claimID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(result, id)
}

// Requeue moves failed jobs with attempts left back to pending. Jobs at or
// past maxAttempts are skipped, not errored.
func (s *JobStore) Requeue(ctx context.Context, jobIDs []string, maxAttempts int) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: job store is not configured")
	}
	if len(jobIDs) == 0 {
		return 0, nil
	}
	result, err := s.db.NewUpdate().
		Model((*extractionJobRecord)(nil)).
		Set("state = ?", string(core.JobStatePending)).
		Set("claim_id = ?", "").
		Set("lease_expires_at = NULL").
		Set("error_kind = ?", "").
		Set("updated_at = ?", s.now()).
		Where("?TableAlias.id IN (?)", bun.In(jobIDs)).
		Where("?TableAlias.state = ?", string(core.JobStateFailed)).
		Where("?TableAlias.attempt_count < ?", maxAttempts).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *JobStore) ListByState(ctx context.Context, state core.JobState, limit int) ([]core.ExtractionJob, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	var records []*extractionJobRecord
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.state = ?", string(state)).
		Order("enqueued_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	jobs := make([]core.ExtractionJob, 0, len(records))
	for _, record := range records {
		jobs = append(jobs, record.toDomain())
	}
	return jobs, nil
}

func (s *JobStore) CountByState(ctx context.Context, state core.JobState) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: job store is not configured")
	}
	count, err := s.db.NewSelect().
		Model((*extractionJobRecord)(nil)).
		Where("?TableAlias.state = ?", string(state)).
		Count(ctx)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func requireAffected(result sql.Result, jobID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %s is not held under the given claim", core.ErrInvalidJobStateTransition, jobID)
	}
	return nil
}

var _ core.JobStore = (*JobStore)(nil)
