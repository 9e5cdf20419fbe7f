package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-mailroom/core"
)

// ResultStore writes extraction results. The unique index on job_id makes
// each result write-once: a second write surfaces ErrResultAlreadyWritten.
type ResultStore struct {
	db   *bun.DB
	repo repository.Repository[*extractionResultRecord]
}

func NewResultStore(db *bun.DB) (*ResultStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*extractionResultRecord](db, extractionResultHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid extraction result repository wiring: %w", err)
		}
	}
	return &ResultStore{db: db, repo: repo}, nil
}

func (s *ResultStore) Create(ctx context.Context, result core.ExtractionResult) (core.ExtractionResult, error) {
	if s == nil || s.db == nil {
		return core.ExtractionResult{}, fmt.Errorf("sqlstore: result store is not configured")
	}
	if strings.TrimSpace(result.JobID) == "" {
		return core.ExtractionResult{}, fmt.Errorf("sqlstore: extraction result job id is required")
	}
	record := &extractionResultRecord{
		ID:          uuid.NewString(),
		JobID:       strings.TrimSpace(result.JobID),
		Text:        result.Text,
		ErrorKind:   string(result.ErrorKind),
		CompletedAt: result.CompletedAt,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.ExtractionResult{}, fmt.Errorf("%w: job %s", core.ErrResultAlreadyWritten, result.JobID)
		}
		return core.ExtractionResult{}, err
	}
	return record.toDomain(), nil
}

func (s *ResultStore) GetByJob(ctx context.Context, jobID string) (core.ExtractionResult, error) {
	if s == nil || s.db == nil {
		return core.ExtractionResult{}, fmt.Errorf("sqlstore: result store is not configured")
	}
	record := &extractionResultRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.job_id = ?", strings.TrimSpace(jobID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ExtractionResult{}, core.ErrJobNotFound
		}
		return core.ExtractionResult{}, err
	}
	return record.toDomain(), nil
}

var _ core.ResultStore = (*ResultStore)(nil)
