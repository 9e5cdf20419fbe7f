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

// AttachmentStore persists attachment metadata. Rows are written once at
// ingestion and never updated.
type AttachmentStore struct {
	db   *bun.DB
	repo repository.Repository[*attachmentRecord]
}

func NewAttachmentStore(db *bun.DB) (*AttachmentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*attachmentRecord](db, attachmentHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid attachment repository wiring: %w", err)
		}
	}
	return &AttachmentStore{db: db, repo: repo}, nil
}

func (s *AttachmentStore) CreateBatch(ctx context.Context, attachments []core.Attachment) ([]core.Attachment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: attachment store is not configured")
	}
	if len(attachments) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	records := make([]*attachmentRecord, 0, len(attachments))
	for _, attachment := range attachments {
		if strings.TrimSpace(attachment.ID) == "" {
			attachment.ID = uuid.NewString()
		}
		records = append(records, newAttachmentRecord(attachment, now))
	}
	if _, err := s.db.NewInsert().Model(&records).Exec(ctx); err != nil {
		return nil, err
	}
	created := make([]core.Attachment, 0, len(records))
	for _, record := range records {
		created = append(created, record.toDomain())
	}
	return created, nil
}

func (s *AttachmentStore) Get(ctx context.Context, id string) (core.Attachment, error) {
	if s == nil || s.db == nil {
		return core.Attachment{}, fmt.Errorf("sqlstore: attachment store is not configured")
	}
	record := &attachmentRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Attachment{}, core.ErrAttachmentNotFound
		}
		return core.Attachment{}, err
	}
	return record.toDomain(), nil
}

func (s *AttachmentStore) ListByEvent(ctx context.Context, eventID string) ([]core.Attachment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: attachment store is not configured")
	}
	var records []*attachmentRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	attachments := make([]core.Attachment, 0, len(records))
	for _, record := range records {
		attachments = append(attachments, record.toDomain())
	}
	return attachments, nil
}

var _ core.AttachmentStore = (*AttachmentStore)(nil)
