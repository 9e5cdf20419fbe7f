package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-mailroom/core"
)

// PayloadStore keeps raw attachment bytes in the database, keyed by the
// storage ref recorded on the attachment row.
type PayloadStore struct {
	db *bun.DB
}

func NewPayloadStore(db *bun.DB) (*PayloadStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &PayloadStore{db: db}, nil
}

func (s *PayloadStore) Put(ctx context.Context, ref string, data []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: payload store is not configured")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("sqlstore: payload storage ref is required")
	}
	record := &payloadRecord{
		StorageRef: ref,
		Content:    data,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	return err
}

func (s *PayloadStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: payload store is not configured")
	}
	record := &payloadRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.storage_ref = ?", strings.TrimSpace(ref)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrPayloadNotFound
		}
		return nil, err
	}
	return record.Content, nil
}

var _ core.PayloadStore = (*PayloadStore)(nil)
