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

// EventStore enforces the delivery idempotency key at the storage layer:
// Admit inserts first and reads the unique violation on
// (provider_id, external_event_id) as "already admitted".
type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*emailEventRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*emailEventRecord](db, emailEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid email event repository wiring: %w", err)
		}
	}
	return &EventStore{db: db, repo: repo}, nil
}

func (s *EventStore) Admit(ctx context.Context, event core.EmailEvent) (core.EmailEvent, bool, error) {
	if s == nil || s.db == nil {
		return core.EmailEvent{}, false, fmt.Errorf("sqlstore: event store is not configured")
	}
	if err := event.Validate(); err != nil {
		return core.EmailEvent{}, false, err
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = now
	}

	record := newEmailEventRecord(event, now)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.Get(ctx, event.ProviderID, event.ExternalEventID)
			if getErr != nil {
				return core.EmailEvent{}, false, getErr
			}
			return existing, false, nil
		}
		return core.EmailEvent{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *EventStore) Get(ctx context.Context, providerID, externalEventID string) (core.EmailEvent, error) {
	if s == nil || s.db == nil {
		return core.EmailEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	record := &emailEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(providerID)).
		Where("?TableAlias.external_event_id = ?", strings.TrimSpace(externalEventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.EmailEvent{}, core.ErrEventNotFound
		}
		return core.EmailEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *EventStore) GetByID(ctx context.Context, id string) (core.EmailEvent, error) {
	if s == nil || s.db == nil {
		return core.EmailEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	record := &emailEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.EmailEvent{}, core.ErrEventNotFound
		}
		return core.EmailEvent{}, err
	}
	return record.toDomain(), nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.EventStore = (*EventStore)(nil)
