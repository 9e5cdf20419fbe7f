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

// SecretStore holds the per-provider webhook secrets used for signature
// verification. Rotate is an upsert keyed on provider id.
type SecretStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewSecretStore(db *bun.DB) (*SecretStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &SecretStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SecretStore) Get(ctx context.Context, providerID string) (core.ProviderSecret, error) {
	if s == nil || s.db == nil {
		return core.ProviderSecret{}, fmt.Errorf("sqlstore: secret store is not configured")
	}
	record := &providerSecretRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(providerID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ProviderSecret{}, core.ErrSecretNotFound
		}
		return core.ProviderSecret{}, err
	}
	return record.toDomain(), nil
}

func (s *SecretStore) Rotate(ctx context.Context, providerID, secret string) (core.ProviderSecret, error) {
	if s == nil || s.db == nil {
		return core.ProviderSecret{}, fmt.Errorf("sqlstore: secret store is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return core.ProviderSecret{}, fmt.Errorf("sqlstore: provider id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return core.ProviderSecret{}, fmt.Errorf("sqlstore: provider secret is required")
	}
	record := &providerSecretRecord{
		ProviderID: providerID,
		Secret:     secret,
		RotatedAt:  s.now(),
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (provider_id) DO UPDATE").
		Set("secret = EXCLUDED.secret").
		Set("rotated_at = EXCLUDED.rotated_at").
		Exec(ctx)
	if err != nil {
		return core.ProviderSecret{}, err
	}
	return record.toDomain(), nil
}

var _ core.SecretStore = (*SecretStore)(nil)
