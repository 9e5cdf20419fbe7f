package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-mailroom/core"
)

type RepositoryFactory struct {
	db *bun.DB

	eventStore      *EventStore
	attachmentStore *AttachmentStore
	payloadStore    *PayloadStore
	jobStore        *JobStore
	resultStore     *ResultStore
	batchStore      *BatchStore
	secretStore     *SecretStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.eventStore != nil && f.jobStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) EventStore() core.EventStore {
	if f == nil {
		return nil
	}
	return f.eventStore
}

func (f *RepositoryFactory) AttachmentStore() core.AttachmentStore {
	if f == nil {
		return nil
	}
	return f.attachmentStore
}

func (f *RepositoryFactory) PayloadStore() core.PayloadStore {
	if f == nil {
		return nil
	}
	return f.payloadStore
}

func (f *RepositoryFactory) JobStore() core.JobStore {
	if f == nil {
		return nil
	}
	return f.jobStore
}

func (f *RepositoryFactory) ResultStore() core.ResultStore {
	if f == nil {
		return nil
	}
	return f.resultStore
}

func (f *RepositoryFactory) BatchStore() core.BatchStore {
	if f == nil {
		return nil
	}
	return f.batchStore
}

func (f *RepositoryFactory) SecretStore() core.SecretStore {
	if f == nil {
		return nil
	}
	return f.secretStore
}

func (f *RepositoryFactory) initStores() error {
	eventStore, err := NewEventStore(f.db)
	if err != nil {
		return err
	}
	f.eventStore = eventStore
	attachmentStore, err := NewAttachmentStore(f.db)
	if err != nil {
		return err
	}
	f.attachmentStore = attachmentStore
	payloadStore, err := NewPayloadStore(f.db)
	if err != nil {
		return err
	}
	f.payloadStore = payloadStore
	jobStore, err := NewJobStore(f.db)
	if err != nil {
		return err
	}
	f.jobStore = jobStore
	resultStore, err := NewResultStore(f.db)
	if err != nil {
		return err
	}
	f.resultStore = resultStore
	batchStore, err := NewBatchStore(f.db)
	if err != nil {
		return err
	}
	f.batchStore = batchStore
	secretStore, err := NewSecretStore(f.db)
	if err != nil {
		return err
	}
	f.secretStore = secretStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var (
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
