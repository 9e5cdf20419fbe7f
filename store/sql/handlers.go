package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func emailEventHandlers() repository.ModelHandlers[*emailEventRecord] {
	return repository.ModelHandlers[*emailEventRecord]{
		NewRecord: func() *emailEventRecord {
			return &emailEventRecord{}
		},
		GetID: func(record *emailEventRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *emailEventRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *emailEventRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func attachmentHandlers() repository.ModelHandlers[*attachmentRecord] {
	return repository.ModelHandlers[*attachmentRecord]{
		NewRecord: func() *attachmentRecord {
			return &attachmentRecord{}
		},
		GetID: func(record *attachmentRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *attachmentRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *attachmentRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func extractionJobHandlers() repository.ModelHandlers[*extractionJobRecord] {
	return repository.ModelHandlers[*extractionJobRecord]{
		NewRecord: func() *extractionJobRecord {
			return &extractionJobRecord{}
		},
		GetID: func(record *extractionJobRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *extractionJobRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *extractionJobRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func extractionResultHandlers() repository.ModelHandlers[*extractionResultRecord] {
	return repository.ModelHandlers[*extractionResultRecord]{
		NewRecord: func() *extractionResultRecord {
			return &extractionResultRecord{}
		},
		GetID: func(record *extractionResultRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *extractionResultRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *extractionResultRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func batchRunHandlers() repository.ModelHandlers[*batchRunRecord] {
	return repository.ModelHandlers[*batchRunRecord]{
		NewRecord: func() *batchRunRecord {
			return &batchRunRecord{}
		},
		GetID: func(record *batchRunRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *batchRunRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *batchRunRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
