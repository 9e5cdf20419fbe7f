package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-mailroom/core"
)

type emailEventRecord struct {
	bun.BaseModel `bun:"table:mailroom_email_events,alias:ee"`

	ID              string    `bun:"id,pk"`
	ProviderID      string    `bun:"provider_id,notnull"`
	ExternalEventID string    `bun:"external_event_id,notnull"`
	ReceivedAt      time.Time `bun:"received_at,nullzero,notnull"`
	Sender          string    `bun:"sender"`
	Recipients      []string  `bun:"recipients,type:jsonb"`
	Subject         string    `bun:"subject"`
	BodyRefs        []string  `bun:"body_refs,type:jsonb"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type attachmentRecord struct {
	bun.BaseModel `bun:"table:mailroom_attachments,alias:at"`

	ID         string    `bun:"id,pk"`
	EventID    string    `bun:"event_id,notnull"`
	Filename   string    `bun:"filename"`
	MediaType  string    `bun:"media_type,notnull"`
	SizeBytes  int64     `bun:"size_bytes,notnull"`
	StorageRef string    `bun:"storage_ref,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type payloadRecord struct {
	bun.BaseModel `bun:"table:mailroom_attachment_payloads,alias:ap"`

	StorageRef string    `bun:"storage_ref,pk"`
	Content    []byte    `bun:"content,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type extractionJobRecord struct {
	bun.BaseModel `bun:"table:mailroom_extraction_jobs,alias:ej"`

	ID             string     `bun:"id,pk"`
	AttachmentID   string     `bun:"attachment_id,notnull"`
	State          string     `bun:"state,notnull"`
	AttemptCount   int        `bun:"attempt_count,notnull"`
	EnqueuedAt     time.Time  `bun:"enqueued_at,nullzero,notnull"`
	ClaimID        string     `bun:"claim_id"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	BatchRunID     string     `bun:"batch_run_id"`
	ErrorKind      string     `bun:"error_kind"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type extractionResultRecord struct {
	bun.BaseModel `bun:"table:mailroom_extraction_results,alias:er"`

	ID          string    `bun:"id,pk"`
	JobID       string    `bun:"job_id,notnull"`
	Text        string    `bun:"text"`
	ErrorKind   string    `bun:"error_kind"`
	CompletedAt time.Time `bun:"completed_at,nullzero,notnull"`
}

type batchRunRecord struct {
	bun.BaseModel `bun:"table:mailroom_batch_runs,alias:br"`

	ID                 string    `bun:"id,pk"`
	JobIDs             []string  `bun:"job_ids,type:jsonb"`
	CommitMode         string    `bun:"commit_mode,notnull"`
	MaxErrorPercentage float64   `bun:"max_error_percentage,notnull"`
	Total              int       `bun:"total,notnull"`
	Failed             int       `bun:"failed,notnull"`
	Outcome            string    `bun:"outcome,notnull"`
	ClosedAt           time.Time `bun:"closed_at,nullzero,notnull"`
}

type providerSecretRecord struct {
	bun.BaseModel `bun:"table:mailroom_provider_secrets,alias:ps"`

	ProviderID string    `bun:"provider_id,pk"`
	Secret     string    `bun:"secret,notnull"`
	RotatedAt  time.Time `bun:"rotated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *emailEventRecord) toDomain() core.EmailEvent {
	if r == nil {
		return core.EmailEvent{}
	}
	return core.EmailEvent{
		ID:              r.ID,
		ProviderID:      r.ProviderID,
		ExternalEventID: r.ExternalEventID,
		ReceivedAt:      r.ReceivedAt,
		Sender:          r.Sender,
		Recipients:      append([]string(nil), r.Recipients...),
		Subject:         r.Subject,
		BodyRefs:        append([]string(nil), r.BodyRefs...),
		CreatedAt:       r.CreatedAt,
	}
}

func newEmailEventRecord(event core.EmailEvent, now time.Time) *emailEventRecord {
	return &emailEventRecord{
		ID:              event.ID,
		ProviderID:      event.ProviderID,
		ExternalEventID: event.ExternalEventID,
		ReceivedAt:      event.ReceivedAt,
		Sender:          event.Sender,
		Recipients:      append([]string(nil), event.Recipients...),
		Subject:         event.Subject,
		BodyRefs:        append([]string(nil), event.BodyRefs...),
		CreatedAt:       now,
	}
}

func (r *attachmentRecord) toDomain() core.Attachment {
	if r == nil {
		return core.Attachment{}
	}
	return core.Attachment{
		ID:         r.ID,
		EventID:    r.EventID,
		Filename:   r.Filename,
		MediaType:  r.MediaType,
		SizeBytes:  r.SizeBytes,
		StorageRef: r.StorageRef,
		CreatedAt:  r.CreatedAt,
	}
}

func newAttachmentRecord(attachment core.Attachment, now time.Time) *attachmentRecord {
	createdAt := attachment.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &attachmentRecord{
		ID:         attachment.ID,
		EventID:    attachment.EventID,
		Filename:   attachment.Filename,
		MediaType:  attachment.MediaType,
		SizeBytes:  attachment.SizeBytes,
		StorageRef: attachment.StorageRef,
		CreatedAt:  createdAt,
	}
}

func (r *extractionJobRecord) toDomain() core.ExtractionJob {
	if r == nil {
		return core.ExtractionJob{}
	}
	job := core.ExtractionJob{
		ID:           r.ID,
		AttachmentID: r.AttachmentID,
		State:        core.JobState(r.State),
		AttemptCount: r.AttemptCount,
		EnqueuedAt:   r.EnqueuedAt,
		ClaimID:      r.ClaimID,
		BatchRunID:   r.BatchRunID,
		ErrorKind:    core.ErrorKind(r.ErrorKind),
		UpdatedAt:    r.UpdatedAt,
	}
	if r.LeaseExpiresAt != nil {
		value := *r.LeaseExpiresAt
		job.LeaseExpiresAt = &value
	}
	return job
}

func (r *extractionResultRecord) toDomain() core.ExtractionResult {
	if r == nil {
		return core.ExtractionResult{}
	}
	return core.ExtractionResult{
		JobID:       r.JobID,
		Text:        r.Text,
		ErrorKind:   core.ErrorKind(r.ErrorKind),
		CompletedAt: r.CompletedAt,
	}
}

func (r *batchRunRecord) toDomain() core.BatchRun {
	if r == nil {
		return core.BatchRun{}
	}
	return core.BatchRun{
		ID:                 r.ID,
		JobIDs:             append([]string(nil), r.JobIDs...),
		CommitMode:         core.CommitMode(r.CommitMode),
		MaxErrorPercentage: r.MaxErrorPercentage,
		Total:              r.Total,
		Failed:             r.Failed,
		Outcome:            core.BatchOutcome(r.Outcome),
		ClosedAt:           r.ClosedAt,
	}
}

func newBatchRunRecord(batch core.BatchRun) *batchRunRecord {
	return &batchRunRecord{
		ID:                 batch.ID,
		JobIDs:             append([]string(nil), batch.JobIDs...),
		CommitMode:         string(batch.CommitMode),
		MaxErrorPercentage: batch.MaxErrorPercentage,
		Total:              batch.Total,
		Failed:             batch.Failed,
		Outcome:            string(batch.Outcome),
		ClosedAt:           batch.ClosedAt,
	}
}

func (r *providerSecretRecord) toDomain() core.ProviderSecret {
	if r == nil {
		return core.ProviderSecret{}
	}
	return core.ProviderSecret{
		ProviderID: r.ProviderID,
		Secret:     r.Secret,
		RotatedAt:  r.RotatedAt,
	}
}
