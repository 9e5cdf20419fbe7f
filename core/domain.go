package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidJobStateTransition = errors.New("core: invalid extraction job state transition")
	ErrInvalidBatchOutcome       = errors.New("core: invalid batch outcome")
	ErrInvalidCommitMode         = errors.New("core: invalid commit mode")
	ErrEventNotFound             = errors.New("core: email event not found")
	ErrJobNotFound               = errors.New("core: extraction job not found")
	ErrAttachmentNotFound        = errors.New("core: attachment not found")
	ErrBatchRunNotFound          = errors.New("core: batch run not found")
	ErrPayloadNotFound           = errors.New("core: attachment payload not found")
	ErrDocumentNotDecodable      = errors.New("core: attachment content is not a decodable document")
	ErrSecretNotFound            = errors.New("core: provider secret not found")
	ErrResultAlreadyWritten      = errors.New("core: extraction result already written")
)

// MediaTypePDF is the only media type eligible for OCR extraction jobs.
const MediaTypePDF = "application/pdf"

// EmailEvent is the provider-agnostic representation of an inbound
// email-derived event. (ProviderID, ExternalEventID) is the natural
// idempotency key; events are immutable once admitted.
type EmailEvent struct {
	ID              string
	ProviderID      string
	ExternalEventID string
	ReceivedAt      time.Time
	Sender          string
	Recipients      []string
	Subject         string
	BodyRefs        []string
	CreatedAt       time.Time
}

func (e EmailEvent) Validate() error {
	if strings.TrimSpace(e.ProviderID) == "" {
		return fmt.Errorf("core: email event provider id is required")
	}
	if strings.TrimSpace(e.ExternalEventID) == "" {
		return fmt.Errorf("core: email event external event id is required")
	}
	return nil
}

// Attachment is owned exclusively by its event; created at ingestion and
// never mutated. Payload bytes live behind StorageRef in the payload store.
type Attachment struct {
	ID         string
	EventID    string
	Filename   string
	MediaType  string
	SizeBytes  int64
	StorageRef string
	CreatedAt  time.Time
}

// OCREligible reports whether the attachment should produce an extraction job.
func (a Attachment) OCREligible() bool {
	mediaType := strings.ToLower(strings.TrimSpace(a.MediaType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}
	return mediaType == MediaTypePDF
}

// IncomingAttachment carries a parsed attachment plus its raw payload before
// persistence assigns identifiers and a storage ref.
type IncomingAttachment struct {
	Filename  string
	MediaType string
	Content   []byte
}

// Delivery is the outcome of parsing one provider webhook payload. Ping
// deliveries are acknowledged without producing an event.
type Delivery struct {
	Ping        bool
	Event       EmailEvent
	Attachments []IncomingAttachment
}

type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateInProgress JobState = "in_progress"
	JobStateSucceeded  JobState = "succeeded"
	JobStateFailed     JobState = "failed"
)

// Terminal reports whether the state ends the job's current attempt cycle.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

func jobTransitionAllowed(from, to JobState) bool {
	switch from {
	case JobStatePending:
		return to == JobStateInProgress
	case JobStateInProgress:
		return to == JobStateSucceeded || to == JobStateFailed || to == JobStatePending
	case JobStateFailed:
		return to == JobStatePending
	default:
		return false
	}
}

// ErrorKind classifies why an extraction attempt failed.
type ErrorKind string

const (
	ErrorKindNone    ErrorKind = ""
	ErrorKindTimeout ErrorKind = "timeout"
	ErrorKindDecode  ErrorKind = "decode_error"
	ErrorKindEngine  ErrorKind = "engine_error"
)

// ExtractionJob tracks one attachment through the OCR pipeline. Exactly one
// non-terminal job exists per attachment; the claim columns implement the
// lease described by the worker contract.
type ExtractionJob struct {
	ID             string
	AttachmentID   string
	State          JobState
	AttemptCount   int
	EnqueuedAt     time.Time
	ClaimID        string
	LeaseExpiresAt *time.Time
	BatchRunID     string
	ErrorKind      ErrorKind
	UpdatedAt      time.Time
}

func (j *ExtractionJob) TransitionTo(state JobState, now time.Time) error {
	if j == nil {
		return nil
	}
	if !jobTransitionAllowed(j.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidJobStateTransition, j.State, state)
	}
	j.State = state
	j.UpdatedAt = now
	if state != JobStateInProgress {
		j.ClaimID = ""
		j.LeaseExpiresAt = nil
	}
	return nil
}

// ExtractionResult is written exactly once per job by the worker that
// completed it; immutable thereafter.
type ExtractionResult struct {
	JobID       string
	Text        string
	ErrorKind   ErrorKind
	CompletedAt time.Time
}

func (r ExtractionResult) Failed() bool {
	return r.ErrorKind != ErrorKindNone
}

type CommitMode string

const (
	CommitModeSingleTransaction CommitMode = "single_transaction"
	CommitModePerItem           CommitMode = "per_item"
)

func ParseCommitMode(raw string) (CommitMode, error) {
	switch CommitMode(strings.TrimSpace(strings.ToLower(raw))) {
	case CommitModeSingleTransaction:
		return CommitModeSingleTransaction, nil
	case CommitModePerItem:
		return CommitModePerItem, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCommitMode, raw)
	}
}

type BatchOutcome string

const (
	BatchOutcomeCommitted          BatchOutcome = "committed"
	BatchOutcomePartiallyCommitted BatchOutcome = "partially_committed"
	BatchOutcomeAborted            BatchOutcome = "aborted"
)

// BatchRun is the terminal record of one commit unit. Failed/Total is
// computed only once every member job reached a terminal state.
type BatchRun struct {
	ID                 string
	JobIDs             []string
	CommitMode         CommitMode
	MaxErrorPercentage float64
	Total              int
	Failed             int
	Outcome            BatchOutcome
	ClosedAt           time.Time
}

// FailureRatioExceeded reports whether the failed fraction breaches the
// configured threshold. A threshold of 100 never trips.
func (b BatchRun) FailureRatioExceeded() bool {
	if b.Total == 0 {
		return false
	}
	return float64(b.Failed)/float64(b.Total)*100 > b.MaxErrorPercentage
}

// ProviderSecret is the per-provider HMAC secret used to verify inbound
// webhook signatures.
type ProviderSecret struct {
	ProviderID string
	Secret     string
	RotatedAt  time.Time
}
