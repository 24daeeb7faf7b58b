package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeMarkerPrune   JobType = "marker_prune"
	JobTypeLedgerArchive JobType = "ledger_archive"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// MarkerPruneJobPayload contains the payload for idempotency marker pruning
type MarkerPruneJobPayload struct {
	Cutoff time.Time `json:"cutoff"`
}

// ToMap converts the payload to a map for storage
func (p MarkerPruneJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"cutoff": p.Cutoff.Format(time.RFC3339),
	}
}

// MarkerPruneJobPayloadFromMap creates a payload from a map
func MarkerPruneJobPayloadFromMap(data map[string]interface{}) (*MarkerPruneJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload MarkerPruneJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// LedgerArchiveJobPayload contains the payload for monthly ledger exports
type LedgerArchiveJobPayload struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// ToMap converts the payload to a map for storage
func (p LedgerArchiveJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"year":  p.Year,
		"month": p.Month,
	}
}

// LedgerArchiveJobPayloadFromMap creates a payload from a map
func LedgerArchiveJobPayloadFromMap(data map[string]interface{}) (*LedgerArchiveJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload LedgerArchiveJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// MonthStart returns the first instant of the payload's month in UTC.
func (p LedgerArchiveJobPayload) MonthStart() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.ProcessedAt = &now
	j.UpdatedAt = now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMsg = errorMsg
	j.UpdatedAt = time.Now()
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.RetryCount++
	j.UpdatedAt = time.Now()
}
