package types

import (
	"time"

	"github.com/google/uuid"

	"contract-analyzer/pipeline"
)

// JobStatus is the lifecycle state of one analysis job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job is the in-memory record for one uploaded contract. The document,
// chunks, and results are written once by the processor and immutable after
// completion; the chat path reads them for the lifetime of the record.
type Job struct {
	JobID         uuid.UUID
	Status        JobStatus
	Progress      int
	Stage         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	Filename      string
	FileSizeBytes int64
	Document      *pipeline.Document
	Chunks        []pipeline.Chunk
	Results       []pipeline.ComplianceResult
	TimingsMS     map[string]int64
	ErrorMessage  string
}

// ChatMessage is one entry of a session's append-only history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSession ties a message history to a completed job.
type ChatSession struct {
	SessionID  uuid.UUID
	JobID      uuid.UUID
	CreatedAt  time.Time
	LastActive time.Time
	Messages   []ChatMessage
}

// API payloads. Field names are part of the wire contract.

type UploadResponse struct {
	JobID   uuid.UUID `json:"job_id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

type JobStatusResponse struct {
	JobID        uuid.UUID        `json:"job_id"`
	Status       JobStatus        `json:"status"`
	Progress     int              `json:"progress"`
	Stage        string           `json:"stage,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	ErrorMessage string           `json:"error_message,omitempty"`
	TimingsMS    map[string]int64 `json:"timings_ms,omitempty"`
}

type JobResultResponse struct {
	JobID       uuid.UUID                   `json:"job_id"`
	Filename    string                      `json:"filename"`
	Status      JobStatus                   `json:"status"`
	Results     []pipeline.ComplianceResult `json:"results"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
	LLMMode     string                      `json:"llm_mode"`
	ModelName   string                      `json:"model_name"`
	NeedsOCR    bool                        `json:"needs_ocr"`
	TimingsMS   map[string]int64            `json:"timings_ms,omitempty"`
}

type ChatStartRequest struct {
	JobID uuid.UUID `json:"job_id" binding:"required"`
}

type ChatStartResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	JobID     uuid.UUID `json:"job_id"`
	Message   string    `json:"message"`
}

type ChatMessageRequest struct {
	SessionID uuid.UUID `json:"session_id" binding:"required"`
	Message   string    `json:"message" binding:"required"`
}

type ChatMessageResponse struct {
	Answer         string           `json:"answer"`
	RelevantQuotes []pipeline.Quote `json:"relevant_quotes"`
	Confidence     int              `json:"confidence"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	LLMMode string `json:"llm_mode"`
}
